package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by repositories when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
)

// UserRepository persists User records. Email lookups are case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByProviderID(ctx context.Context, providerID string) (*User, error)
	Update(ctx context.Context, user *User) error
	// Delete removes the account. The unique fields (email, username,
	// provider id) are cleared in the same write so they become reusable
	// immediately; deletion is not complete until they are.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository persists refresh-token records keyed by token value.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByValue(ctx context.Context, value string) (*RefreshToken, error)
	// ConsumeIfActive atomically marks the token revoked if, and only if, it
	// is still in the issued state. Exactly one of two concurrent callers
	// presenting the same value succeeds; the loser gets ErrNotFound.
	ConsumeIfActive(ctx context.Context, value string) (*RefreshToken, error)
	// Revoke invalidates the token if present. Revoking an unknown or
	// already-revoked token is not an error.
	Revoke(ctx context.Context, value string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// ReviewRepository persists scraped reviews per user.
type ReviewRepository interface {
	CreateMany(ctx context.Context, reviews []*Review) error
	ListByUser(ctx context.Context, userID string) ([]*Review, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
