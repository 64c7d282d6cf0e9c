// Package services contains the business logic composed from the domain
// repositories and the auth primitives. Services are stateless across calls;
// all durable state lives behind the repository interfaces.
package services

import (
	"context"
	"time"
)

// PasswordHasher abstracts one-way password hashing.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(stored, password string) error
}

// TokenCodec abstracts issuing and verifying self-contained access tokens.
type TokenCodec interface {
	Issue(subject string, now time.Time) (string, error)
	Verify(tokenString string, now time.Time) (subject string, expiresAt time.Time, err error)
	AccessTTL() time.Duration
}

// AttemptLimiter throttles repeated attempts per key. Allow returns
// ratelimit.ErrLimited when the budget is exhausted and ratelimit.ErrUnavailable
// when the backing store cannot be reached. Reset drops the counter, used
// after a successful login.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}
