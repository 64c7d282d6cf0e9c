package domain

import "time"

// RefreshToken is an opaque, single-use credential persisted per session.
// The token value is random; validity is decided by the stored record, unlike
// access tokens which are self-contained JWTs and never persisted.
type RefreshToken struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Token     string    `bson:"token" json:"-"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	Revoked   bool      `bson:"revoked" json:"-"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
