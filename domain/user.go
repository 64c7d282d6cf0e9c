package domain

import "time"

// User represents a CRM account holder. An account always carries at least one
// authentication method: a password hash, a linked Google identity, or both.
type User struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	Email           string    `bson:"email,omitempty" json:"email"`
	Username        string    `bson:"username,omitempty" json:"username"`
	PasswordHash    string    `bson:"password_hash,omitempty" json:"-"`
	GoogleID        string    `bson:"google_id,omitempty" json:"-"`
	Phone           string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Company         string    `bson:"company,omitempty" json:"company,omitempty"`
	GoogleMapsURL   string    `bson:"google_maps_url,omitempty" json:"google_maps_url,omitempty"`
	ProfileComplete bool      `bson:"profile_complete" json:"profile_complete"`
	IsActive        bool      `bson:"is_active" json:"is_active"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
// Accounts created through Google Sign-In have no password hash until one is set.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
