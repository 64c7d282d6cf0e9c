// Package api defines the request and response shapes of the HTTP surface.
package api

import (
	"time"

	"github.com/reviewpilot/crm-api/domain"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UpdateProfileRequest struct {
	Username      *string `json:"username,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Company       *string `json:"company,omitempty"`
	GoogleMapsURL *string `json:"google_maps_url,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ScrapeRequest struct {
	URL        string `json:"url"`
	MaxReviews int    `json:"max_reviews,omitempty"`
}

// UserResponse is the user projection returned to clients. Credential and
// provider fields are never included.
type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Phone           string    `json:"phone,omitempty"`
	Company         string    `json:"company,omitempty"`
	GoogleMapsURL   string    `json:"google_maps_url,omitempty"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewUserResponse projects a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		Username:        user.Username,
		Phone:           user.Phone,
		Company:         user.Company,
		GoogleMapsURL:   user.GoogleMapsURL,
		ProfileComplete: user.ProfileComplete,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

// AuthResponse is returned by every operation that establishes a session.
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         UserResponse `json:"user"`
}

type ReviewResponse struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	Date      string    `json:"date,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewReviewResponse(review *domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:        review.ID,
		Author:    review.Author,
		Rating:    review.Rating,
		Text:      review.Text,
		Date:      review.Date,
		SourceURL: review.SourceURL,
		CreatedAt: review.CreatedAt,
	}
}

// ErrorResponse is the uniform error shape rendered for taxonomy errors.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
