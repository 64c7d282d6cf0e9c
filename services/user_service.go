package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/crm-api/domain"
	apperrors "github.com/reviewpilot/crm-api/errors"
)

// UpdateProfileParams carries the optional profile fields. Nil means "leave
// unchanged".
type UpdateProfileParams struct {
	Username      *string
	Phone         *string
	Company       *string
	GoogleMapsURL *string
}

func (p UpdateProfileParams) empty() bool {
	return p.Username == nil && p.Phone == nil && p.Company == nil && p.GoogleMapsURL == nil
}

// UserService handles profile reads and mutations for authenticated users.
type UserService struct {
	users   domain.UserRepository
	tokens  domain.RefreshTokenRepository
	reviews domain.ReviewRepository
	hasher  PasswordHasher
}

func NewUserService(
	users domain.UserRepository,
	tokens domain.RefreshTokenRepository,
	reviews domain.ReviewRepository,
	hasher PasswordHasher,
) *UserService {
	return &UserService{users: users, tokens: tokens, reviews: reviews, hasher: hasher}
}

// GetProfile returns the user's profile or not_found.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFound("User profile")
		}
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, apperrors.NotFound("User profile")
	}
	return user, nil
}

// UpdateProfile applies the supplied fields and recomputes profile
// completeness (username, phone and company all present).
func (s *UserService) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) (*domain.User, error) {
	if params.empty() {
		return nil, apperrors.ValidationFailed("No update data provided.")
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if params.Username != nil {
		username := strings.TrimSpace(*params.Username)
		if len(username) < minUsernameLength {
			return nil, apperrors.ValidationFailed("Username must be at least 3 characters long.").
				WithDetail("field", "username")
		}
		if username != user.Username {
			existing, err := s.users.GetByUsername(ctx, username)
			if err == nil && existing.ID != userID {
				return nil, apperrors.UsernameAlreadyExists()
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, apperrors.Internal(err)
			}
			user.Username = username
		}
	}
	if params.Phone != nil {
		user.Phone = *params.Phone
	}
	if params.Company != nil {
		user.Company = *params.Company
	}
	if params.GoogleMapsURL != nil {
		user.GoogleMapsURL = *params.GoogleMapsURL
	}

	user.ProfileComplete = user.Username != "" && user.Phone != "" && user.Company != ""

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, apperrors.UsernameAlreadyExists()
		}
		return nil, apperrors.Internal(err)
	}

	log.Info().Str("user_id", userID).Msg("profile updated")
	return user, nil
}

// ChangePassword verifies the current password before storing a new hash.
// Other sessions are revoked so a stolen refresh token dies with the old
// password. Provider-only accounts have no password to change.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return apperrors.ValidationFailed("This account uses Google Sign-In and has no password.")
	}
	if len(newPassword) < minPasswordLength {
		return apperrors.ValidationFailed("Password must be at least 8 characters long.").
			WithDetail("field", "new_password")
	}
	if err := s.hasher.Verify(user.PasswordHash, currentPassword); err != nil {
		return apperrors.InvalidCredentials()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.Internal(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.Internal(err)
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("revoking sessions after password change failed")
	}

	log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// DeleteAccount revokes every session, removes the user's stored reviews and
// deletes the account. The delete clears email, username and provider id in
// the same write, so the values are immediately free for a new signup.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return err
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return apperrors.Internal(err)
	}
	if _, err := s.reviews.DeleteByUser(ctx, userID); err != nil {
		return apperrors.Internal(err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFound("User profile")
		}
		return apperrors.Internal(err)
	}

	log.Info().Str("user_id", userID).Msg("account deleted")
	return nil
}
