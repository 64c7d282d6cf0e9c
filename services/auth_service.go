package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/crm-api/domain"
	apperrors "github.com/reviewpilot/crm-api/errors"
	"github.com/reviewpilot/crm-api/internal/federation"
	"github.com/reviewpilot/crm-api/internal/ratelimit"
)

const (
	minPasswordLength = 8
	minUsernameLength = 3
)

// AuthResult is returned by every operation that establishes a session.
type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// AccessIdentity is the outcome of verifying an access token.
type AccessIdentity struct {
	UserID    string
	ExpiresAt time.Time
}

// AuthService orchestrates signup, login, provider sign-in, token rotation
// and logout. It holds no per-request state and re-reads current records on
// every call.
type AuthService struct {
	users      domain.UserRepository
	tokens     domain.RefreshTokenRepository
	hasher     PasswordHasher
	codec      TokenCodec
	verifiers  map[string]federation.Verifier
	limiter    AttemptLimiter
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthService wires the orchestrator. The limiter may be nil, in which
// case no throttling is applied. Verifier lookup is by provider name.
func NewAuthService(
	users domain.UserRepository,
	tokens domain.RefreshTokenRepository,
	hasher PasswordHasher,
	codec TokenCodec,
	verifiers []federation.Verifier,
	limiter AttemptLimiter,
	refreshTTL time.Duration,
) *AuthService {
	byName := make(map[string]federation.Verifier, len(verifiers))
	for _, v := range verifiers {
		byName[v.Name()] = v
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		hasher:     hasher,
		codec:      codec,
		verifiers:  byName,
		limiter:    limiter,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTokenTTL exposes the configured access-token lifetime, e.g. for the
// expires_in field of token responses.
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.codec.AccessTTL()
}

// Signup registers a password account and opens its first session. Attempts
// are throttled per client address; throttling per email would be bypassed by
// simply varying the address being registered.
func (s *AuthService) Signup(ctx context.Context, email, username, password, clientIP string) (*AuthResult, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	if err := validateSignup(email, username, password); err != nil {
		return nil, err
	}
	if clientIP != "" {
		if err := s.throttle(ctx, "signup:"+clientIP); err != nil {
			return nil, err
		}
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.EmailAlreadyExists()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.UsernameAlreadyExists()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a race with a concurrent signup. Re-probe to report the
			// conflicting field.
			if _, probeErr := s.users.GetByEmail(ctx, email); probeErr == nil {
				return nil, apperrors.EmailAlreadyExists()
			}
			return nil, apperrors.UsernameAlreadyExists()
		}
		return nil, apperrors.Internal(err)
	}

	log.Info().Str("user_id", user.ID).Str("username", username).Msg("user registered")
	return s.openSession(ctx, user)
}

// Login authenticates with email and password. Every failure mode returns the
// same invalid_credentials error so callers cannot probe which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	if err := s.throttle(ctx, "login:"+email); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive || !user.HasPassword() {
		return nil, apperrors.InvalidCredentials()
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		// A corrupt stored hash is a verification failure, not a crash; the
		// detail is logged and the caller sees the uniform error.
		log.Debug().Err(err).Str("user_id", user.ID).Msg("password verification failed")
		return nil, apperrors.InvalidCredentials()
	}
	s.clearThrottle(ctx, "login:"+email)

	log.Info().Str("user_id", user.ID).Msg("user logged in")
	return s.openSession(ctx, user)
}

// ProviderLogin signs a user in from a third-party identity assertion. The
// merge policy: an existing account with the same provider id wins; otherwise
// an existing password account with the assertion's email gets the provider
// id linked to it; otherwise a new provider-only account is created. Repeating
// the call for an already-linked identity succeeds without mutation.
func (s *AuthService) ProviderLogin(ctx context.Context, provider, rawAssertion string) (*AuthResult, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, apperrors.InvalidProviderToken()
	}

	ident, err := verifier.Verify(ctx, rawAssertion)
	if err != nil {
		if errors.Is(err, federation.ErrInvalidAssertion) {
			log.Debug().Err(err).Str("provider", provider).Msg("assertion rejected")
			return nil, apperrors.InvalidProviderToken()
		}
		return nil, apperrors.Internal(err)
	}
	if !ident.EmailVerified {
		return nil, apperrors.ValidationFailed("Your Google email address is not verified.")
	}

	user, err := s.resolveExternalIdentity(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.InvalidProviderToken()
	}

	log.Info().Str("user_id", user.ID).Str("provider", provider).Msg("provider login")
	return s.openSession(ctx, user)
}

func (s *AuthService) resolveExternalIdentity(ctx context.Context, ident *federation.ExternalIdentity) (*domain.User, error) {
	user, err := s.users.GetByProviderID(ctx, ident.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	email := normalizeEmail(ident.Email)
	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		// Existing password account with the same email: link, don't duplicate.
		if user.GoogleID != "" && user.GoogleID != ident.ProviderUserID {
			return nil, apperrors.ProviderAccountMismatch()
		}
		if user.GoogleID == "" {
			user.GoogleID = ident.ProviderUserID
			if err := s.users.Update(ctx, user); err != nil {
				return nil, apperrors.Internal(err)
			}
			log.Info().Str("user_id", user.ID).Msg("linked google identity to existing account")
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	username, err := s.generateUsername(ctx, email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	user = &domain.User{
		Email:    email,
		Username: username,
		GoogleID: ident.ProviderUserID,
		IsActive: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Concurrent first login with the same identity; fetch the winner.
			if existing, getErr := s.users.GetByProviderID(ctx, ident.ProviderUserID); getErr == nil {
				return existing, nil
			}
		}
		return nil, apperrors.Internal(err)
	}

	log.Info().Str("user_id", user.ID).Str("email", email).Msg("created account from google identity")
	return user, nil
}

// generateUsername derives a unique username from the email local part,
// suffixing a counter on collision.
func (s *AuthService) generateUsername(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.Index(email, "@"); at > 0 {
		base = email[:at]
	}

	candidate := base
	for i := 1; ; i++ {
		_, err := s.users.GetByUsername(ctx, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// Refresh rotates a refresh token: the presented token is atomically consumed
// and a successor pair is issued. Of two concurrent calls with the same token
// exactly one succeeds; the loser gets token_invalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	record, err := s.tokens.GetByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.TokenInvalid()
		}
		return nil, apperrors.Internal(err)
	}
	if record.Expired(s.now()) {
		return nil, apperrors.TokenExpired()
	}
	if record.Revoked {
		return nil, apperrors.TokenInvalid()
	}

	consumed, err := s.tokens.ConsumeIfActive(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Raced against another rotation of the same token and lost.
			return nil, apperrors.TokenInvalid()
		}
		return nil, apperrors.Internal(err)
	}

	user, err := s.users.GetByID(ctx, consumed.UserID)
	if err != nil || !user.IsActive {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.Internal(err)
		}
		return nil, apperrors.TokenInvalid()
	}

	return s.openSession(ctx, user)
}

// Logout invalidates the refresh token. It is idempotent and never reports
// an error for unknown or already-revoked tokens.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		log.Warn().Err(err).Msg("revoking refresh token on logout failed")
	}
	return nil
}

// VerifyAccess validates an access token and returns the authenticated
// subject. Any codec failure is reported as unauthenticated.
func (s *AuthService) VerifyAccess(tokenString string) (*AccessIdentity, error) {
	subject, expiresAt, err := s.codec.Verify(tokenString, s.now())
	if err != nil {
		return nil, apperrors.Unauthenticated()
	}
	return &AccessIdentity{UserID: subject, ExpiresAt: expiresAt}, nil
}

// openSession issues a fresh access/refresh pair for the user.
func (s *AuthService) openSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	now := s.now()

	accessToken, err := s.codec.Issue(user.ID, now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	refresh := &domain.RefreshToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, refresh); err != nil {
		return nil, apperrors.Internal(err)
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
	}, nil
}

// throttle applies the attempt limiter. Limiter outages fail open: losing
// throttling is preferable to losing logins.
func (s *AuthService) throttle(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Allow(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrLimited):
		return apperrors.RateLimited()
	default:
		log.Warn().Err(err).Msg("attempt limiter unavailable, failing open")
		return nil
	}
}

// clearThrottle drops the attempt counter after a successful login so earlier
// failed attempts do not count against the next window.
func (s *AuthService) clearThrottle(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		log.Debug().Err(err).Msg("clearing attempt counter failed")
	}
}

func validateSignup(email, username, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.ValidationFailed("Please enter a valid email address.").
			WithDetail("field", "email")
	}
	if len(username) < minUsernameLength {
		return apperrors.ValidationFailed("Username must be at least 3 characters long.").
			WithDetail("field", "username")
	}
	if len(password) < minPasswordLength {
		return apperrors.ValidationFailed("Password must be at least 8 characters long.").
			WithDetail("field", "password")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
