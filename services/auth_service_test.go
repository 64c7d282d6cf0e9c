package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reviewpilot/crm-api/errors"
	"github.com/reviewpilot/crm-api/internal/federation"
	"github.com/reviewpilot/crm-api/services"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

const testClientIP = "198.51.100.7"

func signup(t *testing.T, env *authEnv, email, username, password string) *services.AuthResult {
	t.Helper()
	result, err := env.svc.Signup(context.Background(), email, username, password, testClientIP)
	require.NoError(t, err)
	return result
}

func TestSignupOpensSession(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()

	result := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "jane@example.com", result.User.Email)
	assert.True(t, result.User.IsActive)
	assert.True(t, result.User.HasPassword())

	ident, err := env.svc.VerifyAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, ident.UserID)

	_, err = env.svc.Refresh(ctx, result.RefreshToken)
	assert.NoError(t, err)
}

func TestSignupNormalizesEmail(t *testing.T) {
	env := newAuthEnv(t)

	result := signup(t, env, "  Jane@Example.COM ", "jane", "s3cretpass")
	assert.Equal(t, "jane@example.com", result.User.Email)
}

func TestSignupRejectsDuplicates(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	signup(t, env, "jane@example.com", "jane", "s3cretpass")

	_, err := env.svc.Signup(ctx, "jane@example.com", "other", "s3cretpass", testClientIP)
	assertCode(t, err, apperrors.CodeEmailAlreadyExists)

	// Email uniqueness is case-insensitive.
	_, err = env.svc.Signup(ctx, "JANE@example.com", "other", "s3cretpass", testClientIP)
	assertCode(t, err, apperrors.CodeEmailAlreadyExists)

	_, err = env.svc.Signup(ctx, "other@example.com", "jane", "s3cretpass", testClientIP)
	assertCode(t, err, apperrors.CodeUsernameAlreadyExists)
}

func TestSignupValidation(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()

	cases := map[string][3]string{
		"bad email":      {"not-an-email", "jane", "s3cretpass"},
		"short username": {"jane@example.com", "jo", "s3cretpass"},
		"short password": {"jane@example.com", "jane", "short"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Signup(ctx, c[0], c[1], c[2], testClientIP)
			assertCode(t, err, apperrors.CodeValidationFailed)
		})
	}
	assert.Zero(t, env.users.count())
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	signup(t, env, "jane@example.com", "jane", "s3cretpass")

	// Unknown account and wrong password are indistinguishable.
	_, err := env.svc.Login(ctx, "nobody@example.com", "s3cretpass")
	assertCode(t, err, apperrors.CodeInvalidCredentials)

	_, err = env.svc.Login(ctx, "jane@example.com", "wrong-password")
	assertCode(t, err, apperrors.CodeInvalidCredentials)

	result, err := env.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", result.User.Email)
}

func TestLoginProviderOnlyAccountHasNoPassword(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-1",
		Email:          "jane@example.com",
		EmailVerified:  true,
	}}
	env := newAuthEnv(t, withVerifier(verifier))
	ctx := context.Background()

	_, err := env.svc.ProviderLogin(ctx, "google", "assertion")
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "jane@example.com", "anything-at-all")
	assertCode(t, err, apperrors.CodeInvalidCredentials)
}

func TestLoginThrottled(t *testing.T) {
	env := newAuthEnv(t, withLimiter(denyLimiter{}))

	_, err := env.svc.Login(context.Background(), "jane@example.com", "s3cretpass")
	assertCode(t, err, apperrors.CodeRateLimited)
}

func TestSignupThrottledPerClientAddress(t *testing.T) {
	env := newAuthEnv(t, withLimiter(denyLimiter{}))

	// Varying the email does not dodge the throttle; the key is the address.
	_, err := env.svc.Signup(context.Background(), "jane@example.com", "jane", "s3cretpass", testClientIP)
	assertCode(t, err, apperrors.CodeRateLimited)
	_, err = env.svc.Signup(context.Background(), "other@example.com", "other", "s3cretpass", testClientIP)
	assertCode(t, err, apperrors.CodeRateLimited)
}

func TestSignupThrottleKeyedByAddress(t *testing.T) {
	limiter := &recordingLimiter{}
	env := newAuthEnv(t, withLimiter(limiter))

	signup(t, env, "jane@example.com", "jane", "s3cretpass")
	assert.Equal(t, []string{"signup:" + testClientIP}, limiter.allowed)
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	limiter := &recordingLimiter{}
	env := newAuthEnv(t, withLimiter(limiter))
	signup(t, env, "jane@example.com", "jane", "s3cretpass")

	_, err := env.svc.Login(context.Background(), "jane@example.com", "wrong-password")
	assertCode(t, err, apperrors.CodeInvalidCredentials)
	assert.Empty(t, limiter.resets)

	_, err = env.svc.Login(context.Background(), "jane@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, []string{"login:jane@example.com"}, limiter.resets)
}

func TestThrottleFailsOpenWhenLimiterDown(t *testing.T) {
	env := newAuthEnv(t, withLimiter(downLimiter{}))

	result, err := env.svc.Signup(context.Background(), "jane@example.com", "jane", "s3cretpass", testClientIP)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestProviderLoginCreatesAccount(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-1",
		Email:          "jane.doe@example.com",
		Name:           "Jane Doe",
		EmailVerified:  true,
	}}
	env := newAuthEnv(t, withVerifier(verifier))
	ctx := context.Background()

	result, err := env.svc.ProviderLogin(ctx, "google", "assertion")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", result.User.Email)
	assert.Equal(t, "jane.doe", result.User.Username)
	assert.Equal(t, "sub-1", result.User.GoogleID)
	assert.False(t, result.User.HasPassword())

	// Repeating the login reuses the account instead of creating another.
	again, err := env.svc.ProviderLogin(ctx, "google", "assertion")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, again.User.ID)
	assert.Equal(t, 1, env.users.count())
}

func TestProviderLoginGeneratedUsernameAvoidsCollisions(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-2",
		Email:          "jane@other.com",
		EmailVerified:  true,
	}}
	env := newAuthEnv(t, withVerifier(verifier))
	ctx := context.Background()
	signup(t, env, "jane@example.com", "jane", "s3cretpass")

	result, err := env.svc.ProviderLogin(ctx, "google", "assertion")
	require.NoError(t, err)
	assert.Equal(t, "jane1", result.User.Username)
}

func TestProviderLoginLinksExistingPasswordAccount(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-3",
		Email:          "jane@example.com",
		EmailVerified:  true,
	}}
	env := newAuthEnv(t, withVerifier(verifier))
	ctx := context.Background()
	existing := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	result, err := env.svc.ProviderLogin(ctx, "google", "assertion")
	require.NoError(t, err)
	assert.Equal(t, existing.User.ID, result.User.ID)
	assert.Equal(t, "sub-3", result.User.GoogleID)
	assert.Equal(t, 1, env.users.count())

	// The password still works after linking.
	_, err = env.svc.Login(ctx, "jane@example.com", "s3cretpass")
	assert.NoError(t, err)
}

func TestProviderLoginRejectsMismatchedLink(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-other",
		Email:          "jane@example.com",
		EmailVerified:  true,
	}}
	env := newAuthEnv(t, withVerifier(verifier))
	ctx := context.Background()

	// The account is already linked to a different provider identity.
	signup(t, env, "jane@example.com", "jane", "s3cretpass")
	user, err := env.users.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	user.GoogleID = "sub-original"
	require.NoError(t, env.users.Update(ctx, user))

	_, err = env.svc.ProviderLogin(ctx, "google", "assertion")
	assertCode(t, err, apperrors.CodeProviderAccountMismatch)
}

func TestProviderLoginRejectsUnverifiedEmail(t *testing.T) {
	verifier := &fakeVerifier{name: "google", ident: &federation.ExternalIdentity{
		ProviderUserID: "sub-1",
		Email:          "jane@example.com",
		EmailVerified:  false,
	}}
	env := newAuthEnv(t, withVerifier(verifier))

	_, err := env.svc.ProviderLogin(context.Background(), "google", "assertion")
	assertCode(t, err, apperrors.CodeValidationFailed)
	assert.Zero(t, env.users.count())
}

func TestProviderLoginRejectsBadAssertion(t *testing.T) {
	verifier := &fakeVerifier{name: "google", err: federation.ErrInvalidAssertion}
	env := newAuthEnv(t, withVerifier(verifier))

	_, err := env.svc.ProviderLogin(context.Background(), "google", "garbage")
	assertCode(t, err, apperrors.CodeInvalidProviderToken)
}

func TestProviderLoginUnknownProvider(t *testing.T) {
	env := newAuthEnv(t)

	_, err := env.svc.ProviderLogin(context.Background(), "github", "assertion")
	assertCode(t, err, apperrors.CodeInvalidProviderToken)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	first := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	second, err := env.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	// The consumed token is dead; the successor still works.
	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assertCode(t, err, apperrors.CodeTokenInvalid)

	_, err = env.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newAuthEnv(t)

	_, err := env.svc.Refresh(context.Background(), "never-issued")
	assertCode(t, err, apperrors.CodeTokenInvalid)
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	result := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	record, err := env.tokens.GetByValue(ctx, result.RefreshToken)
	require.NoError(t, err)
	record.ExpiresAt = time.Now().Add(-time.Minute)
	env.tokens.byValue[record.Token] = record

	_, err = env.svc.Refresh(ctx, result.RefreshToken)
	assertCode(t, err, apperrors.CodeTokenExpired)
}

func TestRefreshConcurrentUseSingleWinner(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	result := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Refresh(ctx, result.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes, invalid := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var appErr *apperrors.Error
		require.ErrorAs(t, err, &appErr)
		if appErr.Code == apperrors.CodeTokenInvalid {
			invalid++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, invalid)
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	result := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	user, err := env.users.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	user.IsActive = false
	require.NoError(t, env.users.Update(ctx, user))

	_, err = env.svc.Refresh(ctx, result.RefreshToken)
	assertCode(t, err, apperrors.CodeTokenInvalid)
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	result := signup(t, env, "jane@example.com", "jane", "s3cretpass")

	require.NoError(t, env.svc.Logout(ctx, result.RefreshToken))
	_, err := env.svc.Refresh(ctx, result.RefreshToken)
	assertCode(t, err, apperrors.CodeTokenInvalid)

	// Repeating the logout, or logging out garbage, is still fine.
	assert.NoError(t, env.svc.Logout(ctx, result.RefreshToken))
	assert.NoError(t, env.svc.Logout(ctx, "never-issued"))
	assert.NoError(t, env.svc.Logout(ctx, ""))
}

func TestVerifyAccessRejectsBadTokens(t *testing.T) {
	env := newAuthEnv(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := env.svc.VerifyAccess(token)
		assertCode(t, err, apperrors.CodeUnauthenticated)
	}
}
