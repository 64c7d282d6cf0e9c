package services_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/crm-api/domain"
	"github.com/reviewpilot/crm-api/internal/auth"
	"github.com/reviewpilot/crm-api/internal/federation"
	"github.com/reviewpilot/crm-api/internal/ratelimit"
	"github.com/reviewpilot/crm-api/services"
)

// memUserRepo is an in-memory domain.UserRepository with the same uniqueness
// semantics as the MongoDB implementation.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	return &cp
}

func (r *memUserRepo) violatesUnique(candidate *domain.User) bool {
	for id, existing := range r.users {
		if id == candidate.ID {
			continue
		}
		if candidate.Email != "" && strings.EqualFold(existing.Email, candidate.Email) {
			return true
		}
		if candidate.Username != "" && existing.Username == candidate.Username {
			return true
		}
		if candidate.GoogleID != "" && existing.GoogleID == candidate.GoogleID {
			return true
		}
	}
	return false
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if r.violatesUnique(user) {
		return domain.ErrDuplicate
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email != "" && strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username != "" && user.Username == username {
			return cloneUser(user), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByProviderID(_ context.Context, providerID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.GoogleID != "" && user.GoogleID == providerID {
			return cloneUser(user), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrNotFound
	}
	if r.violatesUnique(user) {
		return domain.ErrDuplicate
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.Email = ""
	user.Username = ""
	user.GoogleID = ""
	user.IsActive = false
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// memTokenRepo is an in-memory domain.RefreshTokenRepository. ConsumeIfActive
// holds the lock across check and flip, matching the conditional-update
// atomicity of the MongoDB implementation.
type memTokenRepo struct {
	mu      sync.Mutex
	byValue map[string]*domain.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{byValue: make(map[string]*domain.RefreshToken)}
}

func (r *memTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if _, exists := r.byValue[token.Token]; exists {
		return domain.ErrDuplicate
	}
	cp := *token
	r.byValue[token.Token] = &cp
	return nil
}

func (r *memTokenRepo) GetByValue(_ context.Context, value string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token, ok := r.byValue[value]; ok {
		cp := *token
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memTokenRepo) ConsumeIfActive(_ context.Context, value string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byValue[value]
	if !ok || token.Revoked {
		return nil, domain.ErrNotFound
	}
	token.Revoked = true
	cp := *token
	return &cp, nil
}

func (r *memTokenRepo) Revoke(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token, ok := r.byValue[value]; ok {
		token.Revoked = true
	}
	return nil
}

func (r *memTokenRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for value, token := range r.byValue {
		if token.UserID == userID {
			delete(r.byValue, value)
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) activeCountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, token := range r.byValue {
		if token.UserID == userID && !token.Revoked {
			n++
		}
	}
	return n
}

// fakeVerifier returns a canned identity or error.
type fakeVerifier struct {
	name  string
	ident *federation.ExternalIdentity
	err   error
}

func (v *fakeVerifier) Name() string { return v.name }

func (v *fakeVerifier) Verify(context.Context, string) (*federation.ExternalIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	cp := *v.ident
	return &cp, nil
}

// denyLimiter always reports the budget as exhausted.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) error { return ratelimit.ErrLimited }
func (denyLimiter) Reset(context.Context, string) error { return nil }

// downLimiter simulates an unreachable limiter backend.
type downLimiter struct{}

func (downLimiter) Allow(context.Context, string) error { return ratelimit.ErrUnavailable }
func (downLimiter) Reset(context.Context, string) error { return ratelimit.ErrUnavailable }

// recordingLimiter permits everything and records the keys it saw.
type recordingLimiter struct {
	mu      sync.Mutex
	allowed []string
	resets  []string
}

func (l *recordingLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowed = append(l.allowed, key)
	return nil
}

func (l *recordingLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets = append(l.resets, key)
	return nil
}

type authEnv struct {
	svc     *services.AuthService
	users   *memUserRepo
	tokens  *memTokenRepo
	reviews *memReviewRepo
	codec   *auth.TokenCodec
}

type envOption func(*envConfig)

type envConfig struct {
	verifiers []federation.Verifier
	limiter   services.AttemptLimiter
}

func withVerifier(v federation.Verifier) envOption {
	return func(c *envConfig) { c.verifiers = append(c.verifiers, v) }
}

func withLimiter(l services.AttemptLimiter) envOption {
	return func(c *envConfig) { c.limiter = l }
}

func newAuthEnv(t testingT, opts ...envOption) *authEnv {
	t.Helper()

	cfg := &envConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	codec, err := auth.NewTokenCodec(
		map[string][]byte{"v1": []byte("unit-test-secret")},
		"v1", "crm-api-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("building codec: %v", err)
	}

	users := newMemUserRepo()
	tokens := newMemTokenRepo()
	svc := services.NewAuthService(
		users, tokens,
		auth.NewPBKDF2Hasher(1000),
		codec,
		cfg.verifiers,
		cfg.limiter,
		7*24*time.Hour,
	)
	return &authEnv{svc: svc, users: users, tokens: tokens, reviews: &memReviewRepo{}, codec: codec}
}

// testingT is the subset of *testing.T the helpers need.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
