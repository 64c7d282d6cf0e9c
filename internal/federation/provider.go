// Package federation validates third-party identity assertions and reduces
// them to a verified external identity the auth service can link to a local
// account. Each provider implements the Verifier contract; the auth service
// never depends on a provider's assertion format.
package federation

import (
	"context"
	"errors"
)

var (
	// ErrInvalidAssertion is returned for any assertion that fails
	// verification: bad signature, wrong issuer or audience, expired.
	ErrInvalidAssertion = errors.New("identity assertion rejected")
	// ErrProviderMisconfigured indicates missing provider configuration,
	// detected at construction time.
	ErrProviderMisconfigured = errors.New("identity provider misconfigured")
)

// ExternalIdentity is the verified identity extracted from an assertion.
type ExternalIdentity struct {
	// ProviderUserID is the provider's stable subject identifier.
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	EmailVerified  bool
}

// Verifier validates a raw identity assertion from one provider.
type Verifier interface {
	// Name returns the provider's unique identifier, e.g. "google".
	Name() string
	// Verify checks the assertion and extracts the external identity.
	// Any verification failure is reported as ErrInvalidAssertion.
	Verify(ctx context.Context, rawAssertion string) (*ExternalIdentity, error)
}
