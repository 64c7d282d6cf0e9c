package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

var (
	// ErrTokenExpired is returned for structurally valid tokens past expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid covers every other verification failure: bad signature,
	// unknown key id, wrong token type, malformed input.
	ErrTokenInvalid = errors.New("access token invalid")
)

// AccessClaims is the payload of an access token. The type discriminator
// prevents other token kinds from being accepted where an access token is
// expected.
type AccessClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies signed, self-contained access tokens.
// Signing keys are held as a versioned set so the active key can be rotated
// without invalidating tokens signed by an older key.
type TokenCodec struct {
	keys        map[string][]byte
	activeKeyID string
	issuer      string
	accessTTL   time.Duration
}

// NewTokenCodec builds a codec from a key set and the id of the key used for
// signing. Verification accepts any key in the set, selected by the kid header.
func NewTokenCodec(keys map[string][]byte, activeKeyID, issuer string, accessTTL time.Duration) (*TokenCodec, error) {
	if len(keys) == 0 {
		return nil, errors.New("token codec requires at least one signing key")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active key id %q not present in key set", activeKeyID)
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token lifetime must be positive")
	}
	return &TokenCodec{
		keys:        keys,
		activeKeyID: activeKeyID,
		issuer:      issuer,
		accessTTL:   accessTTL,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// Issue signs a new access token for the subject, valid from now until
// now + access lifetime.
func (c *TokenCodec) Issue(subject string, now time.Time) (string, error) {
	claims := AccessClaims{
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.activeKeyID

	signed, err := token.SignedString(c.keys[c.activeKeyID])
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and token type against the supplied instant
// and returns the subject and expiry on success. Validity is decided purely
// from the token itself; there is no store lookup.
func (c *TokenCodec) Verify(tokenString string, now time.Time) (subject string, expiresAt time.Time, err error) {
	claims := &AccessClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, c.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, ErrTokenExpired
		}
		return "", time.Time{}, ErrTokenInvalid
	}
	if claims.TokenType != accessTokenType || claims.Subject == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	return claims.Subject, claims.ExpiresAt.Time, nil
}

func (c *TokenCodec) keyFor(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = c.activeKeyID
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key id %q", kid)
	}
	return key, nil
}
