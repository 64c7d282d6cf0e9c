package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// defaultIterations balances login latency against brute-force cost.
	defaultIterations = 120_000
	saltLength        = 16
	keyLength         = 32

	hashScheme = "pbkdf2_sha256"
)

var (
	// ErrPasswordMismatch is returned when the password does not match the hash.
	ErrPasswordMismatch = errors.New("password does not match")
	// ErrCorruptCredential is returned for stored hashes that cannot be parsed.
	// Callers treat it as a verification failure, never as a crash.
	ErrCorruptCredential = errors.New("malformed password hash")
)

// PBKDF2Hasher implements one-way password hashing with PBKDF2-SHA256.
// Every call to Hash draws a fresh random salt, so hashing the same password
// twice never yields the same stored value.
type PBKDF2Hasher struct {
	Iterations int
}

// NewPBKDF2Hasher creates a hasher. Iterations <= 0 selects the default.
func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return &PBKDF2Hasher{Iterations: iterations}
}

// Hash derives a salted key from the password and encodes it as
// pbkdf2_sha256$<iterations>$<salt>$<key> with base64 raw-std segments.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.Iterations, keyLength, sha256.New)

	return fmt.Sprintf("%s$%d$%s$%s",
		hashScheme,
		h.Iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the stored salt and iteration count and
// compares in constant time. It returns nil on match, ErrPasswordMismatch on
// mismatch, and ErrCorruptCredential when the stored value cannot be parsed.
func (h *PBKDF2Hasher) Verify(stored, password string) error {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return ErrCorruptCredential
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return ErrCorruptCredential
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrCorruptCredential
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return ErrCorruptCredential
	}

	key := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}
