package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken maps a token string to a fixed-size cache key. Raw token values
// never appear as keys, so a cache dump does not leak usable credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
