// Package cache holds short-lived, in-process caches for the hot
// authentication path.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// SubjectCache remembers the subject of already-verified access tokens so
// repeat requests skip JWT parsing. Entries expire together with the token
// they were verified from, which preserves the stateless-validity rule: a
// cached subject is never served past the token's own expiry.
type SubjectCache struct {
	cache  *ttlcache.Cache[string, string]
	maxTTL time.Duration
}

// NewSubjectCache creates a cache whose entries never outlive maxTTL even if
// a longer per-entry TTL is requested.
func NewSubjectCache(maxTTL time.Duration) *SubjectCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, string](maxTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	go c.Start()

	return &SubjectCache{cache: c, maxTTL: maxTTL}
}

// Get returns the cached subject for the token, if present and unexpired.
func (s *SubjectCache) Get(token string) (string, bool) {
	item := s.cache.Get(HashToken(token))
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Set caches the verified subject until the token's expiry.
func (s *SubjectCache) Set(token, subject string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.cache.Set(HashToken(token), subject, ttl)
}

// Stop terminates the background expiry loop.
func (s *SubjectCache) Stop() {
	s.cache.Stop()
}
