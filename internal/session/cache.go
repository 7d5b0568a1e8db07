// SPDX-License-Identifier: MIT

package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry pairs a decrypted credential with the instant it stops being
// trustworthy — the token's own exp claim, so a cache hit can never outlive
// what a fresh decrypt-and-verify would have allowed.
type cacheEntry struct {
	cred      Credential
	expiresAt time.Time
}

// AuthDecryptCache memoizes the AES-GCM decrypt of a bearer token's
// embedded credential so a hot token doesn't pay that cost on every
// request. Entries are evicted both by LRU capacity and by TTL (checked on
// read, since lru.Cache has no built-in expiry).
type AuthDecryptCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, cacheEntry]
}

// NewAuthDecryptCache builds a cache holding up to capacity entries.
// capacity <= 0 disables caching (every lookup misses).
func NewAuthDecryptCache(capacity int) *AuthDecryptCache {
	if capacity <= 0 {
		return &AuthDecryptCache{}
	}
	inner, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, already excluded above.
		return &AuthDecryptCache{}
	}
	return &AuthDecryptCache{inner: inner}
}

// Get returns the cached credential for token, if present and unexpired.
func (c *AuthDecryptCache) Get(token string) (Credential, bool) {
	if c == nil || c.inner == nil {
		return Credential{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(token)
	if !ok {
		return Credential{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.inner.Remove(token)
		return Credential{}, false
	}
	return entry.cred, true
}

// Put caches cred for token until expiresAt.
func (c *AuthDecryptCache) Put(token string, cred Credential, expiresAt time.Time) {
	if c == nil || c.inner == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(token, cacheEntry{cred: cred, expiresAt: expiresAt})
}

// Purge empties the cache, used after a logout-everywhere so stale
// plaintext credentials for a now-revoked user don't linger in memory.
func (c *AuthDecryptCache) Purge() {
	if c == nil || c.inner == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}
