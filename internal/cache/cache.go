// Package cache is a content-addressed, TTL-bounded store of raw API
// responses. It exists to avoid repeating identical network calls within a
// run or across nearby runs; a cold or broken cache only costs extra fetches.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry is the stored envelope for one cached response.
type Entry struct {
	Signature   string          `json:"signature"`
	Provider    string          `json:"provider"`
	StoredAt    time.Time       `json:"stored_at"`
	TTLSeconds  int64           `json:"ttl_seconds"`
	RawResponse json.RawMessage `json:"raw_response"`
}

// Store persists entries keyed by (provider, signature). Implementations must
// report unreadable or corrupt entries as absent, never as errors.
type Store interface {
	Get(provider, signature string) (Entry, bool)
	Put(e Entry) error
	Close() error
}

// Now returns wall time. Swapped in TTL tests.
var Now = time.Now

// Signature derives the deterministic request signature from its key parts
// (resource name, query parameters, page cursor, ...).
func Signature(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FetchFunc performs the real request. It is expected to go through the rate
// limiter itself.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Cache decides between a stored response and a fresh fetch.
type Cache struct {
	store Store

	// OnLookup, when set, observes every decision. A bypassed lookup
	// (noCache) counts as a miss.
	OnLookup func(provider string, hit bool)
}

func New(store Store) *Cache { return &Cache{store: store} }

// GetOrFetch returns the cached response for the signature of parts when it is
// younger than ttl, otherwise calls fetch and stores the result. ttl <= 0
// means entries never expire. noCache skips the lookup but still stores the
// fetched response for future runs. The second return reports a cache hit.
func (c *Cache) GetOrFetch(ctx context.Context, provider string, parts []string, ttl time.Duration, noCache bool, fetch FetchFunc) (json.RawMessage, bool, error) {
	sig := Signature(parts...)
	if !noCache {
		if e, ok := c.store.Get(provider, sig); ok && !expired(e, ttl) {
			if c.OnLookup != nil {
				c.OnLookup(provider, true)
			}
			return e.RawResponse, true, nil
		}
	}
	if c.OnLookup != nil {
		c.OnLookup(provider, false)
	}
	body, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	// Best effort: a failed cache write must not fail the fetch.
	_ = c.store.Put(Entry{
		Signature:   sig,
		Provider:    provider,
		StoredAt:    Now().UTC(),
		TTLSeconds:  int64(ttl / time.Second),
		RawResponse: body,
	})
	return body, false, nil
}

func expired(e Entry, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return Now().Sub(e.StoredAt) > ttl
}
