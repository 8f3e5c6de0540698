// Package cache provides the persistent response cache that lets AI-backed
// features serve content while offline and avoid redundant provider calls.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is one cached response. Entries are immutable once written for a
// given generation; a rewrite bumps the generation and timestamp.
type Entry struct {
	Key        string
	Value      string // opaque payload: text or base64 media
	Generation int64  // incremented on every overwrite
	CreatedAt  time.Time
}

// Store is the interface for response cache backends.
// Implementations: SQLiteStore (primary), MemoryStore (tests).
// Stores must be safe for concurrent use; writes are last-writer-wins.
type Store interface {
	// Get returns the entry for key, or nil if absent. Age is the caller's
	// concern: stores never expire entries themselves.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put writes value under key, overwriting any previous entry.
	Put(ctx context.Context, key, value string) error

	// Delete removes an entry (best-effort, absent key is not an error).
	Delete(ctx context.Context, key string) error

	Close() error
}

// Key derives the stable cache key for a capability, subject and language.
// The subject is lowercased and whitespace-collapsed before hashing so the
// key survives cosmetic differences but never conflates distinct subjects;
// attachments (image bytes) are hashed in full so the same claim with a
// different picture gets its own entry. sha256 keeps keys collision-
// resistant and filename-safe.
func Key(capability, subject, language string, attachments ...[]byte) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(subject)), " ")

	h := sha256.New()
	h.Write([]byte(capability))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(language))
	for _, a := range attachments {
		if len(a) == 0 {
			continue
		}
		h.Write([]byte{0})
		h.Write(a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Policy maps capability names to entry TTLs. A zero or missing TTL means
// entries never expire, which suits generated images and audio; news-style
// content gets a short TTL so stale briefings refresh.
type Policy map[string]time.Duration

// DefaultPolicy expires news briefings after 30 minutes and keeps
// everything else indefinitely.
func DefaultPolicy() Policy {
	return Policy{"news": 30 * time.Minute}
}

// Fresh reports whether e is still within the capability's TTL at now.
func (p Policy) Fresh(capability string, e *Entry, now time.Time) bool {
	if e == nil {
		return false
	}
	ttl, ok := p[capability]
	if !ok || ttl <= 0 {
		return true
	}
	return now.Sub(e.CreatedAt) < ttl
}
