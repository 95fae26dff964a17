// Package oauthstate implements the single-use CSRF state store used by
// the authorization-code flow: a state token is minted before redirecting
// to a provider and consumed exactly once on callback.
package oauthstate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long an issued state token remains valid. The
// spec requires a TTL no longer than ten minutes.
const DefaultTTL = 10 * time.Minute

// Entry is the data bound to a single issued state token.
type Entry struct {
	UserID       uuid.UUID
	Provider     string
	RedirectURI  string
	CodeVerifier string // non-empty when the flow uses PKCE
	CreatedAt    time.Time
}

// Manager issues and validates single-use OAuth state tokens, guarded by
// a single map mutex in the manner of the session store this package
// generalizes.
type Manager struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewManager builds a state manager with the given TTL. A non-positive
// ttl falls back to DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 || ttl > DefaultTTL {
		ttl = DefaultTTL
	}
	return &Manager{ttl: ttl, entries: make(map[string]Entry)}
}

// Issue mints a new random state token bound to entry and stores it.
func (m *Manager) Issue(entry Entry) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	m.mu.Lock()
	m.entries[token] = entry
	m.mu.Unlock()

	return token, nil
}

// ConsumeResult reports the outcome of a validate-and-consume attempt.
type ConsumeResult int

const (
	// Consumed means the token was valid for expectedProvider and has
	// now been removed; the returned Entry is usable.
	Consumed ConsumeResult = iota
	// NotFound means no entry exists for the token (unknown or already
	// consumed).
	NotFound
	// Expired means the entry existed but its TTL had elapsed; it is
	// removed as a side effect since it can never become valid again.
	Expired
	// WrongProvider means the entry exists and is still valid, but was
	// issued for a different provider than the caller expected. The
	// entry is left in place so a later call with the correct provider
	// can still consume it.
	WrongProvider
)

// Consume validates the state token against expectedProvider and, only on
// a full match, atomically removes it so it can never be replayed. A
// provider mismatch leaves the entry untouched so it remains consumable
// by a later, correct call.
func (m *Manager) Consume(token, expectedProvider string) (Entry, ConsumeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, found := m.entries[token]
	if !found {
		return Entry{}, NotFound
	}
	if time.Since(entry.CreatedAt) > m.ttl {
		delete(m.entries, token)
		return Entry{}, Expired
	}
	if entry.Provider != expectedProvider {
		return Entry{}, WrongProvider
	}

	delete(m.entries, token)
	return entry, Consumed
}

// Sweep removes expired, unconsumed entries. Callers should run this
// periodically; Consume already rejects expired entries on its own, so
// Sweep exists only to bound memory from abandoned flows.
func (m *Manager) Sweep() int {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for token, entry := range m.entries {
		if now.Sub(entry.CreatedAt) > m.ttl {
			delete(m.entries, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of outstanding (unconsumed, not yet swept)
// state tokens.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
