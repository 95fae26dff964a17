package oauthstate

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueConsumeRoundTrip(t *testing.T) {
	m := NewManager(time.Minute)
	uid := uuid.New()

	token, err := m.Issue(Entry{UserID: uid, Provider: "spotify", RedirectURI: "https://app/callback"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	entry, result := m.Consume(token, "spotify")
	if result != Consumed {
		t.Fatalf("expected Consumed for a freshly issued token, got %v", result)
	}
	if entry.UserID != uid || entry.Provider != "spotify" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	m := NewManager(time.Minute)
	token, _ := m.Issue(Entry{Provider: "google"})

	if _, result := m.Consume(token, "google"); result != Consumed {
		t.Fatalf("first consume should succeed, got %v", result)
	}
	if _, result := m.Consume(token, "google"); result != NotFound {
		t.Fatalf("second consume of the same token must fail as NotFound, got %v", result)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	m := NewManager(time.Minute)
	if _, result := m.Consume("does-not-exist", "google"); result != NotFound {
		t.Fatalf("consuming an unknown token should report NotFound, got %v", result)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	token, _ := m.Issue(Entry{Provider: "github"})

	time.Sleep(30 * time.Millisecond)

	if _, result := m.Consume(token, "github"); result != Expired {
		t.Fatalf("expired token should report Expired, got %v", result)
	}
}

// TestConsumeWrongProviderLeavesEntryConsumable covers the spec scenario:
// a state issued for Google must reject a GitHub callback as WrongProvider
// while remaining consumable by a later, correct Google callback.
func TestConsumeWrongProviderLeavesEntryConsumable(t *testing.T) {
	m := NewManager(time.Minute)
	uid := uuid.New()
	token, _ := m.Issue(Entry{UserID: uid, Provider: "google"})

	if _, result := m.Consume(token, "github"); result != WrongProvider {
		t.Fatalf("expected WrongProvider for a provider mismatch, got %v", result)
	}
	if m.Len() != 1 {
		t.Fatalf("a wrong-provider attempt must not consume the entry, got %d remaining", m.Len())
	}

	entry, result := m.Consume(token, "google")
	if result != Consumed {
		t.Fatalf("expected the correct provider to still consume the token, got %v", result)
	}
	if entry.UserID != uid {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestTTLClampedToDefaultMax(t *testing.T) {
	m := NewManager(time.Hour)
	if m.ttl != DefaultTTL {
		t.Fatalf("expected ttl clamped to %v, got %v", DefaultTTL, m.ttl)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	_, _ = m.Issue(Entry{Provider: "a"})
	time.Sleep(30 * time.Millisecond)
	fresh, _ := m.Issue(Entry{Provider: "b"})

	removed := m.Sweep()
	if removed != 1 {
		t.Fatalf("expected exactly 1 expired entry removed, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", m.Len())
	}
	if _, result := m.Consume(fresh, "b"); result != Consumed {
		t.Fatalf("the fresh entry should still be consumable, got %v", result)
	}
}
