package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/crypto"
	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthprovider"
	"github.com/nodrake/backplane/internal/recovery"
	"github.com/nodrake/backplane/internal/vault"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *vault.Vault) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cipher := crypto.NewTokenCipher(key, crypto.DefaultKeyRotationConfig())
	v := vault.New(database, cipher)

	registry := oauthprovider.NewRegistry()
	rec := recovery.NewService(recovery.DefaultConfig())
	metrics := NewMetrics(prometheus.NewRegistry())

	return NewScheduler(cfg, v, registry, rec, metrics), v
}

func TestNoProviderRegisteredSkipsConnection(t *testing.T) {
	cfg := DefaultConfig()
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformSpotify, "u1", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	s.refreshOne(context.Background(), conn)

	if _, ok := s.RetryStateFor(conn.ID); ok {
		t.Fatal("a missing provider adapter should not record retry bookkeeping")
	}
	updated, err := v.GetConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID: %v", err)
	}
	if updated.Status != models.StatusActive {
		t.Fatalf("expected status to remain active, got %s", updated.Status)
	}
}

func TestRecordFailureBacksOffExponentially(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 10
	cfg.BaseDelay = time.Second
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformGitHub, "u2", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	s.recordFailure(conn, "boom")
	state, ok := s.RetryStateFor(conn.ID)
	if !ok {
		t.Fatal("expected retry state to be recorded")
	}
	if state.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", state.RetryCount)
	}
	wantDelay := cfg.BaseDelay * 2
	gotDelay := state.NextRetry.Sub(time.Now().UTC())
	if gotDelay <= 0 || gotDelay > wantDelay+time.Second {
		t.Fatalf("expected backoff around %s, got %s", wantDelay, gotDelay)
	}
}

func TestRecordFailureExhaustsIntoNeedsReauth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformDeezer, "u3", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	s.recordFailure(conn, "first failure")
	s.recordFailure(conn, "second failure")

	if _, ok := s.RetryStateFor(conn.ID); ok {
		t.Fatal("retry state should be cleared once the connection is marked needs_reauth")
	}

	updated, err := v.GetConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID: %v", err)
	}
	if updated.Status != models.StatusNeedsReauth {
		t.Fatalf("expected status needs_reauth after exhausting retries, got %s", updated.Status)
	}
	if updated.ErrorCode == nil || *updated.ErrorCode != "second failure" {
		t.Fatalf("expected error code to record the last failure reason, got %v", updated.ErrorCode)
	}
}

func TestReadyForRetryRespectsBackoffWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 10
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformTidal, "u4", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	if !s.readyForRetry(conn.ID) {
		t.Fatal("a connection with no retry state should be immediately ready")
	}
	s.recordFailure(conn, "transient")
	if s.readyForRetry(conn.ID) {
		t.Fatal("a connection that just failed should not be ready before its backoff elapses")
	}
}

// stubProvider lets refresh tests control whether a provider's refresh
// call succeeds, without making a real network call.
type stubProvider struct {
	oauthprovider.Provider
	platform models.Platform
	token    *oauth2.Token
	err      error
}

func (s *stubProvider) Platform() models.Platform { return s.platform }

func (s *stubProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRefreshOneSucceedsThroughRecovery(t *testing.T) {
	cfg := DefaultConfig()
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformSpotify, "u1", nil, "old", "old-refresh", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	newExpiry := time.Now().UTC().Add(time.Hour)
	s.providers.Register(&stubProvider{
		platform: models.PlatformSpotify,
		token:    &oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh", Expiry: newExpiry},
	})

	s.refreshOne(context.Background(), conn)

	updated, err := v.GetConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID: %v", err)
	}
	if updated.TokenVersion != 2 {
		t.Fatalf("expected token version 2 after a successful refresh, got %d", updated.TokenVersion)
	}
	if _, ok := s.RetryStateFor(conn.ID); ok {
		t.Fatal("a successful refresh should clear retry state")
	}
}

func TestRefreshOneOpensCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 20 // keep the scheduler's own retry bookkeeping out of the way
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	v := vault.New(database, crypto.NewTokenCipher(key, crypto.DefaultKeyRotationConfig()))

	registry := oauthprovider.NewRegistry()
	registry.Register(&stubProvider{platform: models.PlatformGitHub, err: errTransient})
	recCfg := recovery.DefaultConfig()
	recCfg.MaxRetries = 0
	recCfg.CircuitBreakerThreshold = 2
	rec := recovery.NewService(recCfg)
	metrics := NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(cfg, v, registry, rec, metrics)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformGitHub, "u1", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.clearRetryState(conn.ID) // bypass the scheduler's own backoff so each call reaches recovery.Execute
		s.refreshOne(context.Background(), conn)
	}

	if rec.ProviderHealth(string(models.PlatformGitHub)).Unavailable != true {
		t.Fatal("expected the circuit breaker to open after repeated refresh failures")
	}
}

var errTransient = errors.New("provider temporarily unavailable")

func TestCleanupStaleRetryStatesDropsOldEntries(t *testing.T) {
	cfg := DefaultConfig()
	s, v := newTestScheduler(t, cfg)

	userID := uuid.New()
	soon := time.Now().UTC().Add(time.Minute)
	conn, err := v.StoreToken(userID, models.PlatformGoogle, "u5", nil, "a", "r", &soon)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	s.recordFailure(conn, "old failure")
	state, _ := s.RetryStateFor(conn.ID)
	state.UpdatedAt = time.Now().Add(-48 * time.Hour)
	s.mu.Lock()
	s.retryStates[conn.ID] = &state
	s.mu.Unlock()

	s.cleanupStaleRetryStates()

	if _, ok := s.RetryStateFor(conn.ID); ok {
		t.Fatal("expected stale retry state to be cleaned up")
	}
}
