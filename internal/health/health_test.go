package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/crypto"
	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/vault"
)

func newTestVaultForHealth(t *testing.T) *vault.Vault {
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
	return vault.New(database, crypto.NewTokenCipher(key, crypto.DefaultKeyRotationConfig()))
}

func TestDefaultConfigMatchesKnownDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.CheckInterval != 5*time.Minute {
		t.Fatalf("got check interval %s", cfg.CheckInterval)
	}
	if cfg.MaxConsecutiveFailures != 3 {
		t.Fatalf("got max consecutive failures %d", cfg.MaxConsecutiveFailures)
	}
}

func TestCheckOneMarksHealthyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMonitor(DefaultConfig())
	m.RegisterChecker(models.PlatformSpotify, genericTestChecker(srv.URL))
	m.Track(models.PlatformSpotify)

	m.checkOne(context.Background(), models.PlatformSpotify)

	h := m.Get(models.PlatformSpotify)
	if h.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", h.Status, h.ErrorMessage)
	}
	if h.ConsecutiveFailures != 0 {
		t.Fatalf("expected 0 consecutive failures, got %d", h.ConsecutiveFailures)
	}
}

func TestCheckOneDegradesThenUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 2
	m := NewMonitor(cfg)
	m.RegisterChecker(models.PlatformGitHub, genericTestChecker(srv.URL))
	m.Track(models.PlatformGitHub)

	m.checkOne(context.Background(), models.PlatformGitHub)
	if got := m.Get(models.PlatformGitHub).Status; got != StatusDegraded {
		t.Fatalf("expected degraded after first failure, got %s", got)
	}

	m.checkOne(context.Background(), models.PlatformGitHub)
	h := m.Get(models.PlatformGitHub)
	if h.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after %d failures, got %s", cfg.MaxConsecutiveFailures, h.Status)
	}
	if h.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", h.ConsecutiveFailures)
	}
}

func TestRateLimitedSuccessIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(DefaultConfig())
	m.RegisterChecker(models.PlatformDeezer, genericTestChecker(srv.URL))
	m.Track(models.PlatformDeezer)

	m.checkOne(context.Background(), models.PlatformDeezer)

	h := m.Get(models.PlatformDeezer)
	if h.Status != StatusDegraded {
		t.Fatalf("expected degraded due to rate limiting, got %s", h.Status)
	}
	if h.RateLimit == nil || !h.RateLimit.IsRateLimited {
		t.Fatal("expected rate limit info to report is_rate_limited")
	}
}

func TestBackoffDelayCapsAtMaxBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffBase = time.Second
	cfg.MaxBackoff = 10 * time.Second
	m := NewMonitor(cfg)
	m.Track(models.PlatformTidal)

	m.mu.Lock()
	m.status[models.PlatformTidal].ConsecutiveFailures = 20
	m.mu.Unlock()

	if got := m.BackoffDelay(models.PlatformTidal); got != cfg.MaxBackoff {
		t.Fatalf("expected backoff capped at %s, got %s", cfg.MaxBackoff, got)
	}
}

func TestCheckAllStampsHealthCheckForDueConnections(t *testing.T) {
	v := newTestVaultForHealth(t)
	expiresAt := time.Now().UTC().Add(time.Hour)
	conn, err := v.StoreToken(uuid.New(), models.PlatformSpotify, "u1", nil, "a", "r", &expiresAt)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.CheckInterval = time.Minute
	m := NewMonitor(cfg)
	m.SetVault(v)
	m.RegisterChecker(models.PlatformSpotify, genericTestChecker(srv.URL))
	m.Track(models.PlatformSpotify)

	m.CheckAll(context.Background())

	updated, err := v.GetConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID: %v", err)
	}
	if updated.LastHealthCheck == nil {
		t.Fatal("expected last_health_check to be stamped after CheckAll")
	}
}

func TestCheckAllIgnoresUntrackedPlatformConnections(t *testing.T) {
	v := newTestVaultForHealth(t)
	expiresAt := time.Now().UTC().Add(time.Hour)
	conn, err := v.StoreToken(uuid.New(), models.PlatformTidal, "u1", nil, "a", "r", &expiresAt)
	if err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	m := NewMonitor(DefaultConfig())
	m.SetVault(v)
	// Tidal is never Track()-ed, so it must be left alone.

	m.CheckAll(context.Background())

	updated, err := v.GetConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID: %v", err)
	}
	if updated.LastHealthCheck != nil {
		t.Fatal("expected an untracked platform's connection to be left unstamped")
	}
}

func genericTestChecker(url string) Checker {
	return func(ctx context.Context, client *http.Client) (*RateLimitInfo, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, errStatus(resp.StatusCode)
		}
		return parseRateLimitHeaders(resp.Header), nil
	}
}

type errStatus int

func (e errStatus) Error() string { return "unexpected status" }
