// Package refresh runs the proactive token-refresh scheduler: a
// periodic job that renews connections before they expire and promotes
// persistently failing ones to needs_reauth.
package refresh

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthprovider"
	"github.com/nodrake/backplane/internal/recovery"
	"github.com/nodrake/backplane/internal/vault"
)

// Config tunes the scheduler's cadence and retry behavior.
type Config struct {
	Interval      time.Duration
	Threshold     time.Duration // how far ahead of expiry a token is considered due
	BatchSize     int
	MaxRetries    int
	BaseDelay     time.Duration
	RateLimitWait time.Duration // pause between refresh calls within a batch
}

// DefaultConfig matches the token refresh job's defaults: run every 6
// hours, refresh anything expiring within 24 hours, batches of 50,
// retry up to 3 times.
func DefaultConfig() Config {
	return Config{
		Interval:      6 * time.Hour,
		Threshold:     24 * time.Hour,
		BatchSize:     50,
		MaxRetries:    3,
		BaseDelay:     30 * time.Second,
		RateLimitWait: 250 * time.Millisecond,
	}
}

// RetryState tracks a single connection's consecutive refresh failures
// across scheduler ticks.
type RetryState struct {
	RetryCount int
	LastError  string
	NextRetry  time.Time
	UpdatedAt  time.Time
}

// Metrics are the Prometheus counters the scheduler updates.
type Metrics struct {
	TokensRefreshed         prometheus.Counter
	TokenRefreshFailures    prometheus.Counter
	ConnectionsMarkedReauth prometheus.Counter
}

// NewMetrics registers the scheduler's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokens_refreshed_total",
			Help: "Total number of OAuth tokens successfully refreshed.",
		}),
		TokenRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_refresh_failures_total",
			Help: "Total number of failed OAuth token refresh attempts.",
		}),
		ConnectionsMarkedReauth: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connections_marked_reauth_total",
			Help: "Total number of connections promoted to needs_reauth after exhausting retries.",
		}),
	}
	reg.MustRegister(m.TokensRefreshed, m.TokenRefreshFailures, m.ConnectionsMarkedReauth)
	return m
}

// Scheduler periodically refreshes connections nearing expiry.
type Scheduler struct {
	cfg       Config
	vault     *vault.Vault
	providers *oauthprovider.Registry
	recovery  *recovery.Service
	metrics   *Metrics
	logger    *log.Logger

	mu          sync.RWMutex
	retryStates map[uuid.UUID]*RetryState
}

// NewScheduler builds a Scheduler. Every provider call runs through rec
// so a provider tripping its circuit breaker stops consuming refresh
// attempts until it recovers.
func NewScheduler(cfg Config, v *vault.Vault, providers *oauthprovider.Registry, rec *recovery.Service, metrics *Metrics) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		vault:       v,
		providers:   providers,
		recovery:    rec,
		metrics:     metrics,
		logger:      log.New(log.Writer(), "refresh: ", log.LstdFlags|log.Lmsgprefix),
		retryStates: make(map[uuid.UUID]*RetryState),
	}
}

// Run blocks, ticking every cfg.Interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	conns, err := s.vault.ConnectionsNeedingRefresh(s.cfg.Threshold)
	if err != nil {
		s.logger.Printf("listing connections needing refresh: %v", err)
		return
	}

	s.cleanupStaleRetryStates()

	for i := 0; i < len(conns); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(conns))
		for _, conn := range conns[i:end] {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.refreshOne(ctx, conn)
			if s.cfg.RateLimitWait > 0 {
				time.Sleep(s.cfg.RateLimitWait)
			}
		}
	}
}

func (s *Scheduler) refreshOne(ctx context.Context, conn *models.Connection) {
	if !s.readyForRetry(conn.ID) {
		return
	}

	provider, ok := s.providers.Get(conn.Provider)
	if !ok {
		s.logger.Printf("no provider adapter registered for %s, skipping connection %s", conn.Provider, conn.ID)
		return
	}

	err := s.recovery.Execute(ctx, string(conn.Provider), func(ctx context.Context) error {
		_, err := s.vault.RefreshToken(ctx, conn.ID, provider)
		return err
	}, classifyRefreshError)
	if err != nil {
		s.recordFailure(conn, err.Error())
		return
	}

	s.clearRetryState(conn.ID)
	s.metrics.TokensRefreshed.Inc()
}

// classifyRefreshError tells the recovery runtime which refresh
// failures are worth retrying. A provider that doesn't support refresh
// at all (e.g. GitHub) will never succeed no matter how many times it's
// retried, so that case is terminal rather than retryable.
func classifyRefreshError(err error) recovery.Classification {
	if errors.Is(err, oauthprovider.ErrNotSupported) {
		return recovery.Classification{Retryable: false}
	}
	return recovery.Classification{Retryable: true}
}

func (s *Scheduler) readyForRetry(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.retryStates[id]
	if !ok {
		return true
	}
	return time.Now().After(state.NextRetry)
}

func (s *Scheduler) recordFailure(conn *models.Connection, reason string) {
	s.metrics.TokenRefreshFailures.Inc()

	s.mu.Lock()
	state, ok := s.retryStates[conn.ID]
	if !ok {
		state = &RetryState{}
		s.retryStates[conn.ID] = state
	}
	state.RetryCount++
	state.LastError = reason
	state.UpdatedAt = time.Now()
	backoffExp := min(state.RetryCount, 5)
	backoff := s.cfg.BaseDelay * time.Duration(math.Pow(2, float64(backoffExp)))
	state.NextRetry = time.Now().Add(backoff)
	exhausted := state.RetryCount >= s.cfg.MaxRetries
	s.mu.Unlock()

	s.logger.Printf("refresh failed for connection %s (%s): %s", conn.ID, conn.Provider, reason)

	if exhausted {
		if err := s.vault.UpdateStatus(conn.ID, models.StatusNeedsReauth, &reason); err != nil {
			s.logger.Printf("marking connection %s needs_reauth: %v", conn.ID, err)
			return
		}
		s.metrics.ConnectionsMarkedReauth.Inc()
		s.clearRetryState(conn.ID)
	}
}

func (s *Scheduler) clearRetryState(id uuid.UUID) {
	s.mu.Lock()
	delete(s.retryStates, id)
	s.mu.Unlock()
}

// cleanupStaleRetryStates drops retry bookkeeping for connections that
// haven't failed again in 24 hours, bounding the table's memory.
func (s *Scheduler) cleanupStaleRetryStates() {
	cutoff := time.Now().Add(-24 * time.Hour)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, state := range s.retryStates {
		if state.UpdatedAt.Before(cutoff) {
			delete(s.retryStates, id)
		}
	}
}

// RetryStateFor returns a copy of the retry bookkeeping for a
// connection, for diagnostics.
func (s *Scheduler) RetryStateFor(id uuid.UUID) (RetryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.retryStates[id]
	if !ok {
		return RetryState{}, false
	}
	return *state, true
}
