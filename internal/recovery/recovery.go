// Package recovery wraps OAuth provider calls with retry-with-backoff,
// circuit breaking, a rolling security-violation counter, and
// user-facing guidance synthesis.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nodrake/backplane/internal/breaker"
)

// Config tunes retry/backoff behavior and the thresholds that drive the
// circuit breaker and security monitor.
type Config struct {
	MaxRetries              int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	JitterFactor            float64
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	SecurityViolationWindow time.Duration
	SecurityViolationMax    int
}

// DefaultConfig mirrors the error-recovery runtime's defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:              3,
		BaseDelay:               time.Second,
		MaxDelay:                300 * time.Second,
		JitterFactor:            0.1,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   300 * time.Second,
		SecurityViolationWindow: time.Hour,
		SecurityViolationMax:    10,
	}
}

// Classification lets callers tell the runtime whether an error is worth
// retrying and whether it should count as a security violation (e.g. a
// forged OAuth state, a CSRF attempt).
type Classification struct {
	Retryable         bool
	RetryAfter        time.Duration // provider-advertised override, 0 if none
	SecurityViolation bool
}

// Classifier inspects an error returned by an operation and reports how
// the recovery runtime should treat it.
type Classifier func(err error) Classification

// ErrProviderUnavailable is returned when the circuit breaker for a
// provider is open and no attempt was made.
var ErrProviderUnavailable = errors.New("provider unavailable: circuit breaker open")

// Service executes provider operations with retry, backoff, and circuit
// breaking, and tracks security violations per provider.
type Service struct {
	cfg      Config
	breakers *breaker.Registry

	mu          sync.Mutex
	violations  map[string]int
	lastReset   time.Time
}

// NewService builds a recovery runtime.
func NewService(cfg Config) *Service {
	return &Service{
		cfg: cfg,
		breakers: breaker.NewRegistry(breaker.Config{
			FailureThreshold: cfg.CircuitBreakerThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
		}),
		violations: make(map[string]int),
		lastReset:  time.Now(),
	}
}

// Execute runs operation against provider, retrying on retryable errors
// with exponential backoff and jitter, honoring the provider's circuit
// breaker, and recording security violations via classify.
func (s *Service) Execute(ctx context.Context, provider string, operation func(ctx context.Context) error, classify Classifier) error {
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if !s.breakers.CanExecute(provider) {
			return fmt.Errorf("%s: %w", provider, ErrProviderUnavailable)
		}

		err := operation(ctx)
		if err == nil {
			s.breakers.RecordSuccess(provider)
			return nil
		}

		lastErr = err
		class := classify(err)
		if class.SecurityViolation {
			s.recordViolation(provider)
		}

		if !class.Retryable || attempt >= s.cfg.MaxRetries {
			s.breakers.RecordFailure(provider)
			return err
		}

		delay := s.retryDelay(attempt+1, class.RetryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	s.breakers.RecordFailure(provider)
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("%s: %w", provider, ErrProviderUnavailable)
}

func (s *Service) retryDelay(attempt int, providerDelay time.Duration) time.Duration {
	if providerDelay > 0 {
		return providerDelay
	}
	exponential := float64(s.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	capped := math.Min(exponential, float64(s.cfg.MaxDelay))
	jitter := capped * s.cfg.JitterFactor * rand.Float64()
	return time.Duration(capped + jitter)
}

func (s *Service) recordViolation(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastReset) >= s.cfg.SecurityViolationWindow {
		s.violations = make(map[string]int)
		s.lastReset = time.Now()
	}
	s.violations[provider]++
}

func (s *Service) recentViolations(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations[provider]
}

// HealthStatus is a coarse operational status for a provider, derived
// from circuit-breaker and security-violation state.
type HealthStatus struct {
	Healthy     bool
	Degraded    bool
	Unavailable bool
	Reason      string
}

// Breakers exposes the recovery runtime's circuit breaker registry so
// internal/metrics can wire open/close event counters to it.
func (s *Service) Breakers() *breaker.Registry {
	return s.breakers
}

// ProviderHealth reports the current operational status of provider.
func (s *Service) ProviderHealth(provider string) HealthStatus {
	if s.breakers.IsOpen(provider) {
		return HealthStatus{Unavailable: true, Reason: "circuit breaker is open"}
	}
	if v := s.recentViolations(provider); v > s.cfg.SecurityViolationMax {
		return HealthStatus{Degraded: true, Reason: fmt.Sprintf("high number of security violations: %d", v)}
	}
	return HealthStatus{Healthy: true}
}

// UserGuidance is a user-facing explanation of an OAuth failure and
// what, if anything, the user can do about it.
type UserGuidance struct {
	Title             string
	Message           string
	Actions           []string
	IsUserActionable  bool
	ContactSupport    bool
}

// GuidanceForReauth builds guidance for a provider whose token could not
// be refreshed and needs the user to sign in again.
func GuidanceForReauth(provider string) UserGuidance {
	return UserGuidance{
		Title:            fmt.Sprintf("%s Authentication Expired", provider),
		Message:          fmt.Sprintf("Your %s authentication has expired and needs to be renewed.", provider),
		Actions: []string{
			fmt.Sprintf("Click 'Sign in with %s' to re-authenticate", provider),
			"You may need to grant permissions again",
		},
		IsUserActionable: true,
		ContactSupport:   false,
	}
}

// GuidanceForTransientFailure builds guidance for a retryable failure
// that did not require re-authentication.
func GuidanceForTransientFailure(provider string) UserGuidance {
	return UserGuidance{
		Title:            fmt.Sprintf("%s Authentication Error", provider),
		Message:          "There was a temporary issue refreshing your authentication.",
		Actions: []string{
			"Try the action again",
			"If the problem persists, sign out and sign in again",
		},
		IsUserActionable: true,
		ContactSupport:   false,
	}
}

// GuidanceForStateValidationFailure builds guidance for a rejected CSRF
// state token (expired, reused, or forged).
func GuidanceForStateValidationFailure() UserGuidance {
	return UserGuidance{
		Title:   "Authentication Security Error",
		Message: "The authentication request is invalid or has expired.",
		Actions: []string{
			"Close this window and try signing in again",
			"Clear your browser cookies and try again",
			"Make sure you're not using an old or bookmarked authentication link",
		},
		IsUserActionable: true,
		ContactSupport:   false,
	}
}

// GuidanceForProviderUnavailable builds guidance for a provider whose
// circuit breaker is currently open.
func GuidanceForProviderUnavailable(provider string, estimatedRecovery *time.Time) UserGuidance {
	recoveryMsg := "Please try again later"
	if estimatedRecovery != nil {
		recoveryMsg = fmt.Sprintf("Expected to be available again around %s", estimatedRecovery.Format("15:04"))
	}
	return UserGuidance{
		Title:   fmt.Sprintf("%s Temporarily Unavailable", provider),
		Message: fmt.Sprintf("%s authentication is temporarily unavailable.", provider),
		Actions: []string{
			recoveryMsg,
			"Try using a different authentication method if available",
		},
		IsUserActionable: false,
		ContactSupport:   false,
	}
}

// GuidanceForRateLimit builds guidance for a rate-limited provider call.
func GuidanceForRateLimit(provider string, retryAfter time.Duration) UserGuidance {
	return UserGuidance{
		Title:   fmt.Sprintf("%s Rate Limit", provider),
		Message: fmt.Sprintf("Too many requests to %s. Please wait before trying again.", provider),
		Actions: []string{
			fmt.Sprintf("Wait %d seconds before trying again", int(retryAfter.Seconds())),
			"Reduce the frequency of your requests",
		},
		IsUserActionable: true,
		ContactSupport:   false,
	}
}

// GuidanceForUnknown is the catch-all fallback for unclassified errors.
func GuidanceForUnknown() UserGuidance {
	return UserGuidance{
		Title:   "Authentication Error",
		Message: "An unexpected authentication error occurred.",
		Actions: []string{
			"Try the authentication process again",
			"Contact support if the problem persists",
		},
		IsUserActionable: true,
		ContactSupport:   true,
	}
}
