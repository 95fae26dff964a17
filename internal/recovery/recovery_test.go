package recovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("connection timeout")
var errFatal = errors.New("invalid client credentials")

func retryableClassifier(err error) Classification {
	if errors.Is(err, errTransient) {
		return Classification{Retryable: true}
	}
	return Classification{Retryable: false}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BaseDelay = time.Millisecond
	cfg.JitterFactor = 0
	s := NewService(cfg)

	var attempts int32
	err := s.Execute(context.Background(), "google", func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errTransient
		}
		return nil
	}, retryableClassifier)

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (initial + 2 retries), got %d", attempts)
	}
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	s := NewService(DefaultConfig())

	var attempts int32
	err := s.Execute(context.Background(), "google", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errFatal
	}, retryableClassifier)

	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerThreshold = 1
	cfg.MaxRetries = 0
	s := NewService(cfg)

	_ = s.Execute(context.Background(), "spotify", func(ctx context.Context) error {
		return errFatal
	}, retryableClassifier)

	err := s.Execute(context.Background(), "spotify", func(ctx context.Context) error {
		t.Fatal("operation should not run while the breaker is open")
		return nil
	}, retryableClassifier)

	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestProviderHealthDegradedAfterManyViolations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityViolationMax = 2
	cfg.CircuitBreakerThreshold = 1000
	s := NewService(cfg)

	violationClassifier := func(err error) Classification {
		return Classification{Retryable: false, SecurityViolation: true}
	}

	for i := 0; i < 3; i++ {
		_ = s.Execute(context.Background(), "github", func(ctx context.Context) error {
			return errFatal
		}, violationClassifier)
	}

	health := s.ProviderHealth("github")
	if !health.Degraded {
		t.Fatalf("expected degraded health after exceeding violation threshold, got %+v", health)
	}
}

func TestUserGuidanceReauth(t *testing.T) {
	g := GuidanceForReauth("Google")
	if !g.IsUserActionable {
		t.Fatal("reauth guidance should be user actionable")
	}
	if g.ContactSupport {
		t.Fatal("reauth guidance should not require contacting support")
	}
}
