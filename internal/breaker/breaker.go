// Package breaker implements a per-key circuit breaker guarding calls to
// flaky upstreams (OAuth providers, MusicBrainz, news sources).
package breaker

import (
	"sync"
	"time"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Config tunes the breaker's trip threshold and open-state timeout.
type Config struct {
	FailureThreshold int
	Timeout          time.Duration
}

// DefaultConfig matches the error-recovery runtime's defaults: trip after
// 5 consecutive failures, stay open for 5 minutes before probing again.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, Timeout: 300 * time.Second}
}

type breakerState struct {
	mu           sync.Mutex
	state        state
	failureCount int
	openedAt     time.Time
}

// Registry is a set of independent circuit breakers keyed by provider (or
// any other string), each with its own Closed/Open/HalfOpen state.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*breakerState

	onOpen   func(key string)
	onClosed func(key string)
}

// NewRegistry builds a breaker registry with the given configuration.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*breakerState)}
}

// OnStateChange registers callbacks invoked (outside the breaker's own
// lock) whenever a breaker trips open or closes. Either callback may be
// nil. Intended for internal/metrics to wire open/close event counters.
func (r *Registry) OnStateChange(onOpen, onClosed func(key string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOpen = onOpen
	r.onClosed = onClosed
}

func (r *Registry) get(key string) *breakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = &breakerState{state: stateClosed}
		r.breakers[key] = b
	}
	return b
}

// CanExecute reports whether a call against key is allowed right now,
// transitioning Open to HalfOpen once the timeout has elapsed.
func (r *Registry) CanExecute(key string) bool {
	b := r.get(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) >= r.cfg.Timeout {
			b.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets its failure count.
func (r *Registry) RecordSuccess(key string) {
	b := r.get(key)
	b.mu.Lock()
	wasOpen := b.state != stateClosed
	b.failureCount = 0
	b.state = stateClosed
	b.mu.Unlock()

	if wasOpen {
		r.notifyClosed(key)
	}
}

// RecordFailure registers a failure, tripping the breaker open once the
// failure threshold is reached (or immediately, if a half-open probe
// itself failed).
func (r *Registry) RecordFailure(key string) {
	b := r.get(key)
	b.mu.Lock()
	b.failureCount++
	tripped := false

	switch b.state {
	case stateClosed:
		if b.failureCount >= r.cfg.FailureThreshold {
			b.state = stateOpen
			b.openedAt = time.Now()
			tripped = true
		}
	case stateHalfOpen:
		b.state = stateOpen
		b.openedAt = time.Now()
		tripped = true
	case stateOpen:
		// already open, only the counter advances
	}
	b.mu.Unlock()

	if tripped {
		r.notifyOpen(key)
	}
}

func (r *Registry) notifyOpen(key string) {
	r.mu.Lock()
	cb := r.onOpen
	r.mu.Unlock()
	if cb != nil {
		cb(key)
	}
}

func (r *Registry) notifyClosed(key string) {
	r.mu.Lock()
	cb := r.onClosed
	r.mu.Unlock()
	if cb != nil {
		cb(key)
	}
}

// IsOpen reports whether the breaker for key is currently open.
func (r *Registry) IsOpen(key string) bool {
	b := r.get(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen
}
