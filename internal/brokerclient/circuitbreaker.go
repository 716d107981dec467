package brokerclient

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourorg/tradingcore/internal/tradeerr"
)

// breakerState is one of CLOSED/OPEN/HALF_OPEN.
type breakerState string

const (
	stateClosed   breakerState = "CLOSED"
	stateOpen     breakerState = "OPEN"
	stateHalfOpen breakerState = "HALF_OPEN"
)

type callOutcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker is an independent per-broker failure-isolation state
// machine: consecutive failures OR a failure rate within a rolling window
// opens the breaker; it half-opens after a cooldown and closes again after
// N consecutive probe successes.
type CircuitBreaker struct {
	mu sync.Mutex

	broker string

	failureThreshold  int
	failureRateThresh float64
	rollingWindow     time.Duration
	openDuration      time.Duration
	halfOpenTarget    int

	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenSuccesses   int
	history             []callOutcome // calls within the rolling window
}

// Config bundles the breaker's tunables.
type Config struct {
	FailureThreshold  int
	FailureRateThresh float64
	RollingWindow     time.Duration
	OpenDuration      time.Duration
	HalfOpenTarget    int
}

func NewCircuitBreaker(broker string, cfg Config) *CircuitBreaker {
	if cfg.HalfOpenTarget <= 0 {
		cfg.HalfOpenTarget = 1
	}
	return &CircuitBreaker{
		broker:            broker,
		failureThreshold:  cfg.FailureThreshold,
		failureRateThresh: cfg.FailureRateThresh,
		rollingWindow:     cfg.RollingWindow,
		openDuration:      cfg.OpenDuration,
		halfOpenTarget:    cfg.HalfOpenTarget,
		state:             stateClosed,
	}
}

// Allow reports whether a call may proceed right now. When the breaker is
// OPEN and the cooldown has elapsed it transitions to HALF_OPEN and lets the
// call through. While HALF_OPEN every call is allowed; the number of probe
// calls is not limited. The breaker closes after halfOpenTarget recorded
// successes and reopens on the first recorded failure.
func (cb *CircuitBreaker) Allow(now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if now.Sub(cb.openedAt) >= cb.openDuration {
			cb.state = stateHalfOpen
			cb.halfOpenSuccesses = 0
			log.Info().Str("broker", cb.broker).Msg("circuit breaker half-open, probing")
			return nil
		}
		return &tradeerr.ServiceUnavailableError{Broker: cb.broker}
	default:
		return nil
	}
}

// RecordSuccess notes a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.pushHistory(now, true)

	switch cb.state {
	case stateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenTarget {
			cb.state = stateClosed
			log.Info().Str("broker", cb.broker).Msg("circuit breaker closed after successful probes")
		}
	case stateOpen:
		// shouldn't happen: Allow() gates calls while open
	}
}

// RecordFailure notes a failed call outcome and trips the breaker if the
// consecutive-failure or failure-rate threshold is crossed.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.pushHistory(now, false)

	if cb.state == stateHalfOpen {
		cb.trip(now)
		return
	}

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.trip(now)
		return
	}
	if rate := cb.failureRate(now); rate >= cb.failureRateThresh && len(cb.history) >= cb.failureThreshold {
		cb.trip(now)
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = stateOpen
	cb.openedAt = now
	log.Warn().
		Str("broker", cb.broker).
		Int("consecutive_failures", cb.consecutiveFailures).
		Msg("circuit breaker OPEN")
}

func (cb *CircuitBreaker) pushHistory(now time.Time, success bool) {
	cutoff := now.Add(-cb.rollingWindow)
	kept := cb.history[:0]
	for _, o := range cb.history {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	cb.history = append(kept, callOutcome{at: now, success: success})
}

func (cb *CircuitBreaker) failureRate(now time.Time) float64 {
	if len(cb.history) == 0 {
		return 0
	}
	failures := 0
	for _, o := range cb.history {
		if !o.success {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.history))
}

// IsOpen reports the breaker's current state without mutating it (used by
// Cancel's graceful-degradation check).
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateOpen && now.Sub(cb.openedAt) >= cb.openDuration {
		return false // would transition to half-open on next Allow
	}
	return cb.state == stateOpen
}

// State exposes the breaker's current state for metrics/diagnostics.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return string(cb.state)
}
