// Package sla is the SLA monitor: a thin timing wrapper the place, modify
// and cancel lifecycle operations run through, recording the
// trading.orders.processing_time timer and flagging breaches of the
// per-operation latency budgets. The engine's other operations (lookups,
// fill processing, expiration sweeps) are not timed by it.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourorg/tradingcore/internal/ports"
)

// Thresholds holds the per-operation SLA budgets (defaults: place 100ms,
// cancel 200ms, modify 200ms).
type Thresholds struct {
	Place  time.Duration
	Cancel time.Duration
	Modify time.Duration
}

// Monitor wraps operations with timing + breach detection.
type Monitor struct {
	clock      ports.Clock
	metrics    ports.MetricsSink
	thresholds Thresholds
	notifier   ports.Notifier
}

func New(clock ports.Clock, metrics ports.MetricsSink, thresholds Thresholds) *Monitor {
	return &Monitor{clock: clock, metrics: metrics, thresholds: thresholds}
}

// WithNotifier routes breach alerts to an operator notification channel in
// addition to the structured log and counter.
func (m *Monitor) WithNotifier(n ports.Notifier) *Monitor {
	m.notifier = n
	return m
}

func (m *Monitor) budgetFor(operation string) time.Duration {
	switch operation {
	case "place":
		return m.thresholds.Place
	case "cancel":
		return m.thresholds.Cancel
	case "modify":
		return m.thresholds.Modify
	default:
		return 0
	}
}

// Track runs fn, timing it against the operation's SLA budget. correlationID
// is carried into the breach log line for traceability.
func (m *Monitor) Track(operation, correlationID string, fn func() error) error {
	start := m.clock.Now()
	err := fn()
	elapsed := m.clock.Now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.metrics.ObserveTimer("trading.orders.processing_time", map[string]string{"operation": operation, "outcome": outcome}, elapsed)

	if budget := m.budgetFor(operation); budget > 0 && elapsed > budget {
		log.Warn().
			Str("operation", operation).
			Str("correlation_id", correlationID).
			Dur("elapsed", elapsed).
			Dur("budget", budget).
			Msg("SLA breach")
		m.metrics.IncCounter("trading.sla.violations", map[string]string{"operation": operation})
		if m.notifier != nil {
			m.notifier.Notify(context.Background(), "SLA breach",
				fmt.Sprintf("%s took %s against a %s budget (correlation %s)", operation, elapsed, budget, correlationID))
		}
	}

	return err
}
