// Package ports declares the contracts the core depends on but does not
// implement: persistence, risk scoring, broker connectivity, broker
// submission, metrics, clock and id generation, and the exchange calendar.
// Production implementations live in sibling internal packages; tests
// substitute fakes.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/domain"
)

// OrderRepository is the durable, transactional repository of orders.
type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	FindByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]*domain.Order, error)
	FindByUserAndStatus(ctx context.Context, userID uint64, status domain.Status) ([]*domain.Order, error)
	FindByStatusIn(ctx context.Context, statuses []domain.Status) ([]*domain.Order, error)
	// UpdateIfVersion persists o only if the stored row's version equals
	// expectedVersion, atomically bumping the version on success. Returns
	// tradeerr.ConflictError on mismatch.
	UpdateIfVersion(ctx context.Context, o *domain.Order, expectedVersion int64) error
}

// RiskApproval is the outcome of a pre-trade risk assessment.
type RiskApproval struct {
	Approved  bool
	RiskLevel string
	Reasons   []string
}

// RiskGate is the external pre-trade risk scoring collaborator; the core
// only consumes its yes/no decision plus a risk-level tag.
type RiskGate interface {
	Assess(ctx context.Context, req domain.OrderRequest, userID uint64) (RiskApproval, error)
}

// BrokerConnection describes whether a user's connection to a broker is
// currently usable.
type BrokerConnection struct {
	Usable bool
}

type BrokerAuthClient interface {
	GetBrokerConnection(ctx context.Context, userID uint64, broker string) (BrokerConnection, error)
}

// BrokerAck is returned on successful submit/modify.
type BrokerAck struct {
	BrokerOrderID string
}

// BrokerClient submits, modifies, and cancels orders against one specific
// external broker. Each method carries its own deadline.
type BrokerClient interface {
	Submit(ctx context.Context, o *domain.Order, decision domain.RoutingDecision) (BrokerAck, error)
	Modify(ctx context.Context, o *domain.Order, req domain.OrderRequest) (BrokerAck, error)
	// Cancel degrades gracefully: when the circuit breaker is open it
	// returns (degraded=true, nil) instead of an error so the caller can
	// still advance to CANCEL_PENDING locally.
	Cancel(ctx context.Context, o *domain.Order) (degraded bool, err error)
	Ping(ctx context.Context) error
	Name() string
}

// MetricsSink is the counter/timer/gauge registry keyed by a bounded label
// schema (operation, broker, exchange, strategy, outcome).
type MetricsSink interface {
	IncCounter(name string, labels map[string]string)
	ObserveTimer(name string, labels map[string]string, d time.Duration)
	SetGauge(name string, labels map[string]string, value float64)
	AddGauge(name string, labels map[string]string, delta float64)
}

// Clock is the monotonic time source.
type Clock interface {
	Now() time.Time
}

// IDGen generates unique order and execution ids.
type IDGen interface {
	NewOrderID() string
	NewExecutionID() string
}

// ExchangeCalendar resolves the DAY/GTD expiration boundary per exchange;
// holiday and half-day handling belongs to the implementation.
type ExchangeCalendar interface {
	IsTradingDay(date time.Time, exchange domain.Exchange) bool
	EndOfTradingDay(date time.Time, exchange domain.Exchange) time.Time
}

// Notifier delivers best-effort operator alerts; failures must never
// propagate to the caller.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// FeeTable resolves a broker's basis-points fee rate for fee estimation.
type FeeTable interface {
	BpsFor(broker string) decimal.Decimal
}
