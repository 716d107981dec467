// Package domain holds the core trading entities shared by every layer of
// the lifecycle engine: orders, routing decisions, broker status, and the
// per-request processing context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is one of the venues this engine is allowed to route to.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeMCX Exchange = "MCX"
)

func (e Exchange) Valid() bool {
	switch e {
	case ExchangeNSE, ExchangeBSE, ExchangeMCX:
		return true
	}
	return false
}

// Side is the buy/sell direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType determines which price fields are required (see
// priceRequirementMatrix in internal/lifecycle/validate.go).
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
)

// TimeInForce controls how long an order stays live.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
	TIFGTD TimeInForce = "GTD"
)

// Status is a node in the order state machine.
type Status string

const (
	StatusNew              Status = "NEW" // never persisted
	StatusPending          Status = "PENDING"
	StatusAcknowledged     Status = "ACKNOWLEDGED"
	StatusPartiallyFilled  Status = "PARTIALLY_FILLED"
	StatusFilled           Status = "FILLED"
	StatusCancelPending    Status = "CANCEL_PENDING"
	StatusCancelled        Status = "CANCELLED"
	StatusRejected         Status = "REJECTED"
	StatusExpired          Status = "EXPIRED"
)

// Terminal reports whether status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Modifiable reports whether an order in this status may be modified.
func (s Status) Modifiable() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusPartiallyFilled:
		return true
	}
	return false
}

// Cancellable reports whether an order in this status may be cancelled.
// CANCEL_PENDING is included to make cancel idempotent.
func (s Status) Cancellable() bool {
	return s.Modifiable() || s == StatusCancelPending
}

// HasBrokerOrderID reports whether an order in this status must carry a
// broker order id: ACKNOWLEDGED, PARTIALLY_FILLED, FILLED, CANCEL_PENDING,
// and CANCELLED do; everything earlier or rejected does not.
func (s Status) HasBrokerOrderID() bool {
	switch s {
	case StatusAcknowledged, StatusPartiallyFilled, StatusFilled, StatusCancelPending, StatusCancelled:
		return true
	}
	return false
}

// Order is the central persisted entity, keyed by OrderID.
type Order struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID    string `gorm:"uniqueIndex;size:64"` // stable external id

	UserID   uint64    `gorm:"index"`
	Symbol   string    `gorm:"size:20;index"`
	Exchange Exchange  `gorm:"size:8"`

	Side      Side      `gorm:"size:8"`
	OrderType OrderType `gorm:"size:16"`

	Quantity          int64
	FilledQuantity    int64
	LimitPrice        decimal.Decimal `gorm:"type:decimal(14,4)"`
	StopPrice         decimal.Decimal `gorm:"type:decimal(14,4)"`
	AveragePrice      decimal.Decimal `gorm:"type:decimal(14,4)"`

	TimeInForce TimeInForce `gorm:"size:8"`
	ExpiryDate  *time.Time

	Status           Status `gorm:"size:20;index"`
	BrokerName       string `gorm:"size:32"`
	BrokerOrderID    string `gorm:"size:64"`
	RejectionReason  string `gorm:"size:256"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	ExecutedAt  *time.Time

	Version int64 // optimistic concurrency counter, starts at 1 on first persist
}

// RemainingQuantity is the derived invariant quantity - filled_quantity.
func (o *Order) RemainingQuantity() int64 {
	return o.Quantity - o.FilledQuantity
}

// CheckInvariants validates the structural invariants that must hold at
// every observable instant. Returns the first violation found, or nil.
func (o *Order) CheckInvariants() error {
	if o.FilledQuantity < 0 || o.FilledQuantity > o.Quantity {
		return errInvariant("filled_quantity out of [0, quantity]")
	}
	switch o.Status {
	case StatusFilled:
		if o.FilledQuantity != o.Quantity {
			return errInvariant("FILLED requires filled_quantity == quantity")
		}
	case StatusPartiallyFilled:
		if o.FilledQuantity <= 0 || o.FilledQuantity >= o.Quantity {
			return errInvariant("PARTIALLY_FILLED requires 0 < filled_quantity < quantity")
		}
	}
	if o.Status.HasBrokerOrderID() != (o.BrokerOrderID != "") {
		return errInvariant("broker_order_id presence does not match status")
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return "order invariant violated: " + string(e) }
func errInvariant(msg string) error    { return invariantError(msg) }
