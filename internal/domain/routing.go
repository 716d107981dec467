package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is the execution strategy chosen by the router.
type Strategy string

const (
	StrategyImmediate Strategy = "IMMEDIATE"
	StrategySliced    Strategy = "SLICED"
	StrategyIceberg   Strategy = "ICEBERG"
	StrategyScheduled Strategy = "SCHEDULED"
	StrategySmart     Strategy = "SMART"
	StrategyVWAP      Strategy = "VWAP"
	StrategyTWAP      Strategy = "TWAP"
	StrategyDarkPool  Strategy = "DARK_POOL"
	StrategyReject    Strategy = "REJECT"
)

// RoutingDecision is ephemeral: computed once per placement, owned by the
// lifecycle engine for the duration of that call.
type RoutingDecision struct {
	BrokerName             string
	Venue                  string
	Strategy               Strategy
	ImmediateExecution     bool
	EstimatedExecutionTime time.Duration
	Confidence             float64
	Reason                 string
	RouterName             string
	ProcessingTime         time.Duration
	EstimatedFeeBps        decimal.Decimal
	EstimatedFee           decimal.Decimal // fee_bps x notional / 10000; zero when the order carries no price
}

// ConnectionState is a BrokerStatus's connectivity state.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "CONNECTED"
	ConnDegraded     ConnectionState = "DEGRADED"
	ConnDisconnected ConnectionState = "DISCONNECTED"
	ConnMaintenance  ConnectionState = "MAINTENANCE"
)

// BrokerStatus is runtime, per-broker state owned by the Broker Registry.
// Router and Broker Client only ever observe a consistent snapshot of it
// (copy value, not pointer, so a read can never race a concurrent update).
type BrokerStatus struct {
	BrokerName          string
	Connection          ConnectionState
	HealthScore         float64 // 0..100
	ConsecutiveFailures int
	LastHeartbeat       time.Time
}

// OrderProcessingContext is per-request, in-memory bookkeeping used for
// structured logging and SLA timing.
type OrderProcessingContext struct {
	CorrelationID string
	StartedAt     time.Time
	UserID        uint64
	Request       OrderRequest
}
