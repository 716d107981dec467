package domain

import "time"

// OrderRequest is the inbound, unvalidated request. Advanced fields are
// gated behind FeatureFlags.AdvancedAlgoOrders at validation time (see
// internal/lifecycle/validate.go).
type OrderRequest struct {
	Symbol      string
	Exchange    Exchange
	Side        Side
	OrderType   OrderType
	Quantity    int64
	LimitPrice  *DecimalField
	StopPrice   *DecimalField
	TimeInForce TimeInForce
	ExpiryDate  *time.Time

	// Advanced fields, gated by FeatureFlags.AdvancedAlgoOrders.
	IcebergDisplayQty int64
	AlgoParams        map[string]string
}

// DecimalField avoids importing decimal.Decimal directly into the request
// wire shape so zero-value vs. "not supplied" stays unambiguous (MARKET
// orders must carry a nil price, not a zero price).
type DecimalField struct {
	Value string // decimal string, parsed during validation
}

// OverrideSet carries admin-authorized per-request configuration overrides.
// Only whitelisted fields are honored by the engine; the authorization
// decision itself belongs to the REST layer.
type OverrideSet struct {
	PrimaryBroker          string
	MaxSingleOrderQuantity int64
}

// Modification is the payload for ModifyOrder: a new OrderRequest plus the
// version the caller last observed, used for the optimistic-concurrency
// check.
type Modification struct {
	Request         OrderRequest
	ExpectedVersion int64
}
