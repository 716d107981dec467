// Package tradeerr is the closed error taxonomy every public engine
// operation returns: a sealed TradeError interface with one concrete type
// per kind, plus the HTTP-status mapping table the REST layer consumes.
package tradeerr

import "fmt"

// Code is the machine-readable error code carried on every TradeError.
type Code string

const (
	CodeValidation         Code = "VALIDATION_FAILED"
	CodeRisk               Code = "RISK_DECLINED"
	CodeOrderRejected      Code = "ORDER_REJECTED"
	CodeConflict           Code = "CONFLICT"
	CodeBrokerTimeout      Code = "BROKER_TIMEOUT"
	CodeBrokerRejected     Code = "BROKER_REJECTED"
	CodeBrokerMalformed    Code = "BROKER_MALFORMED"
	CodeBrokerUnknown      Code = "BROKER_UNKNOWN"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeStorage            Code = "STORAGE_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
)

// TradeError is the sealed interface every error returned across the core's
// public API boundary implements. Only the types in this package implement
// it; the taxonomy is a closed set.
type TradeError interface {
	error
	Code() Code
	sealed()
}

// HTTPStatus maps a TradeError to the HTTP status the REST layer should
// use. Returns 500 for anything that isn't a TradeError, matching generic
// internal-error behavior.
func HTTPStatus(err error) int {
	te, ok := err.(TradeError)
	if !ok {
		return 500
	}
	switch te.Code() {
	case CodeValidation:
		return 400
	case CodeRisk:
		return 403
	case CodeOrderRejected, CodeConflict:
		return 409
	case CodeNotFound:
		return 404
	case CodeServiceUnavailable:
		return 503
	case CodeStorage:
		return 500
	default:
		return 502
	}
}

// ValidationError: recoverable by the caller; never retried.
type ValidationError struct {
	Field         string
	Constraint    string
	RejectedValue string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field=%s constraint=%s value=%q", e.Field, e.Constraint, e.RejectedValue)
}
func (*ValidationError) Code() Code { return CodeValidation }
func (*ValidationError) sealed()    {}

// RiskError: declined by the risk gate.
type RiskError struct {
	Reason    string
	RiskLevel string
}

func (e *RiskError) Error() string { return fmt.Sprintf("risk declined (%s): %s", e.RiskLevel, e.Reason) }
func (*RiskError) Code() Code      { return CodeRisk }
func (*RiskError) sealed()         {}

// OrderRejectedError: business-rule rejection (non-modifiable state, notional cap).
type OrderRejectedError struct {
	OrderID string
	Reason  string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}
func (*OrderRejectedError) Code() Code { return CodeOrderRejected }
func (*OrderRejectedError) sealed()    {}

// ConflictError: optimistic-concurrency clash; caller may retry.
type ConflictError struct {
	OrderID string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("order %s: version conflict", e.OrderID) }
func (*ConflictError) Code() Code      { return CodeConflict }
func (*ConflictError) sealed()         {}

// BrokerErrorKind distinguishes the sub-kinds of BrokerError.
type BrokerErrorKind string

const (
	BrokerTimeout   BrokerErrorKind = "TIMEOUT"
	BrokerRejected  BrokerErrorKind = "REJECTED"
	BrokerMalformed BrokerErrorKind = "MALFORMED"
	BrokerUnknown   BrokerErrorKind = "UNKNOWN"
)

// BrokerError: external failure. Timeout and Rejected count against the
// circuit breaker (see internal/brokerclient).
type BrokerError struct {
	Broker  string
	Kind    BrokerErrorKind
	Message string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s %s: %s", e.Broker, e.Kind, e.Message)
}
func (e *BrokerError) Code() Code {
	switch e.Kind {
	case BrokerTimeout:
		return CodeBrokerTimeout
	case BrokerRejected:
		return CodeBrokerRejected
	case BrokerMalformed:
		return CodeBrokerMalformed
	default:
		return CodeBrokerUnknown
	}
}
func (*BrokerError) sealed() {}

// CountsAgainstBreaker reports whether this failure should count toward the
// circuit breaker's failure tally. Only Timeout and Rejected do; a
// malformed request is our bug, not the broker's degradation.
func (e *BrokerError) CountsAgainstBreaker() bool {
	return e.Kind == BrokerTimeout || e.Kind == BrokerRejected
}

// ServiceUnavailableError: emitted by the circuit breaker in OPEN state.
type ServiceUnavailableError struct {
	Broker string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("broker %s unavailable: circuit open", e.Broker)
}
func (*ServiceUnavailableError) Code() Code { return CodeServiceUnavailable }
func (*ServiceUnavailableError) sealed()    {}

// StorageError: persistence failure; fatal for the current operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
func (*StorageError) Code() Code      { return CodeStorage }
func (*StorageError) sealed()         {}

// NotFoundError: lookup miss.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("order %s not found", e.OrderID) }
func (*NotFoundError) Code() Code      { return CodeNotFound }
func (*NotFoundError) sealed()         {}
