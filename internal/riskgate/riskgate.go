// Package riskgate provides the reference pre-trade risk gate this engine
// ships with. Real deployments plug in their own risk scoring service via
// ports.RiskGate; cmd/tradingd needs a usable default, so this is a
// deliberately small notional and per-user in-flight-count check, not a
// scoring engine.
package riskgate

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
)

// Thresholds configures the notional bands this gate checks against.
type Thresholds struct {
	MaxNotional      decimal.Decimal // hard decline above this
	ElevatedNotional decimal.Decimal // MEDIUM risk_level above this, still approved
	MaxOrdersPerUser int             // simple per-user rate guard
}

// Gate is a conservative, stateful stand-in RiskGate: it declines orders
// above a hard notional cap and a simple per-user in-flight-order count, and
// otherwise approves with a risk_level tag derived from notional size.
type Gate struct {
	mu sync.Mutex

	thresholds Thresholds
	inFlight   map[uint64]int // userID -> count of orders currently being assessed
}

func New(thresholds Thresholds) *Gate {
	return &Gate{
		thresholds: thresholds,
		inFlight:   make(map[uint64]int),
	}
}

// Assess implements ports.RiskGate.
func (g *Gate) Assess(ctx context.Context, req domain.OrderRequest, userID uint64) (ports.RiskApproval, error) {
	notional := estimateNotional(req)

	g.mu.Lock()
	count := g.inFlight[userID]
	g.mu.Unlock()

	if g.thresholds.MaxOrdersPerUser > 0 && count >= g.thresholds.MaxOrdersPerUser {
		return ports.RiskApproval{}, &riskDeclineError{
			reason:    fmt.Sprintf("user %d has %d orders in flight, limit %d", userID, count, g.thresholds.MaxOrdersPerUser),
			riskLevel: "HIGH",
		}
	}

	if !g.thresholds.MaxNotional.IsZero() && notional.GreaterThan(g.thresholds.MaxNotional) {
		return ports.RiskApproval{}, &riskDeclineError{
			reason:    fmt.Sprintf("order notional %s exceeds max %s", notional.String(), g.thresholds.MaxNotional.String()),
			riskLevel: "HIGH",
		}
	}

	level := "LOW"
	reasons := []string{"within notional and rate thresholds"}
	if !g.thresholds.ElevatedNotional.IsZero() && notional.GreaterThan(g.thresholds.ElevatedNotional) {
		level = "MEDIUM"
		reasons = []string{fmt.Sprintf("order notional %s above elevated threshold %s", notional.String(), g.thresholds.ElevatedNotional.String())}
	}

	return ports.RiskApproval{
		Approved:  true,
		RiskLevel: level,
		Reasons:   reasons,
	}, nil
}

// Track/Release let the caller (the lifecycle engine) bound the simple
// in-flight-order counter around the lifetime of a placeOrder call.
func (g *Gate) Track(userID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[userID]++
}

func (g *Gate) Release(userID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[userID] > 0 {
		g.inFlight[userID]--
	}
}

func estimateNotional(req domain.OrderRequest) decimal.Decimal {
	if req.LimitPrice == nil {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(req.LimitPrice.Value)
	if err != nil {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromInt(req.Quantity))
}

// riskDeclineError adapts a decline into the shape the lifecycle engine
// translates into tradeerr.RiskError.
type riskDeclineError struct {
	reason    string
	riskLevel string
}

func (e *riskDeclineError) Error() string { return e.reason }

// Reason and RiskLevel let the lifecycle engine build tradeerr.RiskError
// without this package importing tradeerr (ports and domain stay the only
// shared dependencies between the two).
func (e *riskDeclineError) Reason() string    { return e.reason }
func (e *riskDeclineError) RiskLevel() string { return e.riskLevel }
