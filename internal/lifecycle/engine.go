// Package lifecycle implements the Order Lifecycle Engine: validation,
// risk-gating, routing, broker submission, and the state-machine-enforced
// persistence of every order operation.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/brokerclient"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
	"github.com/yourorg/tradingcore/internal/sla"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

// riskDeclineReason is the shape riskgate.Gate's decline error satisfies,
// kept local so lifecycle doesn't import the concrete riskgate package.
type riskDeclineReason interface {
	Reason() string
	RiskLevel() string
}

// riskTracker is the optional in-flight-order bookkeeping riskgate.Gate
// exposes; a RiskGate that doesn't implement it (e.g. an external scoring
// service) simply isn't tracked.
type riskTracker interface {
	Track(userID uint64)
	Release(userID uint64)
}

// Engine orchestrates the full order lifecycle.
type Engine struct {
	store    ports.OrderRepository
	risk     ports.RiskGate
	auth     ports.BrokerAuthClient
	router   Router
	brokers  *brokerclient.Manager
	metrics  ports.MetricsSink
	clock    ports.Clock
	ids      ports.IDGen
	notifier ports.Notifier
	sla      *sla.Monitor
	fees     ports.FeeTable

	flags          config.FeatureFlags
	maxNotionalINR decimal.Decimal
}

// Router is the subset of the Smart Order Router the engine depends on.
// ov carries admin-authorized per-request overrides; nil means none.
type Router interface {
	Route(ctx context.Context, o *domain.Order, fees ports.FeeTable, ov *domain.OverrideSet) (domain.RoutingDecision, error)
}

type Deps struct {
	Store    ports.OrderRepository
	Risk     ports.RiskGate
	Auth     ports.BrokerAuthClient
	Router   Router
	Brokers  *brokerclient.Manager
	Metrics  ports.MetricsSink
	Clock    ports.Clock
	IDs      ports.IDGen
	Notifier ports.Notifier
	SLA      *sla.Monitor
	Fees     ports.FeeTable
	Flags    config.FeatureFlags
	MaxNotionalINR decimal.Decimal
}

func New(d Deps) *Engine {
	return &Engine{
		store:          d.Store,
		risk:           d.Risk,
		auth:           d.Auth,
		router:         d.Router,
		brokers:        d.Brokers,
		metrics:        d.Metrics,
		clock:          d.Clock,
		ids:            d.IDs,
		notifier:       d.Notifier,
		sla:            d.SLA,
		fees:           d.Fees,
		flags:          d.Flags,
		maxNotionalINR: d.MaxNotionalINR,
	}
}

func newCorrelationID(ids ports.IDGen) string {
	return "COR-" + ids.NewOrderID()
}

// markInactive balances the active-orders gauge incremented at placement
// once an order reaches a terminal status.
func (e *Engine) markInactive(o *domain.Order) {
	e.metrics.AddGauge("trading.orders.active", map[string]string{"exchange": string(o.Exchange)}, -1)
}

// PlaceOrder validates, risk-gates, routes, persists, and submits a new
// order, returning it in its post-submission state.
func (e *Engine) PlaceOrder(ctx context.Context, req domain.OrderRequest, userID uint64) (*domain.Order, error) {
	return e.PlaceOrderWithOverrides(ctx, req, userID, nil)
}

// PlaceOrderWithOverrides is PlaceOrder with admin-authorized per-request
// configuration overrides applied. Authorization of ov is the caller's
// concern; only whitelisted fields are honored downstream.
func (e *Engine) PlaceOrderWithOverrides(ctx context.Context, req domain.OrderRequest, userID uint64, ov *domain.OverrideSet) (*domain.Order, error) {
	correlationID := newCorrelationID(e.ids)
	pctx := domain.OrderProcessingContext{CorrelationID: correlationID, StartedAt: e.clock.Now(), UserID: userID, Request: req}

	var result *domain.Order
	err := e.sla.Track("place", correlationID, func() error {
		v, err := validate(req, e.flags, e.maxNotionalINR, e.clock.Now())
		if err != nil {
			e.metrics.IncCounter("trading.orders.failed", map[string]string{"operation": "place", "outcome": "VALIDATION_FAILED"})
			return err
		}

		if rt, ok := e.risk.(riskTracker); ok {
			rt.Track(userID)
			defer rt.Release(userID)
		}
		approval, err := e.risk.Assess(ctx, req, userID)
		if err != nil {
			if rd, ok := err.(riskDeclineReason); ok {
				return &tradeerr.RiskError{Reason: rd.Reason(), RiskLevel: rd.RiskLevel()}
			}
			return &tradeerr.RiskError{Reason: err.Error(), RiskLevel: "UNKNOWN"}
		}
		if !approval.Approved {
			reason := "declined by risk gate"
			if len(approval.Reasons) > 0 {
				reason = approval.Reasons[0]
			}
			return &tradeerr.RiskError{Reason: reason, RiskLevel: approval.RiskLevel}
		}

		o := &domain.Order{
			OrderID:     e.ids.NewOrderID(),
			UserID:      userID,
			Symbol:      v.req.Symbol,
			Exchange:    v.req.Exchange,
			Side:        v.req.Side,
			OrderType:   v.req.OrderType,
			Quantity:    v.req.Quantity,
			LimitPrice:  v.limitPrice,
			StopPrice:   v.stopPrice,
			TimeInForce: v.req.TimeInForce,
			ExpiryDate:  v.req.ExpiryDate,
			Status:      domain.StatusPending,
			Version:     1,
			CreatedAt:   e.clock.Now(),
			UpdatedAt:   e.clock.Now(),
		}
		if err := o.CheckInvariants(); err != nil {
			return &tradeerr.ValidationError{Field: "order", Constraint: err.Error(), RejectedValue: ""}
		}
		if err := e.store.Save(ctx, o); err != nil {
			return err
		}
		e.metrics.IncCounter("trading.orders.placed", map[string]string{"broker": "unassigned"})
		e.metrics.AddGauge("trading.orders.active", map[string]string{"exchange": string(o.Exchange)}, 1)

		decision, err := e.router.Route(ctx, o, e.fees, ov)
		if err != nil || decision.Strategy == domain.StrategyReject {
			reason := "router rejected order"
			if err != nil {
				reason = err.Error()
			}
			o.Status = domain.StatusRejected
			o.RejectionReason = reason
			if uerr := e.store.UpdateIfVersion(ctx, o, o.Version); uerr != nil {
				log.Error().Err(uerr).Str("order_id", o.OrderID).Msg("failed to persist REJECTED transition")
			}
			e.markInactive(o)
			result = o
			return nil
		}

		conn, err := e.auth.GetBrokerConnection(ctx, userID, decision.BrokerName)
		if err != nil || !conn.Usable {
			reason := fmt.Sprintf("no usable %s connection for user %d", decision.BrokerName, userID)
			if err != nil {
				reason = err.Error()
			}
			o.Status = domain.StatusRejected
			o.RejectionReason = reason
			if uerr := e.store.UpdateIfVersion(ctx, o, o.Version); uerr != nil {
				log.Error().Err(uerr).Str("order_id", o.OrderID).Msg("failed to persist REJECTED transition")
			}
			e.markInactive(o)
			result = o
			return nil
		}

		client, ok := e.brokers.Get(decision.BrokerName)
		if !ok {
			return &tradeerr.ServiceUnavailableError{Broker: decision.BrokerName}
		}
		ack, err := client.Submit(ctx, o, decision)
		if err != nil {
			o.Status = domain.StatusRejected
			o.RejectionReason = err.Error()
			if uerr := e.store.UpdateIfVersion(ctx, o, o.Version); uerr != nil {
				log.Error().Err(uerr).Str("order_id", o.OrderID).Msg("failed to persist REJECTED transition")
			}
			e.markInactive(o)
			result = o
			return nil
		}

		now := e.clock.Now()
		o.Status = domain.StatusAcknowledged
		o.BrokerName = decision.BrokerName
		o.BrokerOrderID = ack.BrokerOrderID
		o.SubmittedAt = &now
		if err := e.store.UpdateIfVersion(ctx, o, o.Version); err != nil {
			return err
		}

		result = o
		return nil
	})

	if err != nil {
		return nil, err
	}
	log.Info().Str("correlation_id", pctx.CorrelationID).Str("order_id", result.OrderID).Str("status", string(result.Status)).Msg("placeOrder complete")
	return result, nil
}

// ModifyOrder amends a live order's quantity/price/TIF fields, guarded by
// the version the caller last observed.
func (e *Engine) ModifyOrder(ctx context.Context, orderID string, mod domain.Modification, userID uint64) (*domain.Order, error) {
	correlationID := newCorrelationID(e.ids)
	var result *domain.Order
	err := e.sla.Track("modify", correlationID, func() error {
		o, err := e.store.FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return &tradeerr.NotFoundError{OrderID: orderID}
		}
		if !o.Status.Modifiable() {
			return &tradeerr.OrderRejectedError{OrderID: orderID, Reason: "non-modifiable state"}
		}

		v, err := validate(mod.Request, e.flags, e.maxNotionalINR, e.clock.Now())
		if err != nil {
			return err
		}

		if o.Version != mod.ExpectedVersion {
			return &tradeerr.ConflictError{OrderID: orderID}
		}

		client, ok := e.brokers.Get(o.BrokerName)
		if !ok {
			return &tradeerr.ServiceUnavailableError{Broker: o.BrokerName}
		}
		ack, err := client.Modify(ctx, o, mod.Request)
		if err != nil {
			return err
		}

		o.Quantity = v.req.Quantity
		o.LimitPrice = v.limitPrice
		o.StopPrice = v.stopPrice
		o.TimeInForce = v.req.TimeInForce
		o.ExpiryDate = v.req.ExpiryDate
		if ack.BrokerOrderID != "" {
			o.BrokerOrderID = ack.BrokerOrderID
		}
		if err := e.store.UpdateIfVersion(ctx, o, mod.ExpectedVersion); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// CancelOrder requests cancellation, degrading gracefully when the broker's
// circuit breaker is open: the order stays CANCEL_PENDING locally and the
// scheduler's reconciler retries until the broker confirms.
func (e *Engine) CancelOrder(ctx context.Context, orderID string, userID uint64) (*domain.Order, error) {
	correlationID := newCorrelationID(e.ids)
	var result *domain.Order
	err := e.sla.Track("cancel", correlationID, func() error {
		o, err := e.store.FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return &tradeerr.NotFoundError{OrderID: orderID}
		}
		if !o.Status.Cancellable() {
			return &tradeerr.OrderRejectedError{OrderID: orderID, Reason: "non-modifiable state"}
		}
		if o.Status == domain.StatusCancelPending {
			result = o
			return nil
		}

		expected := o.Version
		o.Status = domain.StatusCancelPending
		if err := e.store.UpdateIfVersion(ctx, o, expected); err != nil {
			return err
		}

		client, ok := e.brokers.Get(o.BrokerName)
		if !ok {
			result = o
			return nil
		}
		degraded, err := client.Cancel(ctx, o)
		if err != nil {
			result = o
			return nil
		}
		if degraded {
			e.notifier.Notify(ctx, "cancel degraded", fmt.Sprintf("order %s cancel queued, broker %s degraded", o.OrderID, o.BrokerName))
			result = o
			return nil
		}

		now := e.clock.Now()
		o.Status = domain.StatusCancelled
		o.ExecutedAt = &now
		if err := e.store.UpdateIfVersion(ctx, o, o.Version); err != nil {
			return err
		}
		e.markInactive(o)
		result = o
		return nil
	})
	return result, err
}

// ConfirmCancellation transitions a CANCEL_PENDING order to CANCELLED once
// the broker has confirmed it, used by the scheduler's cancel reconciler
// after a retried Cancel call succeeds.
func (e *Engine) ConfirmCancellation(ctx context.Context, orderID string) error {
	o, err := e.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusCancelPending {
		return nil
	}
	now := e.clock.Now()
	o.Status = domain.StatusCancelled
	o.ExecutedAt = &now
	if err := e.store.UpdateIfVersion(ctx, o, o.Version); err != nil {
		return err
	}
	e.markInactive(o)
	return nil
}

// GetOrder returns an order by its external id. A miss and another user's
// order are indistinguishable to the caller.
func (e *Engine) GetOrder(ctx context.Context, orderID string, userID uint64) (*domain.Order, error) {
	o, err := e.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, &tradeerr.NotFoundError{OrderID: orderID}
	}
	return o, nil
}

// GetOrdersByUser paginates a user's orders.
func (e *Engine) GetOrdersByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*domain.Order, error) {
	return e.store.FindByUserID(ctx, userID, page, pageSize)
}

// GetOrdersByUserAndStatus filters a user's orders by status.
func (e *Engine) GetOrdersByUserAndStatus(ctx context.Context, userID uint64, status domain.Status) ([]*domain.Order, error) {
	return e.store.FindByUserAndStatus(ctx, userID, status)
}

var activeStatuses = []domain.Status{
	domain.StatusPending, domain.StatusAcknowledged, domain.StatusPartiallyFilled, domain.StatusCancelPending,
}

// GetActiveOrders returns every order in a non-terminal status, across all
// users; the scheduler's sweeps run over this set.
func (e *Engine) GetActiveOrders(ctx context.Context) ([]*domain.Order, error) {
	return e.store.FindByStatusIn(ctx, activeStatuses)
}

// GetActiveOrdersForUser returns one user's orders in a non-terminal status.
func (e *Engine) GetActiveOrdersForUser(ctx context.Context, userID uint64) ([]*domain.Order, error) {
	all, err := e.store.FindByStatusIn(ctx, activeStatuses)
	if err != nil {
		return nil, err
	}
	var out []*domain.Order
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ProcessOrderFill applies one broker fill event to an order, updating the
// weighted-average price and filled quantity. It is invoked by the broker
// event stream consumer, already serialized per order there.
func (e *Engine) ProcessOrderFill(ctx context.Context, evt brokerclient.FillEvent) error {
	o, err := e.store.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusAcknowledged && o.Status != domain.StatusPartiallyFilled {
		return &tradeerr.OrderRejectedError{OrderID: o.OrderID, Reason: "fill received outside ACKNOWLEDGED/PARTIALLY_FILLED"}
	}

	fillQty := evt.FilledQuantity - o.FilledQuantity // wire event carries cumulative filled_quantity
	if fillQty <= 0 || fillQty > o.RemainingQuantity() {
		return &tradeerr.ValidationError{Field: "fill_quantity", Constraint: "0 < fill_quantity <= remaining_quantity", RejectedValue: itoa(fillQty)}
	}

	oldFilled := o.FilledQuantity
	newFilled := oldFilled + fillQty

	var newAvg decimal.Decimal
	if oldFilled == 0 {
		newAvg = evt.ExecutionPrice
	} else {
		weighted := o.AveragePrice.Mul(decimal.NewFromInt(oldFilled)).Add(evt.ExecutionPrice.Mul(decimal.NewFromInt(fillQty)))
		newAvg = weighted.DivRound(decimal.NewFromInt(newFilled), 4)
	}

	o.FilledQuantity = newFilled
	o.AveragePrice = newAvg

	if newFilled == o.Quantity {
		now := e.clock.Now()
		o.Status = domain.StatusFilled
		o.ExecutedAt = &now
	} else {
		o.Status = domain.StatusPartiallyFilled
	}

	if err := o.CheckInvariants(); err != nil {
		return err
	}
	if err := e.store.UpdateIfVersion(ctx, o, o.Version); err != nil {
		return err
	}
	if o.Status == domain.StatusFilled {
		e.markInactive(o)
	}
	return nil
}

// ExpireOrders is the scheduled sweep that transitions stale DAY/GTD orders
// to EXPIRED, returning how many it moved.
func (e *Engine) ExpireOrders(ctx context.Context, calendar ports.ExchangeCalendar) (int, error) {
	orders, err := e.store.FindByStatusIn(ctx, activeStatuses)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	expired := 0
	for _, o := range orders {
		if !shouldExpire(o, calendar, now) {
			continue
		}
		o.Status = domain.StatusExpired
		if err := e.store.UpdateIfVersion(ctx, o, o.Version); err != nil {
			log.Error().Err(err).Str("order_id", o.OrderID).Msg("expireOrders: update failed")
			continue
		}
		e.markInactive(o)
		expired++
	}
	return expired, nil
}

func shouldExpire(o *domain.Order, calendar ports.ExchangeCalendar, now time.Time) bool {
	switch o.TimeInForce {
	case domain.TIFDay:
		return now.After(calendar.EndOfTradingDay(o.CreatedAt, o.Exchange))
	case domain.TIFGTD:
		return o.ExpiryDate != nil && o.ExpiryDate.Before(now)
	default:
		return false
	}
}
