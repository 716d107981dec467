// Package brokerclient talks to the external brokers: one resty-based HTTP
// client per configured broker, each independently circuit-broken so a
// single broker's degradation never blocks order flow through the others.
package brokerclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

// Timeouts bundles the per-call broker deadlines.
type Timeouts struct {
	Submit time.Duration
	Modify time.Duration
	Cancel time.Duration
	Ping   time.Duration
}

// Client is the production ports.BrokerClient for one broker.
type Client struct {
	name     string
	http     *resty.Client
	breaker  *CircuitBreaker
	clock    ports.Clock
	metrics  ports.MetricsSink
	timeouts Timeouts
	dryRun   bool
}

// New builds a broker client. When dryRun is true (local development, no
// real broker endpoint reachable) every call succeeds immediately with a
// deterministic synthetic broker order id instead of making an HTTP request.
func New(settings config.BrokerSettings, cbCfg Config, clock ports.Clock, metrics ports.MetricsSink, timeouts Timeouts, dryRun bool) *Client {
	httpClient := resty.New().
		SetBaseURL(settings.BaseURL).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		name:     settings.Name,
		http:     httpClient,
		breaker:  NewCircuitBreaker(settings.Name, cbCfg),
		clock:    clock,
		metrics:  metrics,
		timeouts: timeouts,
		dryRun:   dryRun,
	}
}

func (c *Client) Name() string { return c.name }

// Breaker exposes the underlying circuit breaker so the scheduler's health
// probe and cancelOrder's graceful-degradation path can read its state.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

type submitRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Quantity      int64  `json:"quantity"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
	Venue         string `json:"venue"`
	Strategy      string `json:"strategy"`
}

type submitResponse struct {
	BrokerOrderID string `json:"broker_order_id"`
}

// Submit places a new order with the broker.
func (c *Client) Submit(ctx context.Context, o *domain.Order, decision domain.RoutingDecision) (ports.BrokerAck, error) {
	now := c.clock.Now()
	if err := c.breaker.Allow(now); err != nil {
		return ports.BrokerAck{}, err
	}

	if c.dryRun {
		c.breaker.RecordSuccess(c.clock.Now())
		return ports.BrokerAck{BrokerOrderID: fmt.Sprintf("DRYRUN-%s-%s", c.name, o.OrderID)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Submit)
	defer cancel()

	body := submitRequest{
		ClientOrderID: o.OrderID,
		Symbol:        o.Symbol,
		Exchange:      string(o.Exchange),
		Side:          string(o.Side),
		OrderType:     string(o.OrderType),
		Quantity:      o.Quantity,
		TimeInForce:   string(o.TimeInForce),
		Venue:         decision.Venue,
		Strategy:      string(decision.Strategy),
	}
	if !o.LimitPrice.IsZero() {
		body.LimitPrice = o.LimitPrice.String()
	}
	if !o.StopPrice.IsZero() {
		body.StopPrice = o.StopPrice.String()
	}

	var result submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/orders")

	return c.finish(resp, err, func() (ports.BrokerAck, error) {
		return ports.BrokerAck{BrokerOrderID: result.BrokerOrderID}, nil
	})
}

type modifyRequest struct {
	Quantity    int64  `json:"quantity,omitempty"`
	LimitPrice  string `json:"limit_price,omitempty"`
	StopPrice   string `json:"stop_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"`
}

// Modify amends a live order at the broker.
func (c *Client) Modify(ctx context.Context, o *domain.Order, req domain.OrderRequest) (ports.BrokerAck, error) {
	now := c.clock.Now()
	if err := c.breaker.Allow(now); err != nil {
		return ports.BrokerAck{}, err
	}

	if c.dryRun {
		c.breaker.RecordSuccess(c.clock.Now())
		return ports.BrokerAck{BrokerOrderID: o.BrokerOrderID}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Modify)
	defer cancel()

	body := modifyRequest{
		Quantity:    req.Quantity,
		TimeInForce: string(req.TimeInForce),
	}
	if req.LimitPrice != nil {
		body.LimitPrice = req.LimitPrice.Value
	}
	if req.StopPrice != nil {
		body.StopPrice = req.StopPrice.Value
	}

	var result submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Put("/orders/" + o.BrokerOrderID)

	return c.finish(resp, err, func() (ports.BrokerAck, error) {
		brokerOrderID := result.BrokerOrderID
		if brokerOrderID == "" {
			brokerOrderID = o.BrokerOrderID
		}
		return ports.BrokerAck{BrokerOrderID: brokerOrderID}, nil
	})
}

// Cancel requests cancellation at the broker. When the breaker is already
// open the request is skipped entirely and the caller is told to proceed
// in degraded mode (CANCEL_PENDING locally, reconciled later by the
// scheduler) rather than failing the user's cancel request outright.
func (c *Client) Cancel(ctx context.Context, o *domain.Order) (bool, error) {
	now := c.clock.Now()
	if c.breaker.IsOpen(now) {
		log.Warn().Str("broker", c.name).Str("order_id", o.OrderID).Msg("cancel degraded: breaker open")
		return true, nil
	}
	if err := c.breaker.Allow(now); err != nil {
		return true, nil
	}

	if c.dryRun {
		c.breaker.RecordSuccess(c.clock.Now())
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Cancel)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/orders/" + o.BrokerOrderID)

	_, err = c.finish(resp, err, func() (ports.BrokerAck, error) { return ports.BrokerAck{}, nil })
	if err != nil {
		if be, ok := err.(*tradeerr.BrokerError); ok && !be.CountsAgainstBreaker() {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Ping is a lightweight connectivity probe used by the router and the
// scheduler's health sweep; it bypasses the breaker since probing is exactly
// how degraded connectivity gets detected and recovered from.
func (c *Client) Ping(ctx context.Context) error {
	if c.dryRun {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Ping)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/ping")
	if err != nil {
		return &tradeerr.BrokerError{Broker: c.name, Kind: tradeerr.BrokerTimeout, Message: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return &tradeerr.BrokerError{Broker: c.name, Kind: tradeerr.BrokerUnknown, Message: resp.String()}
	}
	return nil
}

// finish classifies the HTTP outcome, records it against the breaker, and
// either runs onSuccess or returns a classified tradeerr.BrokerError.
func (c *Client) finish(resp *resty.Response, err error, onSuccess func() (ports.BrokerAck, error)) (ports.BrokerAck, error) {
	now := c.clock.Now()

	if err != nil {
		c.breaker.RecordFailure(now)
		return ports.BrokerAck{}, &tradeerr.BrokerError{Broker: c.name, Kind: tradeerr.BrokerTimeout, Message: err.Error()}
	}

	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		c.breaker.RecordSuccess(now)
		return onSuccess()
	}

	var kind tradeerr.BrokerErrorKind
	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnprocessableEntity:
		kind = tradeerr.BrokerMalformed
	case resp.StatusCode() == http.StatusConflict:
		kind = tradeerr.BrokerRejected
	default:
		kind = tradeerr.BrokerUnknown
	}

	brokerErr := &tradeerr.BrokerError{Broker: c.name, Kind: kind, Message: resp.String()}
	if brokerErr.CountsAgainstBreaker() {
		c.breaker.RecordFailure(now)
	}
	return ports.BrokerAck{}, brokerErr
}
