// Package router implements the Smart Order Router: a pure function from
// an Order plus the Broker Registry's live state to a RoutingDecision. It
// never mutates the order and never blocks on I/O beyond the broker
// connectivity probe.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/brokerregistry"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

const routerName = "smart_order_router"

// BrokerPinger is the subset of ports.BrokerClient the router needs for its
// connectivity probe step.
type BrokerPinger interface {
	Ping(ctx context.Context) error
}

// Router scores candidate brokers and picks a strategy and venue per order.
type Router struct {
	registry               *brokerregistry.Registry
	pingers                map[string]BrokerPinger
	primaryBroker           string
	fallbackBroker          string
	maxSingleOrderQuantity  int64
	largeOrderThreshold     int64
	metrics                 ports.MetricsSink
	clock                   ports.Clock
}

func New(registry *brokerregistry.Registry, pingers map[string]BrokerPinger, cfg *config.Config, metrics ports.MetricsSink, clock ports.Clock) *Router {
	return &Router{
		registry:               registry,
		pingers:                pingers,
		primaryBroker:          cfg.PrimaryBroker,
		fallbackBroker:         cfg.FallbackBroker,
		maxSingleOrderQuantity: cfg.MaxSingleOrderQuantity,
		largeOrderThreshold:    cfg.LargeOrderThreshold,
		metrics:                metrics,
		clock:                  clock,
	}
}

type sizeClass int

const (
	sizeSmall sizeClass = iota
	sizeMedium
	sizeLarge
)

func (r *Router) classifySize(quantity int64) sizeClass {
	threshold := r.largeOrderThreshold
	if threshold <= 0 {
		threshold = 10000
	}
	switch {
	case quantity > threshold:
		return sizeLarge
	case quantity >= threshold/10:
		return sizeMedium
	default:
		return sizeSmall
	}
}

func sizeFactor(c sizeClass) float64 {
	switch c {
	case sizeLarge:
		return 0.7
	case sizeMedium:
		return 0.9
	default:
		return 1.0
	}
}

func typeFactor(t domain.OrderType) float64 {
	switch t {
	case domain.OrderTypeMarket:
		return 1.0
	case domain.OrderTypeLimit:
		return 0.95
	default: // STOP_LOSS, STOP_LIMIT
		return 0.9
	}
}

func exchangeFactor(e domain.Exchange) float64 {
	switch e {
	case domain.ExchangeNSE:
		return 1.0
	case domain.ExchangeBSE:
		return 0.95
	case domain.ExchangeMCX:
		return 0.9
	default:
		return 0.5
	}
}

func baseScore(broker, primary string) float64 {
	if broker == primary {
		return 1.0
	}
	return 0.8
}

// Route computes a RoutingDecision for o. o is read-only here; the caller
// (lifecycle engine) owns applying any resulting state transition. ov, when
// non-nil, overrides the whitelisted per-request settings (primary broker,
// max single-order quantity); authorization happens upstream.
func (r *Router) Route(ctx context.Context, o *domain.Order, fees ports.FeeTable, ov *domain.OverrideSet) (domain.RoutingDecision, error) {
	start := r.clock.Now()

	primary := r.primaryBroker
	maxQty := r.maxSingleOrderQuantity
	if ov != nil {
		if ov.PrimaryBroker != "" {
			primary = ov.PrimaryBroker
		}
		if ov.MaxSingleOrderQuantity > 0 {
			maxQty = ov.MaxSingleOrderQuantity
		}
	}

	if o.Quantity > maxQty {
		return domain.RoutingDecision{}, &tradeerr.OrderRejectedError{OrderID: o.OrderID, Reason: "quantity exceeds max_single_order_quantity"}
	}

	candidates := r.registry.BrokersForExchange(o.Exchange)
	if len(candidates) == 0 {
		return domain.RoutingDecision{}, &tradeerr.OrderRejectedError{OrderID: o.OrderID, Reason: "no broker available for exchange " + string(o.Exchange)}
	}

	size := r.classifySize(o.Quantity)
	best := candidates[0]
	bestScore := -1.0
	for _, b := range candidates {
		score := baseScore(b, primary) * sizeFactor(size) * typeFactor(o.OrderType) * exchangeFactor(o.Exchange)
		if score > bestScore {
			bestScore = score
			best = b
		}
	}

	strategy := selectStrategy(o.OrderType, size)
	venue := selectVenue(strategy, o.Exchange)

	chosenBroker := best
	confidence := 1.0
	reason := fmt.Sprintf("selected %s by score %.3f among %d candidates", best, bestScore, len(candidates))

	if err := r.probe(ctx, chosenBroker); err != nil {
		log.Warn().Str("broker", chosenBroker).Err(err).Msg("router: chosen broker unusable, falling back")
		if r.fallbackBroker == "" || r.fallbackBroker == chosenBroker {
			return domain.RoutingDecision{}, &tradeerr.ServiceUnavailableError{Broker: chosenBroker}
		}
		if err := r.probe(ctx, r.fallbackBroker); err != nil {
			return domain.RoutingDecision{}, &tradeerr.ServiceUnavailableError{Broker: r.fallbackBroker}
		}
		chosenBroker = r.fallbackBroker
		confidence = 0.7
		reason = fmt.Sprintf("fallback to %s: %s unusable", chosenBroker, best)
	}

	notional := decimal.Zero
	price := o.LimitPrice
	if price.IsZero() {
		price = o.StopPrice
	}
	if !price.IsZero() {
		notional = price.Mul(decimal.NewFromInt(o.Quantity))
	}
	feeBps := fees.BpsFor(chosenBroker)
	estimatedFee := notional.Mul(feeBps).DivRound(decimal.NewFromInt(10000), 4)

	decision := domain.RoutingDecision{
		BrokerName:             chosenBroker,
		Venue:                  venue,
		Strategy:               strategy,
		ImmediateExecution:     strategy == domain.StrategyImmediate,
		EstimatedExecutionTime: estimatedExecutionTime(strategy),
		Confidence:             confidence,
		Reason:                 reason,
		RouterName:             routerName,
		ProcessingTime:         r.clock.Now().Sub(start),
		EstimatedFeeBps:        feeBps,
		EstimatedFee:           estimatedFee,
	}

	r.metrics.ObserveTimer("trading.routing", map[string]string{"broker": chosenBroker, "strategy": string(strategy)}, decision.ProcessingTime)
	r.metrics.IncCounter("trading.routing.decisions", map[string]string{
		"broker":   chosenBroker,
		"strategy": string(strategy),
		"outcome":  boolLabel(decision.ImmediateExecution),
	})

	return decision, nil
}

func (r *Router) probe(ctx context.Context, broker string) error {
	if !r.registry.Usable(broker) {
		return &tradeerr.ServiceUnavailableError{Broker: broker}
	}
	pinger, ok := r.pingers[broker]
	if !ok {
		return &tradeerr.ServiceUnavailableError{Broker: broker}
	}
	return pinger.Ping(ctx)
}

func selectStrategy(t domain.OrderType, size sizeClass) domain.Strategy {
	switch t {
	case domain.OrderTypeMarket:
		return domain.StrategyImmediate
	case domain.OrderTypeLimit:
		if size == sizeLarge {
			return domain.StrategySliced
		}
		return domain.StrategyImmediate
	default: // STOP_LOSS, STOP_LIMIT
		return domain.StrategyScheduled
	}
}

func selectVenue(strategy domain.Strategy, exchange domain.Exchange) string {
	switch strategy {
	case domain.StrategyDarkPool:
		return "DARK_POOL"
	case domain.StrategyVWAP, domain.StrategyTWAP, domain.StrategyIceberg, domain.StrategySliced:
		return "ALGORITHMIC"
	case domain.StrategySmart:
		return string(exchange) + "_SMART"
	default:
		return string(exchange)
	}
}

func estimatedExecutionTime(strategy domain.Strategy) time.Duration {
	switch strategy {
	case domain.StrategyImmediate:
		return 500 * time.Millisecond
	case domain.StrategySliced, domain.StrategyIceberg:
		return 5 * time.Minute
	case domain.StrategyScheduled:
		return 0 // triggers on stop condition, not a fixed horizon
	default:
		return time.Minute
	}
}

func boolLabel(b bool) string {
	if b {
		return "immediate"
	}
	return "scheduled"
}
