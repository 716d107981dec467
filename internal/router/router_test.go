package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/brokerregistry"
	"github.com/yourorg/tradingcore/internal/clock"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/router"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                 {}
func (noopMetrics) ObserveTimer(string, map[string]string, time.Duration) {}
func (noopMetrics) SetGauge(string, map[string]string, float64)          {}
func (noopMetrics) AddGauge(string, map[string]string, float64)          {}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeFeeTable struct{}

func (fakeFeeTable) BpsFor(string) decimal.Decimal { return decimal.NewFromFloat(3) }

func testBrokers() map[string]config.BrokerSettings {
	return map[string]config.BrokerSettings{
		"ZERODHA": {Name: "ZERODHA", Exchanges: []string{"NSE", "BSE"}, FeeBps: decimal.NewFromFloat(2)},
		"UPSTOX":  {Name: "UPSTOX", Exchanges: []string{"NSE", "MCX"}, FeeBps: decimal.NewFromFloat(2.5)},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		PrimaryBroker:          "ZERODHA",
		FallbackBroker:         "UPSTOX",
		MaxSingleOrderQuantity: 100000,
		LargeOrderThreshold:    10000,
	}
}

func newRouter(pingers map[string]router.BrokerPinger) (*router.Router, *brokerregistry.Registry) {
	reg := brokerregistry.New(testBrokers())
	return router.New(reg, pingers, testConfig(), noopMetrics{}, clock.System{}), reg
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		OrderID:    "ORD-1",
		Exchange:   domain.ExchangeNSE,
		OrderType:  domain.OrderTypeMarket,
		Quantity:   100,
		LimitPrice: decimal.NewFromInt(100),
	}
}

func TestRoute_PicksPrimaryBrokerWhenHealthy(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	decision, err := r.Route(context.Background(), sampleOrder(), fakeFeeTable{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ZERODHA", decision.BrokerName)
	assert.Equal(t, domain.StrategyImmediate, decision.Strategy)
	assert.True(t, decision.ImmediateExecution)
	assert.Equal(t, 1.0, decision.Confidence)
}

func TestRoute_FallsBackWhenPrimaryUnusable(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{err: assertErr("connection refused")},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	decision, err := r.Route(context.Background(), sampleOrder(), fakeFeeTable{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPSTOX", decision.BrokerName)
	assert.Equal(t, 0.7, decision.Confidence)
}

func TestRoute_RejectsOversizedQuantity(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	o := sampleOrder()
	o.Quantity = 200000
	_, err := r.Route(context.Background(), o, fakeFeeTable{}, nil)
	require.Error(t, err)
	var rejected *tradeerr.OrderRejectedError
	assert.ErrorAs(t, err, &rejected)
}

func TestRoute_ExcludesBrokerNotServingExchange(t *testing.T) {
	// MCX is only served by UPSTOX in the test fixture.
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	o := sampleOrder()
	o.Exchange = domain.ExchangeMCX
	decision, err := r.Route(context.Background(), o, fakeFeeTable{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPSTOX", decision.BrokerName)
}

func TestRoute_AllCandidatesUnusableReturnsServiceUnavailable(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{err: assertErr("down")},
		"UPSTOX":  fakePinger{err: assertErr("down")},
	}
	r, _ := newRouter(pingers)

	_, err := r.Route(context.Background(), sampleOrder(), fakeFeeTable{}, nil)
	require.Error(t, err)
	var unavailable *tradeerr.ServiceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestRoute_LargeLimitOrderUsesSlicedStrategy(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	o := sampleOrder()
	o.OrderType = domain.OrderTypeLimit
	o.Quantity = 50000 // above largeOrderThreshold of 10000
	decision, err := r.Route(context.Background(), o, fakeFeeTable{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategySliced, decision.Strategy)
	assert.False(t, decision.ImmediateExecution)
}

func TestRoute_HonorsPrimaryBrokerOverride(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	ov := &domain.OverrideSet{PrimaryBroker: "UPSTOX"}
	decision, err := r.Route(context.Background(), sampleOrder(), fakeFeeTable{}, ov)
	require.NoError(t, err)
	assert.Equal(t, "UPSTOX", decision.BrokerName)
}

func TestRoute_HonorsMaxQuantityOverride(t *testing.T) {
	pingers := map[string]router.BrokerPinger{
		"ZERODHA": fakePinger{},
		"UPSTOX":  fakePinger{},
	}
	r, _ := newRouter(pingers)

	o := sampleOrder()
	o.Quantity = 5000
	ov := &domain.OverrideSet{MaxSingleOrderQuantity: 1000}
	_, err := r.Route(context.Background(), o, fakeFeeTable{}, ov)
	require.Error(t, err)
	var rejected *tradeerr.OrderRejectedError
	assert.ErrorAs(t, err, &rejected)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
