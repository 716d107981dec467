package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/metrics"
)

func TestIncCounter_AccumulatesPerLabelSet(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.IncCounter("trading.orders.placed", map[string]string{"broker": "ZERODHA"})
	reg.IncCounter("trading.orders.placed", map[string]string{"broker": "ZERODHA"})
	reg.IncCounter("trading.orders.placed", map[string]string{"broker": "UPSTOX"})

	n, err := testutil.GatherAndCount(reg.Gatherer(), "trading_orders_placed")
	require.NoError(t, err)
	assert.Equal(t, 2, n) // two distinct label combinations, one series each
}

func TestSanitize_DropsUnboundedLabelKeys(t *testing.T) {
	reg := metrics.NewRegistry()
	// "user_id" is not in the allowed label set and must be dropped rather
	// than creating a new unbounded series.
	reg.IncCounter("trading.orders.placed", map[string]string{"broker": "ZERODHA", "user_id": "42"})

	n, err := testutil.GatherAndCount(reg.Gatherer(), "trading_orders_placed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObserveTimer_RecordsIntoHistogram(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.ObserveTimer("trading.orders.processing_time", map[string]string{"operation": "place", "outcome": "success"}, 50*time.Millisecond)

	n, err := testutil.GatherAndCount(reg.Gatherer(), "trading_orders_processing_time")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetGaugeAndAddGauge(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.SetGauge("trading.broker.health_score", map[string]string{"broker": "ZERODHA"}, 100)
	reg.AddGauge("trading.orders.active", map[string]string{"exchange": "NSE"}, 1)
	reg.AddGauge("trading.orders.active", map[string]string{"exchange": "NSE"}, -1)

	n, err := testutil.GatherAndCount(reg.Gatherer(), "trading_orders_active")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
