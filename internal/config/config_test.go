package config_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/config"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "ZERODHA", cfg.PrimaryBroker)
	assert.Equal(t, "UPSTOX", cfg.FallbackBroker)
	assert.Equal(t, int64(100000), cfg.MaxSingleOrderQuantity)
	assert.True(t, cfg.MaxNotionalINR.Equal(decimal.NewFromInt(10000000)))
	assert.Equal(t, 5, cfg.CircuitFailureThreshold)
	assert.False(t, cfg.Flags.AdvancedAlgoOrders)
	assert.NotEmpty(t, cfg.Brokers)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("PRIMARY_BROKER", "UPSTOX")
	t.Setenv("MAX_SINGLE_ORDER_QUANTITY", "5000")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "UPSTOX", cfg.PrimaryBroker)
	assert.Equal(t, int64(5000), cfg.MaxSingleOrderQuantity)
}

func TestLoad_InvalidMaxNotionalIsRejected(t *testing.T) {
	t.Setenv("MAX_NOTIONAL_INR", "not-a-number")
	_, err := config.Load()
	require.Error(t, err)
}

func TestDefaultBrokerTable_MCXNeverServedByUpstox(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	upstox, ok := cfg.Brokers["UPSTOX"]
	require.True(t, ok)
	for _, ex := range upstox.Exchanges {
		assert.NotEqual(t, "MCX", ex, "UPSTOX must not serve MCX")
	}

	for _, name := range []string{"ZERODHA", "ANGEL_ONE"} {
		b, ok := cfg.Brokers[name]
		require.True(t, ok)
		assert.Contains(t, b.Exchanges, "MCX")
	}
}

func TestBpsFor_KnownAndUnknownBroker(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	known := cfg.BpsFor("ZERODHA")
	assert.True(t, known.GreaterThan(decimal.Zero))

	unknown := cfg.BpsFor("SOME_UNCONFIGURED_BROKER")
	assert.True(t, unknown.Equal(decimal.NewFromFloat(5)))
}
