// Package config loads the engine's startup configuration, layering
// github.com/joho/godotenv for local .env files with github.com/spf13/viper
// for typed scalar settings. The per-broker table (defaultBrokerTable) is
// built in and is not read from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BrokerSettings is the per-broker connection configuration.
type BrokerSettings struct {
	Name         string
	BaseURL      string
	WebsocketURL string
	APIKeyEnv    string
	FeeBps       decimal.Decimal
	Exchanges    []string
}

// FeatureFlags gates optional behavior.
type FeatureFlags struct {
	AdvancedAlgoOrders bool
}

// Config is the engine's immutable startup configuration.
type Config struct {
	PrimaryBroker  string
	FallbackBroker string

	LargeOrderThreshold    int64
	MaxSingleOrderQuantity int64
	MaxNotionalINR         decimal.Decimal

	SLAPlaceMS  time.Duration
	SLACancelMS time.Duration
	SLAModifyMS time.Duration

	CircuitFailureThreshold  int
	CircuitFailureRateThresh float64
	CircuitRollingWindow     time.Duration
	CircuitOpenDuration      time.Duration
	CircuitHalfOpenSuccesses int

	BrokerSubmitTimeout time.Duration
	BrokerCancelTimeout time.Duration
	BrokerModifyTimeout time.Duration
	BrokerPingTimeout   time.Duration

	ExpirationSweepInterval time.Duration
	HealthProbeInterval     time.Duration
	ReconcilerInterval      time.Duration
	ReconcilerStaleAfter    time.Duration

	DatabaseDSN string

	TelegramToken  string
	TelegramChatID int64

	Brokers map[string]BrokerSettings

	Flags FeatureFlags
}

// Load reads .env (if present) then binds environment variables via viper,
// falling back to the documented defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using process environment")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("primary_broker", "ZERODHA")
	v.SetDefault("fallback_broker", "UPSTOX")
	v.SetDefault("large_order_threshold", 10000)
	v.SetDefault("max_single_order_quantity", 100000)
	v.SetDefault("max_notional_inr", "10000000")
	v.SetDefault("sla_place_ms", 100)
	v.SetDefault("sla_cancel_ms", 200)
	v.SetDefault("sla_modify_ms", 200)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.failure_rate_threshold", 0.5)
	v.SetDefault("circuit.rolling_window_ms", 60000)
	v.SetDefault("circuit.open_duration_ms", 30000)
	v.SetDefault("circuit.half_open_successes", 2)
	v.SetDefault("broker.submit_timeout_ms", 2000)
	v.SetDefault("broker.cancel_timeout_ms", 1000)
	v.SetDefault("broker.modify_timeout_ms", 1500)
	v.SetDefault("broker.ping_timeout_ms", 500)
	v.SetDefault("scheduler.expiration_sweep_ms", 60000)
	v.SetDefault("scheduler.health_probe_ms", 10000)
	v.SetDefault("scheduler.reconciler_interval_ms", 15000)
	v.SetDefault("scheduler.reconciler_stale_after_ms", 30000)
	v.SetDefault("database_dsn", "data/trading.db")
	v.SetDefault("feature_flags.advanced_algo_orders", false)

	maxNotional, err := decimal.NewFromString(v.GetString("max_notional_inr"))
	if err != nil {
		return nil, fmt.Errorf("invalid max_notional_inr: %w", err)
	}

	cfg := &Config{
		PrimaryBroker:  v.GetString("primary_broker"),
		FallbackBroker: v.GetString("fallback_broker"),

		LargeOrderThreshold:    v.GetInt64("large_order_threshold"),
		MaxSingleOrderQuantity: v.GetInt64("max_single_order_quantity"),
		MaxNotionalINR:         maxNotional,

		SLAPlaceMS:  time.Duration(v.GetInt64("sla_place_ms")) * time.Millisecond,
		SLACancelMS: time.Duration(v.GetInt64("sla_cancel_ms")) * time.Millisecond,
		SLAModifyMS: time.Duration(v.GetInt64("sla_modify_ms")) * time.Millisecond,

		CircuitFailureThreshold:  v.GetInt("circuit.failure_threshold"),
		CircuitFailureRateThresh: v.GetFloat64("circuit.failure_rate_threshold"),
		CircuitRollingWindow:     time.Duration(v.GetInt64("circuit.rolling_window_ms")) * time.Millisecond,
		CircuitOpenDuration:      time.Duration(v.GetInt64("circuit.open_duration_ms")) * time.Millisecond,
		CircuitHalfOpenSuccesses: v.GetInt("circuit.half_open_successes"),

		BrokerSubmitTimeout: time.Duration(v.GetInt64("broker.submit_timeout_ms")) * time.Millisecond,
		BrokerCancelTimeout: time.Duration(v.GetInt64("broker.cancel_timeout_ms")) * time.Millisecond,
		BrokerModifyTimeout: time.Duration(v.GetInt64("broker.modify_timeout_ms")) * time.Millisecond,
		BrokerPingTimeout:   time.Duration(v.GetInt64("broker.ping_timeout_ms")) * time.Millisecond,

		ExpirationSweepInterval: time.Duration(v.GetInt64("scheduler.expiration_sweep_ms")) * time.Millisecond,
		HealthProbeInterval:     time.Duration(v.GetInt64("scheduler.health_probe_ms")) * time.Millisecond,
		ReconcilerInterval:      time.Duration(v.GetInt64("scheduler.reconciler_interval_ms")) * time.Millisecond,
		ReconcilerStaleAfter:    time.Duration(v.GetInt64("scheduler.reconciler_stale_after_ms")) * time.Millisecond,

		DatabaseDSN: v.GetString("database_dsn"),

		TelegramToken:  v.GetString("telegram_bot_token"),
		TelegramChatID: v.GetInt64("telegram_chat_id"),

		Flags: FeatureFlags{
			AdvancedAlgoOrders: v.GetBool("feature_flags.advanced_algo_orders"),
		},
	}

	cfg.Brokers = defaultBrokerTable()

	return cfg, nil
}

// BpsFor implements ports.FeeTable: per-broker basis-points fee rate, with
// a conservative default for any unconfigured broker.
func (c *Config) BpsFor(broker string) decimal.Decimal {
	if b, ok := c.Brokers[broker]; ok {
		return b.FeeBps
	}
	return decimal.NewFromFloat(5)
}

// defaultBrokerTable is the static broker capability/fee map the fee
// estimator and the Broker Registry's exchange filter read.
func defaultBrokerTable() map[string]BrokerSettings {
	return map[string]BrokerSettings{
		"ZERODHA": {
			Name: "ZERODHA", BaseURL: "https://api.zerodha.example/v1",
			WebsocketURL: "wss://stream.zerodha.example/v1", APIKeyEnv: "ZERODHA_API_KEY",
			FeeBps: decimal.NewFromFloat(3), Exchanges: []string{"NSE", "BSE", "MCX"},
		},
		"UPSTOX": {
			Name: "UPSTOX", BaseURL: "https://api.upstox.example/v1",
			WebsocketURL: "wss://stream.upstox.example/v1", APIKeyEnv: "UPSTOX_API_KEY",
			FeeBps: decimal.NewFromFloat(2), Exchanges: []string{"NSE", "BSE"},
		},
		"ANGEL_ONE": {
			Name: "ANGEL_ONE", BaseURL: "https://api.angelone.example/v1",
			WebsocketURL: "wss://stream.angelone.example/v1", APIKeyEnv: "ANGEL_ONE_API_KEY",
			FeeBps: decimal.NewFromFloat(2.5), Exchanges: []string{"NSE", "BSE", "MCX"},
		},
	}
}
