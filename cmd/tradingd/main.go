// tradingd is the order lifecycle engine's entrypoint: it wires the order
// store, broker registry, broker clients, risk gate, smart order router,
// lifecycle engine, SLA monitor, and scheduler together and runs until
// SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/brokerauth"
	"github.com/yourorg/tradingcore/internal/brokerclient"
	"github.com/yourorg/tradingcore/internal/brokerregistry"
	"github.com/yourorg/tradingcore/internal/calendar"
	"github.com/yourorg/tradingcore/internal/clock"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/lifecycle"
	"github.com/yourorg/tradingcore/internal/metrics"
	"github.com/yourorg/tradingcore/internal/notify"
	"github.com/yourorg/tradingcore/internal/orderstore"
	"github.com/yourorg/tradingcore/internal/ports"
	"github.com/yourorg/tradingcore/internal/riskgate"
	"github.com/yourorg/tradingcore/internal/router"
	"github.com/yourorg/tradingcore/internal/scheduler"
	"github.com/yourorg/tradingcore/internal/sla"
)

const version = "1.0.0"

// Exit codes follow the sysexits convention.
const (
	exitOK                  = 0
	exitConfigError         = 64
	exitExternalUnavailable = 69
	exitInternalError       = 70
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// A panic while wiring or running the engine is neither a config error
	// nor an external outage; report it as an internal error.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("unrecoverable internal error")
			os.Exit(exitInternalError)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(exitConfigError)
	}

	log.Info().Str("version", version).Str("primary_broker", cfg.PrimaryBroker).Msg("tradingd starting")

	store, err := orderstore.New(cfg.DatabaseDSN)
	if err != nil {
		log.Error().Err(err).Msg("failed to open order store")
		os.Exit(exitExternalUnavailable)
	}

	sysClock := clock.System{}
	idGen := clock.UUIDGen{}
	metricsSink := metrics.NewRegistry()

	registry := brokerregistry.New(cfg.Brokers)
	dryRun := os.Getenv("BROKER_DRY_RUN") != "false" // default true: no reachable broker sandbox outside prod
	brokers := brokerclient.NewManager(cfg, sysClock, metricsSink, dryRun)

	pingers := make(map[string]router.BrokerPinger, len(cfg.Brokers))
	for name := range cfg.Brokers {
		if c, ok := brokers.Get(name); ok {
			pingers[name] = c
		}
	}
	smartRouter := router.New(registry, pingers, cfg, metricsSink, sysClock)

	risk := riskgate.New(riskgate.Thresholds{
		MaxNotional:      cfg.MaxNotionalINR,
		ElevatedNotional: cfg.MaxNotionalINR.Div(decimal.NewFromInt(2)),
		MaxOrdersPerUser: 50,
	})

	// Broker-account linkage lives in an external service; the in-process
	// grant table allows everyone in dry-run where there is nothing to check.
	auth := brokerauth.NewStatic(dryRun)

	notifier := newNotifier(cfg)

	slaMonitor := sla.New(sysClock, metricsSink, sla.Thresholds{
		Place:  cfg.SLAPlaceMS,
		Cancel: cfg.SLACancelMS,
		Modify: cfg.SLAModifyMS,
	}).WithNotifier(notifier)

	engine := lifecycle.New(lifecycle.Deps{
		Store:          store,
		Risk:           risk,
		Auth:           auth,
		Router:         smartRouter,
		Brokers:        brokers,
		Metrics:        metricsSink,
		Clock:          sysClock,
		IDs:            idGen,
		Notifier:       notifier,
		SLA:            slaMonitor,
		Fees:           cfg,
		Flags:          cfg.Flags,
		MaxNotionalINR: cfg.MaxNotionalINR,
	})

	tradingCalendar := calendar.New()
	sched := scheduler.New(engine, registry, brokers, tradingCalendar, sysClock, metricsSink, notifier, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, settings := range cfg.Brokers {
		stream := brokerclient.NewEventStream(settings, engine)
		stream.Start(ctx)
		defer stream.Stop()
	}

	sched.Start(ctx)
	defer sched.Stop()

	log.Info().Msg("tradingd ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("tradingd shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond) // let in-flight background tasks observe ctx.Done()
	os.Exit(exitOK)
}

// newNotifier wires a Telegram notifier when credentials are configured,
// falling back to the no-op sink otherwise; a missing notification channel
// must never block order processing.
func newNotifier(cfg *config.Config) ports.Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return notify.NoOp{}
	}
	t, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifier unavailable, falling back to no-op")
		return notify.NoOp{}
	}
	return t
}
