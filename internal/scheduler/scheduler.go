// Package scheduler is the periodic dispatcher running the expiration
// sweep, broker health probe, and cancel-pending reconciler as independent,
// non-overlapping-per-kind tasks. The reconciler recovers orders a degraded
// broker call left stuck in CANCEL_PENDING.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourorg/tradingcore/internal/brokerclient"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
)

// LifecycleEngine is the subset of the lifecycle engine the scheduler drives.
type LifecycleEngine interface {
	ExpireOrders(ctx context.Context, calendar ports.ExchangeCalendar) (int, error)
	GetOrdersByUserAndStatus(ctx context.Context, userID uint64, status domain.Status) ([]*domain.Order, error)
	GetActiveOrders(ctx context.Context) ([]*domain.Order, error)
	ConfirmCancellation(ctx context.Context, orderID string) error
}

// Scheduler owns the three periodic background tasks.
type Scheduler struct {
	engine   LifecycleEngine
	registry BrokerRegistry
	brokers  *brokerclient.Manager
	calendar ports.ExchangeCalendar
	clock    ports.Clock
	metrics  ports.MetricsSink
	notifier ports.Notifier

	prevConn map[string]domain.ConnectionState // health probe's last observation, for transition alerts

	expirationInterval time.Duration
	healthInterval     time.Duration
	reconcilerInterval time.Duration
	staleAfter         time.Duration

	expirationRunning int32
	healthRunning     int32
	reconcilerRunning int32

	stopCh chan struct{}
}

// BrokerRegistry is the subset of brokerregistry.Registry the health probe
// task needs.
type BrokerRegistry interface {
	UpdateStatus(status domain.BrokerStatus)
}

func New(engine LifecycleEngine, registry BrokerRegistry, brokers *brokerclient.Manager, calendar ports.ExchangeCalendar, clock ports.Clock, metrics ports.MetricsSink, notifier ports.Notifier, cfg *config.Config) *Scheduler {
	return &Scheduler{
		engine:             engine,
		registry:           registry,
		brokers:            brokers,
		calendar:           calendar,
		clock:              clock,
		metrics:            metrics,
		notifier:           notifier,
		prevConn:           make(map[string]domain.ConnectionState),
		expirationInterval: cfg.ExpirationSweepInterval,
		healthInterval:     cfg.HealthProbeInterval,
		reconcilerInterval: cfg.ReconcilerInterval,
		staleAfter:         cfg.ReconcilerStaleAfter,
		stopCh:             make(chan struct{}),
	}
}

// Start launches the three periodic tasks in background goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.expirationInterval, &s.expirationRunning, s.runExpirationSweep)
	go s.loop(ctx, s.healthInterval, &s.healthRunning, s.runHealthProbe)
	go s.loop(ctx, s.reconcilerInterval, &s.reconcilerRunning, s.runReconciler)
}

func (s *Scheduler) Stop() { close(s.stopCh) }

// loop ticks at interval, skipping a tick entirely (rather than queueing)
// if the previous run of the same task is still in flight, so runs of one
// kind never overlap.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, running *int32, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(running, 0, 1) {
				log.Debug().Msg("scheduler: skipping tick, previous run still in flight")
				continue
			}
			task(ctx)
			atomic.StoreInt32(running, 0)
		}
	}
}

func (s *Scheduler) runExpirationSweep(ctx context.Context) {
	count, err := s.engine.ExpireOrders(ctx, s.calendar)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: expiration sweep failed")
		return
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("scheduler: expiration sweep complete")
		if s.notifier != nil {
			s.notifier.Notify(ctx, "expiration sweep", fmt.Sprintf("%d orders expired", count))
		}
	}
	s.metrics.IncCounter("trading.scheduler.runs", map[string]string{"operation": "expiration_sweep"})
}

func (s *Scheduler) runHealthProbe(ctx context.Context) {
	now := s.clock.Now()
	for _, client := range s.brokers.All() {
		err := client.Ping(ctx)
		status := domain.BrokerStatus{
			BrokerName:    client.Name(),
			LastHeartbeat: now,
		}
		if err != nil {
			status.Connection = domain.ConnDisconnected
			status.HealthScore = 0
			status.ConsecutiveFailures = 1
		} else if client.Breaker().State() == "OPEN" {
			status.Connection = domain.ConnDegraded
			status.HealthScore = 40
		} else {
			status.Connection = domain.ConnConnected
			status.HealthScore = 100
		}
		s.registry.UpdateStatus(status)
		s.metrics.SetGauge("trading.broker.health_score", map[string]string{"broker": client.Name()}, status.HealthScore)

		if prev, seen := s.prevConn[client.Name()]; seen && prev == domain.ConnConnected && status.Connection != domain.ConnConnected && s.notifier != nil {
			s.notifier.Notify(ctx, "broker degraded",
				fmt.Sprintf("%s transitioned %s -> %s", client.Name(), prev, status.Connection))
		}
		s.prevConn[client.Name()] = status.Connection
	}
	s.metrics.IncCounter("trading.scheduler.runs", map[string]string{"operation": "health_probe"})
}

func (s *Scheduler) runReconciler(ctx context.Context) {
	orders, err := s.engine.GetActiveOrders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: reconciler failed to list active orders")
		return
	}

	now := s.clock.Now()
	stale := 0
	for _, o := range orders {
		if o.Status != domain.StatusCancelPending {
			continue
		}
		if now.Sub(o.UpdatedAt) < s.staleAfter {
			continue
		}
		client, ok := s.brokers.Get(o.BrokerName)
		if !ok {
			continue
		}
		degraded, err := client.Cancel(ctx, o)
		if err != nil {
			log.Warn().Str("order_id", o.OrderID).Err(err).Msg("scheduler: cancel reconciler retry failed")
			continue
		}
		if !degraded {
			if err := s.engine.ConfirmCancellation(ctx, o.OrderID); err != nil {
				log.Error().Str("order_id", o.OrderID).Err(err).Msg("scheduler: reconciler failed to persist CANCELLED")
				continue
			}
			stale++
			log.Info().Str("order_id", o.OrderID).Msg("scheduler: reconciler confirmed cancel")
		}
	}
	s.metrics.IncCounter("trading.scheduler.runs", map[string]string{"operation": "cancel_reconciler"})
	if stale > 0 {
		log.Info().Int("count", stale).Msg("scheduler: reconciler resolved stale cancel-pending orders")
	}
}
