package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/brokerclient"
	"github.com/yourorg/tradingcore/internal/clock"
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/ports"
)

type fakeEngine struct {
	expireCount       int
	expireErr         error
	active            []*domain.Order
	confirmedOrderIDs []string
	confirmErr        error
}

func (f *fakeEngine) ExpireOrders(ctx context.Context, calendar ports.ExchangeCalendar) (int, error) {
	return f.expireCount, f.expireErr
}
func (f *fakeEngine) GetOrdersByUserAndStatus(ctx context.Context, userID uint64, status domain.Status) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeEngine) GetActiveOrders(ctx context.Context) ([]*domain.Order, error) {
	return f.active, nil
}
func (f *fakeEngine) ConfirmCancellation(ctx context.Context, orderID string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmedOrderIDs = append(f.confirmedOrderIDs, orderID)
	return nil
}

type fakeRegistry struct {
	updated []domain.BrokerStatus
}

func (f *fakeRegistry) UpdateStatus(status domain.BrokerStatus) {
	f.updated = append(f.updated, status)
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                  {}
func (noopMetrics) ObserveTimer(string, map[string]string, time.Duration) {}
func (noopMetrics) SetGauge(string, map[string]string, float64)           {}
func (noopMetrics) AddGauge(string, map[string]string, float64)           {}

type fixedCalendar struct{}

func (fixedCalendar) IsTradingDay(time.Time, domain.Exchange) bool         { return true }
func (fixedCalendar) EndOfTradingDay(t time.Time, e domain.Exchange) time.Time { return t }

func dryRunClient(name string) *brokerclient.Client {
	return brokerclient.New(
		config.BrokerSettings{Name: name},
		brokerclient.Config{FailureThreshold: 3, FailureRateThresh: 0.5, RollingWindow: time.Minute, OpenDuration: 10 * time.Second, HalfOpenTarget: 1},
		clock.System{},
		noopMetrics{},
		brokerclient.Timeouts{Submit: time.Second, Modify: time.Second, Cancel: time.Second, Ping: time.Second},
		true,
	)
}

func TestRunReconciler_ConfirmsStaleCancelPendingOrders(t *testing.T) {
	client := dryRunClient("ZERODHA")
	brokers := brokerclient.NewManagerFromClients(map[string]*brokerclient.Client{"ZERODHA": client})

	stale := &domain.Order{
		OrderID:    "ORD-1",
		BrokerName: "ZERODHA",
		Status:     domain.StatusCancelPending,
		UpdatedAt:  time.Now().Add(-time.Hour),
	}
	fresh := &domain.Order{
		OrderID:    "ORD-2",
		BrokerName: "ZERODHA",
		Status:     domain.StatusCancelPending,
		UpdatedAt:  time.Now(),
	}
	engine := &fakeEngine{active: []*domain.Order{stale, fresh}}

	s := &Scheduler{
		engine:     engine,
		registry:   &fakeRegistry{},
		brokers:    brokers,
		calendar:   fixedCalendar{},
		clock:      clock.System{},
		metrics:    noopMetrics{},
		staleAfter: time.Minute,
	}

	s.runReconciler(context.Background())

	require.Len(t, engine.confirmedOrderIDs, 1)
	assert.Equal(t, "ORD-1", engine.confirmedOrderIDs[0])
}

func TestRunHealthProbe_DegradesOnOpenBreaker(t *testing.T) {
	client := dryRunClient("ZERODHA")
	now := time.Now()
	client.Breaker().RecordFailure(now)
	client.Breaker().RecordFailure(now)
	client.Breaker().RecordFailure(now)
	require.True(t, client.Breaker().IsOpen(now))

	brokers := brokerclient.NewManagerFromClients(map[string]*brokerclient.Client{"ZERODHA": client})
	registry := &fakeRegistry{}

	s := &Scheduler{
		engine:   &fakeEngine{},
		registry: registry,
		brokers:  brokers,
		calendar: fixedCalendar{},
		clock:    clock.System{},
		metrics:  noopMetrics{},
		prevConn: make(map[string]domain.ConnectionState),
	}

	s.runHealthProbe(context.Background())

	require.Len(t, registry.updated, 1)
	assert.Equal(t, domain.ConnDegraded, registry.updated[0].Connection)
}

func TestRunExpirationSweep_DelegatesToEngine(t *testing.T) {
	engine := &fakeEngine{expireCount: 3}
	s := &Scheduler{
		engine:   engine,
		registry: &fakeRegistry{},
		brokers:  brokerclient.NewManagerFromClients(map[string]*brokerclient.Client{}),
		calendar: fixedCalendar{},
		clock:    clock.System{},
		metrics:  noopMetrics{},
	}

	s.runExpirationSweep(context.Background())
	// no panics, no assertions beyond the happy-path call succeeding silently
}

func TestLoop_SkipsOverlappingTick(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	var calls int32

	s := &Scheduler{stopCh: make(chan struct{})}
	var running int32

	task := func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.loop(ctx, 10*time.Millisecond, &running, task)

	<-started // first tick has started and is blocked on release
	time.Sleep(50 * time.Millisecond) // several ticks would have fired if not skipped
	release <- struct{}{}

	s.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
