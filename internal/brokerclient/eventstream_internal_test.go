package brokerclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/config"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []FillEvent
	seen   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, 1024)}
}

func (h *recordingHandler) ProcessOrderFill(ctx context.Context, evt FillEvent) error {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return nil
}

func (h *recordingHandler) waitFor(t *testing.T, n int) []FillEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-h.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, saw %d", n, i)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FillEvent, len(h.events))
	copy(out, h.events)
	return out
}

func newTestStream(handler FillHandler) *EventStream {
	return NewEventStream(config.BrokerSettings{Name: "ZERODHA"}, handler)
}

func fill(brokerOrderID string, seq, cumQty int64) FillEvent {
	return FillEvent{
		OrderID:        "ORD-" + brokerOrderID,
		BrokerOrderID:  brokerOrderID,
		BrokerSequence: seq,
		FilledQuantity: cumQty,
		ExecutionPrice: decimal.NewFromInt(100),
	}
}

func TestDispatch_DeliversInSequenceOrderPerOrder(t *testing.T) {
	handler := newRecordingHandler()
	s := newTestStream(handler)
	defer s.Stop()

	for seq := int64(1); seq <= 10; seq++ {
		s.dispatch(context.Background(), fill("B-1", seq, seq*10))
	}

	events := handler.waitFor(t, 10)
	require.Len(t, events, 10)
	for i, evt := range events {
		assert.Equal(t, int64(i+1), evt.BrokerSequence, "events must arrive in broker-delivery order")
	}
}

func TestDispatch_DropsRedeliveredSequences(t *testing.T) {
	handler := newRecordingHandler()
	s := newTestStream(handler)
	defer s.Stop()

	s.dispatch(context.Background(), fill("B-1", 1, 10))
	s.dispatch(context.Background(), fill("B-1", 2, 20))
	s.dispatch(context.Background(), fill("B-1", 2, 20)) // redelivery
	s.dispatch(context.Background(), fill("B-1", 1, 10)) // stale
	s.dispatch(context.Background(), fill("B-1", 3, 30))

	events := handler.waitFor(t, 3)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].BrokerSequence)
	assert.Equal(t, int64(2), events[1].BrokerSequence)
	assert.Equal(t, int64(3), events[2].BrokerSequence)
}

func TestDispatch_OrdersDoNotBlockEachOther(t *testing.T) {
	handler := newRecordingHandler()
	s := newTestStream(handler)
	defer s.Stop()

	const orders = 20
	const fillsPerOrder = 5
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "B-" + string(rune('A'+n%26)) + string(rune('0'+n/26))
			for seq := int64(1); seq <= fillsPerOrder; seq++ {
				s.dispatch(context.Background(), fill(id, seq, seq))
			}
		}(i)
	}
	wg.Wait()

	events := handler.waitFor(t, orders*fillsPerOrder)

	// Per-order delivery must remain sequence-ordered even though orders
	// interleave freely with each other.
	lastSeq := make(map[string]int64)
	for _, evt := range events {
		assert.Greater(t, evt.BrokerSequence, lastSeq[evt.BrokerOrderID],
			"order %s delivered out of sequence", evt.BrokerOrderID)
		lastSeq[evt.BrokerOrderID] = evt.BrokerSequence
	}
	assert.Len(t, lastSeq, orders)
}
