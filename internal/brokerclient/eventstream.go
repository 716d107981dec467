package brokerclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/config"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// FillEvent is one broker-delivered execution event.
type FillEvent struct {
	OrderID        string
	BrokerOrderID  string
	BrokerSequence int64 // monotonic per broker_order_id; dedup key
	FilledQuantity int64 // cumulative filled quantity as of this event
	ExecutionPrice decimal.Decimal
	ExecutedAt     time.Time
}

// FillHandler is the sink fill events are delivered to: the lifecycle
// engine's processOrderFill in production, a recording fake in tests.
type FillHandler interface {
	ProcessOrderFill(ctx context.Context, evt FillEvent) error
}

// wireFillEvent is the broker's inbound JSON message shape.
type wireFillEvent struct {
	Type           string `json:"type"`
	OrderID        string `json:"client_order_id"`
	BrokerOrderID  string `json:"broker_order_id"`
	Sequence       int64  `json:"sequence"`
	FilledQuantity int64  `json:"filled_quantity"`
	ExecutionPrice string `json:"execution_price"`
	Timestamp      int64  `json:"timestamp_ms"`
}

// EventStream consumes one broker's inbound websocket feed of fill/ack
// events, deduplicates by broker sequence number, and serializes delivery
// per order so concurrent fills on the same order are always handed to the
// handler in broker-delivery order.
type EventStream struct {
	broker  string
	wsURL   string
	handler FillHandler

	mu       sync.Mutex
	lastSeq  map[string]int64 // broker_order_id -> highest sequence delivered
	workers  map[string]chan FillEvent
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEventStream builds an event stream for one broker's websocket feed.
func NewEventStream(settings config.BrokerSettings, handler FillHandler) *EventStream {
	return &EventStream{
		broker:  settings.Name,
		wsURL:   settings.WebsocketURL,
		handler: handler,
		lastSeq: make(map[string]int64),
		workers: make(map[string]chan FillEvent),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the reconnecting read loop in a background goroutine.
func (s *EventStream) Start(ctx context.Context) {
	go s.connectionLoop(ctx)
}

// Stop terminates the read loop and all per-order worker goroutines.
func (s *EventStream) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *EventStream) connectionLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
		if err != nil {
			log.Error().Str("broker", s.broker).Err(err).Msg("event stream connect failed, retrying")
			time.Sleep(reconnectDelay)
			continue
		}

		log.Info().Str("broker", s.broker).Msg("event stream connected")
		go s.pingLoop(conn)
		s.readLoop(ctx, conn)
		conn.Close()

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			time.Sleep(reconnectDelay)
		}
	}
}

func (s *EventStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Str("broker", s.broker).Err(err).Msg("event stream read error, reconnecting")
			return
		}

		var wire wireFillEvent
		if err := json.Unmarshal(raw, &wire); err != nil {
			log.Warn().Str("broker", s.broker).Err(err).Msg("event stream malformed message, dropping")
			continue
		}
		if wire.Type != "fill" && wire.Type != "ack" {
			continue
		}

		price, err := decimal.NewFromString(wire.ExecutionPrice)
		if err != nil {
			price = decimal.Zero
		}
		evt := FillEvent{
			OrderID:        wire.OrderID,
			BrokerOrderID:  wire.BrokerOrderID,
			BrokerSequence: wire.Sequence,
			FilledQuantity: wire.FilledQuantity,
			ExecutionPrice: price,
			ExecutedAt:     time.UnixMilli(wire.Timestamp),
		}

		s.dispatch(ctx, evt)
	}
}

// dispatch routes an event to its order's single-writer worker, after
// deduplicating by broker sequence number. Brokers may redeliver the same
// fill; the dedup key is (broker_order_id, sequence).
func (s *EventStream) dispatch(ctx context.Context, evt FillEvent) {
	s.mu.Lock()
	if evt.BrokerSequence <= s.lastSeq[evt.BrokerOrderID] {
		s.mu.Unlock()
		log.Debug().Str("broker", s.broker).Str("broker_order_id", evt.BrokerOrderID).
			Int64("sequence", evt.BrokerSequence).Msg("duplicate fill event dropped")
		return
	}
	s.lastSeq[evt.BrokerOrderID] = evt.BrokerSequence

	ch, ok := s.workers[evt.BrokerOrderID]
	if !ok {
		ch = make(chan FillEvent, 64)
		s.workers[evt.BrokerOrderID] = ch
		go s.worker(ctx, evt.BrokerOrderID, ch)
	}
	s.mu.Unlock()

	select {
	case ch <- evt:
	case <-s.stopCh:
	}
}

// worker is the single writer for one broker_order_id: it applies fills in
// the exact order they arrive, so per-order updates stay linearizable even
// though events for different orders are processed concurrently.
func (s *EventStream) worker(ctx context.Context, brokerOrderID string, ch chan FillEvent) {
	for {
		select {
		case evt := <-ch:
			if err := s.handler.ProcessOrderFill(ctx, evt); err != nil {
				log.Error().Str("broker", s.broker).Str("broker_order_id", brokerOrderID).
					Err(err).Msg("processOrderFill failed for event stream delivery")
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
