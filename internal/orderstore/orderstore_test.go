package orderstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/orderstore"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

func newTestStore(t *testing.T) *orderstore.Store {
	t.Helper()
	s, err := orderstore.New(":memory:")
	require.NoError(t, err)
	return s
}

func sampleOrder(orderID string, userID uint64) *domain.Order {
	now := time.Now()
	return &domain.Order{
		OrderID:     orderID,
		UserID:      userID,
		Symbol:      "RELIANCE",
		Exchange:    domain.ExchangeNSE,
		Side:        domain.SideBuy,
		OrderType:   domain.OrderTypeMarket,
		Quantity:    10,
		TimeInForce: domain.TIFDay,
		Status:      domain.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSaveAndFindByOrderID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	o := sampleOrder("ORD-1", 1)
	require.NoError(t, store.Save(ctx, o))

	found, err := store.FindByOrderID(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", found.OrderID)
	assert.Equal(t, domain.StatusPending, found.Status)
}

func TestFindByOrderID_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.FindByOrderID(context.Background(), "NOPE")
	require.Error(t, err)
	var nf *tradeerr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateIfVersion_SucceedsOnMatchingVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	o := sampleOrder("ORD-2", 1)
	require.NoError(t, store.Save(ctx, o))

	o.Status = domain.StatusAcknowledged
	o.BrokerOrderID = "B-1"
	o.BrokerName = "ZERODHA"
	require.NoError(t, store.UpdateIfVersion(ctx, o, 1))
	assert.Equal(t, int64(2), o.Version)

	found, err := store.FindByOrderID(ctx, "ORD-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcknowledged, found.Status)
	assert.Equal(t, int64(2), found.Version)
}

func TestUpdateIfVersion_ConflictsOnStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	o := sampleOrder("ORD-3", 1)
	require.NoError(t, store.Save(ctx, o))

	o.Status = domain.StatusAcknowledged
	require.NoError(t, store.UpdateIfVersion(ctx, o, 1)) // version now 2

	stale := sampleOrder("ORD-3", 1)
	stale.Status = domain.StatusRejected
	err := store.UpdateIfVersion(ctx, stale, 1) // still claims version 1
	require.Error(t, err)
	var conflict *tradeerr.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestFindByUserAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleOrder("ORD-4", 9)
	b := sampleOrder("ORD-5", 9)
	b.Status = domain.StatusFilled
	b.FilledQuantity = 10
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	pending, err := store.FindByUserAndStatus(ctx, 9, domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD-4", pending[0].OrderID)
}

func TestFindByStatusIn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleOrder("ORD-6", 1)
	b := sampleOrder("ORD-7", 1)
	b.Status = domain.StatusAcknowledged
	b.BrokerOrderID = "B-2"
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	active, err := store.FindByStatusIn(ctx, []domain.Status{domain.StatusPending, domain.StatusAcknowledged})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSave_PersistsDecimalFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	o := sampleOrder("ORD-8", 1)
	o.OrderType = domain.OrderTypeLimit
	o.LimitPrice = decimal.NewFromFloat(123.45)
	require.NoError(t, store.Save(ctx, o))

	found, err := store.FindByOrderID(ctx, "ORD-8")
	require.NoError(t, err)
	assert.True(t, found.LimitPrice.Equal(decimal.NewFromFloat(123.45)))
}
