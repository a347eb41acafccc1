package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcaraballo/kalshimm/internal/domain"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStorage_InsertAndGetOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	pair := domain.Pair{PairID: "pair-1", Ticker: "T1", Asset: "BTC", TargetSpread: 3, Status: domain.PairOpen, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertPair(ctx, pair))

	leg := domain.Leg{OrderID: "order-1", PairID: "pair-1", Ticker: "T1", Side: domain.SideYes, PriceCents: 48, Size: 10, Status: domain.LegOpen}
	require.NoError(t, s.InsertOrder(ctx, leg))

	got, err := s.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Ticker)
	assert.Equal(t, domain.SideYes, got.Side)
	assert.Equal(t, 48, got.PriceCents)
}

func TestSQLiteStorage_DuplicateInsertIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	pair := domain.Pair{PairID: "pair-1", Ticker: "T1", Asset: "BTC", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertPair(ctx, pair))

	err := s.InsertPair(ctx, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestSQLiteStorage_OpenPairViewsReconstructsLegs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Asset: "BTC", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.InsertOrder(ctx, domain.Leg{OrderID: "yes-1", PairID: "pair-1", Ticker: "T1", Side: domain.SideYes, PriceCents: 48, Size: 10, Status: domain.LegOpen}))
	require.NoError(t, s.InsertOrder(ctx, domain.Leg{OrderID: "no-1", PairID: "pair-1", Ticker: "T1", Side: domain.SideNo, PriceCents: 49, Size: 10, Status: domain.LegOpen}))

	views, err := s.OpenPairViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].YesLeg)
	require.NotNil(t, views[0].NoLeg)
	assert.Equal(t, 48, views[0].YesLeg.PriceCents)
	assert.Equal(t, 49, views[0].NoLeg.PriceCents)
}

func TestSQLiteStorage_SetExchangeOrderIDPersists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.InsertOrder(ctx, domain.Leg{OrderID: "yes-1", PairID: "pair-1", Ticker: "T1", Side: domain.SideYes, PriceCents: 48, Size: 10, Status: domain.LegOpen}))

	require.NoError(t, s.SetExchangeOrderID(ctx, "yes-1", "exch-123"))

	got, err := s.GetOrder(ctx, "yes-1")
	require.NoError(t, err)
	assert.Equal(t, "exch-123", got.ExchangeOrderID)
}

func TestSQLiteStorage_PnLSummaryAggregates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.AppendPnL(ctx, domain.PnLRecord{PairID: "pair-1", Ticker: "T1", RealizedPnL: 0.20, Fees: 0.10, GrossProfit: 0.30, Timestamp: time.Now().UTC()}))
	require.NoError(t, s.AppendPnL(ctx, domain.PnLRecord{PairID: "pair-2", Ticker: "T2", RealizedPnL: -0.05, Fees: 0.05, GrossProfit: 0, Timestamp: time.Now().UTC()}))

	summary, err := s.PnLSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 0.15, summary.TotalPnL, 0.001)
	assert.InDelta(t, 0.075, summary.AveragePnL, 0.001)
}

func TestSQLiteStorage_UpdatePairStatusRejectsIllegalTransition(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.UpdatePairStatus(ctx, "pair-1", domain.PairFilled))

	// FILLED is terminal; a lingering cancel attempt must be rejected, not
	// silently applied.
	err := s.UpdatePairStatus(ctx, "pair-1", domain.PairCancelled)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokenInvariant)

	status, err := s.CountByStatus(ctx, domain.PairFilled)
	require.NoError(t, err)
	assert.Equal(t, 1, status, "the rejected transition must not have mutated the row")
}

func TestSQLiteStorage_UpdatePairStatusAllowsIdempotentSelfTransition(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.UpdatePairStatus(ctx, "pair-1", domain.PairOpen))

	open, err := s.CountByStatus(ctx, domain.PairOpen)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
}

func TestSQLiteStorage_UpdateOrderStatusRejectsIllegalTransition(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.InsertOrder(ctx, domain.Leg{OrderID: "yes-1", PairID: "pair-1", Ticker: "T1", Side: domain.SideYes, PriceCents: 48, Size: 10, Status: domain.LegOpen}))
	require.NoError(t, s.UpdateOrderStatus(ctx, "yes-1", domain.LegFilled, 10))

	err := s.UpdateOrderStatus(ctx, "yes-1", domain.LegCancelled, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokenInvariant)

	got, err := s.GetOrder(ctx, "yes-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LegFilled, got.Status, "the rejected transition must not have mutated the row")
}

func TestSQLiteStorage_CountByStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-1", Ticker: "T1", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.InsertPair(ctx, domain.Pair{PairID: "pair-2", Ticker: "T2", Status: domain.PairOpen, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.UpdatePairStatus(ctx, "pair-2", domain.PairFilled))

	open, err := s.CountByStatus(ctx, domain.PairOpen)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	filled, err := s.CountByStatus(ctx, domain.PairFilled)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)
}
