// Package ports defines the interfaces the application layer depends on;
// concrete implementations live under internal/adapters.
package ports

import (
	"context"

	"github.com/dcaraballo/kalshimm/internal/domain"
)

// Ledger is the durable store of pairs, legs, realized PnL, and the event
// log (spec.md §4.1). Every write is atomic and flushed before it returns.
type Ledger interface {
	InsertPair(ctx context.Context, pair domain.Pair) error
	InsertOrder(ctx context.Context, leg domain.Leg) error
	UpdatePairStatus(ctx context.Context, pairID string, status domain.PairStatus) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.LegStatus, filledSize int) error
	SetExchangeOrderID(ctx context.Context, orderID, exchangeOrderID string) error
	AppendPnL(ctx context.Context, record domain.PnLRecord) error
	AppendEvent(ctx context.Context, kind string, detailsJSON string) error

	OpenPairs(ctx context.Context) ([]domain.Pair, error)
	OpenPairViews(ctx context.Context) ([]domain.PairView, error)
	OrdersForPair(ctx context.Context, pairID string) ([]domain.Leg, error)
	OpenOrders(ctx context.Context) ([]domain.Leg, error)
	GetOrder(ctx context.Context, orderID string) (domain.Leg, error)
	PnLSummary(ctx context.Context) (PnLSummary, error)
	RecentPairs(ctx context.Context, limit int) ([]domain.Pair, error)
	RecentPnL(ctx context.Context, limit int) ([]domain.PnLRecord, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.EventRecord, error)
	CountByStatus(ctx context.Context, status domain.PairStatus) (int, error)

	Close() error
}

// PnLSummary is the aggregate view the Ledger returns for the dashboard
// and CLI report.
type PnLSummary struct {
	Count        int
	TotalPnL     float64
	AveragePnL   float64
	TotalFees    float64
	TotalGross   float64
}
