package ports

import (
	"context"

	"github.com/dcaraballo/kalshimm/internal/domain"
)

// Exchange is the consumed external collaborator (spec.md §6): the four
// REST operations the engine needs from the trading venue.
type Exchange interface {
	// ListMarkets returns currently-listed contracts for a series/status.
	ListMarkets(ctx context.Context, seriesTicker, status string, limit int) ([]domain.Contract, error)

	// GetOrderBook fetches the raw YES/NO book for one ticker.
	GetOrderBook(ctx context.Context, ticker string) (domain.Book, error)

	// PlaceOrder submits a post-only limit buy and returns the exchange's
	// order identifier.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (exchangeOrderID string, err error)

	// CancelOrder cancels a resting order. ok is true on success or when
	// the exchange reports 404 (already gone).
	CancelOrder(ctx context.Context, exchangeOrderID string) (ok bool, err error)
}

// PlaceOrderRequest mirrors spec.md §6's place_order contract.
type PlaceOrderRequest struct {
	Ticker        string
	Side          domain.Side
	PriceCents    int
	Size          int
	TimeInForce   string // "gtc"
	PostOnly      bool
}
