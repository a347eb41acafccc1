// Package executor implements the Executor component (spec.md §4.6):
// placing paired post-only quotes and cancelling them, in either paper or
// live mode.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// Executor implements ports.Executor. When exchange is nil it runs in
// paper mode: PlacePair only writes synthetic rows to the Ledger.
type Executor struct {
	ledger   ports.Ledger
	exchange ports.Exchange
}

// New builds an Executor. Pass a nil exchange for paper mode.
func New(ledger ports.Ledger, exchange ports.Exchange) *Executor {
	return &Executor{ledger: ledger, exchange: exchange}
}

func (e *Executor) paperMode() bool {
	return e.exchange == nil
}

// PlacePair implements ports.Executor.
func (e *Executor) PlacePair(ctx context.Context, signal domain.PairSignal) error {
	pair := domain.Pair{
		PairID:         signal.PairID,
		Ticker:         signal.Ticker,
		Asset:          signal.Asset,
		TargetSpread:   100 - (signal.YesPrice + signal.NoPrice),
		CreatedAt:      time.Now().UTC(),
		Status:         domain.PairOpen,
		MarketQuestion: signal.MarketQuestion,
	}
	if err := e.ledger.InsertPair(ctx, pair); err != nil && !isDuplicate(err) {
		return fmt.Errorf("executor: place pair %s: %w", pair.PairID, err)
	}

	yesLeg := domain.Leg{
		OrderID:    uuid.NewString(),
		PairID:     pair.PairID,
		Ticker:     pair.Ticker,
		Side:       domain.SideYes,
		PriceCents: signal.YesPrice,
		Size:       signal.Size,
		Status:     domain.LegOpen,
	}
	noLeg := domain.Leg{
		OrderID:    uuid.NewString(),
		PairID:     pair.PairID,
		Ticker:     pair.Ticker,
		Side:       domain.SideNo,
		PriceCents: signal.NoPrice,
		Size:       signal.Size,
		Status:     domain.LegOpen,
	}

	if err := e.ledger.InsertOrder(ctx, yesLeg); err != nil && !isDuplicate(err) {
		return fmt.Errorf("executor: insert yes leg for %s: %w", pair.PairID, err)
	}
	if err := e.ledger.InsertOrder(ctx, noLeg); err != nil && !isDuplicate(err) {
		return fmt.Errorf("executor: insert no leg for %s: %w", pair.PairID, err)
	}

	if e.paperMode() {
		return nil
	}

	yesExchangeID, err := e.exchange.PlaceOrder(ctx, ports.PlaceOrderRequest{
		Ticker: pair.Ticker, Side: domain.SideYes, PriceCents: signal.YesPrice,
		Size: signal.Size, TimeInForce: "gtc", PostOnly: true,
	})
	if err != nil {
		e.abandonPair(ctx, pair.PairID, yesLeg.OrderID, noLeg.OrderID)
		return fmt.Errorf("executor: place yes leg for %s: %w", pair.PairID, err)
	}
	e.setExchangeOrderID(ctx, yesLeg.OrderID, yesExchangeID)

	noExchangeID, err := e.exchange.PlaceOrder(ctx, ports.PlaceOrderRequest{
		Ticker: pair.Ticker, Side: domain.SideNo, PriceCents: signal.NoPrice,
		Size: signal.Size, TimeInForce: "gtc", PostOnly: true,
	})
	if err != nil {
		if _, cancelErr := e.exchange.CancelOrder(ctx, yesExchangeID); cancelErr != nil {
			_ = e.ledger.AppendEvent(ctx, "cancel_after_partial_place_failed", pair.PairID)
		}
		_ = e.ledger.UpdateOrderStatus(ctx, yesLeg.OrderID, domain.LegCancelled, 0)
		e.abandonPair(ctx, pair.PairID, "", noLeg.OrderID)
		return fmt.Errorf("executor: place no leg for %s: %w", pair.PairID, err)
	}
	e.setExchangeOrderID(ctx, noLeg.OrderID, noExchangeID)

	return nil
}

func (e *Executor) setExchangeOrderID(ctx context.Context, orderID, exchangeOrderID string) {
	_ = e.ledger.SetExchangeOrderID(ctx, orderID, exchangeOrderID)
	_ = e.ledger.AppendEvent(ctx, "order_acknowledged", fmt.Sprintf(`{"order_id":%q,"exchange_order_id":%q}`, orderID, exchangeOrderID))
}

// abandonPair marks the pair CANCELLED and cancels any already-inserted
// legs that were not already handled by the caller.
func (e *Executor) abandonPair(ctx context.Context, pairID string, cancelledOrderIDs ...string) {
	for _, id := range cancelledOrderIDs {
		if id == "" {
			continue
		}
		_ = e.ledger.UpdateOrderStatus(ctx, id, domain.LegCancelled, 0)
	}
	_ = e.ledger.UpdatePairStatus(ctx, pairID, domain.PairCancelled)
}

// CancelOrder implements ports.Executor.
func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	leg, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("executor: cancel order %s: %w", orderID, err)
	}
	if leg.Status != domain.LegOpen {
		return nil
	}

	if !e.paperMode() && leg.ExchangeOrderID != "" {
		ok, err := e.exchange.CancelOrder(ctx, leg.ExchangeOrderID)
		if err != nil {
			return fmt.Errorf("executor: cancel order %s: %w", orderID, err)
		}
		if !ok {
			return fmt.Errorf("executor: cancel order %s: exchange refused: %w", orderID, domain.ErrTransientIO)
		}
	}

	if err := e.ledger.UpdateOrderStatus(ctx, orderID, domain.LegCancelled, leg.FilledSize); err != nil {
		return fmt.Errorf("executor: cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAllOpen implements ports.Executor.
func (e *Executor) CancelAllOpen(ctx context.Context) (int, error) {
	open, err := e.ledger.OpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: cancel all open: %w", err)
	}

	count := 0
	for _, leg := range open {
		if err := e.CancelOrder(ctx, leg.OrderID); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, domain.ErrDuplicate)
}
