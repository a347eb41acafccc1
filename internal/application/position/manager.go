// Package position implements the Position Manager (spec.md §4.7): the
// central state machine that drives every open pair through fills,
// timeouts, and resolution deadlines, and enforces the halt condition.
package position

import (
	"context"
	"fmt"
	"time"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// FillRNG is the injectable randomness source for paper-mode fill
// simulation (spec.md §9: "randomness... must be injectable, not
// module-level"). *rand.Rand satisfies this; tests use a scripted double.
type FillRNG interface {
	Float64() float64
}

// Config carries the Position Manager's timing tunables.
type Config struct {
	PairTimeoutSeconds    int64
	CancelDeadlineSeconds int64
	PaperTrade            bool
}

// Manager is the Position Manager. It holds the only two pieces of
// in-memory state the spec calls for: the one-sided-fill streak and the
// halt flag.
type Manager struct {
	ledger   ports.Ledger
	executor ports.Executor
	capital  *domain.CapitalBook
	halt     *domain.HaltState
	rng      FillRNG
	cfg      Config
}

// New builds a Position Manager.
func New(ledger ports.Ledger, executor ports.Executor, capital *domain.CapitalBook, halt *domain.HaltState, rng FillRNG, cfg Config) *Manager {
	return &Manager{ledger: ledger, executor: executor, capital: capital, halt: halt, rng: rng, cfg: cfg}
}

// Halted reports whether the manager has tripped its halt condition.
func (m *Manager) Halted() bool {
	return m.halt.Halted
}

// CheckPairs drives every OPEN pair in the Ledger through one state-machine
// step, given the just-fetched books keyed by ticker. Once the halt has
// tripped it does nothing.
func (m *Manager) CheckPairs(ctx context.Context, booksByTicker map[string]domain.MarketBook) error {
	if m.halt.Halted {
		return nil
	}
	views, err := m.ledger.OpenPairViews(ctx)
	if err != nil {
		return fmt.Errorf("position: check pairs: %w", err)
	}

	now := time.Now()
	for _, view := range views {
		if view.YesLeg == nil || view.NoLeg == nil {
			_ = m.ledger.AppendEvent(ctx, "broken_invariant", fmt.Sprintf(`{"pair_id":%q,"reason":"missing leg"}`, view.PairID))
			continue
		}

		book, hasBook := booksByTicker[view.Ticker]

		if m.cfg.PaperTrade && hasBook {
			if err := m.simulateFills(ctx, &view, book); err != nil {
				return err
			}
		}

		if view.BothFilled() {
			if err := m.completePair(ctx, view); err != nil {
				return err
			}
			continue
		}

		if hasBook && book.SecondsUntilClose <= m.cfg.CancelDeadlineSeconds {
			if filled, open, ok := view.OneFilledOneOpen(); ok {
				if err := m.oneSidedFill(ctx, view, filled, open); err != nil {
					return err
				}
			} else {
				if err := m.cancelAtDeadline(ctx, view); err != nil {
					return err
				}
			}
			continue
		}

		if filled, open, ok := view.OneFilledOneOpen(); ok {
			if now.Sub(view.CreatedAt) >= time.Duration(m.cfg.PairTimeoutSeconds)*time.Second {
				if err := m.oneSidedFill(ctx, view, filled, open); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// simulateFills runs the paper-mode fill model from spec.md §4.7.1 against
// every still-OPEN leg of the pair and writes any resulting fill to the
// Ledger, updating view in place so the caller sees the post-simulation
// state without a second read.
func (m *Manager) simulateFills(ctx context.Context, view *domain.PairView, book domain.MarketBook) error {
	for _, leg := range []*domain.Leg{view.YesLeg, view.NoLeg} {
		if leg.Status != domain.LegOpen {
			continue
		}

		var bestBid, bestAsk int
		switch leg.Side {
		case domain.SideYes:
			bestBid, bestAsk = book.BestYesBid, book.BestYesAsk
		case domain.SideNo:
			bestBid, bestAsk = book.BestNoBid, book.BestNoAsk
		}

		prob := fillProbability(leg.PriceCents, bestBid, bestAsk)
		if prob <= 0 {
			continue
		}
		if m.rng.Float64() >= prob {
			continue
		}

		if err := m.ledger.UpdateOrderStatus(ctx, leg.OrderID, domain.LegFilled, leg.Size); err != nil {
			return fmt.Errorf("position: simulate fill for %s: %w", leg.OrderID, err)
		}
		leg.Status = domain.LegFilled
		leg.FilledSize = leg.Size
	}
	return nil
}

func fillProbability(legPrice, bestBid, bestAsk int) float64 {
	if bestAsk > 0 && bestAsk <= legPrice {
		return 1
	}
	if bestBid > 0 && legPrice >= bestBid {
		spread := 10
		if bestAsk > 0 {
			spread = bestAsk - bestBid
		}
		switch {
		case spread <= 2:
			return 0.35
		case spread <= 5:
			return 0.25
		default:
			return 0.15
		}
	}
	return 0
}

// completePair implements spec.md §4.7.2: both legs filled.
func (m *Manager) completePair(ctx context.Context, view domain.PairView) error {
	yPrice, nPrice, size := view.YesLeg.PriceCents, view.NoLeg.PriceCents, view.YesLeg.Size

	fees := domain.MakerFeeCents(yPrice, size) + domain.MakerFeeCents(nPrice, size)
	gross := float64(100-yPrice-nPrice) * float64(size) / 100
	net := gross - fees

	record := domain.PnLRecord{
		PairID:       view.PairID,
		Ticker:       view.Ticker,
		YesFillPrice: yPrice,
		NoFillPrice:  nPrice,
		Size:         size,
		CombinedCost: float64(yPrice+nPrice) * float64(size) / 100,
		GrossProfit:  gross,
		Fees:         fees,
		RealizedPnL:  net,
		Timestamp:    time.Now().UTC(),
	}
	if err := m.ledger.AppendPnL(ctx, record); err != nil {
		return fmt.Errorf("position: complete pair %s: %w", view.PairID, err)
	}
	if err := m.ledger.UpdatePairStatus(ctx, view.PairID, domain.PairFilled); err != nil {
		return fmt.Errorf("position: complete pair %s: %w", view.PairID, err)
	}
	_ = m.ledger.AppendEvent(ctx, "pair_complete", fmt.Sprintf(`{"pair_id":%q,"realized_pnl":%.4f}`, view.PairID, net))

	m.capital.Release(view.PairID, net)
	m.halt.RecordComplete()
	return nil
}

// cancelAtDeadline implements the zero-PnL branch of spec.md §4.7 step 4:
// both legs still OPEN when the resolution deadline fires.
func (m *Manager) cancelAtDeadline(ctx context.Context, view domain.PairView) error {
	for _, leg := range view.OpenLegs() {
		if err := m.executor.CancelOrder(ctx, leg.OrderID); err != nil {
			return fmt.Errorf("position: cancel at deadline %s: %w", view.PairID, err)
		}
	}
	if err := m.ledger.UpdatePairStatus(ctx, view.PairID, domain.PairCancelled); err != nil {
		return fmt.Errorf("position: cancel at deadline %s: %w", view.PairID, err)
	}
	_ = m.ledger.AppendEvent(ctx, "pair_cancelled_deadline", fmt.Sprintf(`{"pair_id":%q}`, view.PairID))
	m.capital.Release(view.PairID, 0)
	return nil
}

// oneSidedFill implements spec.md §4.7.3. It is also used, per the
// refinement spec.md §9 recommends, when the resolution deadline fires
// with exactly one leg already FILLED: the filled leg's cost is sunk
// exposure and is booked as a loss rather than released at zero PnL.
func (m *Manager) oneSidedFill(ctx context.Context, view domain.PairView, filled, open *domain.Leg) error {
	if err := m.executor.CancelOrder(ctx, open.OrderID); err != nil {
		return fmt.Errorf("position: one-sided fill %s: %w", view.PairID, err)
	}
	if err := m.ledger.UpdatePairStatus(ctx, view.PairID, domain.PairPartial); err != nil {
		return fmt.Errorf("position: one-sided fill %s: %w", view.PairID, err)
	}

	exposure := float64(filled.PriceCents*filled.Size) / 100
	m.capital.Release(view.PairID, -exposure)
	_ = m.ledger.AppendEvent(ctx, "one_sided_fill", fmt.Sprintf(`{"pair_id":%q,"exposure":%.4f}`, view.PairID, exposure))

	if m.halt.RecordOneSided() {
		_ = m.ledger.AppendEvent(ctx, "trading_halted", fmt.Sprintf(`{"pair_id":%q,"consecutive_one_sided":%d}`, view.PairID, m.halt.ConsecutiveOneSided))
		if _, err := m.executor.CancelAllOpen(ctx); err != nil {
			return fmt.Errorf("position: trading halted cancel-all: %w", err)
		}
	}
	return nil
}

// Recover implements the engine's startup state recovery (spec.md §4.8):
// every OPEN leg is discarded. A pair with one FILLED leg and the other
// still OPEN is recovered through the one-sided-loss accounting path
// instead of a blanket cancel, so that exposure already paid for is not
// silently dropped from the books. Every other pair, including one whose
// two legs are both FILLED, has its OPEN legs cancelled and is marked
// CANCELLED with zero PnL.
func (m *Manager) Recover(ctx context.Context) error {
	views, err := m.ledger.OpenPairViews(ctx)
	if err != nil {
		return fmt.Errorf("position: recover: %w", err)
	}

	for _, view := range views {
		if view.YesLeg == nil || view.NoLeg == nil {
			_ = m.ledger.AppendEvent(ctx, "broken_invariant", fmt.Sprintf(`{"pair_id":%q,"reason":"missing leg on recovery"}`, view.PairID))
			continue
		}

		if filled, ok := view.AnyFilled(); ok {
			open := view.YesLeg
			if filled == view.YesLeg {
				open = view.NoLeg
			}
			if open.Status == domain.LegOpen {
				if err := m.oneSidedFill(ctx, view, filled, open); err != nil {
					return err
				}
				continue
			}
		}

		for _, leg := range view.OpenLegs() {
			if err := m.executor.CancelOrder(ctx, leg.OrderID); err != nil {
				return fmt.Errorf("position: recover cancel %s: %w", leg.OrderID, err)
			}
		}
		if err := m.ledger.UpdatePairStatus(ctx, view.PairID, domain.PairCancelled); err != nil {
			return fmt.Errorf("position: recover pair %s: %w", view.PairID, err)
		}
		_ = m.ledger.AppendEvent(ctx, "pair_recovered", fmt.Sprintf(`{"pair_id":%q}`, view.PairID))
		m.capital.Release(view.PairID, 0)
	}
	return nil
}
