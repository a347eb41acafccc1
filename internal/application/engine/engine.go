// Package engine orchestrates one full cycle of the trading loop: scan,
// fetch, manage, evaluate, place (spec.md §4.8).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dcaraballo/kalshimm/internal/application/bookfetcher"
	"github.com/dcaraballo/kalshimm/internal/application/position"
	"github.com/dcaraballo/kalshimm/internal/application/scanner"
	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// Config carries the engine's cycle-level tunables.
type Config struct {
	ScanInterval   time.Duration
	TradingEnabled bool
	Strategy       domain.StrategyConfig
}

// Engine is the Engine Loop: the only component that holds cross-cycle
// control flow. Everything it touches (Ledger, Capital Book, Position
// Manager) is otherwise single-threaded within one cycle.
type Engine struct {
	scanner  *scanner.Scanner
	fetcher  *bookfetcher.Fetcher
	position *position.Manager
	executor ports.Executor
	capital  *domain.CapitalBook
	ledger   ports.Ledger
	cfg      Config
	newPairID func() string

	tradingEnabled bool
	cycleCount     int
}

// New builds an Engine.
func New(
	scanner *scanner.Scanner,
	fetcher *bookfetcher.Fetcher,
	position *position.Manager,
	executor ports.Executor,
	capital *domain.CapitalBook,
	ledger ports.Ledger,
	cfg Config,
	newPairID func() string,
) *Engine {
	return &Engine{
		scanner:        scanner,
		fetcher:        fetcher,
		position:       position,
		executor:       executor,
		capital:        capital,
		ledger:         ledger,
		cfg:            cfg,
		newPairID:      newPairID,
		tradingEnabled: cfg.TradingEnabled,
	}
}

// RunOnce performs state recovery followed by exactly one cycle, then
// returns. Used by the -once CLI flag and by tests.
func (e *Engine) RunOnce(ctx context.Context) error {
	if err := e.position.Recover(ctx); err != nil {
		return fmt.Errorf("engine: recovery: %w", err)
	}
	return e.runCycleGuarded(ctx)
}

// Run starts the engine: state recovery, then the main cycle loop until
// ctx is cancelled. The sleep between cycles polls the context at most
// every 500ms to bound shutdown latency (spec.md §5).
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting, recovering prior state")
	if err := e.position.Recover(ctx); err != nil {
		return fmt.Errorf("engine: recovery: %w", err)
	}

	for {
		if err := e.runCycleGuarded(ctx); err != nil {
			return err
		}

		if !e.sleep(ctx, e.cfg.ScanInterval) {
			slog.Info("engine: shutdown requested, closing")
			if _, err := e.executor.CancelAllOpen(ctx); err != nil {
				slog.Warn("engine: cancel all open on shutdown failed", "err", err)
			}
			return nil
		}
	}
}

// sleep waits for d or until ctx is done, checking ctx at least every
// 500ms. Returns false if ctx ended the wait.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	const pollInterval = 500 * time.Millisecond

	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// runCycleGuarded runs one cycle; any unhandled error disables further
// trading and cancels open orders before propagating (spec.md §4.8, §7).
func (e *Engine) runCycleGuarded(ctx context.Context) error {
	if err := e.runCycle(ctx); err != nil {
		e.tradingEnabled = false
		slog.Error("engine: cycle failed, disabling trading", "err", err)
		if _, cancelErr := e.executor.CancelAllOpen(ctx); cancelErr != nil {
			slog.Error("engine: cancel all open after failure also failed", "err", cancelErr)
		}
		return err
	}
	return nil
}

func (e *Engine) runCycle(ctx context.Context) error {
	eligible, all, err := e.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("engine: scan: %w", err)
	}

	openPairs, err := e.ledger.OpenPairs(ctx)
	if err != nil {
		return fmt.Errorf("engine: load open pairs: %w", err)
	}
	openTickers := make(map[string]bool, len(openPairs))
	for _, p := range openPairs {
		openTickers[p.Ticker] = true
	}

	nearest := nearestPerAsset(eligible)
	// merged draws open-pair lookups from all, not eligible: a ticker
	// backing an OPEN pair must keep getting a book even after it falls
	// inside the scanner's resolution buffer, or the deadline-cancel path
	// (spec.md §4.7 step 4) can never see an up-to-date SecondsUntilClose.
	merged := mergeContracts(nearest, all, openTickers)

	books := e.fetcher.FetchAll(ctx, merged)
	booksByTicker := make(map[string]domain.MarketBook, len(books))
	for _, b := range books {
		booksByTicker[b.Ticker] = b
	}

	if err := e.position.CheckPairs(ctx, booksByTicker); err != nil {
		return fmt.Errorf("engine: check pairs: %w", err)
	}

	if e.tradingEnabled && e.cfg.TradingEnabled && !e.position.Halted() {
		nearestBooks := make([]domain.MarketBook, 0, len(nearest))
		for _, c := range nearest {
			if b, ok := booksByTicker[c.Ticker]; ok {
				nearestBooks = append(nearestBooks, b)
			}
		}
		e.evaluateAndPlace(ctx, nearestBooks, openTickers)
	}

	e.cycleCount++
	if e.cycleCount == 1 || e.cycleCount%10 == 0 {
		e.logSummary(ctx)
	}
	return nil
}

func (e *Engine) evaluateAndPlace(ctx context.Context, books []domain.MarketBook, openTickers map[string]bool) {
	signals := domain.EvaluateBooks(books, e.cfg.Strategy, e.newPairID)

	for _, signal := range signals {
		if openTickers[signal.Ticker] {
			continue
		}
		cost := float64(signal.YesPrice+signal.NoPrice) * float64(signal.Size) / 100
		if !e.capital.CanAllocate(cost) {
			continue
		}
		if err := e.capital.Allocate(signal.PairID, cost); err != nil {
			slog.Warn("engine: allocate capital failed", "pair_id", signal.PairID, "err", err)
			continue
		}
		if err := e.executor.PlacePair(ctx, signal); err != nil {
			slog.Warn("engine: place pair failed", "pair_id", signal.PairID, "ticker", signal.Ticker, "err", err)
			e.capital.Release(signal.PairID, 0)
			continue
		}
		openTickers[signal.Ticker] = true
	}
}

func (e *Engine) logSummary(ctx context.Context) {
	available, deployed, openPairs := e.capital.Summary()
	summary, err := e.ledger.PnLSummary(ctx)
	if err != nil {
		slog.Warn("engine: pnl summary failed", "err", err)
		return
	}
	slog.Info("engine: cycle summary",
		"cycle", e.cycleCount,
		"available", fmt.Sprintf("$%.2f", available),
		"deployed", fmt.Sprintf("$%.2f", deployed),
		"open_pairs", openPairs,
		"realized_pnl", fmt.Sprintf("$%.2f", summary.TotalPnL),
		"filled_count", summary.Count,
		"halted", e.position.Halted(),
	)
}

// nearestPerAsset picks at most one contract per asset: the one with the
// smallest SecondsUntilClose.
func nearestPerAsset(contracts []domain.Contract) []domain.Contract {
	sorted := make([]domain.Contract, len(contracts))
	copy(sorted, contracts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SecondsUntilClose < sorted[j].SecondsUntilClose
	})

	seen := make(map[string]bool)
	out := make([]domain.Contract, 0, len(sorted))
	for _, c := range sorted {
		if seen[c.Asset] {
			continue
		}
		seen[c.Asset] = true
		out = append(out, c)
	}
	return out
}

// mergeContracts unions the nearest-per-asset set with every contract
// currently backing an OPEN pair, even if that contract fell out of the
// nearest set this cycle.
func mergeContracts(nearest, all []domain.Contract, openTickers map[string]bool) []domain.Contract {
	byTicker := make(map[string]domain.Contract, len(all))
	for _, c := range all {
		byTicker[c.Ticker] = c
	}

	seen := make(map[string]bool, len(nearest))
	merged := make([]domain.Contract, 0, len(nearest))
	for _, c := range nearest {
		seen[c.Ticker] = true
		merged = append(merged, c)
	}
	for ticker := range openTickers {
		if seen[ticker] {
			continue
		}
		if c, ok := byTicker[ticker]; ok {
			seen[ticker] = true
			merged = append(merged, c)
		}
	}
	return merged
}
