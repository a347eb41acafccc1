// Package bookfetcher implements the Book Fetcher component (spec.md §4.4):
// parallel retrieval of per-contract order books with derived quantities.
package bookfetcher

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// Fetcher retrieves order books in parallel via a bounded worker pool —
// the engine's only standing fan-out, joined before the cycle proceeds.
type Fetcher struct {
	exchange ports.Exchange
	workers  int
}

// New builds a Fetcher with workers concurrent goroutines. A non-positive
// value falls back to runtime.NumCPU()*2.
func New(exchange ports.Exchange, workers int) *Fetcher {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	return &Fetcher{exchange: exchange, workers: workers}
}

// FetchAll fetches one book per contract concurrently. Individual failures
// are logged and dropped; the rest of the batch still returns.
func (f *Fetcher) FetchAll(ctx context.Context, contracts []domain.Contract) []domain.MarketBook {
	workCh := make(chan domain.Contract, len(contracts))
	resultCh := make(chan domain.MarketBook, len(contracts))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				book, err := f.exchange.GetOrderBook(ctx, c.Ticker)
				if err != nil {
					slog.Warn("bookfetcher: fetch failed", "ticker", c.Ticker, "err", err)
					continue
				}
				resultCh <- domain.NewMarketBook(c, book)
			}
		}()
	}

	for _, c := range contracts {
		workCh <- c
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	books := make([]domain.MarketBook, 0, len(contracts))
	for b := range resultCh {
		books = append(books, b)
	}
	return books
}
