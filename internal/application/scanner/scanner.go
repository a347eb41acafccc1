// Package scanner implements the Market Scanner component (spec.md §4.3):
// discover currently-open contracts for the configured asset set.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// Config carries the scanner's tunables.
type Config struct {
	Assets                  []string
	ResolutionBufferSeconds int64
	SeriesTicker            string
	Limit                   int
}

// Scanner discovers eligible contracts and keeps an in-memory last-seen
// cache of them, queried through IsNew. Scan itself logs nothing.
type Scanner struct {
	exchange ports.Exchange
	cfg      Config

	mu   sync.Mutex
	seen map[string]time.Time
}

// New builds a Scanner against exchange with the given config.
func New(exchange ports.Exchange, cfg Config) *Scanner {
	return &Scanner{exchange: exchange, cfg: cfg, seen: make(map[string]time.Time)}
}

// Scan queries the exchange once and returns two views of the result:
//
//   - eligible: contracts that match a configured asset prefix, have a
//     parseable close time, and have more than ResolutionBufferSeconds
//     left until close. These are candidates for brand-new pairs.
//   - all: every asset-matched contract regardless of the resolution
//     buffer, including ones inside it. The engine unions this with its
//     open-pair tickers (spec.md §4.8 step 2) so a pair already open on
//     a contract can still get a fresh book as that contract approaches
//     resolution, even though Scan would no longer offer it as a new
//     candidate.
func (s *Scanner) Scan(ctx context.Context) (eligible, all []domain.Contract, err error) {
	contracts, err := s.exchange.ListMarkets(ctx, s.cfg.SeriesTicker, "open", s.cfg.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: list markets: %w", err)
	}

	now := time.Now()
	all = make([]domain.Contract, 0, len(contracts))
	eligible = make([]domain.Contract, 0, len(contracts))
	for _, c := range contracts {
		if !s.matchesAsset(c.Ticker) {
			continue
		}
		c.Asset = s.assetOf(c.Ticker)
		c.SecondsUntilClose = int64(c.CloseTime.Sub(now).Seconds())
		all = append(all, c)
		if c.SecondsUntilClose > s.cfg.ResolutionBufferSeconds {
			eligible = append(eligible, c)
		}
	}

	s.markSeen(eligible, now)
	return eligible, all, nil
}

func (s *Scanner) matchesAsset(ticker string) bool {
	return s.assetOf(ticker) != ""
}

func (s *Scanner) assetOf(ticker string) string {
	for _, asset := range s.cfg.Assets {
		if strings.HasPrefix(ticker, asset) {
			return asset
		}
	}
	return ""
}

// markSeen records contracts observed this cycle and purges entries whose
// close time has passed. The cache exists only to suppress log spam and
// may be rebuilt from scratch at any time.
func (s *Scanner) markSeen(contracts []domain.Contract, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ticker, closeTime := range s.seen {
		if closeTime.Before(now) {
			delete(s.seen, ticker)
		}
	}
	for _, c := range contracts {
		if _, known := s.seen[c.Ticker]; !known {
			s.seen[c.Ticker] = c.CloseTime
		}
	}
}

// IsNew reports whether ticker is absent from the last-seen cache, that is,
// no Scan so far (the most recent one included) has recorded it as eligible.
func (s *Scanner) IsNew(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, known := s.seen[ticker]
	return !known
}
