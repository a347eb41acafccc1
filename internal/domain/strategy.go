package domain

import "math"

// StrategyConfig carries the tunables the pure Evaluate function reads.
// Threaded through from config.Config, never read from a package global
// (spec.md §9 "global configuration").
type StrategyConfig struct {
	MinSpreadThreshold   float64
	OrderSizeDefault     int
	MaxExposurePerMarket float64
}

const (
	minSecondsUntilClose = 600
	minLopsidedBid       = 10
	minCombinedBid       = 85
)

// EvaluateBooks is the Strategy component: a pure function from a set of
// fetched books to a set of pair signals. newPairID is called once per
// surviving book to mint a fresh identity; inject a deterministic generator
// in tests.
func EvaluateBooks(books []MarketBook, cfg StrategyConfig, newPairID func() string) []PairSignal {
	signals := make([]PairSignal, 0, len(books))
	for _, b := range books {
		sig, ok := evaluateOne(b, cfg, newPairID)
		if ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func evaluateOne(b MarketBook, cfg StrategyConfig, newPairID func() string) (PairSignal, bool) {
	if b.BestYesBid <= 0 || b.BestNoBid <= 0 {
		return PairSignal{}, false
	}
	if b.SecondsUntilClose < minSecondsUntilClose {
		return PairSignal{}, false
	}
	if b.BestYesBid < minLopsidedBid || b.BestNoBid < minLopsidedBid {
		return PairSignal{}, false
	}
	if b.CombinedBid < minCombinedBid {
		return PairSignal{}, false
	}
	if b.MinBidSize <= 0 {
		return PairSignal{}, false
	}

	netProfitPerContract := float64(b.SpreadProfit) - MakerFeeCents(b.BestYesBid, 1) - MakerFeeCents(b.BestNoBid, 1)
	if netProfitPerContract < cfg.MinSpreadThreshold {
		return PairSignal{}, false
	}

	size := cfg.OrderSizeDefault
	if byExposure := int(math.Floor(cfg.MaxExposurePerMarket * 100 / float64(b.CombinedBid))); byExposure < size {
		size = byExposure
	}
	if b.MinBidSize < size {
		size = b.MinBidSize
	}
	if size <= 0 {
		return PairSignal{}, false
	}

	return PairSignal{
		PairID:         newPairID(),
		Ticker:         b.Ticker,
		Asset:          b.Asset,
		MarketQuestion: b.Title,
		YesPrice:       b.BestYesBid,
		NoPrice:        b.BestNoBid,
		Size:           size,
		ExpectedProfit: netProfitPerContract * float64(size),
	}, true
}
