package domain

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqPairID() func() string {
	n := 0
	return func() string {
		n++
		return "pair-" + strconv.Itoa(n)
	}
}

func baseBook() MarketBook {
	return MarketBook{
		Contract: Contract{
			Ticker:            "KX-BTC-24JUL30-T100",
			Asset:             "BTC",
			SecondsUntilClose: 3600,
		},
		BestYesBid:   48,
		BestYesAsk:   52,
		BestNoBid:    49,
		BestNoAsk:    51,
		YesBidSize:   20,
		NoBidSize:    20,
		CombinedBid:  97,
		SpreadProfit: 3,
		MinBidSize:   20,
	}
}

func defaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MinSpreadThreshold:   1.0,
		OrderSizeDefault:     10,
		MaxExposurePerMarket: 100,
	}
}

func TestEvaluateBooks_AcceptsHealthyBook(t *testing.T) {
	signals := EvaluateBooks([]MarketBook{baseBook()}, defaultStrategyConfig(), seqPairID())
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "pair-1", sig.PairID)
	assert.Equal(t, 48, sig.YesPrice)
	assert.Equal(t, 49, sig.NoPrice)
	assert.Equal(t, 10, sig.Size)
	assert.Greater(t, sig.ExpectedProfit, 0.0)
}

func TestEvaluateBooks_RejectsEmptyBidSide(t *testing.T) {
	b := baseBook()
	b.BestYesBid = 0
	signals := EvaluateBooks([]MarketBook{b}, defaultStrategyConfig(), seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_RejectsTooCloseToResolution(t *testing.T) {
	b := baseBook()
	b.SecondsUntilClose = 599
	signals := EvaluateBooks([]MarketBook{b}, defaultStrategyConfig(), seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_RejectsLopsidedBid(t *testing.T) {
	b := baseBook()
	b.BestYesBid = 9
	signals := EvaluateBooks([]MarketBook{b}, defaultStrategyConfig(), seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_RejectsLowCombinedBid(t *testing.T) {
	b := baseBook()
	b.BestYesBid = 40
	b.BestNoBid = 40
	b.CombinedBid = 80
	b.SpreadProfit = 20
	signals := EvaluateBooks([]MarketBook{b}, defaultStrategyConfig(), seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_RejectsEmptySize(t *testing.T) {
	b := baseBook()
	b.MinBidSize = 0
	signals := EvaluateBooks([]MarketBook{b}, defaultStrategyConfig(), seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_RejectsBelowMinSpreadThreshold(t *testing.T) {
	b := baseBook()
	b.BestYesBid = 47
	b.BestNoBid = 48
	b.CombinedBid = 95
	b.SpreadProfit = 5
	cfg := defaultStrategyConfig()
	cfg.MinSpreadThreshold = 1000
	signals := EvaluateBooks([]MarketBook{b}, cfg, seqPairID())
	assert.Empty(t, signals)
}

func TestEvaluateBooks_SizeClampedByBookDepth(t *testing.T) {
	b := baseBook()
	b.MinBidSize = 3
	cfg := defaultStrategyConfig()
	cfg.OrderSizeDefault = 50
	cfg.MaxExposurePerMarket = 1000
	signals := EvaluateBooks([]MarketBook{b}, cfg, seqPairID())
	require.Len(t, signals, 1)
	assert.Equal(t, 3, signals[0].Size, "book depth should clamp size below the configured default")
}

func TestEvaluateBooks_SizeClampedByExposureBudget(t *testing.T) {
	b := baseBook()
	cfg := defaultStrategyConfig()
	cfg.OrderSizeDefault = 50
	cfg.MaxExposurePerMarket = 1.0 // $1 budget at CombinedBid=97c -> floor(100/97)=1
	signals := EvaluateBooks([]MarketBook{b}, cfg, seqPairID())
	require.Len(t, signals, 1)
	assert.Equal(t, 1, signals[0].Size)
}

// TestEvaluateBooks_MonotoneInCombinedBid is the monotonicity law from
// spec.md §8: holding size fixed, increasing combined_bid never increases
// expected_profit.
func TestEvaluateBooks_MonotoneInCombinedBid(t *testing.T) {
	cfg := defaultStrategyConfig()
	cfg.MaxExposurePerMarket = 1000
	cfg.OrderSizeDefault = 10

	last := math.Inf(1)
	for _, combined := range []int{85, 90, 95, 97} {
		b := baseBook()
		b.BestYesBid = combined / 2
		b.BestNoBid = combined - b.BestYesBid
		b.CombinedBid = combined
		b.SpreadProfit = 100 - combined
		b.MinBidSize = 100 // don't let book depth clamp size

		signals := EvaluateBooks([]MarketBook{b}, cfg, seqPairID())
		require.Len(t, signals, 1)
		assert.LessOrEqual(t, signals[0].ExpectedProfit, last)
		last = signals[0].ExpectedProfit
	}
}
