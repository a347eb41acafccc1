// Package domain holds the pure data model and pure calculations for the
// pair market maker: contracts, books, pairs, legs, and the ledger records
// derived from them. Nothing in this package performs I/O.
package domain

import "time"

// Side identifica la pata de un par: YES o NO.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// PairStatus is the lifecycle state of a Pair (spec.md §3).
type PairStatus string

const (
	PairOpen      PairStatus = "OPEN"
	PairFilled    PairStatus = "FILLED"
	PairPartial   PairStatus = "PARTIAL"
	PairCancelled PairStatus = "CANCELLED"
)

// LegStatus is the lifecycle state of a single leg order.
type LegStatus string

const (
	LegOpen      LegStatus = "OPEN"
	LegFilled    LegStatus = "FILLED"
	LegCancelled LegStatus = "CANCELLED"
)

// Level is one price level of an order book side.
type Level struct {
	PriceCents int
	Size       int
}

// Book holds the four raw sides of a contract's order book as returned by
// the exchange. Ask sides are frequently derived from the opposing bid side
// via the 100-p identity rather than fetched directly.
type Book struct {
	YesBids []Level
	YesAsks []Level
	NoBids  []Level
	NoAsks  []Level
}

// BestYesBid returns the top YES bid level, or (0, 0) if the side is empty.
func (b Book) BestYesBid() (price, size int) {
	return best(b.YesBids)
}

// BestYesAsk returns the top YES ask, defaulting price to 100 when absent.
func (b Book) BestYesAsk() (price, size int) {
	if p, s := best(b.YesAsks); s > 0 {
		return p, s
	}
	if p, s := best(b.NoBids); s > 0 {
		return 100 - p, s
	}
	return 100, 0
}

// BestNoBid returns the top NO bid level, or (0, 0) if the side is empty.
func (b Book) BestNoBid() (price, size int) {
	return best(b.NoBids)
}

// BestNoAsk returns the top NO ask, defaulting price to 100 when absent.
func (b Book) BestNoAsk() (price, size int) {
	if p, s := best(b.NoAsks); s > 0 {
		return p, s
	}
	if p, s := best(b.YesBids); s > 0 {
		return 100 - p, s
	}
	return 100, 0
}

func best(levels []Level) (price, size int) {
	if len(levels) == 0 {
		return 0, 0
	}
	return levels[0].PriceCents, levels[0].Size
}

// Contract is an external, immutable-per-observation entity: a tradeable
// event market identified by its ticker.
type Contract struct {
	Ticker            string
	Asset             string
	Title             string
	CloseTime         time.Time
	SecondsUntilClose int64
}

// MarketBook bundles a Contract with its fetched book and the derived
// quantities the Book Fetcher computes (spec.md §4.4).
type MarketBook struct {
	Contract

	Book Book

	BestYesBid int
	BestYesAsk int
	BestNoBid  int
	BestNoAsk  int

	YesBidSize int
	NoBidSize  int

	CombinedBid   int
	SpreadProfit  int
	MinBidSize    int
}

// NewMarketBook derives the best-of-book quantities from a raw Book.
func NewMarketBook(c Contract, book Book) MarketBook {
	yesBidPrice, yesBidSize := book.BestYesBid()
	yesAskPrice, _ := book.BestYesAsk()
	noBidPrice, noBidSize := book.BestNoBid()
	noAskPrice, _ := book.BestNoAsk()

	combined := yesBidPrice + noBidPrice
	minSize := yesBidSize
	if noBidSize < minSize {
		minSize = noBidSize
	}

	return MarketBook{
		Contract:     c,
		Book:         book,
		BestYesBid:   yesBidPrice,
		BestYesAsk:   yesAskPrice,
		BestNoBid:    noBidPrice,
		BestNoAsk:    noAskPrice,
		YesBidSize:   yesBidSize,
		NoBidSize:    noBidSize,
		CombinedBid:  combined,
		SpreadProfit: 100 - combined,
		MinBidSize:   minSize,
	}
}

// Pair is a unit of trading intent: two opposing-side legs on one contract
// intended to fill jointly and lock in the spread.
type Pair struct {
	PairID         string
	Ticker         string
	Asset          string
	TargetSpread   int
	CreatedAt      time.Time
	Status         PairStatus
	MarketQuestion string
}

// Leg is a single post-only limit order belonging to a Pair.
type Leg struct {
	OrderID          string
	ExchangeOrderID  string
	PairID           string
	Ticker           string
	Side             Side
	PriceCents       int
	Size             int
	Status           LegStatus
	FilledSize       int
}

// PairView reconstitutes a Pair with its legs inline, even though the
// Ledger stores everything as flat rows. It holds at most one YES and one
// NO leg; a missing leg is a nil pointer, and leg sizes are not checked.
type PairView struct {
	Pair
	YesLeg *Leg
	NoLeg  *Leg
}

// BothFilled reports whether both legs are FILLED.
func (v PairView) BothFilled() bool {
	return v.YesLeg != nil && v.NoLeg != nil &&
		v.YesLeg.Status == LegFilled && v.NoLeg.Status == LegFilled
}

// OneFilledOneOpen reports whether exactly one leg is FILLED and the other
// is still OPEN.
func (v PairView) OneFilledOneOpen() (filled, open *Leg, ok bool) {
	if v.YesLeg == nil || v.NoLeg == nil {
		return nil, nil, false
	}
	if v.YesLeg.Status == LegFilled && v.NoLeg.Status == LegOpen {
		return v.YesLeg, v.NoLeg, true
	}
	if v.NoLeg.Status == LegFilled && v.YesLeg.Status == LegOpen {
		return v.NoLeg, v.YesLeg, true
	}
	return nil, nil, false
}

// OpenLegs returns the legs of the pair that are still OPEN.
func (v PairView) OpenLegs() []*Leg {
	var open []*Leg
	if v.YesLeg != nil && v.YesLeg.Status == LegOpen {
		open = append(open, v.YesLeg)
	}
	if v.NoLeg != nil && v.NoLeg.Status == LegOpen {
		open = append(open, v.NoLeg)
	}
	return open
}

// AnyFilled reports whether at least one leg has already filled.
func (v PairView) AnyFilled() (*Leg, bool) {
	if v.YesLeg != nil && v.YesLeg.Status == LegFilled {
		return v.YesLeg, true
	}
	if v.NoLeg != nil && v.NoLeg.Status == LegFilled {
		return v.NoLeg, true
	}
	return nil, false
}

// PnLRecord is an append-only realized-profit entry for a completed pair.
type PnLRecord struct {
	PairID        string
	Ticker        string
	YesFillPrice  int
	NoFillPrice   int
	Size          int
	CombinedCost  float64
	GrossProfit   float64
	Fees          float64
	RealizedPnL   float64
	Timestamp     time.Time
}

// EventRecord is an append-only audit entry.
type EventRecord struct {
	EventType   string
	DetailsJSON string
	Timestamp   time.Time
}

// PairSignal is the Strategy's output: a candidate pair ready for the
// Executor to place.
type PairSignal struct {
	PairID         string
	Ticker         string
	Asset          string
	MarketQuestion string
	YesPrice       int
	NoPrice        int
	Size           int
	ExpectedProfit float64
}
