package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBook_AskDerivedFromOppositeBid is the book-derivation law from
// spec.md §8: best_yes_ask == 100 - best_no_bid when no direct ask quote
// exists, and symmetrically for best_no_ask.
func TestBook_AskDerivedFromOppositeBid(t *testing.T) {
	b := Book{
		YesBids: []Level{{PriceCents: 48, Size: 20}},
		NoBids:  []Level{{PriceCents: 49, Size: 15}},
	}

	yesAsk, yesAskSize := b.BestYesAsk()
	assert.Equal(t, 100-49, yesAsk)
	assert.Equal(t, 15, yesAskSize)

	noAsk, noAskSize := b.BestNoAsk()
	assert.Equal(t, 100-48, noAsk)
	assert.Equal(t, 20, noAskSize)
}

func TestBook_DirectAskPreferredOverDerived(t *testing.T) {
	b := Book{
		YesAsks: []Level{{PriceCents: 55, Size: 5}},
		NoBids:  []Level{{PriceCents: 49, Size: 15}},
	}
	price, size := b.BestYesAsk()
	assert.Equal(t, 55, price)
	assert.Equal(t, 5, size)
}

func TestBook_EmptySideDefaultsAskToHundred(t *testing.T) {
	var b Book
	price, size := b.BestYesAsk()
	assert.Equal(t, 100, price)
	assert.Equal(t, 0, size)
}

func TestNewMarketBook_DerivesCombinedQuantities(t *testing.T) {
	c := Contract{Ticker: "T", Asset: "BTC"}
	book := Book{
		YesBids: []Level{{PriceCents: 48, Size: 20}},
		NoBids:  []Level{{PriceCents: 49, Size: 10}},
	}
	mb := NewMarketBook(c, book)

	assert.Equal(t, 48, mb.BestYesBid)
	assert.Equal(t, 49, mb.BestNoBid)
	assert.Equal(t, 97, mb.CombinedBid)
	assert.Equal(t, 3, mb.SpreadProfit)
	assert.Equal(t, 10, mb.MinBidSize, "min bid size is the smaller of the two sides")
}

func TestPairView_BothFilled(t *testing.T) {
	v := PairView{
		YesLeg: &Leg{Status: LegFilled},
		NoLeg:  &Leg{Status: LegFilled},
	}
	assert.True(t, v.BothFilled())

	v.NoLeg.Status = LegOpen
	assert.False(t, v.BothFilled())
}

func TestPairView_OneFilledOneOpen(t *testing.T) {
	v := PairView{
		YesLeg: &Leg{Side: SideYes, Status: LegFilled},
		NoLeg:  &Leg{Side: SideNo, Status: LegOpen},
	}
	filled, open, ok := v.OneFilledOneOpen()
	require.True(t, ok)
	assert.Equal(t, SideYes, filled.Side)
	assert.Equal(t, SideNo, open.Side)

	v.NoLeg.Status = LegFilled
	_, _, ok = v.OneFilledOneOpen()
	assert.False(t, ok, "both filled is not one-filled-one-open")
}

func TestPairView_OpenLegs(t *testing.T) {
	v := PairView{
		YesLeg: &Leg{Side: SideYes, Status: LegOpen},
		NoLeg:  &Leg{Side: SideNo, Status: LegFilled},
	}
	open := v.OpenLegs()
	require.Len(t, open, 1)
	assert.Equal(t, SideYes, open[0].Side)
}
