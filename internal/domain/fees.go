package domain

import "math"

const (
	makerFeeRate = 0.0175
	takerFeeRate = 0.07
)

// MakerFeeCents calcula la comisión maker en dólares para `size` contratos a
// precio `priceCents`, redondeada hacia arriba al centavo.
func MakerFeeCents(priceCents, size int) float64 {
	return feeCents(priceCents, size, makerFeeRate)
}

// TakerFeeCents is the taker-side analogue of MakerFeeCents; unused by pair
// fills under post-only construction but kept for completeness of the fee
// model (spec.md §4.5).
func TakerFeeCents(priceCents, size int) float64 {
	return feeCents(priceCents, size, takerFeeRate)
}

func feeCents(priceCents, size int, rate float64) float64 {
	p := float64(priceCents) / 100
	raw := rate * float64(size) * p * (1 - p) * 100
	return math.Ceil(raw) / 100
}
