package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionPair(t *testing.T) {
	assert.True(t, CanTransitionPair(PairOpen, PairFilled))
	assert.True(t, CanTransitionPair(PairOpen, PairPartial))
	assert.True(t, CanTransitionPair(PairOpen, PairCancelled))
	assert.True(t, CanTransitionPair(PairOpen, PairOpen))

	assert.False(t, CanTransitionPair(PairFilled, PairOpen))
	assert.False(t, CanTransitionPair(PairCancelled, PairFilled))
}

func TestIsTerminalPair(t *testing.T) {
	assert.False(t, IsTerminalPair(PairOpen))
	assert.True(t, IsTerminalPair(PairFilled))
	assert.True(t, IsTerminalPair(PairPartial))
	assert.True(t, IsTerminalPair(PairCancelled))
}

func TestCanTransitionLeg(t *testing.T) {
	assert.True(t, CanTransitionLeg(LegOpen, LegFilled))
	assert.True(t, CanTransitionLeg(LegOpen, LegCancelled))
	assert.False(t, CanTransitionLeg(LegFilled, LegCancelled))
}
