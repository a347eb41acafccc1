package domain

// validPairTransitions enumerates the legal Pair status transitions
// (spec.md §3). OPEN is the only non-terminal state.
var validPairTransitions = map[PairStatus][]PairStatus{
	PairOpen: {PairFilled, PairPartial, PairCancelled},
}

// CanTransitionPair reports whether moving a pair from `from` to `to` is a
// legal lifecycle transition.
func CanTransitionPair(from, to PairStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range validPairTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalPair reports whether status is a terminal Pair state.
func IsTerminalPair(status PairStatus) bool {
	return status == PairFilled || status == PairPartial || status == PairCancelled
}

var validLegTransitions = map[LegStatus][]LegStatus{
	LegOpen: {LegFilled, LegCancelled},
}

// CanTransitionLeg reports whether moving a leg from `from` to `to` is legal.
func CanTransitionLeg(from, to LegStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range validLegTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
