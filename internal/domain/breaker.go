package domain

// HaltState tracks the Position Manager's consecutive one-sided-fill count
// and the halt flag (spec.md §4.7). Once Halted is set, the manager must
// stop acting; only a process restart clears it.
type HaltState struct {
	ConsecutiveOneSided int
	Halted              bool
	MaxOneSidedBeforeHalt int
}

// NewHaltState builds a fresh, non-halted state with the given threshold.
func NewHaltState(maxOneSidedBeforeHalt int) *HaltState {
	return &HaltState{MaxOneSidedBeforeHalt: maxOneSidedBeforeHalt}
}

// RecordOneSided increments the streak and halts if it reaches the
// configured threshold. Returns true if this call triggered the halt.
func (h *HaltState) RecordOneSided() (triggered bool) {
	h.ConsecutiveOneSided++
	if h.ConsecutiveOneSided >= h.MaxOneSidedBeforeHalt {
		h.Halted = true
		return true
	}
	return false
}

// RecordComplete resets the streak after a clean both-legs-filled pair.
func (h *HaltState) RecordComplete() {
	h.ConsecutiveOneSided = 0
}
