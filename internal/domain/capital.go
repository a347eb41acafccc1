package domain

import (
	"fmt"
	"math"
)

// CapitalBook is the process-local account tracking available vs. deployed
// balance (spec.md §4.2). It holds no durable state of its own; on restart
// it is reconstructed from the Ledger's OPEN pairs.
type CapitalBook struct {
	available float64
	deployed  map[string]float64
	startingBalance float64
	realizedTotal   float64
}

// NewCapitalBook starts a book with the given starting balance and no open
// allocations.
func NewCapitalBook(startingBalance float64) *CapitalBook {
	return &CapitalBook{
		available:       startingBalance,
		deployed:        make(map[string]float64),
		startingBalance: startingBalance,
	}
}

// Restore seeds the book for a process that is resuming with pre-existing
// OPEN pairs already holding capital (e.g. after a restart, before recovery
// cancels them).
func Restore(startingBalance float64, openAllocations map[string]float64) *CapitalBook {
	cb := NewCapitalBook(startingBalance)
	var sum float64
	for pairID, amount := range openAllocations {
		cb.deployed[pairID] = amount
		sum += amount
	}
	cb.available = startingBalance - sum
	return cb
}

// CanAllocate reports whether amount dollars are currently available.
func (cb *CapitalBook) CanAllocate(amount float64) bool {
	return amount <= cb.available
}

// Allocate reserves amount dollars against pairID. Returns ErrDuplicate if
// pairID is already allocated.
func (cb *CapitalBook) Allocate(pairID string, amount float64) error {
	if _, exists := cb.deployed[pairID]; exists {
		return fmt.Errorf("capital: allocate %s: %w", pairID, ErrDuplicate)
	}
	cb.available -= amount
	cb.deployed[pairID] = amount
	return nil
}

// Release returns the pair's deployed capital plus pnl (which may be
// negative) to available, and clears the pair's allocation.
func (cb *CapitalBook) Release(pairID string, pnl float64) {
	amount, ok := cb.deployed[pairID]
	if !ok {
		return
	}
	delete(cb.deployed, pairID)
	cb.available += amount + pnl
	cb.realizedTotal += pnl
}

// Summary returns (available, deployed, open pair count) rounded to cents.
func (cb *CapitalBook) Summary() (available, deployed float64, openPairs int) {
	var total float64
	for _, v := range cb.deployed {
		total += v
	}
	return round2(cb.available), round2(total), len(cb.deployed)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
