package ports

import (
	"context"

	"github.com/dcaraballo/kalshimm/internal/domain"
)

// Executor places and cancels paired quotes (spec.md §4.6). In paper mode
// it only touches the Ledger; in live mode it also talks to the Exchange.
type Executor interface {
	PlacePair(ctx context.Context, signal domain.PairSignal) error
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOpen(ctx context.Context) (count int, err error)
}
