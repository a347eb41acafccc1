package domain

import "errors"

// These sentinel errors are the error taxonomy from spec.md §7. They are
// meant to be wrapped with fmt.Errorf("...: %w", ErrX) and matched with
// errors.Is.
var (
	// ErrTransientIO is a network/transient exchange error. Cancels make up
	// to three attempts; placements are not retried.
	ErrTransientIO = errors.New("transient io error")

	// ErrAuthRequired means credentials were rejected or expired (the
	// exchange answered 401 to list markets). Nothing handles it apart from
	// other errors: a scan that fails with it fails the engine cycle.
	ErrAuthRequired = errors.New("auth required")

	// ErrDuplicate marks an attempt to re-insert a pair or order whose ID
	// already exists; callers should treat this as success.
	ErrDuplicate = errors.New("duplicate")

	// ErrBrokenInvariant marks a pair without two legs, or an order not
	// found when expected; the cycle skips the pair and logs an event.
	ErrBrokenInvariant = errors.New("broken invariant")

	// ErrFatal marks an unrecoverable condition: ledger unavailable,
	// configuration malformed. The engine cancels open orders and exits.
	ErrFatal = errors.New("fatal error")
)
