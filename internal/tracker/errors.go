package tracker

import "errors"

var (
	// ErrStoreUnavailable aborts the current cycle: no remote action may run
	// without a working dedup ledger.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransient is a read failure before any write; the post stays
	// unrecorded and is retried next cycle.
	ErrTransient = errors.New("transient remote failure")

	// ErrAlreadyProcessed means the post already has a record.
	ErrAlreadyProcessed = errors.New("post already processed")
)
