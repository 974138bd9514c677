package core

import "errors"

// Error taxonomy for ledger operations. Callers classify failures with
// errors.Is; wrapped messages carry the offending field or identifier.
var (
	// ErrInvalidInput marks malformed amounts, dates or category references.
	// The request is the caller's fault and must not be retried as-is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a referenced account, transaction or category that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks requests that contradict existing state: duplicate
	// account names, same-account transfers, double-External transfers.
	ErrConflict = errors.New("conflict")

	// ErrStorage marks an unreachable or rejecting backing store. The whole
	// multi-step operation is aborted; callers may retry with the same
	// transaction id.
	ErrStorage = errors.New("storage failure")
)
