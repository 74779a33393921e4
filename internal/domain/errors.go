package domain

import "errors"

// Precondition and lifecycle failures surfaced to operators. None of these is
// retried automatically; callers wrap them with period/state detail via
// fmt.Errorf("...: %w", Err...) and dispatch with errors.Is.
var (
	// ErrDuplicatePeriod: an open or submitted request, or a reconciliation
	// batch, already exists for the (tenant, month, year) pair.
	ErrDuplicatePeriod = errors.New("duplicate period")

	// ErrRegulatorCapExceeded: the batch total breached the tenant's regulator
	// cap; nothing was persisted.
	ErrRegulatorCapExceeded = errors.New("regulator cap exceeded")

	// ErrInvalidState: the operation is not legal from the entity's current
	// lifecycle state (resubmission, double journal posting, allocating a
	// non-pending suspense entry).
	ErrInvalidState = errors.New("invalid state")

	// ErrNoSubmittedBatch: reconciliation was attempted with no submitted
	// deduction request for the period.
	ErrNoSubmittedBatch = errors.New("no submitted batch")

	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)
