// Package fault defines the error taxonomy shared by the stores, the
// services and the HTTP layer. Handlers translate these sentinels into
// status codes with errors.Is; the saga coordinator uses them to decide
// between retry, compensation and plain failure.
package fault

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks malformed input. No side effects were produced.
var ErrInvalidRequest = errors.New("invalid request")

// ErrSeatUnavailable marks a reservation conflict: at least one requested
// seat is not AVAILABLE. No seat was mutated. The caller may retry with a
// different seat set.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrPaymentDeclined is a business outcome, not a system error. It triggers
// compensation of the reservation.
var ErrPaymentDeclined = errors.New("payment declined")

// ErrDependencyUnavailable marks a transport-level failure (timeout,
// connection refused) talking to a collaborator. Safe steps retry it.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// ErrInvalidState marks an operation rejected by the current lifecycle
// state, e.g. canceling a non-PENDING order or refunding a FAILED payment.
var ErrInvalidState = errors.New("invalid state")

// ErrNotFound marks a missing row.
var ErrNotFound = errors.New("not found")

// ErrMissingIdempotencyKey is returned by the payment ledger when a charge
// arrives without a reference.
var ErrMissingIdempotencyKey = errors.New("missing idempotency key")

// ErrKeyConflict marks an idempotency key that replays a payment belonging
// to a different order.
var ErrKeyConflict = errors.New("idempotency key already used by another order")

// ErrInconsistent marks a failed compensation: the saga could not undo a
// completed step. The saga is parked for reconciliation, never swallowed.
var ErrInconsistent = errors.New("inconsistent state, reconciliation required")

// SeatConflictError carries the ids that blocked a reservation.
type SeatConflictError struct {
	SeatIDs []int64
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats not available: %v", e.SeatIDs)
}

// Unwrap lets errors.Is(err, ErrSeatUnavailable) match.
func (e *SeatConflictError) Unwrap() error {
	return ErrSeatUnavailable
}

// Retryable reports whether an error is transport-class. Business outcomes
// are never retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}
