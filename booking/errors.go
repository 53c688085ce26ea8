/*
errors.go - Error taxonomy for the booking engine

PURPOSE:
  Every failure a caller can act on is a typed error. Nothing is swallowed;
  nothing is reported as a bare string.

ERROR CATEGORIES:
  1. ValidationError      - malformed input (past dates, negative amounts)
  2. ConflictError        - a state-machine guard said no
  3. NotFoundError        - unknown session or booking id
  4. PaymentMismatchError - captured amount differs from the expected amount

  ErrConcurrentModification is the store-level signal that an optimistic
  compare-and-swap lost. The Ledger retries once and then reports the guard
  error it finds on the fresh state.

USAGE:
  var conflict *booking.ConflictError
  if errors.As(err, &conflict) && conflict.Reason == booking.ReasonSessionAlreadyBooked {
      ...
  }
  if errors.Is(err, booking.ErrNotFound) { ... }
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("state conflict")
	ErrNotFound        = errors.New("not found")
	ErrPaymentMismatch = errors.New("payment amount mismatch")

	// ErrConcurrentModification is returned by stores when a version check
	// or uniqueness constraint fails at write time.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictReason names the guard that rejected the operation.
type ConflictReason string

const (
	ReasonSessionAlreadyBooked   ConflictReason = "SessionAlreadyBooked"
	ReasonAlreadyFinalized       ConflictReason = "AlreadyFinalized"
	ReasonRescheduleLimitReached ConflictReason = "RescheduleLimitReached"
	ReasonNotReschedulable       ConflictReason = "NotReschedulable"
	ReasonIllegalTransition      ConflictReason = "IllegalTransition"
	ReasonPaymentRefInUse        ConflictReason = "PaymentRefInUse"
	ReasonAlreadyConfirmed       ConflictReason = "AlreadyConfirmed"
	ReasonActiveBookingExists    ConflictReason = "ActiveBookingExists"
	ReasonBookingNotConfirmed    ConflictReason = "BookingNotConfirmed"
	ReasonConcurrentModification ConflictReason = "ConcurrentModification"
)

type ConflictError struct {
	Reason  ConflictReason
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict: %s: %s", e.Reason, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func conflict(reason ConflictReason, format string, args ...any) *ConflictError {
	return &ConflictError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string // "session" or "booking"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func SessionNotFound(id SessionID) *NotFoundError {
	return &NotFoundError{Kind: "session", ID: string(id)}
}

func BookingNotFound(id BookingID) *NotFoundError {
	return &NotFoundError{Kind: "booking", ID: string(id)}
}

type PaymentMismatchError struct {
	BookingID BookingID
	Expected  int64
	Captured  int64
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment mismatch for booking %s: expected %d, captured %d",
		e.BookingID, e.Expected, e.Captured)
}

func (e *PaymentMismatchError) Unwrap() error { return ErrPaymentMismatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// ConflictReasonOf returns the guard name carried by err, if any.
func ConflictReasonOf(err error) (ConflictReason, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return "", false
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's input or
// the current state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPaymentMismatch)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
