/*
store.go - Persistence interface for sessions and bookings

PURPOSE:
  Defines the boundary between the engine and the database. Every mutating
  engine operation runs inside TxStore.WithTx as one read-validate-write
  unit spanning the Session row and the Booking row.

OPTIMISTIC CONCURRENCY:
  Session and Booking carry a Version. UpdateX succeeds only if the stored
  version still equals the version the caller read, then increments it.
  A lost race surfaces as ErrConcurrentModification, never as a silent
  overwrite. Stores also report ErrConcurrentModification when a uniqueness
  rule fails at write or commit time:
    - at most one active (pending_payment/confirmed) booking per session
    - a payment reference confirms at most one booking

  No process-wide mutex serializes unrelated bookings; two transactions
  only collide when they touch the same rows.

VALIDATION:
  Implementations call Validate() on every entity they write.

IMPLEMENTATIONS:
  - booking/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite

SEE ALSO:
  - ledger.go: the only caller that writes both aggregates together
*/
package booking

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// GetSession returns a *NotFoundError when the id is unknown.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// GetBooking returns a *NotFoundError when the id is unknown.
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)

	// ActiveBooking returns the pending/confirmed booking holding the
	// session, or nil when the session is free.
	ActiveBooking(ctx context.Context, sessionID SessionID) (*Booking, error)

	// BookingByPaymentRef returns nil when no booking carries the reference.
	BookingByPaymentRef(ctx context.Context, ref string) (*Booking, error)

	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)

	// ScheduledBefore returns Scheduled sessions whose start is before t.
	ScheduledBefore(ctx context.Context, t time.Time) ([]Session, error)

	RescheduleHistory(ctx context.Context, sessionID SessionID) ([]RescheduleRecord, error)

	// InsertSession stores a new session at Version 1.
	InsertSession(ctx context.Context, s *Session) error

	// UpdateSession is a compare-and-swap on s.Version. On success s.Version
	// is incremented to match the stored row.
	UpdateSession(ctx context.Context, s *Session) error

	InsertBooking(ctx context.Context, b *Booking) error
	UpdateBooking(ctx context.Context, b *Booking) error

	AppendReschedule(ctx context.Context, r RescheduleRecord) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed; a commit that loses an
	// optimistic check returns ErrConcurrentModification.
	WithTx(ctx context.Context, fn func(Store) error) error
}
