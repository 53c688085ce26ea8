/*
Package booking provides the session booking lifecycle and refund policy engine.

PURPOSE:
  A Provider publishes bookable Sessions; a Consumer reserves one, pays for it,
  and may cancel it. This package owns the two aggregates (Session, Booking),
  the pure policy functions that guard their transitions, and the Ledger that
  mutates both aggregates together inside one transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - SessionStatus / BookingStatus: the one canonical spelling of each state
  - Session: a bookable time block owned by a provider
  - Booking: one consumer's reservation of one session
  - Payment / Cancellation: sub-records that only exist in the states that need them

DESIGN PRINCIPLES:
  1. Money is int64 minor units. No floats anywhere near an amount.
  2. Nullable columns become pointer sub-records, so "confirmed without a
     payment timestamp" cannot be constructed without failing Validate().
  3. Every write goes through Validate() at the store boundary.
  4. Version fields back the optimistic compare-and-swap in every store.

USAGE:
  session, _ := catalog.CreateOpenSlot(ctx, booking.SessionInput{...})
  b, _ := ledger.CreateBooking(ctx, booking.CreateBookingRequest{SessionID: session.ID, ...})
  b, _ = ledger.ConfirmPayment(ctx, b.ID, "pay_1", b.AmountMinorUnits, now)

SEE ALSO:
  - errors.go: error taxonomy
  - refund.go: refund tiers
  - ledger.go: the orchestrator
*/
package booking

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SessionID string
type BookingID string

// =============================================================================
// ACTOR - Who triggered a transition
// =============================================================================

type Actor string

const (
	ActorProvider Actor = "provider"
	ActorConsumer Actor = "consumer"
	ActorSystem   Actor = "system"
)

// ParseActor accepts any casing.
func ParseActor(s string) (Actor, error) {
	switch a := Actor(normalizeEnum(s)); a {
	case ActorProvider, ActorConsumer, ActorSystem:
		return a, nil
	}
	return "", &ValidationError{Field: "actor", Message: fmt.Sprintf("unknown actor %q", s)}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

type SessionStatus string

const (
	SessionOpen       SessionStatus = "open"
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// ParseSessionStatus collapses "Scheduled", "scheduled", "IN-PROGRESS" and
// friends into the canonical value.
func ParseSessionStatus(s string) (SessionStatus, error) {
	st := SessionStatus(normalizeEnum(s))
	if st == "inprogress" {
		st = SessionInProgress
	}
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown session status %q", s)}
	}
	return st, nil
}

// =============================================================================
// BOOKING STATUS
// =============================================================================

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingRefunded       BookingStatus = "refunded"
	BookingCompleted      BookingStatus = "completed"
)

// IsActive reports whether the booking still holds its session.
func (s BookingStatus) IsActive() bool {
	return s == BookingPendingPayment || s == BookingConfirmed
}

func (s BookingStatus) IsFinal() bool { return !s.IsActive() }

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPendingPayment, BookingConfirmed, BookingCancelled, BookingRefunded, BookingCompleted:
		return true
	}
	return false
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(normalizeEnum(s))
	if st == "pendingpayment" || st == "pending" {
		st = BookingPendingPayment
	}
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown booking status %q", s)}
	}
	return st, nil
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// =============================================================================
// SESSION
// =============================================================================

// SessionOrigin records how the provider published the session. It decides
// whether a consumer cancellation hands the slot back to the catalog.
type SessionOrigin string

const (
	OriginOpenSlot  SessionOrigin = "open_slot"
	OriginFixedTime SessionOrigin = "fixed_time"
)

type Session struct {
	ID              SessionID
	ProviderID      string
	Title           string
	Subject         string
	Origin          SessionOrigin
	ScheduledAt     *time.Time // nil = open slot, any time
	DurationMinutes int
	PriceMinorUnits int64
	Currency        string
	Status          SessionStatus
	Timezone        string
	MeetingURL      *string
	RecordingURL    *string
	RescheduleCount int
	MaxReschedules  int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// EndsAt returns scheduledAt + duration, or false for an unscheduled slot.
func (s *Session) EndsAt() (time.Time, bool) {
	if s.ScheduledAt == nil {
		return time.Time{}, false
	}
	return s.ScheduledAt.Add(s.Duration()), true
}

// PastDue reports whether the session's window has fully elapsed.
func (s *Session) PastDue(now time.Time) bool {
	end, ok := s.EndsAt()
	return ok && end.Before(now)
}

// Validate checks the single-aggregate invariants. The cross-aggregate one
// (Scheduled ⇔ exactly one active booking) is enforced by the Ledger.
func (s *Session) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "session id is required"}
	}
	if !s.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid session status %q", s.Status)}
	}
	if s.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Message: "duration must be positive"}
	}
	if s.PriceMinorUnits < 0 {
		return &ValidationError{Field: "price_minor_units", Message: "price cannot be negative"}
	}
	if s.RescheduleCount < 0 || s.RescheduleCount > s.MaxReschedules {
		return &ValidationError{Field: "reschedule_count",
			Message: fmt.Sprintf("reschedule count %d outside [0, %d]", s.RescheduleCount, s.MaxReschedules)}
	}
	if (s.Status == SessionScheduled || s.Status == SessionInProgress) && s.ScheduledAt == nil {
		return &ValidationError{Field: "scheduled_at", Message: fmt.Sprintf("%s session requires scheduled_at", s.Status)}
	}
	return nil
}

// =============================================================================
// BOOKING
// =============================================================================

// Payment exists iff the processor's callback was accepted.
type Payment struct {
	Ref         string
	Captured    int64
	CompletedAt time.Time
}

// Cancellation exists iff the booking is Cancelled or Refunded.
type Cancellation struct {
	At               time.Time
	By               Actor
	Reason           string
	RefundPercentage int
	RefundAmount     int64
}

type Booking struct {
	ID               BookingID
	SessionID        SessionID
	ConsumerID       string
	Status           BookingStatus
	AmountMinorUnits int64
	Currency         string
	Payment          *Payment
	Cancellation     *Cancellation
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// PaymentRef returns the processor reference, or "" before payment.
func (b *Booking) PaymentRef() string {
	if b.Payment == nil {
		return ""
	}
	return b.Payment.Ref
}

func (b *Booking) Validate() error {
	if b.ID == "" {
		return &ValidationError{Field: "id", Message: "booking id is required"}
	}
	if b.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session id is required"}
	}
	if !b.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid booking status %q", b.Status)}
	}
	if b.AmountMinorUnits < 0 {
		return &ValidationError{Field: "amount_minor_units", Message: "amount cannot be negative"}
	}
	if b.Status == BookingConfirmed && b.Payment == nil {
		return &ValidationError{Field: "payment", Message: "confirmed booking requires a completed payment"}
	}
	cancelled := b.Status == BookingCancelled || b.Status == BookingRefunded
	if cancelled != (b.Cancellation != nil) {
		return &ValidationError{Field: "cancellation", Message: fmt.Sprintf("cancellation record inconsistent with status %s", b.Status)}
	}
	if c := b.Cancellation; c != nil {
		if c.RefundAmount < 0 || c.RefundAmount > b.AmountMinorUnits {
			return &ValidationError{Field: "refund_amount",
				Message: fmt.Sprintf("refund %d outside [0, %d]", c.RefundAmount, b.AmountMinorUnits)}
		}
		if c.RefundPercentage < 0 || c.RefundPercentage > 100 {
			return &ValidationError{Field: "refund_percentage", Message: "refund percentage outside [0, 100]"}
		}
		if (b.Status == BookingRefunded) != (c.RefundAmount > 0) {
			return &ValidationError{Field: "status", Message: "refunded status requires a positive refund amount"}
		}
	}
	return nil
}

// =============================================================================
// RESCHEDULE RECORD - Audit trail of time changes
// =============================================================================

type RescheduleRecord struct {
	ID        string
	SessionID SessionID
	From      time.Time
	To        time.Time
	Actor     Actor
	At        time.Time
}

// =============================================================================
// FILTERS
// =============================================================================

type SessionFilter struct {
	ProviderID string
	Status     SessionStatus
	Limit      int
	Offset     int
}

type BookingFilter struct {
	ConsumerID string
	SessionID  SessionID
	Status     BookingStatus
	Limit      int
	Offset     int
}

const DefaultPageSize = 50

// PageSize clamps a requested page size to [1, 500], defaulting to
// DefaultPageSize.
func PageSize(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultPageSize
	}
	return limit
}
