/*
catalog.go - Session Catalog

PURPOSE:
  Owns Session creation and every Session status transition. The catalog
  reads bookings to decide whether a transition is legal but never writes
  one; the Ledger does that.

STATE MACHINE:
  ┌──────┐ reserve  ┌───────────┐ start ┌────────────┐ complete ┌───────────┐
  │ Open │────────▶│ Scheduled │──────▶│ InProgress │────────▶│ Completed │
  └──────┘          └───────────┘       └────────────┘          └───────────┘
     ▲                 │    │ past due, never started               ▲
     │ consumer cancel │    └───────────────────────────────────────┘
     └─────────────────┘
     (open slots only)      any non-terminal ──cancel──▶ Cancelled

  Completed and Cancelled are terminal.

TRANSACTIONS:
  The lowercase transition helpers mutate a *Session in place and are meant
  to be called inside a Ledger transaction. The exported MarkX methods run
  their own transaction for callers that only touch the session.
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/session-engine/logger"
)

// SessionInput is what a provider submits to publish a session.
type SessionInput struct {
	ProviderID      string `json:"provider_id" validate:"required"`
	Title           string `json:"title" validate:"required,max=200"`
	Subject         string `json:"subject" validate:"max=100"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
	PriceMinorUnits int64  `json:"price_minor_units" validate:"gte=0"`
	Currency        string `json:"currency" validate:"required,iso4217"`
	Timezone        string `json:"timezone" validate:"omitempty,timezone"`
}

type Catalog struct {
	store    TxStore
	policy   Policy
	validate *inputValidator
	log      *logger.Logger
}

func NewCatalog(store TxStore, policy Policy, log *logger.Logger) *Catalog {
	return &Catalog{
		store:    store,
		policy:   policy,
		validate: newInputValidator(),
		log:      logger.OrDiscard(log).With("component", "catalog"),
	}
}

// =============================================================================
// CREATION
// =============================================================================

// CreateOpenSlot publishes a session with no fixed time. The consumer who
// reserves it picks the start.
func (c *Catalog) CreateOpenSlot(ctx context.Context, in SessionInput, now time.Time) (*Session, error) {
	s, err := c.newSession(in, OriginOpenSlot, nil, now)
	if err != nil {
		return nil, err
	}
	return c.insert(ctx, s)
}

// CreateScheduledSession publishes a session at a provider-chosen time. It
// stays Open until a booking attaches.
func (c *Catalog) CreateScheduledSession(ctx context.Context, in SessionInput, scheduledAt, now time.Time) (*Session, error) {
	if !scheduledAt.After(now) {
		return nil, &ValidationError{Field: "scheduled_at", Message: "scheduled time must be in the future"}
	}
	at := scheduledAt.UTC()
	s, err := c.newSession(in, OriginFixedTime, &at, now)
	if err != nil {
		return nil, err
	}
	return c.insert(ctx, s)
}

func (c *Catalog) newSession(in SessionInput, origin SessionOrigin, at *time.Time, now time.Time) (*Session, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, err
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &Session{
		ID:              SessionID(uuid.NewString()),
		ProviderID:      in.ProviderID,
		Title:           in.Title,
		Subject:         in.Subject,
		Origin:          origin,
		ScheduledAt:     at,
		DurationMinutes: in.DurationMinutes,
		PriceMinorUnits: in.PriceMinorUnits,
		Currency:        in.Currency,
		Status:          SessionOpen,
		Timezone:        tz,
		MaxReschedules:  c.policy.MaxReschedules,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (c *Catalog) insert(ctx context.Context, s *Session) (*Session, error) {
	if err := c.store.InsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	c.log.Info("session created", "session_id", s.ID, "provider_id", s.ProviderID, "origin", s.Origin)
	return s, nil
}

// =============================================================================
// READS
// =============================================================================

func (c *Catalog) Get(ctx context.Context, id SessionID) (*Session, error) {
	return c.store.GetSession(ctx, id)
}

func (c *Catalog) List(ctx context.Context, filter SessionFilter) ([]Session, error) {
	return c.store.ListSessions(ctx, filter)
}

// =============================================================================
// STANDALONE TRANSITIONS
// =============================================================================

// Reserve claims an Open session. Losing the compare-and-swap reports
// SessionAlreadyBooked.
func (c *Catalog) Reserve(ctx context.Context, id SessionID, requestedAt *time.Time, now time.Time) (*Session, error) {
	return c.transition(ctx, id, func(st Store, s *Session) error {
		return c.reserve(s, requestedAt, now)
	})
}

// MarkInProgress requires a confirmed booking on the session.
func (c *Catalog) MarkInProgress(ctx context.Context, id SessionID, now time.Time) (*Session, error) {
	return c.transition(ctx, id, func(st Store, s *Session) error {
		active, err := st.ActiveBooking(ctx, s.ID)
		if err != nil {
			return err
		}
		if active == nil || active.Status != BookingConfirmed {
			return conflict(ReasonBookingNotConfirmed, "session %s has no confirmed booking", s.ID)
		}
		return c.markInProgress(s, now)
	})
}

// MarkCompleted and MarkCancelled refuse sessions that still hold an active
// booking. Ledger.CompleteSession and Ledger.CancelSession settle the
// booking in the same transaction.
func (c *Catalog) MarkCompleted(ctx context.Context, id SessionID, now time.Time) (*Session, error) {
	return c.transition(ctx, id, func(st Store, s *Session) error {
		if err := c.requireNoActiveBooking(ctx, st, s); err != nil {
			return err
		}
		return c.markCompleted(s, now)
	})
}

func (c *Catalog) MarkCancelled(ctx context.Context, id SessionID, now time.Time) (*Session, error) {
	return c.transition(ctx, id, func(st Store, s *Session) error {
		if err := c.requireNoActiveBooking(ctx, st, s); err != nil {
			return err
		}
		return c.markCancelled(s, now)
	})
}

func (c *Catalog) requireNoActiveBooking(ctx context.Context, st Store, s *Session) error {
	active, err := st.ActiveBooking(ctx, s.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return conflict(ReasonActiveBookingExists, "session %s is held by booking %s", s.ID, active.ID)
	}
	return nil
}

func (c *Catalog) transition(ctx context.Context, id SessionID, apply func(Store, *Session) error) (*Session, error) {
	var out *Session
	err := c.store.WithTx(ctx, func(st Store) error {
		s, err := st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(st, s); err != nil {
			return err
		}
		if err := st.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// IN-TRANSACTION HELPERS
// =============================================================================

// reserve swaps Open→Scheduled. An open slot takes the requested start; a
// fixed-time session only accepts its own time.
func (c *Catalog) reserve(s *Session, requestedAt *time.Time, now time.Time) error {
	if s.Status != SessionOpen {
		return conflict(ReasonSessionAlreadyBooked, "session %s is %s", s.ID, s.Status)
	}
	switch {
	case s.ScheduledAt == nil:
		if requestedAt == nil {
			return &ValidationError{Field: "requested_at", Message: "open slot requires a requested start time"}
		}
		if !requestedAt.After(now) {
			return &ValidationError{Field: "requested_at", Message: "requested start must be in the future"}
		}
		at := requestedAt.UTC()
		s.ScheduledAt = &at
	case requestedAt != nil && !requestedAt.Equal(*s.ScheduledAt):
		return &ValidationError{Field: "requested_at",
			Message: fmt.Sprintf("session is fixed at %s", s.ScheduledAt.Format(time.RFC3339))}
	case !s.ScheduledAt.After(now):
		return &ValidationError{Field: "scheduled_at", Message: "session start has already passed"}
	}
	s.Status = SessionScheduled
	s.UpdatedAt = now
	return nil
}

// reopen hands a consumer-cancelled open slot back to the catalog.
func (c *Catalog) reopen(s *Session, now time.Time) error {
	if s.Status != SessionScheduled || s.Origin != OriginOpenSlot {
		return illegal(s, SessionOpen)
	}
	s.Status = SessionOpen
	s.ScheduledAt = nil
	s.RescheduleCount = 0
	s.UpdatedAt = now
	return nil
}

func (c *Catalog) markInProgress(s *Session, now time.Time) error {
	if s.Status != SessionScheduled {
		return illegal(s, SessionInProgress)
	}
	s.Status = SessionInProgress
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// markCompleted accepts InProgress, or Scheduled once the window has
// elapsed (the no-show path).
func (c *Catalog) markCompleted(s *Session, now time.Time) error {
	ok := s.Status == SessionInProgress || (s.Status == SessionScheduled && s.PastDue(now))
	if !ok {
		return illegal(s, SessionCompleted)
	}
	s.Status = SessionCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

func (c *Catalog) markCancelled(s *Session, now time.Time) error {
	if s.Status.IsTerminal() {
		return illegal(s, SessionCancelled)
	}
	s.Status = SessionCancelled
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

func illegal(s *Session, to SessionStatus) *ConflictError {
	return conflict(ReasonIllegalTransition, "session %s cannot move from %s to %s", s.ID, s.Status, to)
}
