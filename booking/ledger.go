/*
ledger.go - Booking Ledger (orchestrator)

PURPOSE:
  The only component that mutates a Session and its Booking together. Each
  operation is one read-validate-write transaction over both rows; events
  are dispatched to the Notifier strictly after commit.

OPERATION FLOW:
  CreateBooking  : load session → catalog.reserve (CAS Open→Scheduled) → insert PendingPayment
  ConfirmPayment : idempotency check → amount check → ref uniqueness → Confirmed
  Cancel         : finality check → refund engine → booking Cancelled|Refunded → session transition
  Reschedule     : reschedule guard → move time → history record
  StartSession   : confirmed booking required → session InProgress
  CompleteSession: session Completed → booking Completed (or unpaid booking Cancelled)
  SweepNoShows   : CompleteSession for every Scheduled session past its window

RETRY:
  A transaction that loses an optimistic check is retried exactly once on
  fresh state. The retry re-runs every guard, so the second attempt usually
  reports the real reason (SessionAlreadyBooked, AlreadyFinalized, ...).
  If the second attempt also loses, the caller gets
  ConflictError{ConcurrentModification}.

NOTIFIER:
  Events are collected during the transaction and discarded on rollback.
  Dispatch failures are logged and never returned.
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/session-engine/logger"
)

const tracerName = "github.com/warp/session-engine/booking"

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store    TxStore
	catalog  *Catalog
	policy   Policy
	notifier Notifier
	rooms    Conferencing
	log      *logger.Logger
	tracer   trace.Tracer
	validate *inputValidator
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithConferencing(c Conferencing) Option {
	return func(l *Ledger) { l.rooms = c }
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) { l.tracer = t }
}

// NewLedger validates the policy and wires the catalog over the same store.
func NewLedger(store TxStore, policy Policy, opts ...Option) (*Ledger, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	l := &Ledger{
		store:    store,
		policy:   policy,
		notifier: NopNotifier{},
		validate: newInputValidator(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.OrDiscard(l.log)
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	l.catalog = NewCatalog(store, policy, l.log)
	l.log = l.log.With("component", "ledger")
	return l, nil
}

func (l *Ledger) Catalog() *Catalog { return l.catalog }
func (l *Ledger) Policy() Policy    { return l.policy }

// =============================================================================
// CREATE BOOKING
// =============================================================================

type CreateBookingRequest struct {
	SessionID  SessionID `json:"session_id" validate:"required"`
	ConsumerID string    `json:"consumer_id" validate:"required"`

	// RequestedAt picks the start of an open slot. For a fixed-time
	// session it may be omitted or must equal the fixed time.
	RequestedAt *time.Time `json:"requested_at"`
	Now         time.Time  `json:"-"`
}

// CreateBooking reserves the session and records a PendingPayment booking
// priced at the session's price. A reserve conflict propagates unchanged and
// no booking is written.
func (l *Ledger) CreateBooking(ctx context.Context, req CreateBookingRequest) (_ *Booking, err error) {
	ctx, span := l.start(ctx, "CreateBooking", attribute.String("session.id", string(req.SessionID)))
	defer func() { endSpan(span, err) }()

	if err := l.validate.Struct(req); err != nil {
		return nil, err
	}

	var b *Booking
	err = l.inTx(ctx, "CreateBooking", func(st Store) error {
		s, err := st.GetSession(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if err := l.catalog.reserve(s, req.RequestedAt, req.Now); err != nil {
			return err
		}
		if err := st.UpdateSession(ctx, s); err != nil {
			return err
		}
		b = &Booking{
			ID:               BookingID(uuid.NewString()),
			SessionID:        s.ID,
			ConsumerID:       req.ConsumerID,
			Status:           BookingPendingPayment,
			AmountMinorUnits: s.PriceMinorUnits,
			Currency:         s.Currency,
			CreatedAt:        req.Now,
			UpdatedAt:        req.Now,
		}
		return st.InsertBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("booking created",
		"booking_id", b.ID, "session_id", b.SessionID, "consumer_id", b.ConsumerID,
		"amount", b.AmountMinorUnits, "currency", b.Currency)
	return b, nil
}

// =============================================================================
// CONFIRM PAYMENT
// =============================================================================

// ConfirmPayment applies the processor's capture callback. Repeating a
// callback with the same reference returns the confirmed booking without
// writing or notifying.
func (l *Ledger) ConfirmPayment(ctx context.Context, id BookingID, ref string, captured int64, now time.Time) (_ *Booking, err error) {
	ctx, span := l.start(ctx, "ConfirmPayment",
		attribute.String("booking.id", string(id)), attribute.String("payment.ref", ref))
	defer func() { endSpan(span, err) }()

	if ref == "" {
		return nil, &ValidationError{Field: "payment_ref", Message: "payment reference is required"}
	}
	if captured < 0 {
		return nil, &ValidationError{Field: "captured_amount", Message: "captured amount cannot be negative"}
	}

	var (
		b      *Booking
		events []Event
	)
	err = l.inTx(ctx, "ConfirmPayment", func(st Store) error {
		events = nil
		var err error
		b, err = st.GetBooking(ctx, id)
		if err != nil {
			return err
		}

		switch {
		case b.Status == BookingConfirmed && b.PaymentRef() == ref:
			return nil
		case b.Status == BookingConfirmed:
			return conflict(ReasonAlreadyConfirmed, "booking %s already confirmed with a different payment", b.ID)
		case b.Status.IsFinal():
			return conflict(ReasonAlreadyFinalized, "booking %s is %s", b.ID, b.Status)
		}

		if captured != b.AmountMinorUnits {
			return &PaymentMismatchError{BookingID: b.ID, Expected: b.AmountMinorUnits, Captured: captured}
		}
		other, err := st.BookingByPaymentRef(ctx, ref)
		if err != nil {
			return err
		}
		if other != nil && other.ID != b.ID {
			return conflict(ReasonPaymentRefInUse, "payment %s already confirmed booking %s", ref, other.ID)
		}

		b.Status = BookingConfirmed
		b.Payment = &Payment{Ref: ref, Captured: captured, CompletedAt: now}
		b.UpdatedAt = now
		if err := st.UpdateBooking(ctx, b); err != nil {
			return err
		}
		events = append(events, newEvent(EventBookingConfirmed, b, b.ConsumerID, now, map[string]any{
			"payment_ref": ref,
			"amount":      captured,
			"currency":    b.Currency,
		}))
		return nil
	})
	if err != nil {
		var mismatch *PaymentMismatchError
		if errors.As(err, &mismatch) {
			l.log.Warn("payment amount mismatch",
				"booking_id", id, "expected", mismatch.Expected, "captured", mismatch.Captured)
		}
		return nil, err
	}

	if len(events) > 0 {
		l.log.Info("booking confirmed", "booking_id", b.ID, "payment_ref", ref)
	}
	l.emit(ctx, events...)
	return b, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancellationOutcome is what the caller shows the user: the exact
// percentage and amount, never a bare "cancelled".
type CancellationOutcome struct {
	Booking          *Booking
	Session          *Session
	RefundPercentage int
	RefundAmount     int64
	NoticeHours      decimal.Decimal
}

func (l *Ledger) Cancel(ctx context.Context, id BookingID, by Actor, reason string, now time.Time) (_ *CancellationOutcome, err error) {
	ctx, span := l.start(ctx, "Cancel",
		attribute.String("booking.id", string(id)), attribute.String("actor", string(by)))
	defer func() { endSpan(span, err) }()

	if _, err := ParseActor(string(by)); err != nil {
		return nil, err
	}

	var (
		out    *CancellationOutcome
		events []Event
	)
	err = l.inTx(ctx, "Cancel", func(st Store) error {
		events = nil
		b, err := st.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		s, err := st.GetSession(ctx, b.SessionID)
		if err != nil {
			return err
		}
		var ev Event
		out, ev, err = l.cancelInTx(ctx, st, b, s, by, reason, now)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("booking cancelled",
		"booking_id", out.Booking.ID, "session_id", out.Session.ID, "cancelled_by", by,
		"refund_percentage", out.RefundPercentage, "refund_amount", out.RefundAmount,
		"session_status", out.Session.Status)
	l.emit(ctx, events...)
	return out, nil
}

// cancelInTx settles the booking and moves the session. The refund is a
// share of what was actually captured, so an unpaid booking always lands
// in Cancelled.
func (l *Ledger) cancelInTx(ctx context.Context, st Store, b *Booking, s *Session, by Actor, reason string, now time.Time) (*CancellationOutcome, Event, error) {
	if b.Status.IsFinal() {
		return nil, Event{}, conflict(ReasonAlreadyFinalized, "booking %s is %s", b.ID, b.Status)
	}

	notice := NoticeBefore(s.ScheduledAt, now)
	pct := l.policy.Refund.Percentage(notice, by)
	var paid int64
	if b.Payment != nil {
		paid = b.Payment.Captured
	}
	refund := RefundAmount(paid, pct)

	b.Cancellation = &Cancellation{
		At:               now,
		By:               by,
		Reason:           reason,
		RefundPercentage: pct,
		RefundAmount:     refund,
	}
	b.Status = BookingCancelled
	if refund > 0 {
		b.Status = BookingRefunded
	}
	b.UpdatedAt = now

	var err error
	switch {
	case s.Status.IsTerminal():
	case by == ActorConsumer && s.Origin == OriginOpenSlot && s.Status == SessionScheduled:
		err = l.catalog.reopen(s, now)
	default:
		err = l.catalog.markCancelled(s, now)
	}
	if err != nil {
		return nil, Event{}, err
	}

	if err := st.UpdateBooking(ctx, b); err != nil {
		return nil, Event{}, err
	}
	if err := st.UpdateSession(ctx, s); err != nil {
		return nil, Event{}, err
	}

	out := &CancellationOutcome{
		Booking:          b,
		Session:          s,
		RefundPercentage: pct,
		RefundAmount:     refund,
		NoticeHours:      NoticeHours(notice),
	}
	ev := newEvent(EventBookingCancelled, b, b.ConsumerID, now, map[string]any{
		"refund_percentage": pct,
		"refund_amount":     refund,
		"currency":          b.Currency,
		"cancelled_by":      string(by),
		"reason":            reason,
		"session_status":    string(s.Status),
	})
	return out, ev, nil
}

// =============================================================================
// RESCHEDULE
// =============================================================================

func (l *Ledger) Reschedule(ctx context.Context, id SessionID, newAt time.Time, by Actor, now time.Time) (_ *Session, err error) {
	ctx, span := l.start(ctx, "Reschedule", attribute.String("session.id", string(id)))
	defer func() { endSpan(span, err) }()

	var (
		s      *Session
		events []Event
	)
	err = l.inTx(ctx, "Reschedule", func(st Store) error {
		events = nil
		var err error
		s, err = st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		active, err := st.ActiveBooking(ctx, id)
		if err != nil {
			return err
		}
		from, err := applyReschedule(s, active, newAt, now)
		if err != nil {
			return err
		}
		if err := st.UpdateSession(ctx, s); err != nil {
			return err
		}
		rec := RescheduleRecord{
			ID:        uuid.NewString(),
			SessionID: s.ID,
			From:      from,
			To:        *s.ScheduledAt,
			Actor:     by,
			At:        now,
		}
		if err := st.AppendReschedule(ctx, rec); err != nil {
			return err
		}
		events = append(events, newEvent(EventSessionRescheduled, active, active.ConsumerID, now, map[string]any{
			"from":             from.Format(time.RFC3339),
			"to":               rec.To.Format(time.RFC3339),
			"rescheduled_by":   string(by),
			"reschedule_count": s.RescheduleCount,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("session rescheduled",
		"session_id", s.ID, "scheduled_at", s.ScheduledAt, "reschedule_count", s.RescheduleCount)
	l.emit(ctx, events...)
	return s, nil
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// StartSession moves a confirmed session to InProgress. The conferencing
// room is requested before the transaction opens; a failure there only
// leaves the meeting URL unset.
func (l *Ledger) StartSession(ctx context.Context, id SessionID, now time.Time) (_ *Session, err error) {
	ctx, span := l.start(ctx, "StartSession", attribute.String("session.id", string(id)))
	defer func() { endSpan(span, err) }()

	var room string
	if l.rooms != nil {
		pre, err := l.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if pre.MeetingURL == nil {
			if room, err = l.rooms.RoomURL(ctx, pre); err != nil {
				l.log.Warn("conferencing room unavailable", "session_id", id, "error", err)
				room = ""
			}
		}
	}

	var s *Session
	err = l.inTx(ctx, "StartSession", func(st Store) error {
		var err error
		s, err = st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		active, err := st.ActiveBooking(ctx, id)
		if err != nil {
			return err
		}
		if active == nil || active.Status != BookingConfirmed {
			return conflict(ReasonBookingNotConfirmed, "session %s has no confirmed booking", id)
		}
		if err := l.catalog.markInProgress(s, now); err != nil {
			return err
		}
		if room != "" && s.MeetingURL == nil {
			url := room
			s.MeetingURL = &url
		}
		return st.UpdateSession(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("session started", "session_id", s.ID)
	return s, nil
}

// CompleteSession closes the session and settles its booking: a paid
// booking completes, an unpaid one is cancelled by the system with no
// refund.
func (l *Ledger) CompleteSession(ctx context.Context, id SessionID, now time.Time) (_ *Session, err error) {
	ctx, span := l.start(ctx, "CompleteSession", attribute.String("session.id", string(id)))
	defer func() { endSpan(span, err) }()

	var (
		s      *Session
		events []Event
	)
	err = l.inTx(ctx, "CompleteSession", func(st Store) error {
		events = nil
		var err error
		s, err = st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		active, err := st.ActiveBooking(ctx, id)
		if err != nil {
			return err
		}
		noShow := s.StartedAt == nil
		if err := l.catalog.markCompleted(s, now); err != nil {
			return err
		}
		if err := st.UpdateSession(ctx, s); err != nil {
			return err
		}
		if active == nil {
			return nil
		}

		switch active.Status {
		case BookingConfirmed:
			active.Status = BookingCompleted
		case BookingPendingPayment:
			active.Status = BookingCancelled
			active.Cancellation = &Cancellation{At: now, By: ActorSystem, Reason: "session ended without payment"}
		}
		active.UpdatedAt = now
		if err := st.UpdateBooking(ctx, active); err != nil {
			return err
		}
		events = append(events, newEvent(EventSessionCompleted, active, active.ConsumerID, now, map[string]any{
			"booking_status": string(active.Status),
			"no_show":        noShow,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("session completed", "session_id", s.ID)
	l.emit(ctx, events...)
	return s, nil
}

// CancelSession is the provider (or system) withdrawing a session. An
// active booking is cancelled through the refund engine in the same
// transaction; the outcome is nil when nobody held the session.
func (l *Ledger) CancelSession(ctx context.Context, id SessionID, by Actor, reason string, now time.Time) (_ *Session, _ *CancellationOutcome, err error) {
	ctx, span := l.start(ctx, "CancelSession",
		attribute.String("session.id", string(id)), attribute.String("actor", string(by)))
	defer func() { endSpan(span, err) }()

	if by != ActorProvider && by != ActorSystem {
		return nil, nil, &ValidationError{Field: "actor", Message: "only the provider or the system can cancel a session"}
	}

	var (
		s      *Session
		out    *CancellationOutcome
		events []Event
	)
	err = l.inTx(ctx, "CancelSession", func(st Store) error {
		events, out = nil, nil
		var err error
		s, err = st.GetSession(ctx, id)
		if err != nil {
			return err
		}
		active, err := st.ActiveBooking(ctx, id)
		if err != nil {
			return err
		}
		if active == nil {
			if err := l.catalog.markCancelled(s, now); err != nil {
				return err
			}
			return st.UpdateSession(ctx, s)
		}
		var ev Event
		out, ev, err = l.cancelInTx(ctx, st, active, s, by, reason, now)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("session cancelled", "session_id", s.ID, "cancelled_by", by, "had_booking", out != nil)
	l.emit(ctx, events...)
	return s, out, nil
}

// SweepNoShows completes every Scheduled session whose window elapsed
// without a start. Sessions that change under the sweep are skipped; they
// are picked up on the next pass if still due.
func (l *Ledger) SweepNoShows(ctx context.Context, now time.Time) (int, error) {
	due, err := l.store.ScheduledBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load scheduled sessions: %w", err)
	}

	var (
		completed int
		errs      []error
	)
	for i := range due {
		s := &due[i]
		if !s.PastDue(now) {
			continue
		}
		if _, err := l.CompleteSession(ctx, s.ID, now); err != nil {
			if IsClientError(err) || IsNotFound(err) {
				l.log.Debug("no-show sweep skipped session", "session_id", s.ID, "error", err)
				continue
			}
			errs = append(errs, fmt.Errorf("complete %s: %w", s.ID, err))
			continue
		}
		completed++
	}
	if completed > 0 {
		l.log.Info("no-show sweep completed sessions", "count", completed)
	}
	return completed, errors.Join(errs...)
}

// =============================================================================
// READS
// =============================================================================

func (l *Ledger) GetSession(ctx context.Context, id SessionID) (*Session, error) {
	return l.store.GetSession(ctx, id)
}

func (l *Ledger) GetBooking(ctx context.Context, id BookingID) (*Booking, error) {
	return l.store.GetBooking(ctx, id)
}

func (l *Ledger) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	return l.store.ListSessions(ctx, filter)
}

func (l *Ledger) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	return l.store.ListBookings(ctx, filter)
}

func (l *Ledger) RescheduleHistory(ctx context.Context, id SessionID) ([]RescheduleRecord, error) {
	if _, err := l.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return l.store.RescheduleHistory(ctx, id)
}

// JoinStatus evaluates the join window for a booking at now.
func (l *Ledger) JoinStatus(ctx context.Context, id BookingID, now time.Time) (JoinStatus, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return JoinStatus{}, err
	}
	s, err := l.store.GetSession(ctx, b.SessionID)
	if err != nil {
		return JoinStatus{}, err
	}
	return l.policy.JoinWindow().Evaluate(s, b, now), nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// inTx runs fn, retrying once when the commit loses an optimistic check.
func (l *Ledger) inTx(ctx context.Context, op string, fn func(Store) error) error {
	err := l.store.WithTx(ctx, fn)
	if !errors.Is(err, ErrConcurrentModification) {
		return err
	}
	l.log.Warn("retrying after concurrent modification", "op", op)
	err = l.store.WithTx(ctx, fn)
	if errors.Is(err, ErrConcurrentModification) {
		return conflict(ReasonConcurrentModification, "%s lost to a concurrent update twice", op)
	}
	return err
}

func (l *Ledger) emit(ctx context.Context, events ...Event) {
	for _, e := range events {
		if err := l.notifier.Notify(ctx, e); err != nil {
			l.log.Warn("notifier dispatch failed",
				"event_id", e.ID, "event_type", e.Type, "booking_id", e.BookingID, "error", err)
		}
	}
}

func (l *Ledger) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "booking.Ledger."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
