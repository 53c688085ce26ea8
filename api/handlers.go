/*
handlers.go - HTTP API handlers for the session booking engine

PURPOSE:
  Exposes the booking ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every state change to booking.Ledger.

ENDPOINTS:
  Sessions:
    POST   /api/sessions                   Create open slot or fixed-time session
    GET    /api/sessions                   List (provider_id, status, limit, offset)
    GET    /api/sessions/{id}              Get session
    POST   /api/sessions/{id}/start        Scheduled → InProgress
    POST   /api/sessions/{id}/complete     → Completed (settles the booking)
    POST   /api/sessions/{id}/cancel       Provider withdrawal
    POST   /api/sessions/{id}/reschedule   Move the start time
    GET    /api/sessions/{id}/reschedules  Reschedule history

  Bookings:
    POST   /api/bookings                   Reserve a session (Idempotency-Key honoured)
    GET    /api/bookings                   List (consumer_id, session_id, status, limit, offset)
    GET    /api/bookings/{id}              Get booking
    POST   /api/bookings/{id}/cancel       Cancel with refund
    GET    /api/bookings/{id}/join         Join window projection

  Payments:
    POST   /api/webhooks/payments          Processor capture callback

  Policy / Scenarios:
    GET    /api/policy                     Active policy as JSON
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Ledger: the only writer of sessions and bookings
  - PolicyFactory: Policy to JSON conversion for GET /api/policy
  - Store: optional reset/ping hooks for scenarios and health checks
  - now: injectable clock, so tests can pin "now"

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: malformed JSON or query parameters
  - 404: unknown session or booking
  - 409: a state-machine guard said no (code = conflict reason)
  - 422: validation failure, or PAYMENT_MISMATCH
  - 500: anything else (logged, details withheld)

SECURITY NOTE:
  No authentication. Actor fields in request bodies are trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/factory"
	"github.com/warp/session-engine/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes all persisted data. Both stores implement it.
type Resetter interface {
	Reset(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger        *booking.Ledger
	PolicyFactory *factory.PolicyFactory
	Store         Resetter

	log *logger.Logger
	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

type HandlerOption func(*Handler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func WithHandlerLogger(log *logger.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// NewHandler creates a handler. store may be nil, which disables scenario
// loading and the database check in /healthz.
func NewHandler(ledger *booking.Ledger, store Resetter, opts ...HandlerOption) *Handler {
	h := &Handler{
		Ledger:        ledger,
		PolicyFactory: factory.NewPolicyFactory(),
		Store:         store,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logger.OrDiscard(h.log).With("component", "api")
	return h
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// CreateSession publishes a session. Without scheduled_at it is an open slot.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	catalog := h.Ledger.Catalog()
	var (
		s   *booking.Session
		err error
	)
	if req.ScheduledAt == nil {
		s, err = catalog.CreateOpenSlot(r.Context(), req.SessionInput, h.now())
	} else {
		s, err = catalog.CreateScheduledSession(r.Context(), req.SessionInput, *req.ScheduledAt, h.now())
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(s))
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.SessionFilter{ProviderID: q.Get("provider_id")}
	if raw := q.Get("status"); raw != "" {
		st, err := booking.ParseSessionStatus(raw)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		filter.Status = st
	}
	var ok bool
	if filter.Limit, filter.Offset, ok = parsePaging(w, r); !ok {
		return
	}

	sessions, err := h.Ledger.ListSessions(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.GetSession(r.Context(), sessionID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.StartSession(r.Context(), sessionID(r), h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.CompleteSession(r.Context(), sessionID(r), h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// CancelSession withdraws a session. An empty body is a provider
// withdrawal with no reason.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	var req CancelSessionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	actor, err := actorOrDefault(req.Actor, booking.ActorProvider)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	s, outcome, err := h.Ledger.CancelSession(r.Context(), sessionID(r), actor, req.Reason, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelSessionResponse{
		Session:      toSessionDTO(s),
		Cancellation: toCancellationResultDTO(outcome),
	})
}

func (h *Handler) RescheduleSession(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewScheduledAt.IsZero() {
		h.writeDomainError(w, r, &booking.ValidationError{Field: "new_scheduled_at", Message: "new_scheduled_at is required"})
		return
	}
	actor, err := booking.ParseActor(req.Actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	s, err := h.Ledger.Reschedule(r.Context(), sessionID(r), req.NewScheduledAt, actor, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

func (h *Handler) ListReschedules(w http.ResponseWriter, r *http.Request) {
	records, err := h.Ledger.RescheduleHistory(r.Context(), sessionID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRescheduleDTOs(records))
}

// =============================================================================
// BOOKING ENDPOINTS
// =============================================================================

// CreateBooking reserves a session. The response carries the checkout
// correlation id the payment webhook will echo back.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.Ledger.CreateBooking(r.Context(), booking.CreateBookingRequest{
		SessionID:   booking.SessionID(req.SessionID),
		ConsumerID:  req.ConsumerID,
		RequestedAt: req.RequestedAt,
		Now:         h.now(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateBookingResponse{
		Booking: toBookingDTO(b),
		Checkout: CheckoutDTO{
			CorrelationID:    string(b.ID),
			AmountMinorUnits: b.AmountMinorUnits,
			Currency:         b.Currency,
		},
	})
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.BookingFilter{
		ConsumerID: q.Get("consumer_id"),
		SessionID:  booking.SessionID(q.Get("session_id")),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := booking.ParseBookingStatus(raw)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		filter.Status = st
	}
	var ok bool
	if filter.Limit, filter.Offset, ok = parsePaging(w, r); !ok {
		return
	}

	bookings, err := h.Ledger.ListBookings(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.GetBooking(r.Context(), bookingID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking cancels a booking and reports the refund. An empty body is
// a consumer cancellation with no reason.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	actor, err := actorOrDefault(req.Actor, booking.ActorConsumer)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	outcome, err := h.Ledger.Cancel(r.Context(), bookingID(r), actor, req.Reason, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCancellationResultDTO(outcome))
}

func (h *Handler) GetJoinStatus(w http.ResponseWriter, r *http.Request) {
	id := bookingID(r)
	st, err := h.Ledger.JoinStatus(r.Context(), id, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJoinStatusDTO(id, st))
}

// =============================================================================
// PAYMENT WEBHOOK
// =============================================================================

// PaymentWebhook applies a processor capture. Replays of the same ref
// return the confirmed booking with 200.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BookingID == "" {
		h.writeDomainError(w, r, &booking.ValidationError{Field: "booking_id", Message: "booking_id is required"})
		return
	}

	b, err := h.Ledger.ConfirmPayment(r.Context(), booking.BookingID(req.BookingID), req.PaymentRef, req.CapturedAmount, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// =============================================================================
// POLICY / HEALTH
// =============================================================================

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(h.Ledger.Policy()))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.log.ErrorContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unavailable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func sessionID(r *http.Request) booking.SessionID {
	return booking.SessionID(chi.URLParam(r, "id"))
}

func bookingID(r *http.Request) booking.BookingID {
	return booking.BookingID(chi.URLParam(r, "id"))
}

func actorOrDefault(raw string, def booking.Actor) (booking.Actor, error) {
	if raw == "" {
		return def, nil
	}
	return booking.ParseActor(raw)
}

// decodeJSON writes a 400 and returns false when the body is not JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body and leaves v untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decodeJSON(w, r, v)
}

func parsePaging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("Invalid %s", p.name), err)
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

// writeDomainError maps the booking error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		mismatch   *booking.PaymentMismatchError
		validation *booking.ValidationError
		conflict   *booking.ConflictError
		notFound   *booking.NotFoundError
	)
	switch {
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Payment amount mismatch",
			Code:  "PAYMENT_MISMATCH",
			Details: map[string]any{
				"booking_id": mismatch.BookingID,
				"expected":   mismatch.Expected,
				"captured":   mismatch.Captured,
			},
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   validation.Message,
			Code:    "VALIDATION_FAILED",
			Details: map[string]string{"field": validation.Field},
		})
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, string(conflict.Reason), conflict.Error(), nil)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Request cancelled", nil)
	default:
		h.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
