/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking domain model from the external API contract, so the domain
  can keep pointer sub-records (Payment, Cancellation) while clients see
  flat, stable fields.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Sessions:
    SessionDTO, CreateSessionRequest, CancelSessionRequest, RescheduleRequest,
    RescheduleDTO

  Bookings:
    BookingDTO, CreateBookingRequest, CreateBookingResponse, CheckoutDTO,
    CancelBookingRequest, CancellationDTO, CancellationResultDTO, JoinStatusDTO

  Payments:
    PaymentWebhookRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest, ScenarioResultDTO

TIMES:
  Every timestamp is RFC 3339 in UTC. Request bodies accept any RFC 3339
  offset; the domain converts to UTC on write.

VALIDATION:
  DTOs are pure data carriers. Field rules live on booking.SessionInput and
  booking.CreateBookingRequest and run inside the domain.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	Title           string  `json:"title"`
	Subject         string  `json:"subject,omitempty"`
	Origin          string  `json:"origin"`
	ScheduledAt     *string `json:"scheduled_at"`
	DurationMinutes int     `json:"duration_minutes"`
	PriceMinorUnits int64   `json:"price_minor_units"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	Timezone        string  `json:"timezone"`
	MeetingURL      *string `json:"meeting_url,omitempty"`
	RescheduleCount int     `json:"reschedule_count"`
	MaxReschedules  int     `json:"max_reschedules"`
	StartedAt       *string `json:"started_at,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	Version         int64   `json:"version"`
}

// CreateSessionRequest publishes a session. Omitting scheduled_at creates
// an open slot the consumer schedules at booking time.
type CreateSessionRequest struct {
	booking.SessionInput
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CancelSessionRequest withdraws a session. Actor defaults to provider.
type CancelSessionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// RescheduleRequest moves a scheduled session.
type RescheduleRequest struct {
	NewScheduledAt time.Time `json:"new_scheduled_at"`
	Actor          string    `json:"actor"`
}

// RescheduleDTO is one entry of a session's reschedule history.
type RescheduleDTO struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
	At        string `json:"at"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID                 string           `json:"id"`
	SessionID          string           `json:"session_id"`
	ConsumerID         string           `json:"consumer_id"`
	Status             string           `json:"status"`
	AmountMinorUnits   int64            `json:"amount_minor_units"`
	Currency           string           `json:"currency"`
	PaymentRef         *string          `json:"payment_ref,omitempty"`
	CapturedAmount     *int64           `json:"captured_amount,omitempty"`
	PaymentCompletedAt *string          `json:"payment_completed_at,omitempty"`
	Cancellation       *CancellationDTO `json:"cancellation,omitempty"`
	CreatedAt          string           `json:"created_at"`
	UpdatedAt          string           `json:"updated_at"`
	Version            int64            `json:"version"`
}

// CancellationDTO mirrors booking.Cancellation.
type CancellationDTO struct {
	CancelledAt      string `json:"cancelled_at"`
	CancelledBy      string `json:"cancelled_by"`
	Reason           string `json:"reason,omitempty"`
	RefundPercentage int    `json:"refund_percentage"`
	RefundAmount     int64  `json:"refund_amount"`
}

// CreateBookingRequest reserves a session for a consumer.
type CreateBookingRequest struct {
	SessionID   string     `json:"session_id"`
	ConsumerID  string     `json:"consumer_id"`
	RequestedAt *time.Time `json:"requested_at"`
}

// CheckoutDTO is what the client hands to the payment processor. The
// booking id doubles as the correlation id the webhook echoes back.
type CheckoutDTO struct {
	CorrelationID    string `json:"correlation_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
}

// CreateBookingResponse is returned by POST /api/bookings.
type CreateBookingResponse struct {
	Booking  BookingDTO  `json:"booking"`
	Checkout CheckoutDTO `json:"checkout"`
}

// CancelBookingRequest cancels a booking. Actor defaults to consumer.
type CancelBookingRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// CancellationResultDTO reports what a cancellation did to both aggregates
// and how much money goes back.
type CancellationResultDTO struct {
	Booking          BookingDTO      `json:"booking"`
	Session          SessionDTO      `json:"session"`
	RefundPercentage int             `json:"refund_percentage"`
	RefundAmount     int64           `json:"refund_amount"`
	Currency         string          `json:"currency"`
	NoticeHours      decimal.Decimal `json:"notice_hours"`
}

// CancelSessionResponse is returned by POST /api/sessions/{id}/cancel.
// Cancellation is nil when no booking held the session.
type CancelSessionResponse struct {
	Session      SessionDTO             `json:"session"`
	Cancellation *CancellationResultDTO `json:"cancellation,omitempty"`
}

// JoinStatusDTO is the advisory join projection for one booking.
type JoinStatusDTO struct {
	BookingID  string  `json:"booking_id"`
	CanJoin    bool    `json:"can_join"`
	IsUpcoming bool    `json:"is_upcoming"`
	IsNoShow   bool    `json:"is_no_show"`
	OpensAt    *string `json:"opens_at,omitempty"`
	ClosesAt   *string `json:"closes_at,omitempty"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentWebhookRequest is the processor's capture callback.
type PaymentWebhookRequest struct {
	BookingID      string `json:"booking_id"`
	PaymentRef     string `json:"payment_ref"`
	CapturedAmount int64  `json:"captured_amount"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ScenarioResultDTO is what a loaded scenario left behind.
type ScenarioResultDTO struct {
	Scenario     ScenarioDTO            `json:"scenario"`
	Session      SessionDTO             `json:"session"`
	Booking      BookingDTO             `json:"booking"`
	Cancellation *CancellationResultDTO `json:"cancellation,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSessionDTO(s *booking.Session) SessionDTO {
	return SessionDTO{
		ID:              string(s.ID),
		ProviderID:      s.ProviderID,
		Title:           s.Title,
		Subject:         s.Subject,
		Origin:          string(s.Origin),
		ScheduledAt:     formatTimePtr(s.ScheduledAt),
		DurationMinutes: s.DurationMinutes,
		PriceMinorUnits: s.PriceMinorUnits,
		Currency:        s.Currency,
		Status:          string(s.Status),
		Timezone:        s.Timezone,
		MeetingURL:      s.MeetingURL,
		RescheduleCount: s.RescheduleCount,
		MaxReschedules:  s.MaxReschedules,
		StartedAt:       formatTimePtr(s.StartedAt),
		CompletedAt:     formatTimePtr(s.CompletedAt),
		CancelledAt:     formatTimePtr(s.CancelledAt),
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
		Version:         s.Version,
	}
}

func toSessionDTOs(sessions []booking.Session) []SessionDTO {
	out := make([]SessionDTO, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionDTO(&sessions[i]))
	}
	return out
}

func toBookingDTO(b *booking.Booking) BookingDTO {
	dto := BookingDTO{
		ID:               string(b.ID),
		SessionID:        string(b.SessionID),
		ConsumerID:       b.ConsumerID,
		Status:           string(b.Status),
		AmountMinorUnits: b.AmountMinorUnits,
		Currency:         b.Currency,
		CreatedAt:        formatTime(b.CreatedAt),
		UpdatedAt:        formatTime(b.UpdatedAt),
		Version:          b.Version,
	}
	if p := b.Payment; p != nil {
		ref, captured := p.Ref, p.Captured
		dto.PaymentRef = &ref
		dto.CapturedAmount = &captured
		dto.PaymentCompletedAt = formatTimePtr(&p.CompletedAt)
	}
	if c := b.Cancellation; c != nil {
		dto.Cancellation = &CancellationDTO{
			CancelledAt:      formatTime(c.At),
			CancelledBy:      string(c.By),
			Reason:           c.Reason,
			RefundPercentage: c.RefundPercentage,
			RefundAmount:     c.RefundAmount,
		}
	}
	return dto
}

func toBookingDTOs(bookings []booking.Booking) []BookingDTO {
	out := make([]BookingDTO, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingDTO(&bookings[i]))
	}
	return out
}

func toCancellationResultDTO(o *booking.CancellationOutcome) *CancellationResultDTO {
	if o == nil {
		return nil
	}
	return &CancellationResultDTO{
		Booking:          toBookingDTO(o.Booking),
		Session:          toSessionDTO(o.Session),
		RefundPercentage: o.RefundPercentage,
		RefundAmount:     o.RefundAmount,
		Currency:         o.Booking.Currency,
		NoticeHours:      o.NoticeHours,
	}
}

func toRescheduleDTOs(records []booking.RescheduleRecord) []RescheduleDTO {
	out := make([]RescheduleDTO, 0, len(records))
	for _, r := range records {
		out = append(out, RescheduleDTO{
			ID:        r.ID,
			SessionID: string(r.SessionID),
			From:      formatTime(r.From),
			To:        formatTime(r.To),
			Actor:     string(r.Actor),
			At:        formatTime(r.At),
		})
	}
	return out
}

func toJoinStatusDTO(id booking.BookingID, st booking.JoinStatus) JoinStatusDTO {
	return JoinStatusDTO{
		BookingID:  string(id),
		CanJoin:    st.CanJoin,
		IsUpcoming: st.IsUpcoming,
		IsNoShow:   st.IsNoShow,
		OpensAt:    formatTimePtr(st.OpensAt),
		ClosesAt:   formatTimePtr(st.ClosesAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
