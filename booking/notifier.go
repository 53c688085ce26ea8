package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// NOTIFIER - Fire-and-forget event sink
// =============================================================================

type EventType string

const (
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingCancelled   EventType = "booking.cancelled"
	EventSessionRescheduled EventType = "session.rescheduled"
	EventSessionCompleted   EventType = "session.completed"
)

// Event is the record handed to the Notifier after a transaction commits.
type Event struct {
	ID          string
	Type        EventType
	BookingID   BookingID
	SessionID   SessionID
	RecipientID string
	Payload     map[string]any
	OccurredAt  time.Time
}

func newEvent(t EventType, b *Booking, recipient string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		BookingID:   b.ID,
		SessionID:   b.SessionID,
		RecipientID: recipient,
		Payload:     payload,
		OccurredAt:  at,
	}
}

// Notifier delivers events. Delivery is best-effort: the Ledger logs a
// returned error and moves on, it never retries or rolls back.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// =============================================================================
// CONFERENCING - Room provisioning collaborator
// =============================================================================

// Conferencing hands out a meeting URL when a session starts. The protocol
// behind it is the provider's business.
type Conferencing interface {
	RoomURL(ctx context.Context, s *Session) (string, error)
}

// URLTemplateRooms derives a deterministic room URL from the session id.
type URLTemplateRooms struct {
	BaseURL string
}

func (r URLTemplateRooms) RoomURL(_ context.Context, s *Session) (string, error) {
	return r.BaseURL + "/" + string(s.ID), nil
}
