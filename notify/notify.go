/*
Package notify provides booking.Notifier sinks.

SINKS:
  Kafka: publishes each event as JSON keyed by booking id
  Log:   writes each event as a structured log line
  Async: decouples the caller from a slow sink through a bounded queue
  Multi: fans one event out to several sinks

COMPOSITION:
  notifier := notify.NewAsync(
      notify.Multi{notify.NewLog(log), notify.NewKafka(writer, "session-engine")},
      256, log,
  )
  defer notifier.Close(ctx)

  ledger, _ := booking.NewLedger(store, policy, booking.WithNotifier(notifier))

Delivery is best-effort everywhere. No sink retries on its own.
*/
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/logger"
)

// Envelope is the wire form of a booking.Event.
type Envelope struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	BookingID   string         `json:"booking_id"`
	SessionID   string         `json:"session_id"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

func NewEnvelope(e booking.Event) Envelope {
	return Envelope{
		ID:          e.ID,
		Type:        string(e.Type),
		BookingID:   string(e.BookingID),
		SessionID:   string(e.SessionID),
		RecipientID: e.RecipientID,
		Payload:     e.Payload,
		OccurredAt:  e.OccurredAt.UTC(),
	}
}

// =============================================================================
// LOG
// =============================================================================

type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{log: logger.OrDiscard(log)}
}

func (l *Log) Notify(ctx context.Context, e booking.Event) error {
	l.log.InfoContext(ctx, "booking event",
		"event_id", e.ID,
		"event_type", e.Type,
		"booking_id", e.BookingID,
		"session_id", e.SessionID,
		"recipient_id", e.RecipientID,
		"payload", e.Payload,
	)
	return nil
}

// =============================================================================
// MULTI
// =============================================================================

// Multi delivers to every sink and joins their errors.
type Multi []booking.Notifier

func (m Multi) Notify(ctx context.Context, e booking.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
