/*
Package payments consumes the payment processor's capture events from Kafka
and applies them through Ledger.ConfirmPayment.

MESSAGE:
  key:   booking id
  value: {"event_type": "payment.captured", "booking_id": "...",
          "payment_ref": "pay_1", "captured_amount": 5000}

ERROR POLICY:
  - malformed JSON, unknown event types and domain rejections (mismatch,
    already finalized, unknown booking) are logged and committed; a retry
    would only repeat the same answer
  - anything else is retried in-process with backoff, then logged and
    committed so one bad message cannot wedge the partition

Replays are safe: ConfirmPayment is idempotent on (booking, payment_ref).
*/
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/logger"
)

const EventPaymentCaptured = "payment.captured"

// Captured is the processor's capture callback.
type Captured struct {
	EventType      string `json:"event_type"`
	BookingID      string `json:"booking_id"`
	PaymentRef     string `json:"payment_ref"`
	CapturedAmount int64  `json:"captured_amount"`
}

// Confirmer is implemented by *booking.Ledger.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, id booking.BookingID, ref string, captured int64, now time.Time) (*booking.Booking, error)
}

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string, log *logger.Logger) *kafka.Reader {
	log = logger.OrDiscard(log)
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Logger:         kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka_reader", "topic", topic)
		}),
	})
}

type Consumer struct {
	reader     MessageReader
	confirmer  Confirmer
	log        *logger.Logger
	now        func() time.Time
	maxRetries int
	backoff    time.Duration
}

type Option func(*Consumer)

func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Consumer) { c.maxRetries, c.backoff = maxRetries, backoff }
}

func NewConsumer(r MessageReader, confirmer Confirmer, log *logger.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		reader:     r,
		confirmer:  confirmer,
		log:        logger.OrDiscard(log).With("component", "payments_consumer"),
		now:        time.Now,
		maxRetries: 3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("payments consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("payments consumer stopped")
				return nil
			}
			c.log.Error("fetch failed", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	for attempt := 0; ; attempt++ {
		err := c.HandleMessage(ctx, msg)
		if err == nil {
			return
		}
		if attempt >= c.maxRetries || !sleep(ctx, c.backoff) {
			c.log.Error("giving up on payment message",
				"offset", msg.Offset, "partition", msg.Partition, "attempts", attempt+1, "error", err)
			return
		}
		c.log.Warn("retrying payment message", "attempt", attempt+1, "error", err)
	}
}

// HandleMessage applies one message. It returns an error only for failures
// worth retrying.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var ev Captured
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Warn("discarding malformed payment message", "offset", msg.Offset, "error", err)
		return nil
	}
	if ev.EventType != EventPaymentCaptured {
		c.log.Debug("ignoring payment event", "event_type", ev.EventType)
		return nil
	}

	b, err := c.confirmer.ConfirmPayment(ctx, booking.BookingID(ev.BookingID), ev.PaymentRef, ev.CapturedAmount, c.now())
	switch {
	case err == nil:
		c.log.Info("payment applied", "booking_id", b.ID, "payment_ref", ev.PaymentRef, "status", b.Status)
		return nil
	case isConcurrencyConflict(err):
		return err
	case booking.IsClientError(err) || booking.IsNotFound(err):
		c.log.Warn("payment rejected", "booking_id", ev.BookingID, "payment_ref", ev.PaymentRef, "error", err)
		return nil
	default:
		return err
	}
}

func isConcurrencyConflict(err error) bool {
	reason, ok := booking.ConflictReasonOf(err)
	return ok && reason == booking.ReasonConcurrentModification
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
