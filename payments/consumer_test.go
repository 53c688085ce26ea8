package payments_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/booking/store"
	"github.com/warp/session-engine/payments"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// =============================================================================
// FAKES
// =============================================================================

type confirmCall struct {
	id       booking.BookingID
	ref      string
	captured int64
}

type fakeConfirmer struct {
	mu    sync.Mutex
	calls []confirmCall
	errs  []error
}

func (f *fakeConfirmer) ConfirmPayment(_ context.Context, id booking.BookingID, ref string, captured int64, _ time.Time) (*booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, confirmCall{id, ref, captured})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &booking.Booking{ID: id, Status: booking.BookingConfirmed}, nil
}

func (f *fakeConfirmer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeReader serves its messages once, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func captured(t *testing.T, offset int64, ev payments.Captured) kafka.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(ev.BookingID), Value: value}
}

func newConsumer(r payments.MessageReader, c payments.Confirmer) *payments.Consumer {
	return payments.NewConsumer(r, c, nil,
		payments.WithClock(func() time.Time { return now }),
		payments.WithRetry(2, time.Millisecond))
}

// =============================================================================
// HANDLE MESSAGE
// =============================================================================

func TestHandleMessage_AppliesCapture(t *testing.T) {
	c := &fakeConfirmer{}
	msg := captured(t, 1, payments.Captured{
		EventType: payments.EventPaymentCaptured, BookingID: "b1", PaymentRef: "pay_1", CapturedAmount: 5000,
	})

	err := newConsumer(&fakeReader{}, c).HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, c.calls, 1)
	assert.Equal(t, confirmCall{"b1", "pay_1", 5000}, c.calls[0])
}

func TestHandleMessage_ErrorClassification(t *testing.T) {
	infra := errors.New("disk full")
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"mismatch is final", &booking.PaymentMismatchError{BookingID: "b1", Expected: 5000, Captured: 10}, false},
		{"already finalized is final", &booking.ConflictError{Reason: booking.ReasonAlreadyFinalized}, false},
		{"unknown booking is final", booking.BookingNotFound("b1"), false},
		{"lost race is retried", &booking.ConflictError{Reason: booking.ReasonConcurrentModification}, true},
		{"infrastructure is retried", infra, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConfirmer{errs: []error{tt.err}}
			msg := captured(t, 1, payments.Captured{EventType: payments.EventPaymentCaptured, BookingID: "b1", PaymentRef: "pay_1"})

			err := newConsumer(&fakeReader{}, c).HandleMessage(context.Background(), msg)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandleMessage_SkipsMalformedAndForeignEvents(t *testing.T) {
	c := &fakeConfirmer{}
	consumer := newConsumer(&fakeReader{}, c)

	require.NoError(t, consumer.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}))
	require.NoError(t, consumer.HandleMessage(context.Background(),
		captured(t, 2, payments.Captured{EventType: "payment.refunded", BookingID: "b1"})))

	assert.Zero(t, c.count())
}

// =============================================================================
// RUN LOOP
// =============================================================================

func TestRun_RetriesThenCommitsEveryMessage(t *testing.T) {
	// GIVEN: Two messages, the first failing once before succeeding
	c := &fakeConfirmer{errs: []error{errors.New("transient"), nil, nil}}
	r := &fakeReader{msgs: []kafka.Message{
		captured(t, 10, payments.Captured{EventType: payments.EventPaymentCaptured, BookingID: "b1", PaymentRef: "pay_1"}),
		captured(t, 11, payments.Captured{EventType: payments.EventPaymentCaptured, BookingID: "b2", PaymentRef: "pay_2"}),
	}}
	consumer := newConsumer(r, c)

	// WHEN: The loop runs until both are committed
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	// THEN: Both offsets committed in order, three confirm attempts, clean exit
	require.NoError(t, <-done)
	assert.Equal(t, []int64{10, 11}, r.commits())
	assert.Equal(t, 3, c.count())

	require.NoError(t, consumer.Close())
	assert.True(t, r.closed)
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	c := &fakeConfirmer{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}
	r := &fakeReader{msgs: []kafka.Message{
		captured(t, 7, payments.Captured{EventType: payments.EventPaymentCaptured, BookingID: "b1", PaymentRef: "pay_1"}),
	}}
	consumer := newConsumer(r, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, 3, c.count(), "one attempt plus two retries")
}

// =============================================================================
// AGAINST A REAL LEDGER
// =============================================================================

func TestHandleMessage_ConfirmsThroughLedger(t *testing.T) {
	// GIVEN: A pending booking in a real ledger
	ctx := context.Background()
	l, err := booking.NewLedger(store.NewMemory(), booking.DefaultPolicy())
	require.NoError(t, err)
	s, err := l.Catalog().CreateScheduledSession(ctx, booking.SessionInput{
		ProviderID: "prov-1", Title: "Maths", DurationMinutes: 60, PriceMinorUnits: 5000, Currency: "USD",
	}, now.Add(72*time.Hour), now)
	require.NoError(t, err)
	b, err := l.CreateBooking(ctx, booking.CreateBookingRequest{SessionID: s.ID, ConsumerID: "cons-1", Now: now})
	require.NoError(t, err)
	consumer := newConsumer(&fakeReader{}, l)
	msg := captured(t, 1, payments.Captured{
		EventType: payments.EventPaymentCaptured, BookingID: string(b.ID), PaymentRef: "pay_ledger", CapturedAmount: 5000,
	})

	// WHEN: The capture is delivered twice
	require.NoError(t, consumer.HandleMessage(ctx, msg))
	require.NoError(t, consumer.HandleMessage(ctx, msg))

	// THEN: The booking is confirmed once
	got, err := l.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingConfirmed, got.Status)
	assert.Equal(t, "pay_ledger", got.Payment.Ref)
	assert.Equal(t, int64(2), got.Version)
}
