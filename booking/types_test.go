package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// ENUM PARSING
// =============================================================================

func TestParseSessionStatus_CollapsesCasing(t *testing.T) {
	tests := map[string]booking.SessionStatus{
		"scheduled":   booking.SessionScheduled,
		"Scheduled":   booking.SessionScheduled,
		" COMPLETED ": booking.SessionCompleted,
		"In-Progress": booking.SessionInProgress,
		"in progress": booking.SessionInProgress,
		"InProgress":  booking.SessionInProgress,
	}
	for raw, want := range tests {
		got, err := booking.ParseSessionStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := booking.ParseSessionStatus("paused")
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestParseBookingStatus_CollapsesCasing(t *testing.T) {
	tests := map[string]booking.BookingStatus{
		"PendingPayment":  booking.BookingPendingPayment,
		"pending-payment": booking.BookingPendingPayment,
		"pending":         booking.BookingPendingPayment,
		"Refunded":        booking.BookingRefunded,
	}
	for raw, want := range tests {
		got, err := booking.ParseBookingStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := booking.ParseBookingStatus("void")
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestParseActor(t *testing.T) {
	a, err := booking.ParseActor("Provider")
	require.NoError(t, err)
	assert.Equal(t, booking.ActorProvider, a)

	_, err = booking.ParseActor("admin")
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, booking.SessionCompleted.IsTerminal())
	assert.True(t, booking.SessionCancelled.IsTerminal())
	assert.False(t, booking.SessionScheduled.IsTerminal())

	assert.True(t, booking.BookingPendingPayment.IsActive())
	assert.True(t, booking.BookingConfirmed.IsActive())
	assert.True(t, booking.BookingRefunded.IsFinal())
}

// =============================================================================
// AGGREGATE VALIDATION
// =============================================================================

func TestBookingValidate_ConfirmedRequiresPayment(t *testing.T) {
	b := &booking.Booking{ID: "b1", SessionID: "s1", Status: booking.BookingConfirmed, AmountMinorUnits: 5000}

	var ve *booking.ValidationError
	require.ErrorAs(t, b.Validate(), &ve)
	assert.Equal(t, "payment", ve.Field)

	b.Payment = &booking.Payment{Ref: "pay_1", Captured: 5000, CompletedAt: time.Now()}
	assert.NoError(t, b.Validate())
}

func TestBookingValidate_RefundedRequiresPositiveRefund(t *testing.T) {
	b := &booking.Booking{
		ID: "b1", SessionID: "s1", Status: booking.BookingRefunded, AmountMinorUnits: 3000,
		Cancellation: &booking.Cancellation{By: booking.ActorConsumer, RefundPercentage: 0, RefundAmount: 0},
	}
	assert.ErrorIs(t, b.Validate(), booking.ErrValidation)

	b.Status = booking.BookingCancelled
	assert.NoError(t, b.Validate())
}

func TestBookingValidate_RefundCannotExceedAmount(t *testing.T) {
	b := &booking.Booking{
		ID: "b1", SessionID: "s1", Status: booking.BookingRefunded, AmountMinorUnits: 3000,
		Cancellation: &booking.Cancellation{RefundPercentage: 100, RefundAmount: 3001},
	}
	var ve *booking.ValidationError
	require.ErrorAs(t, b.Validate(), &ve)
	assert.Equal(t, "refund_amount", ve.Field)
}

func TestSessionValidate(t *testing.T) {
	s := &booking.Session{ID: "s1", Status: booking.SessionScheduled, DurationMinutes: 60, MaxReschedules: 2}

	var ve *booking.ValidationError
	require.ErrorAs(t, s.Validate(), &ve)
	assert.Equal(t, "scheduled_at", ve.Field)

	at := time.Now()
	s.ScheduledAt = &at
	s.RescheduleCount = 3
	require.ErrorAs(t, s.Validate(), &ve)
	assert.Equal(t, "reschedule_count", ve.Field)

	s.RescheduleCount = 2
	assert.NoError(t, s.Validate())
}

func TestSession_PastDue(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s := &booking.Session{ScheduledAt: &at, DurationMinutes: 60}

	assert.False(t, s.PastDue(at.Add(time.Hour)))
	assert.True(t, s.PastDue(at.Add(time.Hour+time.Nanosecond)))
	assert.False(t, (&booking.Session{DurationMinutes: 60}).PastDue(at))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	conflict := &booking.ConflictError{Reason: booking.ReasonSessionAlreadyBooked}
	reason, ok := booking.ConflictReasonOf(conflict)
	assert.True(t, ok)
	assert.Equal(t, booking.ReasonSessionAlreadyBooked, reason)
	assert.True(t, booking.IsClientError(conflict))

	assert.True(t, booking.IsNotFound(booking.SessionNotFound("s1")))
	assert.True(t, booking.IsClientError(&booking.PaymentMismatchError{}))
	assert.True(t, booking.IsRetryable(booking.ErrConcurrentModification))
	assert.False(t, booking.IsClientError(booking.ErrConcurrentModification))
}
