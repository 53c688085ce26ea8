package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
)

func joinFixture(status booking.BookingStatus) (*booking.Session, *booking.Booking) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s := &booking.Session{ID: "s1", ScheduledAt: &at, DurationMinutes: 60, Status: booking.SessionScheduled}
	b := &booking.Booking{ID: "b1", SessionID: "s1", Status: status}
	return s, b
}

func TestJoinWindow_Evaluate(t *testing.T) {
	w := booking.JoinWindow{LeadTime: 15 * time.Minute}
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		canJoin  bool
		upcoming bool
		noShow   bool
	}{
		{"an hour before", start.Add(-time.Hour), false, true, false},
		{"exactly at lead", start.Add(-15 * time.Minute), true, true, false},
		{"mid session", start.Add(30 * time.Minute), true, false, false},
		{"exactly at end", start.Add(time.Hour), true, false, false},
		{"after end, never started", start.Add(time.Hour + time.Second), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := joinFixture(booking.BookingConfirmed)
			st := w.Evaluate(s, b, tt.now)
			assert.Equal(t, tt.canJoin, st.CanJoin, "canJoin")
			assert.Equal(t, tt.upcoming, st.IsUpcoming, "isUpcoming")
			assert.Equal(t, tt.noShow, st.IsNoShow, "isNoShow")
		})
	}
}

func TestJoinWindow_PendingBookingCannotJoin(t *testing.T) {
	// GIVEN: A booking that has not been paid
	s, b := joinFixture(booking.BookingPendingPayment)
	w := booking.JoinWindow{LeadTime: 15 * time.Minute}

	// WHEN: Evaluated inside the window
	st := w.Evaluate(s, b, s.ScheduledAt.Add(5*time.Minute))

	// THEN: Not joinable and not upcoming
	assert.False(t, st.CanJoin)
	assert.False(t, st.IsUpcoming)
	require.NotNil(t, st.OpensAt)
	assert.Equal(t, s.ScheduledAt.Add(-15*time.Minute), *st.OpensAt)
}

func TestJoinWindow_StartedSessionIsNotNoShow(t *testing.T) {
	s, b := joinFixture(booking.BookingConfirmed)
	started := *s.ScheduledAt
	s.StartedAt = &started

	st := booking.JoinWindow{}.Evaluate(s, b, s.ScheduledAt.Add(3*time.Hour))
	assert.False(t, st.IsNoShow)
}

func TestJoinWindow_UnscheduledSession(t *testing.T) {
	s := &booking.Session{ID: "s1", DurationMinutes: 60, Status: booking.SessionOpen}
	st := booking.JoinWindow{LeadTime: time.Minute}.Evaluate(s, nil, time.Now())
	assert.Equal(t, booking.JoinStatus{}, st)
}
