package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/booking/store"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openSession(id booking.SessionID) *booking.Session {
	return &booking.Session{
		ID:              id,
		ProviderID:      "prov-1",
		Title:           "Chemistry",
		Origin:          booking.OriginOpenSlot,
		DurationMinutes: 45,
		PriceMinorUnits: 2500,
		Currency:        "EUR",
		Status:          booking.SessionOpen,
		Timezone:        "UTC",
		MaxReschedules:  2,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func pendingBooking(id booking.BookingID, sessionID booking.SessionID) *booking.Booking {
	return &booking.Booking{
		ID:               id,
		SessionID:        sessionID,
		ConsumerID:       "cons-1",
		Status:           booking.BookingPendingPayment,
		AmountMinorUnits: 2500,
		Currency:         "EUR",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestMemory_InsertAndGet_ReturnsCopies(t *testing.T) {
	// GIVEN: A stored session
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))

	// WHEN: A caller mutates what it read
	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.Title = "mutated"

	// THEN: The store is unaffected
	again, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Chemistry", again.Title)
	assert.Equal(t, int64(1), again.Version)
}

func TestMemory_StaleUpdate_ConcurrentModification(t *testing.T) {
	// GIVEN: Two readers holding version 1
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))
	a, _ := m.GetSession(ctx, "s1")
	b, _ := m.GetSession(ctx, "s1")

	// WHEN: Both write
	a.Title = "first"
	require.NoError(t, m.UpdateSession(ctx, a))
	b.Title = "second"
	err := m.UpdateSession(ctx, b)

	// THEN: The second loses
	assert.ErrorIs(t, err, booking.ErrConcurrentModification)
	got, _ := m.GetSession(ctx, "s1")
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemory_SecondActiveBooking_Rejected(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))
	require.NoError(t, m.InsertBooking(ctx, pendingBooking("b1", "s1")))

	err := m.InsertBooking(ctx, pendingBooking("b2", "s1"))

	assert.ErrorIs(t, err, booking.ErrConcurrentModification)
	active, err := m.ActiveBooking(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID("b1"), active.ID)
}

func TestMemory_DuplicatePaymentRef_Rejected(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	for _, id := range []booking.SessionID{"s1", "s2"} {
		require.NoError(t, m.InsertSession(ctx, openSession(id)))
	}
	b1 := pendingBooking("b1", "s1")
	b1.Status = booking.BookingConfirmed
	b1.Payment = &booking.Payment{Ref: "pay_1", Captured: 2500, CompletedAt: now}
	require.NoError(t, m.InsertBooking(ctx, b1))

	b2 := pendingBooking("b2", "s2")
	b2.Status = booking.BookingConfirmed
	b2.Payment = &booking.Payment{Ref: "pay_1", Captured: 2500, CompletedAt: now}

	assert.ErrorIs(t, m.InsertBooking(ctx, b2), booking.ErrConcurrentModification)

	found, err := m.BookingByPaymentRef(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID("b1"), found.ID)
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A session
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))

	// WHEN: A transaction writes and then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(st booking.Store) error {
		s, err := st.GetSession(ctx, "s1")
		require.NoError(t, err)
		s.Title = "staged"
		require.NoError(t, st.UpdateSession(ctx, s))

		inside, err := st.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "staged", inside.Title, "a transaction sees its own writes")
		return boom
	})

	// THEN: Nothing was applied
	assert.ErrorIs(t, err, boom)
	got, _ := m.GetSession(ctx, "s1")
	assert.Equal(t, "Chemistry", got.Title)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemory_WithTx_CommitDetectsInterleavedWrite(t *testing.T) {
	// GIVEN: A transaction that read version 1
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))

	err := m.WithTx(ctx, func(st booking.Store) error {
		s, err := st.GetSession(ctx, "s1")
		require.NoError(t, err)

		// WHEN: Another writer commits in between
		other, _ := m.GetSession(ctx, "s1")
		other.Title = "outside"
		require.NoError(t, m.UpdateSession(ctx, other))

		s.Title = "inside"
		return st.UpdateSession(ctx, s)
	})

	// THEN: The transaction loses
	assert.ErrorIs(t, err, booking.ErrConcurrentModification)
	got, _ := m.GetSession(ctx, "s1")
	assert.Equal(t, "outside", got.Title)
}

func TestMemory_ListPaging(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	for i, id := range []booking.SessionID{"s1", "s2", "s3"} {
		s := openSession(id)
		s.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.InsertSession(ctx, s))
	}

	page, err := m.ListSessions(ctx, booking.SessionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, booking.SessionID("s2"), page[0].ID)
	assert.Equal(t, booking.SessionID("s3"), page[1].ID)
}

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertSession(ctx, openSession("s1")))

	require.NoError(t, m.Reset(ctx))

	_, err := m.GetSession(ctx, "s1")
	assert.True(t, booking.IsNotFound(err))
}

func TestMemory_CancelledContext(t *testing.T) {
	m := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WithTx(ctx, func(booking.Store) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}
