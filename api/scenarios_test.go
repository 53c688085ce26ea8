/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the expected state behind:
	- Session status after the scripted walk
	- Booking status and refund figures
	- Reset clears the previous scenario

These tests double as integration tests over the SQLite store.
*/
package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/store/sqlite"
)

var scenarioNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger, err := booking.NewLedger(store, booking.DefaultPolicy())
	require.NoError(t, err)
	return NewHandler(ledger, store, WithClock(func() time.Time { return scenarioNow }))
}

func load(t *testing.T, h *Handler, id string) *ScenarioResultDTO {
	t.Helper()
	dto, ok := findScenario(id)
	require.True(t, ok, id)
	result, err := h.loadScenario(context.Background(), dto, scenarioScripts[id])
	require.NoError(t, err, id)
	return result
}

func TestScenario_Refunds(t *testing.T) {
	tests := []struct {
		id            string
		pct           int
		amount        int64
		bookingStatus string
		sessionStatus string
	}{
		{"full-refund", 100, 5000, "refunded", "cancelled"},
		{"partial-refund", 50, 2000, "refunded", "cancelled"},
		{"no-refund", 0, 0, "cancelled", "cancelled"},
		{"provider-cancel", 100, 6000, "refunded", "cancelled"},
		{"open-slot-return", 100, 5000, "refunded", "open"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			// GIVEN: A fresh handler
			h := setupTestHandler(t)

			// WHEN: The scenario is loaded
			result := load(t, h, tt.id)

			// THEN: The refund follows the notice tiers and actor
			require.NotNil(t, result.Cancellation)
			assert.Equal(t, tt.pct, result.Cancellation.RefundPercentage)
			assert.Equal(t, tt.amount, result.Cancellation.RefundAmount)
			assert.Equal(t, tt.bookingStatus, result.Booking.Status)
			assert.Equal(t, tt.sessionStatus, result.Session.Status)
		})
	}
}

func TestScenario_ConfirmedLeavesBookingActive(t *testing.T) {
	h := setupTestHandler(t)

	result := load(t, h, "confirmed")

	assert.Nil(t, result.Cancellation)
	assert.Equal(t, "confirmed", result.Booking.Status)
	assert.Equal(t, "scheduled", result.Session.Status)
	require.NotNil(t, result.Booking.PaymentRef)
	assert.Equal(t, "pay_confirmed", *result.Booking.PaymentRef)
}

func TestScenario_LoadingResetsPreviousData(t *testing.T) {
	// GIVEN: One scenario already loaded
	h := setupTestHandler(t)
	first := load(t, h, "confirmed")

	// WHEN: Another is loaded
	load(t, h, "full-refund")

	// THEN: The first scenario's session is gone
	_, err := h.Ledger.GetSession(context.Background(), booking.SessionID(first.Session.ID))
	assert.True(t, booking.IsNotFound(err))
	sessions, err := h.Ledger.ListSessions(context.Background(), booking.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	h := setupTestHandler(t)
	for _, sc := range scenarios {
		_, ok := scenarioScripts[sc.ID]
		require.True(t, ok, "scenario %s has no script", sc.ID)
		load(t, h, sc.ID)
	}
}
