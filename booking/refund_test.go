package booking_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// TIER SELECTION
// =============================================================================

func TestRefundPolicy_ConsumerTiers(t *testing.T) {
	p := booking.DefaultRefundPolicy()

	tests := []struct {
		name   string
		notice time.Duration
		want   int
	}{
		{"well ahead", 72 * time.Hour, 100},
		{"exactly 48h", 48 * time.Hour, 100},
		{"just under 48h", 48*time.Hour - time.Second, 50},
		{"exactly 24h", 24 * time.Hour, 50},
		{"just under 24h", 24*time.Hour - time.Second, 0},
		{"an hour out", time.Hour, 0},
		{"already started", -30 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Percentage(tt.notice, booking.ActorConsumer))
		})
	}
}

func TestRefundPolicy_ProviderAlwaysFull(t *testing.T) {
	// GIVEN: The default policy
	p := booking.DefaultRefundPolicy()

	// WHEN/THEN: A provider cancels at any notice, the refund is 100 %
	for _, notice := range []time.Duration{72 * time.Hour, 2 * time.Hour, -time.Hour} {
		assert.Equal(t, 100, p.Percentage(notice, booking.ActorProvider))
	}
}

func TestRefundPolicy_SystemUsesConsumerTiers(t *testing.T) {
	p := booking.DefaultRefundPolicy()
	assert.Equal(t, 50, p.Percentage(30*time.Hour, booking.ActorSystem))
}

func TestRefundPolicy_UnsortedTiersStillPickLongestSatisfied(t *testing.T) {
	// GIVEN: Tiers declared shortest first
	p := booking.RefundPolicy{
		Tiers: []booking.RefundTier{
			{MinNotice: 24 * time.Hour, Percentage: 50},
			{MinNotice: 48 * time.Hour, Percentage: 100},
		},
		ProviderPercentage: 100,
	}

	// THEN: Order does not matter
	assert.Equal(t, 100, p.Percentage(50*time.Hour, booking.ActorConsumer))
	assert.Equal(t, 50, p.Percentage(30*time.Hour, booking.ActorConsumer))
}

func TestRefundPolicy_PercentageForHours(t *testing.T) {
	p := booking.DefaultRefundPolicy()
	assert.Equal(t, 100, p.PercentageForHours(50, booking.ActorConsumer))
	assert.Equal(t, 50, p.PercentageForHours(30, booking.ActorConsumer))
	assert.Equal(t, 0, p.PercentageForHours(10, booking.ActorConsumer))
}

// =============================================================================
// POLICY VALIDATION
// =============================================================================

func TestRefundPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy booking.RefundPolicy
		field  string
	}{
		{
			name:   "provider above 100",
			policy: booking.RefundPolicy{ProviderPercentage: 101},
			field:  "provider_percentage",
		},
		{
			name: "duplicate tier",
			policy: booking.RefundPolicy{ProviderPercentage: 100, Tiers: []booking.RefundTier{
				{MinNotice: time.Hour, Percentage: 50},
				{MinNotice: time.Hour, Percentage: 40},
			}},
			field: "tiers",
		},
		{
			name: "shorter notice refunds more",
			policy: booking.RefundPolicy{ProviderPercentage: 100, Tiers: []booking.RefundTier{
				{MinNotice: 48 * time.Hour, Percentage: 50},
				{MinNotice: 24 * time.Hour, Percentage: 80},
			}},
			field: "tiers",
		},
		{
			name: "fallback above last tier",
			policy: booking.RefundPolicy{ProviderPercentage: 100, FallbackPercentage: 60, Tiers: []booking.RefundTier{
				{MinNotice: 24 * time.Hour, Percentage: 50},
			}},
			field: "fallback_percentage",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			var ve *booking.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	require.NoError(t, booking.DefaultRefundPolicy().Validate())
}

// =============================================================================
// AMOUNTS
// =============================================================================

func TestRefundAmount(t *testing.T) {
	tests := []struct {
		amount int64
		pct    int
		want   int64
	}{
		{5000, 100, 5000},
		{4000, 50, 2000},
		{3000, 0, 0},
		{999, 50, 499}, // floor, never round up
		{1, 33, 0},
		{0, 100, 0},
		{5000, 150, 5000},
		{5000, -10, 0},
	}
	for _, tt := range tests {
		got := booking.RefundAmount(tt.amount, tt.pct)
		assert.Equal(t, tt.want, got, "RefundAmount(%d, %d)", tt.amount, tt.pct)
		assert.LessOrEqual(t, got, max(tt.amount, 0))
		assert.GreaterOrEqual(t, got, int64(0))
	}
}

func TestNoticeBefore(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	at := now.Add(30 * time.Hour)

	assert.Equal(t, 30*time.Hour, booking.NoticeBefore(&at, now))
	assert.Equal(t, time.Duration(0), booking.NoticeBefore(nil, now))
}

func TestNoticeHours_RoundsToTwoPlaces(t *testing.T) {
	got := booking.NoticeHours(90*time.Minute + 20*time.Second)
	assert.True(t, decimal.RequireFromString("1.51").Equal(got), "got %s", got)
}
