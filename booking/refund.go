/*
refund.go - Refund Policy Engine

PURPOSE:
  Pure function from (notice before the session, cancelling actor) to a
  refund percentage, plus the floor arithmetic that turns a percentage into
  minor units. No state, no I/O, safe to call from any goroutine.

DEFAULT TIERS:
  Provider cancels           -> 100% regardless of notice
  Consumer/System, >= 48h    -> 100%
  Consumer/System, [24h,48h) -> 50%
  Consumer/System, < 24h     -> 0%   (includes negative notice, i.e. past due)

BOUNDARIES:
  Thresholds are inclusive on the higher tier: exactly 48h refunds 100%,
  exactly 24h refunds 50%. Changing >= to > here moves real money.

ROUNDING:
  refund = floor(amount * percentage / 100). Never rounds up, so the refund
  can never exceed the amount.
*/
package booking

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RefundTier refunds Percentage when the cancellation arrives at least
// MinNotice before the session starts.
type RefundTier struct {
	MinNotice  time.Duration
	Percentage int
}

type RefundPolicy struct {
	// Tiers are evaluated from the longest notice down; the first tier whose
	// MinNotice is satisfied wins.
	Tiers []RefundTier

	// FallbackPercentage applies when no tier matches.
	FallbackPercentage int

	// ProviderPercentage applies to every provider-initiated cancellation.
	ProviderPercentage int
}

// DefaultRefundPolicy returns the 48h/24h, 100/50/0 schedule.
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		Tiers: []RefundTier{
			{MinNotice: 48 * time.Hour, Percentage: 100},
			{MinNotice: 24 * time.Hour, Percentage: 50},
		},
		FallbackPercentage: 0,
		ProviderPercentage: 100,
	}
}

// Normalized returns a copy with tiers sorted longest notice first.
func (p RefundPolicy) Normalized() RefundPolicy {
	tiers := make([]RefundTier, len(p.Tiers))
	copy(tiers, p.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinNotice > tiers[j].MinNotice })
	p.Tiers = tiers
	return p
}

func (p RefundPolicy) Validate() error {
	if err := validPercentage("provider_percentage", p.ProviderPercentage); err != nil {
		return err
	}
	if err := validPercentage("fallback_percentage", p.FallbackPercentage); err != nil {
		return err
	}
	n := p.Normalized()
	for i, t := range n.Tiers {
		if t.MinNotice < 0 {
			return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tier %d has negative notice", i)}
		}
		if err := validPercentage("tiers", t.Percentage); err != nil {
			return err
		}
		if i > 0 {
			prev := n.Tiers[i-1]
			if prev.MinNotice == t.MinNotice {
				return &ValidationError{Field: "tiers", Message: fmt.Sprintf("duplicate tier at %s", t.MinNotice)}
			}
			if t.Percentage > prev.Percentage {
				return &ValidationError{Field: "tiers",
					Message: fmt.Sprintf("tier at %s refunds more than tier at %s", t.MinNotice, prev.MinNotice)}
			}
		}
	}
	if len(n.Tiers) > 0 && p.FallbackPercentage > n.Tiers[len(n.Tiers)-1].Percentage {
		return &ValidationError{Field: "fallback_percentage", Message: "fallback refunds more than the shortest-notice tier"}
	}
	return nil
}

func validPercentage(field string, pct int) error {
	if pct < 0 || pct > 100 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("percentage %d outside [0, 100]", pct)}
	}
	return nil
}

// Percentage returns the refund percentage for a cancellation arriving
// `notice` before the session start.
func (p RefundPolicy) Percentage(notice time.Duration, by Actor) int {
	if by == ActorProvider {
		return p.ProviderPercentage
	}
	best := -1
	var bestNotice time.Duration
	for _, t := range p.Tiers {
		if notice >= t.MinNotice && (best < 0 || t.MinNotice > bestNotice) {
			best, bestNotice = t.Percentage, t.MinNotice
		}
	}
	if best < 0 {
		return p.FallbackPercentage
	}
	return best
}

// PercentageForHours is Percentage with the notice expressed in hours.
func (p RefundPolicy) PercentageForHours(hours float64, by Actor) int {
	return p.Percentage(time.Duration(hours*float64(time.Hour)), by)
}

// RefundAmount computes floor(amount * percentage / 100), clamped to
// [0, amount].
func RefundAmount(amount int64, percentage int) int64 {
	if amount <= 0 || percentage <= 0 {
		return 0
	}
	if percentage >= 100 {
		return amount
	}
	refund := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(percentage))).
		Div(hundred).
		Floor().
		IntPart()
	if refund > amount {
		return amount
	}
	return refund
}

// NoticeBefore returns how long before the session `now` is. An unscheduled
// session has nothing to measure against and yields zero notice, which lands
// in the no-refund tier under the default policy.
func NoticeBefore(scheduledAt *time.Time, now time.Time) time.Duration {
	if scheduledAt == nil {
		return 0
	}
	return scheduledAt.Sub(now)
}

// NoticeHours renders a notice duration as hours with two decimals, for
// user-facing cancellation outcomes.
func NoticeHours(notice time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(notice)).
		Div(decimal.NewFromInt(int64(time.Hour))).
		Round(2)
}
