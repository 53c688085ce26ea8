/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts a JSON policy definition into booking.Policy, so a deployment can
  retune refund tiers, the reschedule cap and the join lead time without a
  code change.

JSON SCHEMA:
  {
    "id": "standard",
    "name": "Standard cancellation policy",
    "refund_tiers": [
      {"min_notice_hours": 48, "percentage": 100},
      {"min_notice_hours": 24, "percentage": 50}
    ],
    "fallback_percentage": 0,
    "provider_percentage": 100,
    "max_reschedules": 2,
    "join_lead_minutes": 15
  }

DEFAULTS:
  Omitted fields take the booking.DefaultPolicy value. An explicit empty
  "refund_tiers" array means "no tiers", so every consumer cancellation
  falls through to fallback_percentage.

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(StandardPolicyJSON())
  ledger, err := booking.NewLedger(store, policy)

SEE ALSO:
  - booking/policy.go: Policy type definition
  - booking/refund.go: how tiers are evaluated
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	ID                 string           `json:"id,omitempty"`
	Name               string           `json:"name,omitempty"`
	RefundTiers        []RefundTierJSON `json:"refund_tiers"`
	FallbackPercentage *int             `json:"fallback_percentage,omitempty"`
	ProviderPercentage *int             `json:"provider_percentage,omitempty"`
	MaxReschedules     *int             `json:"max_reschedules,omitempty"`
	JoinLeadMinutes    *int             `json:"join_lead_minutes,omitempty"`
}

// RefundTierJSON uses hours because that is how cancellation policies are
// written for humans. Fractions are allowed ("36.5").
type RefundTierJSON struct {
	MinNoticeHours decimal.Decimal `json:"min_notice_hours"`
	Percentage     int             `json:"percentage"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated booking.Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (booking.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return booking.Policy{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadFile reads a policy from disk. An empty path yields the defaults.
func (f *PolicyFactory) LoadFile(path string) (booking.Policy, error) {
	if path == "" {
		return booking.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return booking.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicy(string(data))
}

// FromJSON converts a PolicyJSON into a booking.Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (booking.Policy, error) {
	p := booking.DefaultPolicy()

	if pj.RefundTiers != nil {
		tiers := make([]booking.RefundTier, 0, len(pj.RefundTiers))
		for _, t := range pj.RefundTiers {
			tiers = append(tiers, booking.RefundTier{
				MinNotice:  hoursToDuration(t.MinNoticeHours),
				Percentage: t.Percentage,
			})
		}
		p.Refund.Tiers = tiers
	}
	if pj.FallbackPercentage != nil {
		p.Refund.FallbackPercentage = *pj.FallbackPercentage
	}
	if pj.ProviderPercentage != nil {
		p.Refund.ProviderPercentage = *pj.ProviderPercentage
	}
	if pj.MaxReschedules != nil {
		p.MaxReschedules = *pj.MaxReschedules
	}
	if pj.JoinLeadMinutes != nil {
		p.JoinLeadTime = time.Duration(*pj.JoinLeadMinutes) * time.Minute
	}

	p.Refund = p.Refund.Normalized()
	if err := p.Validate(); err != nil {
		return booking.Policy{}, err
	}
	return p, nil
}

// ToJSON converts a booking.Policy back into its JSON form.
func (f *PolicyFactory) ToJSON(p booking.Policy) PolicyJSON {
	n := p.Refund.Normalized()
	tiers := make([]RefundTierJSON, 0, len(n.Tiers))
	for _, t := range n.Tiers {
		tiers = append(tiers, RefundTierJSON{
			MinNoticeHours: booking.NoticeHours(t.MinNotice),
			Percentage:     t.Percentage,
		})
	}
	fallback := n.FallbackPercentage
	provider := n.ProviderPercentage
	maxReschedules := p.MaxReschedules
	lead := int(p.JoinLeadTime / time.Minute)
	return PolicyJSON{
		RefundTiers:        tiers,
		FallbackPercentage: &fallback,
		ProviderPercentage: &provider,
		MaxReschedules:     &maxReschedules,
		JoinLeadMinutes:    &lead,
	}
}

func hoursToDuration(h decimal.Decimal) time.Duration {
	return time.Duration(h.Mul(decimal.NewFromInt(int64(time.Hour))).IntPart())
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardPolicyJSON is the 48h/24h, 100/50/0 schedule with two reschedules.
func StandardPolicyJSON() string {
	return `{
		"id": "standard",
		"name": "Standard cancellation policy",
		"refund_tiers": [
			{"min_notice_hours": 48, "percentage": 100},
			{"min_notice_hours": 24, "percentage": 50}
		],
		"fallback_percentage": 0,
		"provider_percentage": 100,
		"max_reschedules": 2,
		"join_lead_minutes": 15
	}`
}

// StrictPolicyJSON refunds only with a week's notice and allows one
// reschedule.
func StrictPolicyJSON() string {
	return `{
		"id": "strict",
		"name": "Strict cancellation policy",
		"refund_tiers": [
			{"min_notice_hours": 168, "percentage": 100},
			{"min_notice_hours": 72, "percentage": 25}
		],
		"fallback_percentage": 0,
		"provider_percentage": 100,
		"max_reschedules": 1,
		"join_lead_minutes": 10
	}`
}
