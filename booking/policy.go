package booking

import (
	"fmt"
	"time"
)

// =============================================================================
// POLICY - Tunables injected at construction time
// =============================================================================

// Policy bundles every deployment-tunable constant the engine consults.
// Build one with DefaultPolicy or factory.PolicyFactory; never reach for
// package-level literals.
type Policy struct {
	Refund RefundPolicy

	// MaxReschedules is stamped onto each new session.
	MaxReschedules int

	// JoinLeadTime is how early a confirmed consumer may enter the room.
	JoinLeadTime time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Refund:         DefaultRefundPolicy(),
		MaxReschedules: 2,
		JoinLeadTime:   15 * time.Minute,
	}
}

func (p Policy) Validate() error {
	if err := p.Refund.Validate(); err != nil {
		return err
	}
	if p.MaxReschedules < 0 {
		return &ValidationError{Field: "max_reschedules", Message: fmt.Sprintf("cannot be negative, got %d", p.MaxReschedules)}
	}
	if p.JoinLeadTime < 0 {
		return &ValidationError{Field: "join_lead_time", Message: fmt.Sprintf("cannot be negative, got %s", p.JoinLeadTime)}
	}
	return nil
}

func (p Policy) JoinWindow() JoinWindow {
	return JoinWindow{LeadTime: p.JoinLeadTime}
}
