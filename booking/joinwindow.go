package booking

import "time"

// =============================================================================
// JOIN WINDOW - Advisory projection over (Session, Booking, now)
// =============================================================================

// JoinWindow computes whether a booking may enter its session. It reads the
// two entities and never writes; results can be recomputed at any time.
type JoinWindow struct {
	LeadTime time.Duration
}

type JoinStatus struct {
	CanJoin    bool
	IsUpcoming bool
	IsNoShow   bool
	OpensAt    *time.Time
	ClosesAt   *time.Time
}

// Evaluate projects the join state. A nil booking or an unscheduled session
// can never be joined.
//
//	canJoin    = confirmed ∧ now ∈ [scheduledAt − lead, scheduledAt + duration]
//	isUpcoming = confirmed ∧ scheduledAt > now
//	isNoShow   = scheduledAt + duration < now ∧ session never started
func (w JoinWindow) Evaluate(s *Session, b *Booking, now time.Time) JoinStatus {
	var st JoinStatus
	if s == nil || s.ScheduledAt == nil {
		return st
	}
	opens := s.ScheduledAt.Add(-w.LeadTime)
	closes := s.ScheduledAt.Add(s.Duration())
	st.OpensAt, st.ClosesAt = &opens, &closes

	confirmed := b != nil && b.Status == BookingConfirmed
	st.CanJoin = confirmed && !now.Before(opens) && !now.After(closes)
	st.IsUpcoming = confirmed && s.ScheduledAt.After(now)
	st.IsNoShow = closes.Before(now) && s.StartedAt == nil
	return st
}
