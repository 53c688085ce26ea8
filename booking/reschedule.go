package booking

import (
	"fmt"
	"time"
)

// =============================================================================
// RESCHEDULE GUARD - Bounded time changes per session
// =============================================================================

// CanReschedule is the pure eligibility check:
//
//	booking exists ∧ session.status = Scheduled ∧ rescheduleCount < maxReschedules
func CanReschedule(s *Session, active *Booking) bool {
	return checkReschedule(s, active) == nil
}

func checkReschedule(s *Session, active *Booking) error {
	if active == nil || !active.Status.IsActive() {
		return conflict(ReasonNotReschedulable, "session %s has no active booking", s.ID)
	}
	if s.Status != SessionScheduled {
		return conflict(ReasonNotReschedulable, "session %s is %s, not scheduled", s.ID, s.Status)
	}
	if s.RescheduleCount >= s.MaxReschedules {
		return conflict(ReasonRescheduleLimitReached, "session %s already rescheduled %d of %d times",
			s.ID, s.RescheduleCount, s.MaxReschedules)
	}
	return nil
}

// applyReschedule moves the session and bumps the counter by exactly one.
// Status stays Scheduled. The caller persists the result.
func applyReschedule(s *Session, active *Booking, newAt, now time.Time) (time.Time, error) {
	if !newAt.After(now) {
		return time.Time{}, &ValidationError{Field: "scheduled_at",
			Message: fmt.Sprintf("new time %s is not after now (%s)", newAt.Format(time.RFC3339), now.Format(time.RFC3339))}
	}
	if err := checkReschedule(s, active); err != nil {
		return time.Time{}, err
	}
	from := *s.ScheduledAt
	at := newAt.UTC()
	s.ScheduledAt = &at
	s.RescheduleCount++
	s.UpdatedAt = now
	return from, nil
}
