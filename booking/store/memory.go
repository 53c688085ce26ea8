// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps sessions and bookings in maps guarded by one RWMutex. The
// mutex is held only for individual reads and for the commit step of a
// transaction, never across a caller's read-validate-write.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[booking.SessionID]booking.Session
	bookings    map[booking.BookingID]booking.Booking
	reschedules map[booking.SessionID][]booking.RescheduleRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[booking.SessionID]booking.Session),
		bookings:    make(map[booking.BookingID]booking.Booking),
		reschedules: make(map[booking.SessionID][]booking.RescheduleRecord),
	}
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetSession(_ context.Context, id booking.SessionID) (*booking.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, booking.SessionNotFound(id)
	}
	return cloneSession(s), nil
}

func (m *Memory) GetBooking(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, booking.BookingNotFound(id)
	}
	return cloneBooking(b), nil
}

func (m *Memory) ActiveBooking(_ context.Context, sessionID booking.SessionID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findActive(m.bookings, nil, sessionID), nil
}

func (m *Memory) BookingByPaymentRef(_ context.Context, ref string) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findByRef(m.bookings, nil, ref), nil
}

func (m *Memory) ListSessions(_ context.Context, f booking.SessionFilter) ([]booking.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterSessions(m.sessions, f), nil
}

func (m *Memory) ListBookings(_ context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterBookings(m.bookings, f), nil
}

func (m *Memory) ScheduledBefore(_ context.Context, t time.Time) ([]booking.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []booking.Session
	for _, s := range m.sessions {
		if s.Status == booking.SessionScheduled && s.ScheduledAt != nil && s.ScheduledAt.Before(t) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (m *Memory) RescheduleHistory(_ context.Context, id booking.SessionID) ([]booking.RescheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]booking.RescheduleRecord(nil), m.reschedules[id]...), nil
}

// =============================================================================
// WRITES - each one is a single-operation transaction
// =============================================================================

func (m *Memory) InsertSession(ctx context.Context, s *booking.Session) error {
	return m.WithTx(ctx, func(st booking.Store) error { return st.InsertSession(ctx, s) })
}

func (m *Memory) UpdateSession(ctx context.Context, s *booking.Session) error {
	return m.WithTx(ctx, func(st booking.Store) error { return st.UpdateSession(ctx, s) })
}

func (m *Memory) InsertBooking(ctx context.Context, b *booking.Booking) error {
	return m.WithTx(ctx, func(st booking.Store) error { return st.InsertBooking(ctx, b) })
}

func (m *Memory) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	return m.WithTx(ctx, func(st booking.Store) error { return st.UpdateBooking(ctx, b) })
}

func (m *Memory) AppendReschedule(ctx context.Context, r booking.RescheduleRecord) error {
	return m.WithTx(ctx, func(st booking.Store) error { return st.AppendReschedule(ctx, r) })
}

// Reset drops every session, booking and reschedule record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[booking.SessionID]booking.Session)
	m.bookings = make(map[booking.BookingID]booking.Booking)
	m.reschedules = make(map[booking.SessionID][]booking.RescheduleRecord)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a private view that stages writes. Commit takes
// the write lock, checks that every staged row still has the version the
// view started from, re-checks the uniqueness rules over the merged state
// and applies everything at once. Nothing is visible to other callers
// before commit and nothing is applied when fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view := newTxView(m)
	if err := fn(view); err != nil {
		return err
	}
	return m.commit(view)
}

func (m *Memory) commit(v *txView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, expected := range v.sessionBase {
		if current, ok := m.sessions[id]; versionOf(current.Version, ok) != expected {
			return booking.ErrConcurrentModification
		}
	}
	for id, expected := range v.bookingBase {
		if current, ok := m.bookings[id]; versionOf(current.Version, ok) != expected {
			return booking.ErrConcurrentModification
		}
	}
	for _, b := range v.bookings {
		if b.Status.IsActive() {
			if other := findActive(m.bookings, v.bookings, b.SessionID); other != nil && other.ID != b.ID {
				return booking.ErrConcurrentModification
			}
		}
		if ref := b.PaymentRef(); ref != "" {
			if other := findByRef(m.bookings, v.bookings, ref); other != nil && other.ID != b.ID {
				return booking.ErrConcurrentModification
			}
		}
	}

	for id, s := range v.sessions {
		m.sessions[id] = s
	}
	for id, b := range v.bookings {
		m.bookings[id] = b
	}
	for _, r := range v.reschedules {
		m.reschedules[r.SessionID] = append(m.reschedules[r.SessionID], r)
	}
	return nil
}

func versionOf(v int64, exists bool) int64 {
	if !exists {
		return 0
	}
	return v
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type txView struct {
	parent *Memory

	sessions    map[booking.SessionID]booking.Session
	bookings    map[booking.BookingID]booking.Booking
	reschedules []booking.RescheduleRecord

	// Version each staged row had in the parent when first written by this
	// view. 0 means the row must not exist yet.
	sessionBase map[booking.SessionID]int64
	bookingBase map[booking.BookingID]int64
}

func newTxView(parent *Memory) *txView {
	return &txView{
		parent:      parent,
		sessions:    make(map[booking.SessionID]booking.Session),
		bookings:    make(map[booking.BookingID]booking.Booking),
		sessionBase: make(map[booking.SessionID]int64),
		bookingBase: make(map[booking.BookingID]int64),
	}
}

func (v *txView) lookupSession(id booking.SessionID) (booking.Session, bool) {
	if s, ok := v.sessions[id]; ok {
		return s, true
	}
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	s, ok := v.parent.sessions[id]
	return s, ok
}

func (v *txView) lookupBooking(id booking.BookingID) (booking.Booking, bool) {
	if b, ok := v.bookings[id]; ok {
		return b, true
	}
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	b, ok := v.parent.bookings[id]
	return b, ok
}

func (v *txView) GetSession(_ context.Context, id booking.SessionID) (*booking.Session, error) {
	s, ok := v.lookupSession(id)
	if !ok {
		return nil, booking.SessionNotFound(id)
	}
	return cloneSession(s), nil
}

func (v *txView) GetBooking(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	b, ok := v.lookupBooking(id)
	if !ok {
		return nil, booking.BookingNotFound(id)
	}
	return cloneBooking(b), nil
}

func (v *txView) ActiveBooking(_ context.Context, sessionID booking.SessionID) (*booking.Booking, error) {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	return findActive(v.parent.bookings, v.bookings, sessionID), nil
}

func (v *txView) BookingByPaymentRef(_ context.Context, ref string) (*booking.Booking, error) {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	return findByRef(v.parent.bookings, v.bookings, ref), nil
}

func (v *txView) ListSessions(_ context.Context, f booking.SessionFilter) ([]booking.Session, error) {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	return filterSessions(mergeSessions(v.parent.sessions, v.sessions), f), nil
}

func (v *txView) ListBookings(_ context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	return filterBookings(mergeBookings(v.parent.bookings, v.bookings), f), nil
}

func (v *txView) ScheduledBefore(ctx context.Context, t time.Time) ([]booking.Session, error) {
	all, err := v.ListSessions(ctx, booking.SessionFilter{Status: booking.SessionScheduled, Limit: -1})
	if err != nil {
		return nil, err
	}
	var out []booking.Session
	for _, s := range all {
		if s.ScheduledAt != nil && s.ScheduledAt.Before(t) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (v *txView) RescheduleHistory(ctx context.Context, id booking.SessionID) ([]booking.RescheduleRecord, error) {
	out, _ := v.parent.RescheduleHistory(ctx, id)
	for _, r := range v.reschedules {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v *txView) InsertSession(_ context.Context, s *booking.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, exists := v.lookupSession(s.ID); exists {
		return booking.ErrConcurrentModification
	}
	s.Version = 1
	v.sessions[s.ID] = *cloneSession(*s)
	v.sessionBase[s.ID] = 0
	return nil
}

func (v *txView) UpdateSession(_ context.Context, s *booking.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	current, ok := v.lookupSession(s.ID)
	if !ok {
		return booking.SessionNotFound(s.ID)
	}
	if current.Version != s.Version {
		return booking.ErrConcurrentModification
	}
	if _, staged := v.sessionBase[s.ID]; !staged {
		v.sessionBase[s.ID] = current.Version
	}
	s.Version++
	v.sessions[s.ID] = *cloneSession(*s)
	return nil
}

func (v *txView) InsertBooking(_ context.Context, b *booking.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if _, exists := v.lookupBooking(b.ID); exists {
		return booking.ErrConcurrentModification
	}
	if err := v.checkUnique(b); err != nil {
		return err
	}
	b.Version = 1
	v.bookings[b.ID] = *cloneBooking(*b)
	v.bookingBase[b.ID] = 0
	return nil
}

func (v *txView) UpdateBooking(_ context.Context, b *booking.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	current, ok := v.lookupBooking(b.ID)
	if !ok {
		return booking.BookingNotFound(b.ID)
	}
	if current.Version != b.Version {
		return booking.ErrConcurrentModification
	}
	if err := v.checkUnique(b); err != nil {
		return err
	}
	if _, staged := v.bookingBase[b.ID]; !staged {
		v.bookingBase[b.ID] = current.Version
	}
	b.Version++
	v.bookings[b.ID] = *cloneBooking(*b)
	return nil
}

func (v *txView) AppendReschedule(_ context.Context, r booking.RescheduleRecord) error {
	v.reschedules = append(v.reschedules, r)
	return nil
}

// checkUnique mirrors the constraints a database would enforce at write
// time. Commit re-checks them against rows other transactions committed.
func (v *txView) checkUnique(b *booking.Booking) error {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	if b.Status.IsActive() {
		if other := findActive(v.parent.bookings, v.bookings, b.SessionID); other != nil && other.ID != b.ID {
			return booking.ErrConcurrentModification
		}
	}
	if ref := b.PaymentRef(); ref != "" {
		if other := findByRef(v.parent.bookings, v.bookings, ref); other != nil && other.ID != b.ID {
			return booking.ErrConcurrentModification
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// findActive scans staged rows first, then base rows not shadowed by a
// staged version.
func findActive(base, staged map[booking.BookingID]booking.Booking, sessionID booking.SessionID) *booking.Booking {
	match := func(b booking.Booking) bool { return b.SessionID == sessionID && b.Status.IsActive() }
	return findBooking(base, staged, match)
}

func findByRef(base, staged map[booking.BookingID]booking.Booking, ref string) *booking.Booking {
	match := func(b booking.Booking) bool { return b.PaymentRef() == ref }
	return findBooking(base, staged, match)
}

func findBooking(base, staged map[booking.BookingID]booking.Booking, match func(booking.Booking) bool) *booking.Booking {
	for _, b := range staged {
		if match(b) {
			return cloneBooking(b)
		}
	}
	for id, b := range base {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		if match(b) {
			return cloneBooking(b)
		}
	}
	return nil
}

func mergeSessions(base, staged map[booking.SessionID]booking.Session) map[booking.SessionID]booking.Session {
	out := make(map[booking.SessionID]booking.Session, len(base)+len(staged))
	for id, s := range base {
		out[id] = s
	}
	for id, s := range staged {
		out[id] = s
	}
	return out
}

func mergeBookings(base, staged map[booking.BookingID]booking.Booking) map[booking.BookingID]booking.Booking {
	out := make(map[booking.BookingID]booking.Booking, len(base)+len(staged))
	for id, b := range base {
		out[id] = b
	}
	for id, b := range staged {
		out[id] = b
	}
	return out
}

// filterSessions returns matches ordered by creation time. A negative
// Limit disables paging.
func filterSessions(all map[booking.SessionID]booking.Session, f booking.SessionFilter) []booking.Session {
	var out []booking.Session
	for _, s := range all {
		if f.ProviderID != "" && s.ProviderID != f.ProviderID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, *cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset)
}

func filterBookings(all map[booking.BookingID]booking.Booking, f booking.BookingFilter) []booking.Booking {
	var out []booking.Booking
	for _, b := range all {
		if f.ConsumerID != "" && b.ConsumerID != f.ConsumerID {
			continue
		}
		if f.SessionID != "" && b.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, *cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset)
}

func page[T any](items []T, limit, offset int) []T {
	if limit < 0 {
		return items
	}
	limit = booking.PageSize(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneSession(s booking.Session) *booking.Session {
	s.ScheduledAt = cloneTime(s.ScheduledAt)
	s.MeetingURL = cloneString(s.MeetingURL)
	s.RecordingURL = cloneString(s.RecordingURL)
	s.StartedAt = cloneTime(s.StartedAt)
	s.CompletedAt = cloneTime(s.CompletedAt)
	s.CancelledAt = cloneTime(s.CancelledAt)
	return &s
}

func cloneBooking(b booking.Booking) *booking.Booking {
	if b.Payment != nil {
		p := *b.Payment
		b.Payment = &p
	}
	if b.Cancellation != nil {
		c := *b.Cancellation
		b.Cancellation = &c
	}
	return &b
}
