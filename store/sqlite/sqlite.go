/*
Package sqlite provides a SQLite-backed implementation of booking.TxStore.

PURPOSE:
  Persists sessions, bookings and the reschedule audit trail. The engine's
  concurrency guarantees rest on three database features:
  - version columns, updated with compare-and-swap UPDATEs
  - a partial unique index allowing one active booking per session
  - a partial unique index on payment_ref

KEY TABLES:
  sessions:    Bookable time blocks (status, schedule, reschedule counter)
  bookings:    Reservations with their payment and cancellation columns
  reschedules: Append-only history of time changes

INDEXES:
  - idx_bookings_active_session: UNIQUE(session_id) WHERE status is active
  - idx_bookings_payment_ref:    UNIQUE(payment_ref) WHERE payment_ref IS NOT NULL
  - idx_sessions_status_scheduled: no-show sweep

CONCURRENCY:
  No application mutex. The pool is capped at one connection, so SQLite
  serializes transactions and ":memory:" databases survive across calls.
  Code running inside WithTx must use the Store it is handed; touching the
  outer Store there would wait forever on the single connection.

TIME FORMAT:
  Timestamps are stored as fixed-width UTC text so that string comparison
  in SQL orders them correctly.

USAGE:
  store, err := sqlite.New("./data/sessions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger, err := booking.NewLedger(store, booking.DefaultPolicy())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/session-engine/booking"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements booking.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ booking.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		title TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL,
		scheduled_at TEXT,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		price_minor_units INTEGER NOT NULL CHECK (price_minor_units >= 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		timezone TEXT NOT NULL,
		meeting_url TEXT,
		recording_url TEXT,
		reschedule_count INTEGER NOT NULL DEFAULT 0,
		max_reschedules INTEGER NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		cancelled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		CHECK (reschedule_count BETWEEN 0 AND max_reschedules),
		CHECK (status NOT IN ('scheduled', 'in_progress') OR scheduled_at IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_provider
		ON sessions(provider_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_scheduled
		ON sessions(status, scheduled_at);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		consumer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		amount_minor_units INTEGER NOT NULL CHECK (amount_minor_units >= 0),
		currency TEXT NOT NULL,
		payment_ref TEXT,
		payment_captured INTEGER,
		payment_completed_at TEXT,
		cancelled_at TEXT,
		cancelled_by TEXT,
		cancellation_reason TEXT,
		refund_percentage INTEGER,
		refund_amount INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		CHECK (refund_amount IS NULL OR refund_amount BETWEEN 0 AND amount_minor_units),
		CHECK (status != 'confirmed' OR payment_completed_at IS NOT NULL),
		CHECK ((status IN ('cancelled', 'refunded')) = (cancelled_at IS NOT NULL))
	);

	-- Exactly one non-terminal booking per session
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_session
		ON bookings(session_id)
		WHERE status IN ('pending_payment', 'confirmed');

	-- A processor payment confirms one booking, ever
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_payment_ref
		ON bookings(payment_ref)
		WHERE payment_ref IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_bookings_consumer
		ON bookings(consumer_id, created_at);

	CREATE TABLE IF NOT EXISTS reschedules (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		from_at TEXT NOT NULL,
		to_at TEXT NOT NULL,
		actor TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reschedules_session
		ON reschedules(session_id, at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusy(err) {
			return booking.ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"reschedules", "bookings", "sessions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - shared by the pooled Store and the per-transaction view
// =============================================================================

type queries struct {
	q querier
}

const sessionColumns = `id, provider_id, title, subject, origin, scheduled_at, duration_minutes,
	price_minor_units, currency, status, timezone, meeting_url, recording_url, reschedule_count,
	max_reschedules, started_at, completed_at, cancelled_at, created_at, updated_at, version`

const bookingColumns = `id, session_id, consumer_id, status, amount_minor_units, currency,
	payment_ref, payment_captured, payment_completed_at, cancelled_at, cancelled_by,
	cancellation_reason, refund_percentage, refund_amount, created_at, updated_at, version`

func (r *queries) GetSession(ctx context.Context, id booking.SessionID) (*booking.Session, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.SessionNotFound(id)
	}
	return s, err
}

func (r *queries) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.BookingNotFound(id)
	}
	return b, err
}

func (r *queries) ActiveBooking(ctx context.Context, sessionID booking.SessionID) (*booking.Booking, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE session_id = ? AND status IN (?, ?)",
		sessionID, booking.BookingPendingPayment, booking.BookingConfirmed)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *queries) BookingByPaymentRef(ctx context.Context, ref string) (*booking.Booking, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE payment_ref = ?", ref)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *queries) ListSessions(ctx context.Context, f booking.SessionFilter) ([]booking.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	var args []any
	if f.ProviderID != "" {
		query += " AND provider_id = ?"
		args = append(args, f.ProviderID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limitArg(f.Limit), max(f.Offset, 0))
	return r.querySessions(ctx, query, args...)
}

func (r *queries) ListBookings(ctx context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE 1=1"
	var args []any
	if f.ConsumerID != "" {
		query += " AND consumer_id = ?"
		args = append(args, f.ConsumerID)
	}
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limitArg(f.Limit), max(f.Offset, 0))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	out := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *queries) ScheduledBefore(ctx context.Context, t time.Time) ([]booking.Session, error) {
	return r.querySessions(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE status = ? AND scheduled_at < ? ORDER BY scheduled_at ASC",
		booking.SessionScheduled, formatTime(t))
}

func (r *queries) RescheduleHistory(ctx context.Context, id booking.SessionID) ([]booking.RescheduleRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, session_id, from_at, to_at, actor, at FROM reschedules WHERE session_id = ? ORDER BY at ASC, id ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reschedules: %w", err)
	}
	defer rows.Close()

	out := []booking.RescheduleRecord{}
	for rows.Next() {
		var (
			rec          booking.RescheduleRecord
			from, to, at string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &from, &to, &rec.Actor, &at); err != nil {
			return nil, fmt.Errorf("failed to scan reschedule: %w", err)
		}
		rec.From, rec.To, rec.At = parseTime(from), parseTime(to), parseTime(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *queries) InsertSession(ctx context.Context, s *booking.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		s.ID, s.ProviderID, s.Title, s.Subject, s.Origin, nullTime(s.ScheduledAt), s.DurationMinutes,
		s.PriceMinorUnits, s.Currency, s.Status, s.Timezone, nullStringPtr(s.MeetingURL),
		nullStringPtr(s.RecordingURL), s.RescheduleCount, s.MaxReschedules,
		nullTime(s.StartedAt), nullTime(s.CompletedAt), nullTime(s.CancelledAt),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return writeError("insert session", err)
	}
	s.Version = 1
	return nil
}

func (r *queries) UpdateSession(ctx context.Context, s *booking.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET
			title = ?, subject = ?, scheduled_at = ?, duration_minutes = ?, price_minor_units = ?,
			currency = ?, status = ?, timezone = ?, meeting_url = ?, recording_url = ?,
			reschedule_count = ?, max_reschedules = ?, started_at = ?, completed_at = ?,
			cancelled_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		s.Title, s.Subject, nullTime(s.ScheduledAt), s.DurationMinutes, s.PriceMinorUnits,
		s.Currency, s.Status, s.Timezone, nullStringPtr(s.MeetingURL), nullStringPtr(s.RecordingURL),
		s.RescheduleCount, s.MaxReschedules, nullTime(s.StartedAt), nullTime(s.CompletedAt),
		nullTime(s.CancelledAt), formatTime(s.UpdatedAt),
		s.ID, s.Version,
	)
	if err != nil {
		return writeError("update session", err)
	}
	if err := r.checkSwapped(ctx, res, "sessions", string(s.ID)); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return booking.SessionNotFound(s.ID)
		}
		return err
	}
	s.Version++
	return nil
}

func (r *queries) InsertBooking(ctx context.Context, b *booking.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	args := append([]any{b.ID, b.SessionID, b.ConsumerID, b.Status, b.AmountMinorUnits, b.Currency},
		bookingStateArgs(b)...)
	args = append(args, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`, args...)
	if err != nil {
		return writeError("insert booking", err)
	}
	b.Version = 1
	return nil
}

func (r *queries) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	args := append([]any{b.Status}, bookingStateArgs(b)...)
	args = append(args, formatTime(b.UpdatedAt), b.ID, b.Version)
	res, err := r.q.ExecContext(ctx, `
		UPDATE bookings SET
			status = ?, payment_ref = ?, payment_captured = ?, payment_completed_at = ?,
			cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?, refund_percentage = ?,
			refund_amount = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`, args...)
	if err != nil {
		return writeError("update booking", err)
	}
	if err := r.checkSwapped(ctx, res, "bookings", string(b.ID)); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return booking.BookingNotFound(b.ID)
		}
		return err
	}
	b.Version++
	return nil
}

func (r *queries) AppendReschedule(ctx context.Context, rec booking.RescheduleRecord) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO reschedules (id, session_id, from_at, to_at, actor, at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.SessionID, formatTime(rec.From), formatTime(rec.To), rec.Actor, formatTime(rec.At))
	if err != nil {
		return writeError("append reschedule", err)
	}
	return nil
}

// checkSwapped turns a zero-row compare-and-swap into the right error: the
// row is gone, or someone else moved its version.
func (r *queries) checkSwapped(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	if exists == 0 {
		return booking.ErrNotFound
	}
	return booking.ErrConcurrentModification
}

func (r *queries) querySessions(ctx context.Context, query string, args ...any) ([]booking.Session, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []booking.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*booking.Session, error) {
	var (
		s                                     booking.Session
		scheduledAt, startedAt, completedAt   sql.NullString
		cancelledAt, meetingURL, recordingURL sql.NullString
		createdAt, updatedAt                  string
	)
	err := row.Scan(
		&s.ID, &s.ProviderID, &s.Title, &s.Subject, &s.Origin, &scheduledAt, &s.DurationMinutes,
		&s.PriceMinorUnits, &s.Currency, &s.Status, &s.Timezone, &meetingURL, &recordingURL,
		&s.RescheduleCount, &s.MaxReschedules, &startedAt, &completedAt, &cancelledAt,
		&createdAt, &updatedAt, &s.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.ScheduledAt = parseNullTime(scheduledAt)
	s.StartedAt = parseNullTime(startedAt)
	s.CompletedAt = parseNullTime(completedAt)
	s.CancelledAt = parseNullTime(cancelledAt)
	s.MeetingURL = stringPtr(meetingURL)
	s.RecordingURL = stringPtr(recordingURL)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func scanBooking(row scanner) (*booking.Booking, error) {
	var (
		b                                booking.Booking
		paymentRef, paymentCompletedAt   sql.NullString
		paymentCaptured                  sql.NullInt64
		cancelledAt, cancelledBy, reason sql.NullString
		refundPercentage, refundAmount   sql.NullInt64
		createdAt, updatedAt             string
	)
	err := row.Scan(
		&b.ID, &b.SessionID, &b.ConsumerID, &b.Status, &b.AmountMinorUnits, &b.Currency,
		&paymentRef, &paymentCaptured, &paymentCompletedAt, &cancelledAt, &cancelledBy,
		&reason, &refundPercentage, &refundAmount, &createdAt, &updatedAt, &b.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	if paymentCompletedAt.Valid {
		b.Payment = &booking.Payment{
			Ref:         paymentRef.String,
			Captured:    paymentCaptured.Int64,
			CompletedAt: parseTime(paymentCompletedAt.String),
		}
	}
	if cancelledAt.Valid {
		b.Cancellation = &booking.Cancellation{
			At:               parseTime(cancelledAt.String),
			By:               booking.Actor(cancelledBy.String),
			Reason:           reason.String,
			RefundPercentage: int(refundPercentage.Int64),
			RefundAmount:     refundAmount.Int64,
		}
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

// bookingStateArgs returns the payment and cancellation columns in
// bookingColumns order.
func bookingStateArgs(b *booking.Booking) []any {
	var (
		ref, completedAt, cancelledAt, by, reason sql.NullString
		captured, pct, refund                     sql.NullInt64
	)
	if p := b.Payment; p != nil {
		ref = sql.NullString{String: p.Ref, Valid: true}
		captured = sql.NullInt64{Int64: p.Captured, Valid: true}
		completedAt = sql.NullString{String: formatTime(p.CompletedAt), Valid: true}
	}
	if c := b.Cancellation; c != nil {
		cancelledAt = sql.NullString{String: formatTime(c.At), Valid: true}
		by = sql.NullString{String: string(c.By), Valid: true}
		reason = sql.NullString{String: c.Reason, Valid: true}
		pct = sql.NullInt64{Int64: int64(c.RefundPercentage), Valid: true}
		refund = sql.NullInt64{Int64: c.RefundAmount, Valid: true}
	}
	return []any{ref, captured, completedAt, cancelledAt, by, reason, pct, refund}
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// limitArg maps a filter limit onto SQLite's LIMIT, where -1 means all rows.
func limitArg(limit int) int {
	if limit < 0 {
		return -1
	}
	return booking.PageSize(limit)
}

// writeError maps constraint violations onto the store contract. Unique
// indexes are how the database reports a lost race on the active-booking
// and payment-ref rules.
func writeError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return booking.ErrConcurrentModification
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return booking.ErrConcurrentModification
		case se.Code == sqlite3.ErrConstraint:
			return &booking.ValidationError{Message: fmt.Sprintf("%s: %v", op, se)}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}
