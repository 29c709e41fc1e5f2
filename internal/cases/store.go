package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neuro-mcq/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `id, user_id, mcq_id, tracking_id, status, attempts, case_data,
	error_message, started_at, completed_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.CaseSession, error) {
	var s models.CaseSession
	var data []byte
	var started, completed sql.NullTime
	if err := row.Scan(&s.ID, &s.UserID, &s.MCQID, &s.TrackingID, &s.Status, &s.Attempts, &data,
		&s.ErrorMessage, &started, &completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		s.CaseData = json.RawMessage(data)
	}
	if started.Valid {
		s.StartedAt = &started.Time
	}
	if completed.Valid {
		s.CompletedAt = &completed.Time
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]models.CaseSession, error) {
	defer rows.Close()
	var out []models.CaseSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*models.CaseSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case session: %w", err)
	}
	return sess, nil
}

// ── Sessions ────────────────────────────────────────────

// FindActive returns the user's completed session for the MCQ, or else
// the newest one still pending or processing.
func (s *Store) FindActive(ctx context.Context, userID, mcqID int64) (*models.CaseSession, error) {
	return s.one(ctx,
		`SELECT `+sessionColumns+` FROM case_sessions
		 WHERE user_id = $1 AND mcq_id = $2 AND status IN ('completed', 'pending', 'processing')
		 ORDER BY (status = 'completed') DESC, created_at DESC
		 LIMIT 1`,
		userID, mcqID)
}

func (s *Store) Create(ctx context.Context, sess *models.CaseSession) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO case_sessions (user_id, mcq_id, tracking_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		sess.UserID, sess.MCQID, sess.TrackingID, sess.Status,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert case session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.CaseSession, error) {
	return s.one(ctx, `SELECT `+sessionColumns+` FROM case_sessions WHERE id = $1`, id)
}

func (s *Store) GetByTracking(ctx context.Context, trackingID string) (*models.CaseSession, error) {
	return s.one(ctx, `SELECT `+sessionColumns+` FROM case_sessions WHERE tracking_id = $1`, trackingID)
}

func (s *Store) ListForUser(ctx context.Context, userID int64, limit int) ([]models.CaseSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM case_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list case sessions: %w", err)
	}
	return scanSessions(rows)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM case_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete case session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetForRetry puts a failed session back in the queue. It reports false
// when the session is not failed.
func (s *Store) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE case_sessions
		 SET status = 'pending', attempts = 0, error_message = '', case_data = NULL,
		     started_at = NULL, completed_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'failed'`,
		id)
	if err != nil {
		return false, fmt.Errorf("reset case session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ── Worker queue ────────────────────────────────────────

// ClaimPending moves up to limit pending sessions to processing and counts
// the attempt. Concurrent workers never claim the same row.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]models.CaseSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE case_sessions
		 SET status = 'processing', attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		 WHERE id IN (
		     SELECT id FROM case_sessions
		     WHERE status = 'pending'
		     ORDER BY created_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED)
		 RETURNING `+sessionColumns,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending sessions: %w", err)
	}
	return scanSessions(rows)
}

func (s *Store) Complete(ctx context.Context, id int64, caseData []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE case_sessions
		 SET status = 'completed', case_data = $2, error_message = '', completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, caseData)
	if err != nil {
		return fmt.Errorf("complete case session: %w", err)
	}
	return nil
}

func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE case_sessions
		 SET status = 'failed', error_message = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, message)
	if err != nil {
		return fmt.Errorf("fail case session: %w", err)
	}
	return nil
}

// ResetStuck requeues sessions processing since before cutoff. Sessions
// that already used maxAttempts are failed instead.
func (s *Store) ResetStuck(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued, failed int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE case_sessions
		 SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
		     error_message = CASE WHEN attempts >= $2 THEN $3 ELSE error_message END,
		     completed_at = CASE WHEN attempts >= $2 THEN NOW() ELSE completed_at END,
		     updated_at = NOW()
		 WHERE status = 'processing' AND started_at < $1
		 RETURNING status`,
		cutoff, maxAttempts, stuckMessage)
	if err != nil {
		return 0, 0, fmt.Errorf("reset stuck sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.ConversionStatus
		if err := rows.Scan(&status); err != nil {
			return requeued, failed, fmt.Errorf("scan stuck session: %w", err)
		}
		if status == models.ConversionFailed {
			failed++
		} else {
			requeued++
		}
	}
	return requeued, failed, rows.Err()
}

func (s *Store) Completed(ctx context.Context, limit int) ([]models.CaseSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM case_sessions
		 WHERE status = 'completed' ORDER BY completed_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	return scanSessions(rows)
}

// ── Events ──────────────────────────────────────────────

const eventColumns = `id, session_id, tracking_id, mcq_id, step, status, details, created_at`

func scanEvents(rows *sql.Rows) ([]models.ConversionEvent, error) {
	defer rows.Close()
	var out []models.ConversionEvent
	for rows.Next() {
		var e models.ConversionEvent
		var sessionID sql.NullInt64
		var details []byte
		if err := rows.Scan(&e.ID, &sessionID, &e.TrackingID, &e.MCQID, &e.Step, &e.Status, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion event: %w", err)
		}
		e.SessionID = sessionID.Int64
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RecordEvent(ctx context.Context, e *models.ConversionEvent) error {
	var details any
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversion_events (session_id, tracking_id, mcq_id, step, status, details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.SessionID, e.TrackingID, e.MCQID, e.Step, e.Status, details,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversion event: %w", err)
	}
	return nil
}

func (s *Store) Events(ctx context.Context, trackingID string) ([]models.ConversionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM conversion_events WHERE tracking_id = $1 ORDER BY created_at ASC, id ASC`,
		trackingID)
	if err != nil {
		return nil, fmt.Errorf("list conversion events: %w", err)
	}
	return scanEvents(rows)
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]models.ConversionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM conversion_events ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return scanEvents(rows)
}
