package review

import (
	"context"
	"database/sql"
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

const flashcardColumns = `id, user_id, mcq_id, front, back, ease_factor, interval_days,
	repetitions, next_review, last_reviewed, created_at`

func scanFlashcard(row interface{ Scan(...any) error }) (*models.Flashcard, error) {
	var c models.Flashcard
	var mcqID sql.NullInt64
	var lastReviewed sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &mcqID, &c.Front, &c.Back, &c.EaseFactor, &c.IntervalDays,
		&c.Repetitions, &c.NextReview, &lastReviewed, &c.CreatedAt); err != nil {
		return nil, err
	}
	if mcqID.Valid {
		c.MCQID = &mcqID.Int64
	}
	if lastReviewed.Valid {
		c.LastReviewed = &lastReviewed.Time
	}
	return &c, nil
}

// ── Flashcards ──────────────────────────────────────────

func (s *Store) CreateFlashcard(ctx context.Context, c *models.Flashcard) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO flashcards (user_id, mcq_id, front, back, ease_factor, next_review)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		c.UserID, c.MCQID, c.Front, c.Back, c.EaseFactor, c.NextReview,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert flashcard: %w", err)
	}
	return nil
}

func (s *Store) GetFlashcard(ctx context.Context, userID, id int64) (*models.Flashcard, error) {
	c, err := scanFlashcard(s.db.QueryRowContext(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE id = $1 AND user_id = $2`, id, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flashcard: %w", err)
	}
	return c, nil
}

// Flashcards lists a user's cards by next review. A non-nil dueBy limits
// the list to cards due by then.
func (s *Store) Flashcards(ctx context.Context, userID int64, dueBy *time.Time, limit int) ([]models.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards WHERE user_id = $1`
	args := []any{userID}
	if dueBy != nil {
		query += ` AND next_review <= $2`
		args = append(args, *dueBy)
	}
	query += fmt.Sprintf(` ORDER BY next_review ASC, id ASC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	defer rows.Close()

	var cards []models.Flashcard
	for rows.Next() {
		c, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (s *Store) SaveReview(ctx context.Context, c *models.Flashcard) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flashcards SET ease_factor = $3, interval_days = $4, repetitions = $5,
		    next_review = $6, last_reviewed = $7
		 WHERE id = $1 AND user_id = $2`,
		c.ID, c.UserID, c.EaseFactor, c.IntervalDays, c.Repetitions, c.NextReview, c.LastReviewed,
	)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFlashcard(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flashcards WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete flashcard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FlashcardStats counts cards relative to the UTC day of now. Streak fields
// are left for the caller.
func (s *Store) FlashcardStats(ctx context.Context, userID int64, now time.Time) (models.ReviewStats, error) {
	var st models.ReviewStats
	dayStart := utcDay(now)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE next_review <= $2),
		        COUNT(*) FILTER (WHERE last_reviewed >= $3),
		        COUNT(*) FILTER (WHERE interval_days >= $4)
		 FROM flashcards WHERE user_id = $1`,
		userID, now, dayStart, matureInterval,
	).Scan(&st.TotalCards, &st.DueToday, &st.ReviewedToday, &st.MatureCards)
	if err != nil {
		return st, fmt.Errorf("flashcard stats: %w", err)
	}
	return st, nil
}

// ── Streak ──────────────────────────────────────────────

func (s *Store) Streak(ctx context.Context, userID int64) (*models.StudyStreak, error) {
	st := &models.StudyStreak{UserID: userID}
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_study_date FROM study_streaks WHERE user_id = $1`,
		userID,
	).Scan(&st.CurrentStreak, &st.LongestStreak, &last)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	if last.Valid {
		st.LastStudyDate = &last.Time
	}
	return st, nil
}

// UpdateStreak locks the user's streak row, lets apply modify it and writes
// it back when apply reports a change.
func (s *Store) UpdateStreak(ctx context.Context, userID int64, apply func(*models.StudyStreak) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO study_streaks (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}

	st := &models.StudyStreak{UserID: userID}
	var last sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_study_date FROM study_streaks WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&st.CurrentStreak, &st.LongestStreak, &last); err != nil {
		return fmt.Errorf("lock streak: %w", err)
	}
	if last.Valid {
		st.LastStudyDate = &last.Time
	}

	if !apply(st) {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE study_streaks SET current_streak = $2, longest_streak = $3, last_study_date = $4 WHERE user_id = $1`,
		userID, st.CurrentStreak, st.LongestStreak, st.LastStudyDate,
	); err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return tx.Commit()
}
