package mcqs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const mcqColumns = `id, question_number, question_text, options, correct_answer, correct_answer_text,
	subspecialty, source_file, exam_type, exam_year, ai_generated, unified_explanation, explanation,
	explanation_sections, verification_confidence, primary_category, secondary_category, key_concept,
	difficulty_level, image_url, fixed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMCQ(row rowScanner) (*models.MCQ, error) {
	var m models.MCQ
	var options, sections []byte
	var examType string
	err := row.Scan(
		&m.ID, &m.QuestionNumber, &m.QuestionText, &options, &m.CorrectAnswer, &m.CorrectAnswerText,
		&m.Subspecialty, &m.SourceFile, &examType, &m.ExamYear, &m.AIGenerated, &m.UnifiedExplanation, &m.Explanation,
		&sections, &m.VerificationConfidence, &m.PrimaryCategory, &m.SecondaryCategory, &m.KeyConcept,
		&m.DifficultyLevel, &m.ImageURL, &m.FixedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ExamType = models.ExamType(examType)
	if len(options) > 0 {
		if err := json.Unmarshal(options, &m.Options); err != nil {
			return nil, fmt.Errorf("decode options of MCQ %d: %w", m.ID, err)
		}
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &m.ExplanationSections); err != nil {
			return nil, fmt.Errorf("decode explanation sections of MCQ %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

func scanMCQs(rows *sql.Rows) ([]models.MCQ, error) {
	defer rows.Close()
	var out []models.MCQ
	for rows.Next() {
		m, err := scanMCQ(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mcq: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func encodeJSONB(m *models.MCQ) (options, sections []byte, err error) {
	if options, err = json.Marshal(m.Options); err != nil {
		return nil, nil, fmt.Errorf("encode options: %w", err)
	}
	secs := m.ExplanationSections
	if secs == nil {
		secs = map[string]string{}
	}
	if sections, err = json.Marshal(secs); err != nil {
		return nil, nil, fmt.Errorf("encode explanation sections: %w", err)
	}
	return options, sections, nil
}

// ── Reads ──────────────────────────────────────────────

// List applies f and returns one page plus the total match count.
func (s *Store) List(ctx context.Context, f models.MCQFilter) ([]models.MCQ, int, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Subspecialty != "" {
		where = append(where, "subspecialty = "+arg(f.Subspecialty))
	}
	if f.ExamType != "" {
		where = append(where, "exam_type = "+arg(string(f.ExamType)))
	}
	if f.ExamYear != "" {
		where = append(where, "exam_year = "+arg(f.ExamYear))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "question_text ILIKE "+arg("%"+q+"%"))
	}
	if f.HasExplanation != nil {
		cond := "(unified_explanation <> '' OR explanation <> '' OR explanation_sections <> '{}'::jsonb)"
		if !*f.HasExplanation {
			cond = "NOT " + cond
		}
		where = append(where, cond)
	}
	if f.UserID != 0 {
		where = append(where, "id NOT IN (SELECT mcq_id FROM hidden_mcqs WHERE user_id = "+arg(f.UserID)+")")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mcqs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count mcqs: %w", err)
	}

	query := "SELECT " + mcqColumns + " FROM mcqs" + clause +
		" ORDER BY subspecialty, id LIMIT " + arg(f.PageSize) + " OFFSET " + arg((f.Page-1)*f.PageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list mcqs: %w", err)
	}
	out, err := scanMCQs(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) SubspecialtyCounts(ctx context.Context) ([]models.SubspecialtyCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subspecialty, exam_type, COUNT(*) FROM mcqs
		 GROUP BY subspecialty, exam_type ORDER BY subspecialty, exam_type`)
	if err != nil {
		return nil, fmt.Errorf("count subspecialties: %w", err)
	}
	defer rows.Close()

	var out []models.SubspecialtyCount
	for rows.Next() {
		var sub, examType string
		var n int
		if err := rows.Scan(&sub, &examType, &n); err != nil {
			return nil, fmt.Errorf("scan subspecialty count: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Subspecialty != sub {
			out = append(out, models.SubspecialtyCount{Subspecialty: sub, ByExamType: map[models.ExamType]int{}})
		}
		last := &out[len(out)-1]
		last.Total += n
		last.ByExamType[models.ExamType(examType)] += n
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (*models.MCQ, error) {
	m, err := scanMCQ(s.db.QueryRowContext(ctx, "SELECT "+mcqColumns+" FROM mcqs WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mcq %d: %w", id, err)
	}
	return m, nil
}

func (s *Store) GetMany(ctx context.Context, ids []int64) ([]models.MCQ, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mcqColumns+" FROM mcqs WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get mcqs: %w", err)
	}
	return scanMCQs(rows)
}

// All returns every MCQ, optionally limited to one subspecialty.
func (s *Store) All(ctx context.Context, subspecialty string) ([]models.MCQ, error) {
	query := "SELECT " + mcqColumns + " FROM mcqs"
	var args []interface{}
	if subspecialty != "" {
		query += " WHERE subspecialty = $1"
		args = append(args, subspecialty)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("load mcqs: %w", err)
	}
	return scanMCQs(rows)
}

func (s *Store) Random(ctx context.Context, subspecialty string, userID int64, count int) ([]models.MCQ, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mcqColumns+` FROM mcqs
		 WHERE ($1 = '' OR subspecialty = $1)
		   AND id NOT IN (SELECT mcq_id FROM hidden_mcqs WHERE user_id = $2)
		 ORDER BY RANDOM() LIMIT $3`,
		subspecialty, userID, count)
	if err != nil {
		return nil, fmt.Errorf("random mcqs: %w", err)
	}
	return scanMCQs(rows)
}

func (s *Store) UserState(ctx context.Context, userID, mcqID int64) (models.UserMCQState, error) {
	var st models.UserMCQState
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM bookmarks WHERE user_id = $1 AND mcq_id = $2),
		   COALESCE((SELECT content FROM notes WHERE user_id = $1 AND mcq_id = $2), ''),
		   EXISTS(SELECT 1 FROM hidden_mcqs WHERE user_id = $1 AND mcq_id = $2)`,
		userID, mcqID,
	).Scan(&st.Bookmarked, &st.Note, &st.Hidden)
	if err != nil {
		return st, fmt.Errorf("user state for MCQ %d: %w", mcqID, err)
	}
	return st, nil
}

// ── Answers ────────────────────────────────────────────

// RecordAnswers stores answers in one transaction; misses also go to
// incorrect_answers.
func (s *Store) RecordAnswers(ctx context.Context, userID int64, answers []models.RecordedAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, a := range answers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_answers (user_id, mcq_id, selected, correct) VALUES ($1, $2, $3, $4)`,
			userID, a.MCQID, a.Selected, a.Correct); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if a.Correct {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO incorrect_answers (user_id, mcq_id, selected) VALUES ($1, $2, $3)`,
			userID, a.MCQID, a.Selected); err != nil {
			return fmt.Errorf("insert incorrect answer: %w", err)
		}
	}
	return tx.Commit()
}

// IncorrectMCQs lists MCQs the user missed, most recent miss first.
func (s *Store) IncorrectMCQs(ctx context.Context, userID int64, limit int) ([]models.MCQ, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+prefixed("m")+` FROM mcqs m
		 JOIN (SELECT mcq_id, MAX(answered_at) AS last_missed FROM incorrect_answers
		       WHERE user_id = $1 GROUP BY mcq_id) ia ON ia.mcq_id = m.id
		 WHERE m.id NOT IN (SELECT mcq_id FROM hidden_mcqs WHERE user_id = $1)
		 ORDER BY ia.last_missed DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("incorrect mcqs: %w", err)
	}
	return scanMCQs(rows)
}

func prefixed(alias string) string {
	cols := strings.Split(mcqColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// ── Bookmarks, notes, hidden ───────────────────────────

// ToggleBookmark returns true when the bookmark now exists.
func (s *Store) ToggleBookmark(ctx context.Context, userID, mcqID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = $1 AND mcq_id = $2`, userID, mcqID)
	if err != nil {
		return false, fmt.Errorf("delete bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, mcq_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, mcqID); err != nil {
		return false, fmt.Errorf("insert bookmark: %w", err)
	}
	return true, nil
}

func (s *Store) Bookmarked(ctx context.Context, userID int64) ([]models.MCQ, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+prefixed("m")+` FROM mcqs m JOIN bookmarks b ON b.mcq_id = m.id
		 WHERE b.user_id = $1 ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("bookmarked mcqs: %w", err)
	}
	return scanMCQs(rows)
}

func (s *Store) SaveNote(ctx context.Context, userID, mcqID int64, content string) (*models.Note, error) {
	n := models.Note{UserID: userID, MCQID: mcqID, Content: content}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO notes (user_id, mcq_id, content) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, mcq_id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		userID, mcqID, content,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save note: %w", err)
	}
	return &n, nil
}

func (s *Store) DeleteNote(ctx context.Context, userID, mcqID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE user_id = $1 AND mcq_id = $2`, userID, mcqID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetHidden(ctx context.Context, userID, mcqID int64, hidden bool) error {
	var err error
	if hidden {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO hidden_mcqs (user_id, mcq_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, mcqID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM hidden_mcqs WHERE user_id = $1 AND mcq_id = $2`, userID, mcqID)
	}
	if err != nil {
		return fmt.Errorf("set hidden: %w", err)
	}
	return nil
}

func (s *Store) Hidden(ctx context.Context, userID int64) ([]models.MCQ, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+prefixed("m")+` FROM mcqs m JOIN hidden_mcqs h ON h.mcq_id = m.id
		 WHERE h.user_id = $1 ORDER BY h.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("hidden mcqs: %w", err)
	}
	return scanMCQs(rows)
}

// ── Reports ────────────────────────────────────────────

const reportColumns = `id, user_id, mcq_id, reason, suggested_correct_answer, status, admin_notes, created_at, resolved_at`

func scanReport(row rowScanner) (*models.QuestionReport, error) {
	var r models.QuestionReport
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &r.MCQID, &r.Reason, &r.SuggestedCorrectAnswer,
		&status, &r.AdminNotes, &r.CreatedAt, &r.ResolvedAt); err != nil {
		return nil, err
	}
	r.Status = models.ReportStatus(status)
	return &r, nil
}

func (s *Store) CreateReport(ctx context.Context, r *models.QuestionReport) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO question_reports (user_id, mcq_id, reason, suggested_correct_answer, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		r.UserID, r.MCQID, r.Reason, r.SuggestedCorrectAnswer, string(r.Status),
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) Reports(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.QuestionReport, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reportColumns+` FROM question_reports
		 WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []models.QuestionReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) GetReport(ctx context.Context, id int64) (*models.QuestionReport, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM question_reports WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return r, nil
}

// ResolveReport updates the report and, when answer is non-empty, the
// reported MCQ's correct answer, in one transaction.
func (s *Store) ResolveReport(ctx context.Context, r *models.QuestionReport, answer, answerText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE question_reports SET status = $1, admin_notes = $2, resolved_at = $3 WHERE id = $4`,
		string(r.Status), r.AdminNotes, r.ResolvedAt, r.ID); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if answer != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE mcqs SET correct_answer = $1, correct_answer_text = $2, fixed_at = NOW(), updated_at = NOW()
			 WHERE id = $3`, answer, answerText, r.MCQID); err != nil {
			return fmt.Errorf("apply suggested answer: %w", err)
		}
	}
	return tx.Commit()
}

// ── Writes ─────────────────────────────────────────────

// Update saves every editable field of m and bumps updated_at. fixed_at is
// set when answerFixed is true.
func (s *Store) Update(ctx context.Context, m *models.MCQ, answerFixed bool) error {
	options, sections, err := encodeJSONB(m)
	if err != nil {
		return err
	}
	now := time.Now()
	if answerFixed {
		m.FixedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcqs SET
		   question_text = $1, options = $2, correct_answer = $3, correct_answer_text = $4,
		   subspecialty = $5, exam_type = $6, exam_year = $7, unified_explanation = $8,
		   explanation_sections = $9, primary_category = $10, secondary_category = $11,
		   key_concept = $12, difficulty_level = $13, image_url = $14, fixed_at = $15, updated_at = $16
		 WHERE id = $17`,
		m.QuestionText, options, m.CorrectAnswer, m.CorrectAnswerText,
		m.Subspecialty, string(m.ExamType), m.ExamYear, m.UnifiedExplanation,
		sections, m.PrimaryCategory, m.SecondaryCategory,
		m.KeyConcept, m.DifficultyLevel, m.ImageURL, m.FixedAt, now, m.ID)
	if err != nil {
		return fmt.Errorf("update mcq %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	m.UpdatedAt = now
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcqs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mcq %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistingKeys returns the duplicate-detection key of every stored MCQ.
func (s *Store) ExistingKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_text FROM mcqs`)
	if err != nil {
		return nil, fmt.Errorf("load question keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan question text: %w", err)
		}
		keys[importer.QuestionKey(text)] = true
	}
	return keys, rows.Err()
}

// Insert stores mcqs in one transaction and returns how many were written.
func (s *Store) Insert(ctx context.Context, mcqs []models.MCQ) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mcqs
		 (question_number, question_text, options, correct_answer, correct_answer_text, subspecialty,
		  source_file, exam_type, exam_year, ai_generated, unified_explanation, explanation,
		  explanation_sections, verification_confidence, primary_category, secondary_category,
		  key_concept, difficulty_level, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range mcqs {
		m := &mcqs[i]
		options, sections, err := encodeJSONB(m)
		if err != nil {
			return 0, fmt.Errorf("mcq %d: %w", i+1, err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.QuestionNumber, m.QuestionText, options, m.CorrectAnswer, m.CorrectAnswerText, m.Subspecialty,
			m.SourceFile, string(m.ExamType), m.ExamYear, m.AIGenerated, m.UnifiedExplanation, m.Explanation,
			sections, m.VerificationConfidence, m.PrimaryCategory, m.SecondaryCategory,
			m.KeyConcept, m.DifficultyLevel, m.ImageURL); err != nil {
			return 0, fmt.Errorf("insert mcq %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(mcqs), nil
}

// MergeDuplicates re-points user data from remove to keep and deletes the
// removed MCQs. Rows that would collide with the kept MCQ's existing user
// data are dropped instead.
func (s *Store) MergeDuplicates(ctx context.Context, keep int64, remove []int64) error {
	if len(remove) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := pq.Array(remove)
	stmts := []string{
		`DELETE FROM bookmarks b WHERE b.mcq_id = ANY($2)
		   AND EXISTS (SELECT 1 FROM bookmarks k WHERE k.user_id = b.user_id AND k.mcq_id = $1)`,
		`UPDATE bookmarks SET mcq_id = $1 WHERE mcq_id = ANY($2)
		   AND ctid IN (SELECT DISTINCT ON (user_id) ctid FROM bookmarks WHERE mcq_id = ANY($2))`,
		`DELETE FROM notes n WHERE n.mcq_id = ANY($2)
		   AND EXISTS (SELECT 1 FROM notes k WHERE k.user_id = n.user_id AND k.mcq_id = $1)`,
		`UPDATE notes SET mcq_id = $1 WHERE mcq_id = ANY($2)
		   AND id IN (SELECT DISTINCT ON (user_id) id FROM notes WHERE mcq_id = ANY($2) ORDER BY user_id, updated_at DESC)`,
		`DELETE FROM hidden_mcqs h WHERE h.mcq_id = ANY($2)
		   AND EXISTS (SELECT 1 FROM hidden_mcqs k WHERE k.user_id = h.user_id AND k.mcq_id = $1)`,
		`UPDATE hidden_mcqs SET mcq_id = $1 WHERE mcq_id = ANY($2)
		   AND ctid IN (SELECT DISTINCT ON (user_id) ctid FROM hidden_mcqs WHERE mcq_id = ANY($2))`,
		`UPDATE flashcards SET mcq_id = $1 WHERE mcq_id = ANY($2)`,
		`UPDATE incorrect_answers SET mcq_id = $1 WHERE mcq_id = ANY($2)`,
		`UPDATE user_answers SET mcq_id = $1 WHERE mcq_id = ANY($2)`,
		`UPDATE question_reports SET mcq_id = $1 WHERE mcq_id = ANY($2)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, keep, ids); err != nil {
			return fmt.Errorf("re-point user data to MCQ %d: %w", keep, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mcqs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete duplicates of MCQ %d: %w", keep, err)
	}
	return tx.Commit()
}

// ── Dashboard ──────────────────────────────────────────

func (s *Store) UserCounts(ctx context.Context, userID int64) (models.UserCounts, error) {
	var c models.UserCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(DISTINCT mcq_id) FROM user_answers WHERE user_id = $1),
		   (SELECT COUNT(DISTINCT mcq_id) FROM incorrect_answers WHERE user_id = $1),
		   (SELECT COUNT(*) FROM bookmarks WHERE user_id = $1),
		   (SELECT COUNT(*) FROM flashcards WHERE user_id = $1),
		   (SELECT COUNT(*) FROM flashcards WHERE user_id = $1 AND next_review <= NOW())`,
		userID,
	).Scan(&c.Answered, &c.Incorrect, &c.Bookmarks, &c.Flashcards, &c.DueFlashcards)
	if err != nil {
		return c, fmt.Errorf("user counts: %w", err)
	}
	return c, nil
}
