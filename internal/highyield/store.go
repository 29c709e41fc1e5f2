package highyield

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/neuro-mcq/backend/internal/database"
	"github.com/neuro-mcq/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface{ Scan(...any) error }

func wrapWrite(err error, what string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrConflict, what)
	}
	return fmt.Errorf("save %s: %w", what, err)
}

func affected(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Specialties ────────────────────────────────────────

const specialtyColumns = `s.id, s.name, s.slug, s.introduction, s.historical_overview, s.important_concepts,
	s.related_anatomy, s.introduction_image, s.anatomy_image,
	(SELECT COUNT(*) FROM high_yield_topics t WHERE t.specialty_id = s.id), s.created_at, s.updated_at`

func scanSpecialty(row rowScanner) (*models.HighYieldSpecialty, error) {
	var s models.HighYieldSpecialty
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.Introduction, &s.HistoricalOverview, &s.ImportantConcepts,
		&s.RelatedAnatomy, &s.IntroductionImage, &s.AnatomyImage, &s.TopicCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Store) Specialties(ctx context.Context) ([]models.HighYieldSpecialty, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+specialtyColumns+` FROM high_yield_specialties s ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	defer rows.Close()

	var out []models.HighYieldSpecialty
	for rows.Next() {
		sp, err := scanSpecialty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan specialty: %w", err)
		}
		out = append(out, *sp)
	}
	return out, rows.Err()
}

func (s *Store) specialtyWhere(ctx context.Context, where string, arg any) (*models.HighYieldSpecialty, error) {
	sp, err := scanSpecialty(s.db.QueryRowContext(ctx,
		`SELECT `+specialtyColumns+` FROM high_yield_specialties s WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get specialty: %w", err)
	}
	return sp, nil
}

func (s *Store) GetSpecialty(ctx context.Context, id int64) (*models.HighYieldSpecialty, error) {
	return s.specialtyWhere(ctx, `s.id = $1`, id)
}

func (s *Store) SpecialtyBySlug(ctx context.Context, slug string) (*models.HighYieldSpecialty, error) {
	return s.specialtyWhere(ctx, `s.slug = $1`, slug)
}

func (s *Store) CreateSpecialty(ctx context.Context, sp *models.HighYieldSpecialty, userID int64) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO high_yield_specialties (name, slug, introduction, historical_overview, important_concepts,
		     related_anatomy, introduction_image, anatomy_image, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		sp.Name, sp.Slug, sp.Introduction, sp.HistoricalOverview, sp.ImportantConcepts,
		sp.RelatedAnatomy, sp.IntroductionImage, sp.AnatomyImage, userID,
	).Scan(&sp.ID, &sp.CreatedAt, &sp.UpdatedAt)
	return wrapWrite(err, "specialty")
}

func (s *Store) UpdateSpecialty(ctx context.Context, sp *models.HighYieldSpecialty) error {
	err := s.db.QueryRowContext(ctx,
		`UPDATE high_yield_specialties SET name = $2, slug = $3, introduction = $4, historical_overview = $5,
		     important_concepts = $6, related_anatomy = $7, introduction_image = $8, anatomy_image = $9,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		sp.ID, sp.Name, sp.Slug, sp.Introduction, sp.HistoricalOverview, sp.ImportantConcepts,
		sp.RelatedAnatomy, sp.IntroductionImage, sp.AnatomyImage,
	).Scan(&sp.UpdatedAt)
	return wrapWrite(err, "specialty")
}

func (s *Store) DeleteSpecialty(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM high_yield_specialties WHERE id = $1`, id)
	return affected(res, err, "specialty")
}

// ── Topics ─────────────────────────────────────────────

const topicColumns = `id, specialty_id, title, slug, sort_order, sections, created_at, updated_at`

func scanTopic(row rowScanner) (*models.HighYieldTopic, error) {
	var t models.HighYieldTopic
	var sections []byte
	if err := row.Scan(&t.ID, &t.SpecialtyID, &t.Title, &t.Slug, &t.Order, &sections, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &t.Sections); err != nil {
			return nil, fmt.Errorf("decode sections of topic %d: %w", t.ID, err)
		}
	}
	return &t, nil
}

// Topics lists a specialty's topics by display order, then title.
func (s *Store) Topics(ctx context.Context, specialtyID int64) ([]models.HighYieldTopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM high_yield_topics WHERE specialty_id = $1 ORDER BY sort_order, title`, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []models.HighYieldTopic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetTopic(ctx context.Context, id int64) (*models.HighYieldTopic, error) {
	t, err := scanTopic(s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM high_yield_topics WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *Store) CreateTopic(ctx context.Context, t *models.HighYieldTopic, userID int64) error {
	sections, err := json.Marshal(t.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO high_yield_topics (specialty_id, title, slug, sort_order, sections, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		t.SpecialtyID, t.Title, t.Slug, t.Order, sections, userID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return wrapWrite(err, "topic")
}

func (s *Store) UpdateTopic(ctx context.Context, t *models.HighYieldTopic) error {
	sections, err := json.Marshal(t.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`UPDATE high_yield_topics SET title = $2, slug = $3, sort_order = $4, sections = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.Title, t.Slug, t.Order, sections,
	).Scan(&t.UpdatedAt)
	return wrapWrite(err, "topic")
}

func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM high_yield_topics WHERE id = $1`, id)
	return affected(res, err, "topic")
}

// ── Section images ─────────────────────────────────────

func (s *Store) SectionImages(ctx context.Context, topicID int64) ([]models.SectionImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, section, image_url, caption, sort_order, created_at
		 FROM topic_section_images WHERE topic_id = $1
		 ORDER BY section, sort_order, id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list section images: %w", err)
	}
	defer rows.Close()

	var out []models.SectionImage
	for rows.Next() {
		var img models.SectionImage
		if err := rows.Scan(&img.ID, &img.TopicID, &img.Section, &img.ImageURL, &img.Caption, &img.Order, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *Store) AddSectionImage(ctx context.Context, img *models.SectionImage) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO topic_section_images (topic_id, section, image_url, caption, sort_order)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		img.TopicID, img.Section, img.ImageURL, img.Caption, img.Order,
	).Scan(&img.ID, &img.CreatedAt)
	return wrapWrite(err, "section image")
}

func (s *Store) DeleteSectionImage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM topic_section_images WHERE id = $1`, id)
	return affected(res, err, "section image")
}
