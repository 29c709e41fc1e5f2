package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/models"
)

var (
	ErrNotFound     = errors.New("flashcard not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit  = 50
	maxListLimit      = 200
	backExcerptLength = 600
)

type Repository interface {
	CreateFlashcard(ctx context.Context, c *models.Flashcard) error
	GetFlashcard(ctx context.Context, userID, id int64) (*models.Flashcard, error)
	Flashcards(ctx context.Context, userID int64, dueBy *time.Time, limit int) ([]models.Flashcard, error)
	SaveReview(ctx context.Context, c *models.Flashcard) error
	DeleteFlashcard(ctx context.Context, userID, id int64) error
	FlashcardStats(ctx context.Context, userID int64, now time.Time) (models.ReviewStats, error)
	Streak(ctx context.Context, userID int64) (*models.StudyStreak, error)
	UpdateStreak(ctx context.Context, userID int64, apply func(*models.StudyStreak) bool) error
}

// MCQSource loads the MCQ a flashcard is built from.
type MCQSource interface {
	Get(ctx context.Context, id int64) (*models.MCQ, error)
}

type Service struct {
	repo Repository
	mcqs MCQSource
	now  func() time.Time
}

func NewService(repo Repository, mcqs MCQSource) *Service {
	return &Service{repo: repo, mcqs: mcqs, now: time.Now}
}

// ── Flashcards ──────────────────────────────────────────

// CardFromMCQ builds the default card for an MCQ: the stem on the front,
// the answer and an explanation excerpt on the back.
func CardFromMCQ(m *models.MCQ) (front, back string) {
	front = m.QuestionText
	letters := strings.Join(m.CorrectLetters(), ", ")
	back = "Answer: " + letters
	if text := m.AnswerText(); text != "" {
		back += ". " + text
	}
	if exp := strings.TrimSpace(explanation.StripHTML(explanation.Text(m))); exp != "" {
		runes := []rune(exp)
		if len(runes) > backExcerptLength {
			exp = strings.TrimSpace(string(runes[:backExcerptLength])) + "..."
		}
		back += "\n\n" + exp
	}
	return front, back
}

// CreateFlashcard makes a card from an MCQ or from free text. Given front
// or back text overrides the MCQ-derived side.
func (s *Service) CreateFlashcard(ctx context.Context, userID int64, req models.CreateFlashcardRequest) (*models.Flashcard, error) {
	front, back := strings.TrimSpace(req.Front), strings.TrimSpace(req.Back)

	if req.MCQID != nil {
		m, err := s.mcqs.Get(ctx, *req.MCQID)
		if err != nil {
			return nil, err
		}
		mf, mb := CardFromMCQ(m)
		if front == "" {
			front = mf
		}
		if back == "" {
			back = mb
		}
	}
	if front == "" || back == "" {
		return nil, fmt.Errorf("%w: front and back are required without an mcq_id", ErrInvalidInput)
	}

	c := &models.Flashcard{
		UserID:     userID,
		MCQID:      req.MCQID,
		Front:      front,
		Back:       back,
		EaseFactor: models.DefaultEaseFactor,
		NextReview: s.now(),
	}
	if err := s.repo.CreateFlashcard(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Flashcards(ctx context.Context, userID int64, dueOnly bool, limit int) ([]models.Flashcard, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var dueBy *time.Time
	if dueOnly {
		now := s.now()
		dueBy = &now
	}
	cards, err := s.repo.Flashcards(ctx, userID, dueBy, limit)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.Flashcard{}
	}
	return cards, nil
}

// Review grades a card, reschedules it and counts toward the study streak.
func (s *Service) Review(ctx context.Context, userID, id int64, quality int) (*models.Flashcard, error) {
	c, err := s.repo.GetFlashcard(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next, err := NextSchedule(*c, quality, now)
	if err != nil {
		return nil, err
	}

	c.EaseFactor = next.EaseFactor
	c.IntervalDays = next.IntervalDays
	c.Repetitions = next.Repetitions
	c.NextReview = next.NextReview
	c.LastReviewed = &now
	if err := s.repo.SaveReview(ctx, c); err != nil {
		return nil, err
	}

	if err := s.RecordStudy(ctx, userID, now); err != nil {
		log.Printf("[review] WARN: record study for user %d: %v", userID, err)
	}
	return c, nil
}

func (s *Service) DeleteFlashcard(ctx context.Context, userID, id int64) error {
	return s.repo.DeleteFlashcard(ctx, userID, id)
}

func (s *Service) Stats(ctx context.Context, userID int64) (*models.ReviewStats, error) {
	now := s.now()
	st, err := s.repo.FlashcardStats(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	streak, err := s.streakAsOf(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	st.CurrentStreak, st.LongestStreak = streak.CurrentStreak, streak.LongestStreak
	return &st, nil
}

// ── Streak ──────────────────────────────────────────────

// RecordStudy marks at's UTC day as a study day for the user.
func (s *Service) RecordStudy(ctx context.Context, userID int64, at time.Time) error {
	return s.repo.UpdateStreak(ctx, userID, func(st *models.StudyStreak) bool {
		return AdvanceStreak(st, at)
	})
}

func (s *Service) Streak(ctx context.Context, userID int64) (*models.StudyStreak, error) {
	return s.streakAsOf(ctx, userID, s.now())
}

func (s *Service) streakAsOf(ctx context.Context, userID int64, now time.Time) (*models.StudyStreak, error) {
	st, err := s.repo.Streak(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur := StreakAsOf(*st, now)
	return &cur, nil
}
