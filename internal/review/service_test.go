package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neuro-mcq/backend/internal/mcqs"
	"github.com/neuro-mcq/backend/internal/models"
)

type memRepo struct {
	cards  map[int64]*models.Flashcard
	streak map[int64]*models.StudyStreak
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{cards: make(map[int64]*models.Flashcard), streak: make(map[int64]*models.StudyStreak), nextID: 1}
}

func (r *memRepo) CreateFlashcard(_ context.Context, c *models.Flashcard) error {
	c.ID = r.nextID
	r.nextID++
	cp := *c
	r.cards[c.ID] = &cp
	return nil
}

func (r *memRepo) GetFlashcard(_ context.Context, userID, id int64) (*models.Flashcard, error) {
	c, ok := r.cards[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) Flashcards(_ context.Context, userID int64, dueBy *time.Time, limit int) ([]models.Flashcard, error) {
	var out []models.Flashcard
	for id := int64(1); id < r.nextID && len(out) < limit; id++ {
		c, ok := r.cards[id]
		if !ok || c.UserID != userID || (dueBy != nil && c.NextReview.After(*dueBy)) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *memRepo) SaveReview(_ context.Context, c *models.Flashcard) error {
	cp := *c
	r.cards[c.ID] = &cp
	return nil
}

func (r *memRepo) DeleteFlashcard(_ context.Context, userID, id int64) error {
	if c, ok := r.cards[id]; !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(r.cards, id)
	return nil
}

func (r *memRepo) FlashcardStats(_ context.Context, userID int64, now time.Time) (models.ReviewStats, error) {
	var st models.ReviewStats
	for _, c := range r.cards {
		if c.UserID != userID {
			continue
		}
		st.TotalCards++
		if !c.NextReview.After(now) {
			st.DueToday++
		}
		if c.LastReviewed != nil && !c.LastReviewed.Before(utcDay(now)) {
			st.ReviewedToday++
		}
	}
	return st, nil
}

func (r *memRepo) Streak(_ context.Context, userID int64) (*models.StudyStreak, error) {
	if s, ok := r.streak[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return &models.StudyStreak{UserID: userID}, nil
}

func (r *memRepo) UpdateStreak(ctx context.Context, userID int64, apply func(*models.StudyStreak) bool) error {
	s, _ := r.Streak(ctx, userID)
	if apply(s) {
		r.streak[userID] = s
	}
	return nil
}

type mcqMap map[int64]*models.MCQ

func (m mcqMap) Get(_ context.Context, id int64) (*models.MCQ, error) {
	if q, ok := m[id]; ok {
		return q, nil
	}
	return nil, mcqs.ErrNotFound
}

func newTestService(now time.Time) (*Service, *memRepo) {
	repo := newMemRepo()
	source := mcqMap{
		7: {
			ID:                 7,
			QuestionText:       "Which drug is first-line for trigeminal neuralgia?",
			Options:            models.Options{{Letter: "A", Text: "Carbamazepine"}, {Letter: "B", Text: "Gabapentin"}},
			CorrectAnswer:      "A",
			UnifiedExplanation: "<p>Carbamazepine is first-line.</p>",
		},
	}
	svc := NewService(repo, source)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestCardFromMCQ(t *testing.T) {
	long := strings.Repeat("word ", 200)
	m := &models.MCQ{
		QuestionText:  "Stem",
		Options:       models.Options{{Letter: "A", Text: "One"}, {Letter: "B", Text: "Two"}},
		CorrectAnswer: "A,B",
		Explanation:   long,
	}
	front, back := CardFromMCQ(m)
	if front != "Stem" {
		t.Errorf("front = %q", front)
	}
	if !strings.HasPrefix(back, "Answer: A, B. One; Two\n\n") || !strings.HasSuffix(back, "...") {
		t.Errorf("back = %q", back)
	}
}

func TestService_CreateFlashcard(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(now)
	ctx := context.Background()
	id := int64(7)

	card, err := svc.CreateFlashcard(ctx, 3, models.CreateFlashcardRequest{MCQID: &id})
	if err != nil {
		t.Fatalf("CreateFlashcard: %v", err)
	}
	if card.Back != "Answer: A. Carbamazepine\n\nCarbamazepine is first-line." {
		t.Errorf("back = %q", card.Back)
	}
	if card.EaseFactor != models.DefaultEaseFactor || !card.NextReview.Equal(now) {
		t.Errorf("schedule = %v %v", card.EaseFactor, card.NextReview)
	}

	custom, err := svc.CreateFlashcard(ctx, 3, models.CreateFlashcardRequest{MCQID: &id, Front: "TN drug?"})
	if err != nil || custom.Front != "TN drug?" {
		t.Errorf("custom front = %+v, %v", custom, err)
	}

	tests := []struct {
		name string
		req  models.CreateFlashcardRequest
		err  error
	}{
		{"missing back", models.CreateFlashcardRequest{Front: "only front"}, ErrInvalidInput},
		{"unknown mcq", models.CreateFlashcardRequest{MCQID: new(int64)}, mcqs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateFlashcard(ctx, 3, tt.req); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestService_ReviewUpdatesScheduleAndStreak(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)
	ctx := context.Background()

	card, _ := svc.CreateFlashcard(ctx, 3, models.CreateFlashcardRequest{Front: "f", Back: "b"})
	reviewed, err := svc.Review(ctx, 3, card.ID, 5)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.Repetitions != 1 || reviewed.IntervalDays != 1 || !reviewed.NextReview.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("reviewed = %+v", reviewed)
	}
	if reviewed.LastReviewed == nil || !reviewed.LastReviewed.Equal(now) {
		t.Errorf("last reviewed = %v", reviewed.LastReviewed)
	}

	streak, _ := svc.Streak(ctx, 3)
	if streak.CurrentStreak != 1 || streak.LongestStreak != 1 {
		t.Errorf("streak = %+v", streak)
	}

	due, _ := svc.Flashcards(ctx, 3, true, 0)
	if len(due) != 0 {
		t.Errorf("reviewed card should not be due, got %d", len(due))
	}

	stats, err := svc.Stats(ctx, 3)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalCards != 1 || stats.ReviewedToday != 1 || stats.DueToday != 0 || stats.CurrentStreak != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := svc.Review(ctx, 3, card.ID, 9); !errors.Is(err, ErrInvalidQuality) {
		t.Errorf("expected ErrInvalidQuality, got %v", err)
	}
	if _, err := svc.Review(ctx, 4, card.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("another user's card should be not found, got %v", err)
	}
	if len(repo.cards) != 1 {
		t.Errorf("cards = %d", len(repo.cards))
	}
}

func TestService_RecordStudy(t *testing.T) {
	now := time.Date(2025, 7, 3, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(now)
	ctx := context.Background()

	for _, at := range []time.Time{now.AddDate(0, 0, -2), now.AddDate(0, 0, -1), now, now.Add(time.Hour)} {
		if err := svc.RecordStudy(ctx, 9, at); err != nil {
			t.Fatalf("RecordStudy: %v", err)
		}
	}
	streak, _ := svc.Streak(ctx, 9)
	if streak.CurrentStreak != 3 || streak.LongestStreak != 3 {
		t.Errorf("streak = %d/%d", streak.CurrentStreak, streak.LongestStreak)
	}

	svc.now = func() time.Time { return now.AddDate(0, 0, 3) }
	streak, _ = svc.Streak(ctx, 9)
	if streak.CurrentStreak != 0 || streak.LongestStreak != 3 {
		t.Errorf("lapsed streak = %d/%d", streak.CurrentStreak, streak.LongestStreak)
	}
}
