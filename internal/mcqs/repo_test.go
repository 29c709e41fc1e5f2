package mcqs

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
)

type userMCQ struct {
	user, mcq int64
}

// memRepo is an in-memory Repository for service and handler tests.
type memRepo struct {
	mcqs      map[int64]*models.MCQ
	nextID    int64
	answers   map[int64][]models.RecordedAnswer
	bookmarks map[userMCQ]bool
	notes     map[userMCQ]string
	hidden    map[userMCQ]bool
	reports   map[int64]*models.QuestionReport
	merged    map[int64][]int64
	updates   int
	fixed     map[int64]bool
}

func newMemRepo(mcqs ...models.MCQ) *memRepo {
	r := &memRepo{
		mcqs:      make(map[int64]*models.MCQ),
		nextID:    1,
		answers:   make(map[int64][]models.RecordedAnswer),
		bookmarks: make(map[userMCQ]bool),
		notes:     make(map[userMCQ]string),
		hidden:    make(map[userMCQ]bool),
		reports:   make(map[int64]*models.QuestionReport),
		merged:    make(map[int64][]int64),
		fixed:     make(map[int64]bool),
	}
	for i := range mcqs {
		m := mcqs[i]
		if m.ID == 0 {
			m.ID = r.nextID
		}
		if m.ID >= r.nextID {
			r.nextID = m.ID + 1
		}
		r.mcqs[m.ID] = &m
	}
	return r
}

func (r *memRepo) sorted(filter func(m *models.MCQ) bool) []models.MCQ {
	var out []models.MCQ
	for _, m := range r.mcqs {
		if filter == nil || filter(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) List(_ context.Context, f models.MCQFilter) ([]models.MCQ, int, error) {
	all := r.sorted(func(m *models.MCQ) bool {
		if f.Subspecialty != "" && m.Subspecialty != f.Subspecialty {
			return false
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(m.QuestionText), strings.ToLower(f.Query)) {
			return false
		}
		return !r.hidden[userMCQ{f.UserID, m.ID}]
	})
	start := (f.Page - 1) * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memRepo) SubspecialtyCounts(_ context.Context) ([]models.SubspecialtyCount, error) {
	counts := make(map[string]*models.SubspecialtyCount)
	for _, m := range r.sorted(nil) {
		c, ok := counts[m.Subspecialty]
		if !ok {
			c = &models.SubspecialtyCount{Subspecialty: m.Subspecialty, ByExamType: map[models.ExamType]int{}}
			counts[m.Subspecialty] = c
		}
		c.Total++
		c.ByExamType[m.ExamType]++
	}
	var out []models.SubspecialtyCount
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subspecialty < out[j].Subspecialty })
	return out, nil
}

func (r *memRepo) Get(_ context.Context, id int64) (*models.MCQ, error) {
	m, ok := r.mcqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) GetMany(_ context.Context, ids []int64) ([]models.MCQ, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.sorted(func(m *models.MCQ) bool { return want[m.ID] }), nil
}

func (r *memRepo) All(_ context.Context, subspecialty string) ([]models.MCQ, error) {
	return r.sorted(func(m *models.MCQ) bool {
		return subspecialty == "" || m.Subspecialty == subspecialty
	}), nil
}

func (r *memRepo) Random(_ context.Context, subspecialty string, userID int64, count int) ([]models.MCQ, error) {
	out := r.sorted(func(m *models.MCQ) bool {
		return (subspecialty == "" || m.Subspecialty == subspecialty) && !r.hidden[userMCQ{userID, m.ID}]
	})
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (r *memRepo) UserState(_ context.Context, userID, mcqID int64) (models.UserMCQState, error) {
	k := userMCQ{userID, mcqID}
	return models.UserMCQState{Bookmarked: r.bookmarks[k], Note: r.notes[k], Hidden: r.hidden[k]}, nil
}

func (r *memRepo) RecordAnswers(_ context.Context, userID int64, answers []models.RecordedAnswer) error {
	r.answers[userID] = append(r.answers[userID], answers...)
	return nil
}

func (r *memRepo) IncorrectMCQs(_ context.Context, userID int64, limit int) ([]models.MCQ, error) {
	var out []models.MCQ
	seen := make(map[int64]bool)
	answers := r.answers[userID]
	for i := len(answers) - 1; i >= 0 && len(out) < limit; i-- {
		a := answers[i]
		if a.Correct || seen[a.MCQID] {
			continue
		}
		seen[a.MCQID] = true
		if m, ok := r.mcqs[a.MCQID]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memRepo) ToggleBookmark(_ context.Context, userID, mcqID int64) (bool, error) {
	k := userMCQ{userID, mcqID}
	if r.bookmarks[k] {
		delete(r.bookmarks, k)
		return false, nil
	}
	r.bookmarks[k] = true
	return true, nil
}

func (r *memRepo) Bookmarked(_ context.Context, userID int64) ([]models.MCQ, error) {
	return r.sorted(func(m *models.MCQ) bool { return r.bookmarks[userMCQ{userID, m.ID}] }), nil
}

func (r *memRepo) SaveNote(_ context.Context, userID, mcqID int64, content string) (*models.Note, error) {
	r.notes[userMCQ{userID, mcqID}] = content
	return &models.Note{UserID: userID, MCQID: mcqID, Content: content}, nil
}

func (r *memRepo) DeleteNote(_ context.Context, userID, mcqID int64) error {
	k := userMCQ{userID, mcqID}
	if _, ok := r.notes[k]; !ok {
		return ErrNotFound
	}
	delete(r.notes, k)
	return nil
}

func (r *memRepo) SetHidden(_ context.Context, userID, mcqID int64, hidden bool) error {
	k := userMCQ{userID, mcqID}
	if hidden {
		r.hidden[k] = true
	} else {
		delete(r.hidden, k)
	}
	return nil
}

func (r *memRepo) Hidden(_ context.Context, userID int64) ([]models.MCQ, error) {
	return r.sorted(func(m *models.MCQ) bool { return r.hidden[userMCQ{userID, m.ID}] }), nil
}

func (r *memRepo) CreateReport(_ context.Context, rep *models.QuestionReport) error {
	rep.ID = int64(len(r.reports) + 1)
	rep.CreatedAt = time.Now()
	cp := *rep
	r.reports[rep.ID] = &cp
	return nil
}

func (r *memRepo) Reports(_ context.Context, status models.ReportStatus, limit, offset int) ([]models.QuestionReport, error) {
	var out []models.QuestionReport
	for _, rep := range r.reports {
		if status == "" || rep.Status == status {
			out = append(out, *rep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) GetReport(_ context.Context, id int64) (*models.QuestionReport, error) {
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rep
	return &cp, nil
}

func (r *memRepo) ResolveReport(_ context.Context, rep *models.QuestionReport, answer, answerText string) error {
	cp := *rep
	r.reports[rep.ID] = &cp
	if answer != "" {
		m := r.mcqs[rep.MCQID]
		m.CorrectAnswer, m.CorrectAnswerText = answer, answerText
		r.fixed[m.ID] = true
	}
	return nil
}

func (r *memRepo) Update(_ context.Context, m *models.MCQ, answerFixed bool) error {
	if _, ok := r.mcqs[m.ID]; !ok {
		return ErrNotFound
	}
	cp := *m
	r.mcqs[m.ID] = &cp
	r.updates++
	if answerFixed {
		r.fixed[m.ID] = true
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.mcqs[id]; !ok {
		return ErrNotFound
	}
	delete(r.mcqs, id)
	return nil
}

func (r *memRepo) ExistingKeys(_ context.Context) (map[string]bool, error) {
	keys := make(map[string]bool)
	for _, m := range r.mcqs {
		keys[importer.QuestionKey(m.QuestionText)] = true
	}
	return keys, nil
}

func (r *memRepo) Insert(_ context.Context, mcqs []models.MCQ) (int, error) {
	for i := range mcqs {
		m := mcqs[i]
		m.ID = r.nextID
		r.nextID++
		r.mcqs[m.ID] = &m
	}
	return len(mcqs), nil
}

func (r *memRepo) MergeDuplicates(_ context.Context, keep int64, remove []int64) error {
	r.merged[keep] = append(r.merged[keep], remove...)
	for _, id := range remove {
		delete(r.mcqs, id)
	}
	return nil
}

func (r *memRepo) UserCounts(_ context.Context, userID int64) (models.UserCounts, error) {
	var c models.UserCounts
	answered := make(map[int64]bool)
	missed := make(map[int64]bool)
	for _, a := range r.answers[userID] {
		answered[a.MCQID] = true
		if !a.Correct {
			missed[a.MCQID] = true
		}
	}
	c.Answered, c.Incorrect = len(answered), len(missed)
	for k := range r.bookmarks {
		if k.user == userID {
			c.Bookmarks++
		}
	}
	return c, nil
}

func sampleMCQs() []models.MCQ {
	return []models.MCQ{
		{
			ID:            1,
			QuestionText:  "A 25-year-old woman has painful monocular vision loss. What is the diagnosis?",
			Options:       models.Options{{Letter: "A", Text: "Optic neuritis"}, {Letter: "B", Text: "Retinal detachment"}},
			CorrectAnswer: "A",
			Subspecialty:  "Neuro-ophthalmology",
			ExamType:      models.ExamAdvanced,
			UnifiedExplanation: "Optic neuritis presents with painful monocular vision loss in young women and is " +
				"strongly associated with multiple sclerosis.",
		},
		{
			ID:            2,
			QuestionText:  "Which drugs are first-line for absence seizures?",
			Options:       models.Options{{Letter: "A", Text: "Ethosuximide"}, {Letter: "B", Text: "Valproate"}, {Letter: "C", Text: "Carbamazepine"}},
			CorrectAnswer: "A,B",
			Subspecialty:  "Epilepsy",
		},
		{
			ID:            3,
			QuestionText:  "Which antibody is associated with myasthenia gravis?",
			Options:       models.Options{{Letter: "A", Text: "Anti-AChR"}, {Letter: "B", Text: "Anti-NMDA"}},
			CorrectAnswer: "A",
			Subspecialty:  "Neuromuscular",
		},
	}
}
