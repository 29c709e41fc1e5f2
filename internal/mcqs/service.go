package mcqs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/export"
	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAnswer = errors.New("answer does not match the MCQ's options")
	ErrInvalidInput  = errors.New("invalid input")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultExamSize = 20
	maxExamSize     = 200
	weaknessLimit   = 50
)

// Repository is the persistence the service needs. *Store implements it.
type Repository interface {
	List(ctx context.Context, f models.MCQFilter) ([]models.MCQ, int, error)
	SubspecialtyCounts(ctx context.Context) ([]models.SubspecialtyCount, error)
	Get(ctx context.Context, id int64) (*models.MCQ, error)
	GetMany(ctx context.Context, ids []int64) ([]models.MCQ, error)
	All(ctx context.Context, subspecialty string) ([]models.MCQ, error)
	Random(ctx context.Context, subspecialty string, userID int64, count int) ([]models.MCQ, error)
	UserState(ctx context.Context, userID, mcqID int64) (models.UserMCQState, error)
	RecordAnswers(ctx context.Context, userID int64, answers []models.RecordedAnswer) error
	IncorrectMCQs(ctx context.Context, userID int64, limit int) ([]models.MCQ, error)
	ToggleBookmark(ctx context.Context, userID, mcqID int64) (bool, error)
	Bookmarked(ctx context.Context, userID int64) ([]models.MCQ, error)
	SaveNote(ctx context.Context, userID, mcqID int64, content string) (*models.Note, error)
	DeleteNote(ctx context.Context, userID, mcqID int64) error
	SetHidden(ctx context.Context, userID, mcqID int64, hidden bool) error
	Hidden(ctx context.Context, userID int64) ([]models.MCQ, error)
	CreateReport(ctx context.Context, r *models.QuestionReport) error
	Reports(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.QuestionReport, error)
	GetReport(ctx context.Context, id int64) (*models.QuestionReport, error)
	ResolveReport(ctx context.Context, r *models.QuestionReport, answer, answerText string) error
	Update(ctx context.Context, m *models.MCQ, answerFixed bool) error
	Delete(ctx context.Context, id int64) error
	ExistingKeys(ctx context.Context) (map[string]bool, error)
	Insert(ctx context.Context, mcqs []models.MCQ) (int, error)
	MergeDuplicates(ctx context.Context, keep int64, remove []int64) error
	UserCounts(ctx context.Context, userID int64) (models.UserCounts, error)
}

// StudyTracker records study activity for streaks.
type StudyTracker interface {
	RecordStudy(ctx context.Context, userID int64, at time.Time) error
	Streak(ctx context.Context, userID int64) (*models.StudyStreak, error)
}

type Service struct {
	repo    Repository
	tracker StudyTracker
	llm     casegen.LLMClient // nil disables revision
	now     func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetStudyTracker injects the review service for streak tracking.
func (s *Service) SetStudyTracker(t StudyTracker) {
	s.tracker = t
}

func (s *Service) recordStudy(ctx context.Context, userID int64) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.RecordStudy(ctx, userID, s.now()); err != nil {
		log.Printf("[mcqs] WARN: record study for user %d: %v", userID, err)
	}
}

// ── Browsing ───────────────────────────────────────────

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func (s *Service) List(ctx context.Context, f models.MCQFilter) (*models.MCQListResponse, error) {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
	f.ExamType = models.NormalizeExamType(string(f.ExamType))

	mcqs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if mcqs == nil {
		mcqs = []models.MCQ{}
	}
	return &models.MCQListResponse{MCQs: mcqs, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

func (s *Service) Subspecialties(ctx context.Context) ([]models.SubspecialtyCount, error) {
	counts, err := s.repo.SubspecialtyCounts(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.SubspecialtyCount{}
	}
	return counts, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.MCQ, error) {
	return s.repo.Get(ctx, id)
}

// Detail returns an MCQ with its display explanation and the caller's
// bookmark, note and hidden state.
func (s *Service) Detail(ctx context.Context, userID, id int64) (*models.MCQDetail, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &models.MCQDetail{
		MCQ:             *m,
		ExplanationText: explanation.Text(m),
		HasExplanation:  explanation.HasExplanation(m),
	}
	if userID != 0 {
		st, err := s.repo.UserState(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		d.Bookmarked, d.Note, d.Hidden = st.Bookmarked, st.Note, st.Hidden
	}
	return d, nil
}

// Random draws an exam-mode set, skipping MCQs the user has hidden.
func (s *Service) Random(ctx context.Context, userID int64, subspecialty string, count int) ([]models.MCQ, error) {
	if count <= 0 {
		count = defaultExamSize
	}
	if count > maxExamSize {
		count = maxExamSize
	}
	mcqs, err := s.repo.Random(ctx, subspecialty, userID, count)
	if err != nil {
		return nil, err
	}
	if mcqs == nil {
		mcqs = []models.MCQ{}
	}
	return mcqs, nil
}

// ── Answering ──────────────────────────────────────────

// selection normalizes a submitted answer to its stored "A,B" form.
func selection(selected string) (string, error) {
	joined := strings.Join(models.SplitLetters(selected), ",")
	if len(joined) > models.MaxAnswerLen {
		return "", fmt.Errorf("%w: selected is longer than %d characters", ErrInvalidInput, models.MaxAnswerLen)
	}
	return joined, nil
}

func (s *Service) CheckAnswer(ctx context.Context, userID, id int64, selected string) (*models.CheckAnswerResponse, error) {
	stored, err := selection(selected)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return nil, fmt.Errorf("%w: selected is required", ErrInvalidInput)
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	correct := m.IsCorrect(selected)
	answer := models.RecordedAnswer{MCQID: id, Selected: stored, Correct: correct}
	if err := s.repo.RecordAnswers(ctx, userID, []models.RecordedAnswer{answer}); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	s.recordStudy(ctx, userID)

	return &models.CheckAnswerResponse{
		Correct:         correct,
		CorrectLetters:  m.CorrectLetters(),
		CorrectText:     m.AnswerText(),
		ExplanationText: explanation.Text(m),
	}, nil
}

// SubmitExam scores a set of answers, records them, and breaks the score
// down by subspecialty. Answers to unknown MCQs are ignored.
func (s *Service) SubmitExam(ctx context.Context, userID int64, answers []models.ExamAnswer) (*models.SubmitExamResponse, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers submitted", ErrInvalidInput)
	}
	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		if _, err := selection(a.Selected); err != nil {
			return nil, fmt.Errorf("MCQ %d: %w", a.MCQID, err)
		}
		ids = append(ids, a.MCQID)
	}
	found, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.MCQ, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	resp := &models.SubmitExamResponse{IncorrectIDs: []int64{}}
	scores := make(map[string]*models.SubspecialtyScore)
	var recorded []models.RecordedAnswer
	seen := make(map[int64]bool, len(answers))

	for _, a := range answers {
		m, ok := byID[a.MCQID]
		if !ok || seen[a.MCQID] {
			continue
		}
		seen[a.MCQID] = true

		correct := m.IsCorrect(a.Selected)
		sc, ok := scores[m.Subspecialty]
		if !ok {
			sc = &models.SubspecialtyScore{Subspecialty: m.Subspecialty}
			scores[m.Subspecialty] = sc
		}
		sc.Total++
		resp.Total++
		if correct {
			sc.Correct++
			resp.Correct++
		} else {
			resp.IncorrectIDs = append(resp.IncorrectIDs, m.ID)
		}
		recorded = append(recorded, models.RecordedAnswer{
			MCQID:    m.ID,
			Selected: strings.Join(models.SplitLetters(a.Selected), ","),
			Correct:  correct,
		})
	}

	if resp.Total > 0 {
		resp.Percentage = math.Round(float64(resp.Correct)*1000/float64(resp.Total)) / 10
		if err := s.repo.RecordAnswers(ctx, userID, recorded); err != nil {
			return nil, fmt.Errorf("record exam answers: %w", err)
		}
		s.recordStudy(ctx, userID)
	}

	resp.BySubspecialty = make([]models.SubspecialtyScore, 0, len(scores))
	for _, sc := range scores {
		resp.BySubspecialty = append(resp.BySubspecialty, *sc)
	}
	sort.Slice(resp.BySubspecialty, func(i, j int) bool {
		return resp.BySubspecialty[i].Subspecialty < resp.BySubspecialty[j].Subspecialty
	})
	return resp, nil
}

// WeaknessTest returns MCQs the user previously missed, most recent first.
func (s *Service) WeaknessTest(ctx context.Context, userID int64, limit int) ([]models.MCQ, error) {
	if limit <= 0 || limit > weaknessLimit {
		limit = weaknessLimit
	}
	mcqs, err := s.repo.IncorrectMCQs(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if mcqs == nil {
		mcqs = []models.MCQ{}
	}
	return mcqs, nil
}

// ── Bookmarks, notes, hidden ───────────────────────────

func (s *Service) ToggleBookmark(ctx context.Context, userID, id int64) (bool, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return false, err
	}
	return s.repo.ToggleBookmark(ctx, userID, id)
}

func (s *Service) Bookmarks(ctx context.Context, userID int64) ([]models.MCQ, error) {
	return emptyIfNil(s.repo.Bookmarked(ctx, userID))
}

func (s *Service) SaveNote(ctx context.Context, userID, id int64, content string) (*models.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: note content is required", ErrInvalidInput)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.SaveNote(ctx, userID, id, content)
}

func (s *Service) DeleteNote(ctx context.Context, userID, id int64) error {
	return s.repo.DeleteNote(ctx, userID, id)
}

func (s *Service) SetHidden(ctx context.Context, userID, id int64, hidden bool) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetHidden(ctx, userID, id, hidden)
}

func (s *Service) Hidden(ctx context.Context, userID int64) ([]models.MCQ, error) {
	return emptyIfNil(s.repo.Hidden(ctx, userID))
}

func emptyIfNil(mcqs []models.MCQ, err error) ([]models.MCQ, error) {
	if err != nil {
		return nil, err
	}
	if mcqs == nil {
		mcqs = []models.MCQ{}
	}
	return mcqs, nil
}

// ── Reports ────────────────────────────────────────────

// validLetters normalizes an answer and checks it against m's options.
func validLetters(m *models.MCQ, answer string) (string, bool) {
	letters := models.SplitLetters(answer)
	if len(letters) == 0 {
		return "", false
	}
	for _, l := range letters {
		if !m.Options.Has(l) {
			return "", false
		}
	}
	return strings.Join(letters, ","), true
}

func (s *Service) Report(ctx context.Context, userID, id int64, req models.CreateReportRequest) (*models.QuestionReport, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	suggested := ""
	if strings.TrimSpace(req.SuggestedCorrectAnswer) != "" {
		var ok bool
		if suggested, ok = validLetters(m, req.SuggestedCorrectAnswer); !ok {
			return nil, ErrInvalidAnswer
		}
	}

	r := &models.QuestionReport{
		UserID:                 userID,
		MCQID:                  id,
		Reason:                 reason,
		SuggestedCorrectAnswer: suggested,
		Status:                 models.ReportPending,
	}
	if err := s.repo.CreateReport(ctx, r); err != nil {
		return nil, err
	}
	log.Printf("[mcqs] Report %d filed for MCQ %d by user %d", r.ID, id, userID)
	return r, nil
}

func (s *Service) Reports(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.QuestionReport, error) {
	if status != "" && !models.ValidReportStatuses[status] {
		return nil, fmt.Errorf("%w: unknown report status %q", ErrInvalidInput, status)
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	reports, err := s.repo.Reports(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.QuestionReport{}
	}
	return reports, nil
}

// ResolveReport closes a report. With ApplySuggestion the reporter's
// suggested answer becomes the MCQ's correct answer.
func (s *Service) ResolveReport(ctx context.Context, id int64, req models.ResolveReportRequest) (*models.QuestionReport, error) {
	if req.Status == "" {
		req.Status = models.ReportResolved
	}
	if !models.ValidReportStatuses[req.Status] || req.Status == models.ReportPending {
		return nil, fmt.Errorf("%w: cannot resolve a report as %q", ErrInvalidInput, req.Status)
	}
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	answer, answerText := "", ""
	if req.ApplySuggestion {
		m, err := s.repo.Get(ctx, r.MCQID)
		if err != nil {
			return nil, err
		}
		var ok bool
		if answer, ok = validLetters(m, r.SuggestedCorrectAnswer); !ok {
			return nil, ErrInvalidAnswer
		}
		m.CorrectAnswer, m.CorrectAnswerText = answer, ""
		answerText = m.AnswerText()
	}

	now := s.now()
	r.Status = req.Status
	r.AdminNotes = strings.TrimSpace(req.AdminNotes)
	r.ResolvedAt = &now
	if err := s.repo.ResolveReport(ctx, r, answer, answerText); err != nil {
		return nil, err
	}
	if answer != "" {
		log.Printf("[mcqs] Report %d applied: MCQ %d answer set to %s", r.ID, r.MCQID, answer)
	}
	return r, nil
}

// ── Staff updates ──────────────────────────────────────

// update loads an MCQ, applies a change and stores it. fixed_at is only
// stamped when the change moved the correct answer.
func (s *Service) update(ctx context.Context, id int64, apply func(m *models.MCQ) error) (*models.MCQ, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := m.CorrectAnswer
	if err := apply(m); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, m, m.CorrectAnswer != before); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, id int64, req models.UpdateQuestionRequest) (*models.MCQ, error) {
	return s.update(ctx, id, func(m *models.MCQ) error {
		text := strings.TrimSpace(req.QuestionText)
		if text == "" {
			return fmt.Errorf("%w: question_text is required", ErrInvalidInput)
		}
		m.QuestionText = text
		return nil
	})
}

// UpdateOptions replaces the options and, when given, the answer. The result
// must still validate.
func (s *Service) UpdateOptions(ctx context.Context, id int64, req models.UpdateOptionsRequest) (*models.MCQ, error) {
	answerChanged := false
	return s.update(ctx, id, func(m *models.MCQ) error {
		if len(req.Options) > 0 {
			m.Options = req.Options
		}
		if strings.TrimSpace(req.CorrectAnswer) != "" {
			m.CorrectAnswer = strings.Join(models.SplitLetters(req.CorrectAnswer), ",")
			m.CorrectAnswerText = ""
			answerChanged = true
		}
		if req.CorrectAnswerText != "" {
			m.CorrectAnswerText = req.CorrectAnswerText
		} else if answerChanged || len(req.Options) > 0 {
			m.CorrectAnswerText = m.AnswerText()
		}
		return importer.Validate(m)
	})
}

func (s *Service) UpdateExplanation(ctx context.Context, id int64, req models.UpdateExplanationRequest) (*models.MCQ, error) {
	return s.update(ctx, id, func(m *models.MCQ) error {
		if req.ExplanationSections != nil {
			m.ExplanationSections = req.ExplanationSections
		}
		m.UnifiedExplanation = strings.TrimSpace(req.UnifiedExplanation)
		if m.UnifiedExplanation == "" && len(m.ExplanationSections) > 0 {
			m.UnifiedExplanation = explanation.Merge(m.ExplanationSections)
		}
		return nil
	})
}

func (s *Service) UpdateImage(ctx context.Context, id int64, req models.UpdateImageRequest) (*models.MCQ, error) {
	return s.update(ctx, id, func(m *models.MCQ) error {
		m.ImageURL = models.NormalizeImageURL(req.ImageURL)
		return nil
	})
}

func (s *Service) UpdateMetadata(ctx context.Context, id int64, req models.UpdateMetadataRequest) (*models.MCQ, error) {
	return s.update(ctx, id, func(m *models.MCQ) error {
		if req.Subspecialty != nil {
			m.Subspecialty = strings.TrimSpace(*req.Subspecialty)
		}
		if req.ExamType != nil {
			m.ExamType = models.NormalizeExamType(string(*req.ExamType))
		}
		if req.ExamYear != nil {
			m.ExamYear = strings.TrimSpace(*req.ExamYear)
		}
		if req.PrimaryCategory != nil {
			m.PrimaryCategory = *req.PrimaryCategory
		}
		if req.SecondaryCategory != nil {
			m.SecondaryCategory = *req.SecondaryCategory
		}
		if req.KeyConcept != nil {
			m.KeyConcept = *req.KeyConcept
		}
		if req.DifficultyLevel != nil {
			m.DifficultyLevel = *req.DifficultyLevel
		}
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[mcqs] MCQ %d deleted", id)
	return nil
}

// ── Export/Import ──────────────────────────────────────

func (s *Service) Export(ctx context.Context, subspecialty string) (*models.ExportEnvelope, error) {
	mcqs, err := s.repo.All(ctx, subspecialty)
	if err != nil {
		return nil, fmt.Errorf("export mcqs: %w", err)
	}
	if mcqs == nil {
		mcqs = []models.MCQ{}
	}
	source := "all"
	if subspecialty != "" {
		source = subspecialty
	}
	return &models.ExportEnvelope{
		Version:    models.ExportVersion,
		ExportedAt: s.now().UTC(),
		Source:     source,
		MCQs:       mcqs,
	}, nil
}

func (s *Service) ExportPDF(ctx context.Context, w io.Writer, subspecialty string) error {
	mcqs, err := s.repo.All(ctx, subspecialty)
	if err != nil {
		return fmt.Errorf("export mcqs: %w", err)
	}
	title := "Neurology MCQ Bank"
	if subspecialty != "" {
		title += ": " + subspecialty
	}
	return export.WritePDF(w, title, mcqs)
}

// Import parses any supported document, repairs and validates each MCQ,
// skips questions already stored (or repeated in the payload) and inserts
// the rest in one transaction. src, when non-nil, supplies defaults.
func (s *Service) Import(ctx context.Context, data []byte, src *importer.Source) (*models.ImportResult, error) {
	parsed, err := importer.Parse(data)
	if err != nil {
		return nil, err
	}
	if parsed.Version > models.ExportVersion {
		return nil, fmt.Errorf("%w: unsupported export version %d", ErrInvalidInput, parsed.Version)
	}

	result := &models.ImportResult{
		TotalInPayload: len(parsed.MCQs) + len(parsed.Issues),
		Invalid:        len(parsed.Issues),
		Errors:         append([]string(nil), parsed.Issues...),
	}

	existing, err := s.repo.ExistingKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("check duplicates: %w", err)
	}

	var toInsert []models.MCQ
	for i := range parsed.MCQs {
		m := parsed.MCQs[i]
		if src != nil {
			src.Apply(&m)
		}
		if err := importer.Prepare(&m); err != nil {
			result.Invalid++
			result.Errors = append(result.Errors, fmt.Sprintf("mcq %d: %v", i+1, err))
			continue
		}
		key := importer.QuestionKey(m.QuestionText)
		if existing[key] {
			result.Skipped++
			continue
		}
		existing[key] = true
		toInsert = append(toInsert, m)
	}

	if len(toInsert) > 0 {
		n, err := s.repo.Insert(ctx, toInsert)
		if err != nil {
			return nil, fmt.Errorf("import mcqs: %w", err)
		}
		result.Imported = n
	}
	log.Printf("[import] %d imported, %d skipped, %d invalid of %d",
		result.Imported, result.Skipped, result.Invalid, result.TotalInPayload)
	return result, nil
}

// ── Dashboard ──────────────────────────────────────────

func (s *Service) Dashboard(ctx context.Context, userID int64) (*models.DashboardResponse, error) {
	subs, err := s.Subspecialties(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.UserCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &models.DashboardResponse{
		Subspecialties: subs,
		AnsweredCount:  counts.Answered,
		IncorrectCount: counts.Incorrect,
		BookmarkCount:  counts.Bookmarks,
		FlashcardCount: counts.Flashcards,
		DueFlashcards:  counts.DueFlashcards,
	}
	for _, sc := range subs {
		resp.TotalMCQs += sc.Total
	}
	if s.tracker != nil {
		streak, err := s.tracker.Streak(ctx, userID)
		if err != nil {
			log.Printf("[mcqs] WARN: streak for user %d: %v", userID, err)
		} else {
			resp.CurrentStreak, resp.LongestStreak = streak.CurrentStreak, streak.LongestStreak
		}
	}
	return resp, nil
}
