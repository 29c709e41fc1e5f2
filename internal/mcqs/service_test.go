package mcqs

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
)

type fakeTracker struct {
	calls  int
	streak models.StudyStreak
	err    error
}

func (f *fakeTracker) RecordStudy(_ context.Context, _ int64, _ time.Time) error {
	f.calls++
	return f.err
}

func (f *fakeTracker) Streak(_ context.Context, _ int64) (*models.StudyStreak, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.streak, nil
}

func newTestService() (*Service, *memRepo, *fakeTracker) {
	repo := newMemRepo(sampleMCQs()...)
	svc := NewService(repo)
	tracker := &fakeTracker{streak: models.StudyStreak{CurrentStreak: 3, LongestStreak: 8}}
	svc.SetStudyTracker(tracker)
	return svc, repo, tracker
}

func TestService_List_PageDefaultsAndHidden(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	repo.hidden[userMCQ{9, 2}] = true

	resp, err := svc.List(ctx, models.MCQFilter{UserID: 9, PageSize: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Page != 1 || resp.PageSize != maxPageSize {
		t.Errorf("page = %d size = %d", resp.Page, resp.PageSize)
	}
	if resp.Total != 2 || len(resp.MCQs) != 2 {
		t.Errorf("expected hidden MCQ excluded, got total %d", resp.Total)
	}

	empty, err := svc.List(ctx, models.MCQFilter{Query: "nothing matches this"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if empty.MCQs == nil || empty.PageSize != defaultPageSize {
		t.Errorf("expected empty slice and default page size, got %+v", empty)
	}
}

func TestService_Detail(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	repo.bookmarks[userMCQ{5, 1}] = true
	repo.notes[userMCQ{5, 1}] = "remember MS link"

	d, err := svc.Detail(ctx, 5, 1)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if !d.Bookmarked || d.Note != "remember MS link" || d.Hidden {
		t.Errorf("user state = %v %q %v", d.Bookmarked, d.Note, d.Hidden)
	}
	if !d.HasExplanation || d.ExplanationText != d.UnifiedExplanation {
		t.Errorf("explanation = %v %q", d.HasExplanation, d.ExplanationText)
	}

	if _, err := svc.Detail(ctx, 5, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_CheckAnswer(t *testing.T) {
	svc, repo, tracker := newTestService()
	ctx := context.Background()

	resp, err := svc.CheckAnswer(ctx, 7, 2, "b, a")
	if err != nil {
		t.Fatalf("CheckAnswer: %v", err)
	}
	if !resp.Correct || !reflect.DeepEqual(resp.CorrectLetters, []string{"A", "B"}) {
		t.Errorf("multi-answer should compare as a set, got %+v", resp)
	}
	if resp.CorrectText != "Ethosuximide; Valproate" {
		t.Errorf("correct text = %q", resp.CorrectText)
	}

	resp, err = svc.CheckAnswer(ctx, 7, 2, "A")
	if err != nil {
		t.Fatalf("CheckAnswer: %v", err)
	}
	if resp.Correct {
		t.Error("partial selection should be incorrect")
	}

	got := repo.answers[7]
	if len(got) != 2 || got[0].Selected != "B,A" || got[1].Correct {
		t.Errorf("recorded answers = %+v", got)
	}
	if tracker.calls != 2 {
		t.Errorf("expected 2 study records, got %d", tracker.calls)
	}

	if _, err := svc.CheckAnswer(ctx, 7, 2, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.CheckAnswer(ctx, 7, 99, "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.CheckAnswer(ctx, 7, 2, "A B C D E F G H I J K L"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an over-long selection, got %v", err)
	}
	if len(repo.answers[7]) != 2 {
		t.Errorf("rejected answers must not be recorded, got %d", len(repo.answers[7]))
	}
}

func TestService_CheckAnswer_TrackerErrorIgnored(t *testing.T) {
	svc, _, tracker := newTestService()
	tracker.err = errors.New("streak table locked")

	if _, err := svc.CheckAnswer(context.Background(), 7, 1, "A"); err != nil {
		t.Fatalf("tracker failure should not fail the answer: %v", err)
	}
}

func TestService_SubmitExam(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.SubmitExam(ctx, 3, []models.ExamAnswer{
		{MCQID: 1, Selected: "A"},
		{MCQID: 2, Selected: "A"},
		{MCQID: 3, Selected: "B"},
		{MCQID: 99, Selected: "A"},
		{MCQID: 1, Selected: "B"},
	})
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if resp.Total != 3 || resp.Correct != 1 || resp.Percentage != 33.3 {
		t.Errorf("score = %d/%d (%.1f%%)", resp.Correct, resp.Total, resp.Percentage)
	}
	want := []models.SubspecialtyScore{
		{Subspecialty: "Epilepsy", Correct: 0, Total: 1},
		{Subspecialty: "Neuro-ophthalmology", Correct: 1, Total: 1},
		{Subspecialty: "Neuromuscular", Correct: 0, Total: 1},
	}
	if !reflect.DeepEqual(resp.BySubspecialty, want) {
		t.Errorf("breakdown = %+v", resp.BySubspecialty)
	}
	if !reflect.DeepEqual(resp.IncorrectIDs, []int64{2, 3}) {
		t.Errorf("incorrect ids = %v", resp.IncorrectIDs)
	}

	weak, err := svc.WeaknessTest(ctx, 3, 0)
	if err != nil {
		t.Fatalf("WeaknessTest: %v", err)
	}
	if len(weak) != 2 || weak[0].ID != 3 || weak[1].ID != 2 {
		t.Errorf("weakness test should be most recent first, got %d items", len(weak))
	}

	if _, err := svc.SubmitExam(ctx, 3, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty exam, got %v", err)
	}
	long := []models.ExamAnswer{{MCQID: 1, Selected: "A"}, {MCQID: 2, Selected: "A,B,C,D,E,F,G,H,I,J,K"}}
	if _, err := svc.SubmitExam(ctx, 3, long); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an over-long selection, got %v", err)
	}
}

func TestService_BookmarksNotesHidden(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	on, err := svc.ToggleBookmark(ctx, 4, 3)
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v", on, err)
	}
	if marks, _ := svc.Bookmarks(ctx, 4); len(marks) != 1 || marks[0].ID != 3 {
		t.Errorf("bookmarks = %+v", marks)
	}
	if on, _ := svc.ToggleBookmark(ctx, 4, 3); on {
		t.Error("second toggle should remove the bookmark")
	}
	if _, err := svc.ToggleBookmark(ctx, 4, 77); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.SaveNote(ctx, 4, 3, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank note, got %v", err)
	}
	note, err := svc.SaveNote(ctx, 4, 3, "  AChR first  ")
	if err != nil || note.Content != "AChR first" {
		t.Fatalf("SaveNote = %+v, %v", note, err)
	}
	if err := svc.DeleteNote(ctx, 4, 3); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if err := svc.DeleteNote(ctx, 4, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := svc.SetHidden(ctx, 4, 1, true); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	if hidden, _ := svc.Hidden(ctx, 4); len(hidden) != 1 {
		t.Errorf("hidden = %+v", hidden)
	}
	exam, _ := svc.Random(ctx, 4, "", 0)
	for _, m := range exam {
		if m.ID == 1 {
			t.Error("hidden MCQ served in exam mode")
		}
	}
}

func TestService_ReportAndResolve(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateReportRequest
		err  error
	}{
		{"missing reason", models.CreateReportRequest{SuggestedCorrectAnswer: "B"}, ErrInvalidInput},
		{"unknown letter", models.CreateReportRequest{Reason: "wrong key", SuggestedCorrectAnswer: "E"}, ErrInvalidAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Report(ctx, 2, 1, tt.req); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}

	r, err := svc.Report(ctx, 2, 1, models.CreateReportRequest{Reason: "Key says A, source says B", SuggestedCorrectAnswer: "b"})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if r.Status != models.ReportPending || r.SuggestedCorrectAnswer != "B" {
		t.Errorf("report = %+v", r)
	}

	if _, err := svc.ResolveReport(ctx, r.ID, models.ResolveReportRequest{Status: models.ReportPending}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput resolving as pending, got %v", err)
	}

	resolved, err := svc.ResolveReport(ctx, r.ID, models.ResolveReportRequest{AdminNotes: " confirmed ", ApplySuggestion: true})
	if err != nil {
		t.Fatalf("ResolveReport: %v", err)
	}
	if resolved.Status != models.ReportResolved || resolved.AdminNotes != "confirmed" || resolved.ResolvedAt == nil {
		t.Errorf("resolved = %+v", resolved)
	}
	m := repo.mcqs[1]
	if m.CorrectAnswer != "B" || m.CorrectAnswerText != "Retinal detachment" || !repo.fixed[1] {
		t.Errorf("suggestion not applied: %q %q", m.CorrectAnswer, m.CorrectAnswerText)
	}

	pending, err := svc.Reports(ctx, models.ReportPending, 0, 0)
	if err != nil || len(pending) != 0 {
		t.Errorf("pending reports = %+v, %v", pending, err)
	}
	if _, err := svc.Reports(ctx, "archived", 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}

func TestService_ResolveReport_NoSuggestion(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.Report(ctx, 2, 3, models.CreateReportRequest{Reason: "Typo in stem"})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if _, err := svc.ResolveReport(ctx, r.ID, models.ResolveReportRequest{ApplySuggestion: true}); !errors.Is(err, ErrInvalidAnswer) {
		t.Errorf("expected ErrInvalidAnswer without a suggestion, got %v", err)
	}
	if _, err := svc.ResolveReport(ctx, r.ID, models.ResolveReportRequest{Status: models.ReportDismissed}); err != nil {
		t.Errorf("dismiss: %v", err)
	}
}

func TestService_UpdateOptions(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpdateOptions(ctx, 3, models.UpdateOptionsRequest{CorrectAnswer: "D"})
	var verr *importer.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if repo.mcqs[3].CorrectAnswer != "A" {
		t.Error("invalid update must not be stored")
	}

	m, err := svc.UpdateOptions(ctx, 3, models.UpdateOptionsRequest{
		Options:       models.Options{{Letter: "A", Text: "Anti-AChR antibody"}, {Letter: "B", Text: "Anti-NMDA"}},
		CorrectAnswer: "A",
	})
	if err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}
	if m.CorrectAnswerText != "Anti-AChR antibody" || repo.fixed[3] {
		t.Errorf("options-only update: text %q fixed=%v", m.CorrectAnswerText, repo.fixed[3])
	}

	m, err = svc.UpdateOptions(ctx, 3, models.UpdateOptionsRequest{CorrectAnswer: "b"})
	if err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}
	if m.CorrectAnswer != "B" || m.CorrectAnswerText != "Anti-NMDA" || !repo.fixed[3] {
		t.Errorf("updated = %q %q fixed=%v", m.CorrectAnswer, m.CorrectAnswerText, repo.fixed[3])
	}
}

func TestService_StaffUpdates(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.UpdateQuestion(ctx, 1, models.UpdateQuestionRequest{QuestionText: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	m, err := svc.UpdateImage(ctx, 1, models.UpdateImageRequest{ImageURL: "https://drive.google.com/open?id=abc123"})
	if err != nil {
		t.Fatalf("UpdateImage: %v", err)
	}
	if m.ImageURL != "https://drive.google.com/file/d/abc123/preview" {
		t.Errorf("image url = %q", m.ImageURL)
	}

	examType := models.ExamType("PART_II")
	year := " 2023 "
	m, err = svc.UpdateMetadata(ctx, 1, models.UpdateMetadataRequest{ExamType: &examType, ExamYear: &year})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if m.ExamType != models.ExamBoardLevel || m.ExamYear != "2023" || m.Subspecialty != "Neuro-ophthalmology" {
		t.Errorf("metadata = %s %q %q", m.ExamType, m.ExamYear, m.Subspecialty)
	}

	m, err = svc.UpdateExplanation(ctx, 3, models.UpdateExplanationRequest{
		ExplanationSections: map[string]string{"option_analysis": "Option A: Anti-AChR – Correct"},
	})
	if err != nil {
		t.Fatalf("UpdateExplanation: %v", err)
	}
	if m.UnifiedExplanation == "" {
		t.Error("expected unified explanation merged from sections")
	}
	if repo.fixed[1] {
		t.Error("non-answer updates must not set fixed_at")
	}

	if err := svc.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Import(t *testing.T) {
	svc, repo, _ := newTestService()
	payload := []byte(`[
	  {"question": "which ANTIBODY is associated   with myasthenia gravis?", "options": {"A": "x", "B": "y"}, "answer": "A"},
	  {"question": "What is the first-line acute treatment of cluster headache?", "options": {"A": "Oxygen", "B": "Propranolol"}, "correct_answer": "a"},
	  {"question": "What is the first-line acute treatment of cluster headache?", "options": {"A": "Oxygen", "B": "Propranolol"}, "correct_answer": "A"},
	  {"question": "Only one option here?", "options": {"A": "Alone"}, "correct_answer": "A"},
	  {"options": {"A": "No stem"}}
	]`)

	res, err := svc.Import(context.Background(), payload, &importer.Source{Path: "batch.json", Subspecialty: "Headache"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.TotalInPayload != 5 || res.Imported != 1 || res.Skipped != 2 || res.Invalid != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %v", res.Errors)
	}

	m := repo.mcqs[4]
	if m == nil {
		t.Fatal("expected new MCQ stored with id 4")
	}
	if m.Subspecialty != "Headache" || m.CorrectAnswer != "A" || m.SourceFile != "batch.json" {
		t.Errorf("imported = %q %q %q", m.Subspecialty, m.CorrectAnswer, m.SourceFile)
	}

	if _, err := svc.Import(context.Background(), []byte("{not json"), nil); !errors.Is(err, importer.ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestService_ExportAndDashboard(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	env, err := svc.Export(ctx, "Epilepsy")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if env.Version != models.ExportVersion || env.Source != "Epilepsy" || len(env.MCQs) != 1 {
		t.Errorf("envelope = %+v", env)
	}

	var buf bytes.Buffer
	if err := svc.ExportPDF(ctx, &buf, ""); err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("expected PDF output")
	}

	repo.answers[6] = []models.RecordedAnswer{{MCQID: 1, Correct: true}, {MCQID: 2}}
	repo.bookmarks[userMCQ{6, 3}] = true
	d, err := svc.Dashboard(ctx, 6)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalMCQs != 3 || len(d.Subspecialties) != 3 {
		t.Errorf("totals = %d across %d", d.TotalMCQs, len(d.Subspecialties))
	}
	if d.AnsweredCount != 2 || d.IncorrectCount != 1 || d.BookmarkCount != 1 {
		t.Errorf("user counts = %+v", d)
	}
	if d.CurrentStreak != 3 || d.LongestStreak != 8 {
		t.Errorf("streak = %d/%d", d.CurrentStreak, d.LongestStreak)
	}
}
