package mcqs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/neuro-mcq/backend/internal/models"
)

const revisedStem = "A 27-year-old woman presents with three days of pain on moving her right eye and progressive blurring of central vision. " +
	"Examination shows reduced color vision, a relative afferent pupillary defect on the right and a normal appearing optic disc. " +
	"She had an episode of leg numbness last year that resolved without treatment. Which diagnosis best explains her visual symptoms?"

func jsonReply(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func newRevisionService(replies ...string) (*Service, *memRepo, *casegen.MockClient) {
	svc, repo, _ := newTestService()
	llm := &casegen.MockClient{Replies: replies}
	svc.SetLLM(llm)
	return svc, repo, llm
}

func TestPrepareInstructions(t *testing.T) {
	got := PrepareInstructions("  Keep it short.\r\n\r\n\tAvoid   eponyms.\x01 ")
	if got != "Keep it short.\nAvoid eponyms." {
		t.Errorf("got %q", got)
	}

	long := PrepareInstructions(strings.Repeat("word ", 300))
	if len(long) > instructionLimit || !strings.HasSuffix(long, "word") {
		t.Errorf("long instructions cut to %d bytes ending %q", len(long), long[len(long)-6:])
	}
}

func TestForbiddenTerms(t *testing.T) {
	got := ForbiddenTerms("Do not mention steroids, plasma exchange or IVIG. Avoid the term 'stroke'.\nNever include it.")
	want := []string{"ivig", "plasma exchange", "steroids", "the term stroke"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ForbiddenTerms = %q, want %q", got, want)
	}
	if got := ForbiddenTerms("Make it harder."); len(got) != 0 {
		t.Errorf("expected no terms, got %q", got)
	}

	hits := ForbiddenHits("Start IVIG and   Plasma Exchange today", want)
	if !reflect.DeepEqual(hits, []string{"ivig", "plasma exchange"}) {
		t.Errorf("ForbiddenHits = %q", hits)
	}
}

func TestOptionDraftCheck(t *testing.T) {
	tests := []struct {
		name      string
		draft     OptionDraft
		generated map[string]string
		want      []string
	}{
		{
			name:      "valid",
			draft:     OptionDraft{Expected: []string{"C", "D"}},
			generated: map[string]string{"C": "Lambert-Eaton syndrome", "D": "Botulinum toxicity"},
		},
		{
			name:      "missing letter",
			draft:     OptionDraft{Expected: []string{"C", "D"}},
			generated: map[string]string{"C": "Lambert-Eaton syndrome"},
			want:      []string{"Missing option keys: D"},
		},
		{
			name:      "unexpected letter",
			draft:     OptionDraft{Expected: []string{"C", "D"}},
			generated: map[string]string{"C": "Lambert-Eaton syndrome", "D": "Botulinum toxicity", "E": "Guillain-Barre syndrome"},
			want:      []string{"Unexpected option keys returned: E"},
		},
		{
			name:      "too short",
			draft:     OptionDraft{Expected: []string{"C"}},
			generated: map[string]string{"C": "Botulism"},
			want:      []string{"Option C is too short to be credible."},
		},
		{
			name:      "duplicate of another draft option",
			draft:     OptionDraft{Expected: []string{"C", "D"}},
			generated: map[string]string{"C": "Lambert-Eaton syndrome", "D": "lambert-eaton  syndrome"},
			want:      []string{"Option D duplicates option C."},
		},
		{
			name: "restates the locked correct answer",
			draft: OptionDraft{
				Expected:      []string{"C"},
				Existing:      map[string]string{"A": "Myasthenia gravis"},
				CorrectLetter: "A",
				CorrectText:   "Myasthenia gravis",
			},
			generated: map[string]string{"C": "Myasthenia Gravis"},
			want:      []string{"Option C duplicates existing option A.", "Option C matches the correct answer text."},
		},
		{
			name:      "forbidden term",
			draft:     OptionDraft{Expected: []string{"C"}, Forbidden: []string{"steroid"}},
			generated: map[string]string{"C": "Steroid-responsive myopathy"},
			want:      []string{"Option C includes forbidden terms: steroid"},
		},
		{
			name:      "empty",
			draft:     OptionDraft{Expected: []string{"C"}},
			generated: map[string]string{"C": "  "},
			want:      []string{"Option C is empty."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.draft.Check(tt.generated); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Check = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckQuestionRevision(t *testing.T) {
	fourOptions := "\nA) Optic neuritis\nB) Retinal detachment\nC) Pituitary apoplexy\nD) Giant cell arteritis"
	tests := []struct {
		name         string
		original     string
		revised      string
		wantsOptions bool
		forbidden    []string
		want         []string
	}{
		{"valid stem", "Painful vision loss?", revisedStem, false, nil, nil},
		{"empty", "Painful vision loss?", "  ", false, nil, []string{"Model returned an empty question."}},
		{"identical", revisedStem, "  " + revisedStem, false, nil, []string{"Revised question is identical to the original."}},
		{"too short", "", "Too short.", false, nil, []string{
			"Revised question is too short (10 chars); needs at least 220.",
			"Revised question has too few words (2); needs at least 45.",
		}},
		{"options in stem mode", "Painful vision loss?", revisedStem + "\nA) Optic neuritis\nB) Retinal detachment", false, nil,
			[]string{"Question stem mode should not include labelled answer options."}},
		{"four options", "Painful vision loss?", revisedStem + fourOptions, true, nil, nil},
		{"three options", "Painful vision loss?", revisedStem + "\nA) Optic neuritis\nB) Retinal detachment\nC) Pituitary apoplexy", true, nil,
			[]string{"Multiple-choice request requires exactly four answer options (A-D)."}},
		{"forbidden", "Painful vision loss?", revisedStem, false, []string{"afferent pupillary defect"},
			[]string{"Question includes prohibited terms: afferent pupillary defect"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckQuestionRevision(tt.original, tt.revised, tt.wantsOptions, tt.forbidden)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("issues = %q, want %q", got, tt.want)
			}
		})
	}

	nearCopy := strings.Replace(revisedStem, "three days", "four days", 1)
	got := CheckQuestionRevision(revisedStem, nearCopy, false, nil)
	if len(got) != 1 || !strings.HasPrefix(got[0], "Revised question is too similar to the original") {
		t.Errorf("near copy issues = %q", got)
	}
}

func TestCheckExplanation(t *testing.T) {
	got := CheckExplanation("Brief.", "", nil)
	want := []string{
		"Explanation too short (6 chars); need at least 750.",
		"Explanation too brief (1 words); need at least 150.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("issues = %q", got)
	}
	if got := CheckExplanation(" ", "", nil); !reflect.DeepEqual(got, []string{"Model returned empty explanation text."}) {
		t.Errorf("empty issues = %q", got)
	}

	// A long reference raises the bar to 85% of its length.
	got = CheckExplanation(strings.Repeat("ab ", 250), strings.Repeat("x", 1200), nil)
	if len(got) != 1 || got[0] != "Explanation too short (749 chars); need at least 1020." {
		t.Errorf("issues = %q", got)
	}
}

func TestService_ReviseOptions_Fill(t *testing.T) {
	svc, repo, llm := newRevisionService(
		`{"C": "Botulism"}`,
		"```json\n{\"C\": \"Ischemic optic neuropathy\", \"D\": \"Pituitary apoplexy\"}\n```",
	)
	res, err := svc.ReviseOptions(context.Background(), 1, models.ReviseRequest{})
	if err != nil {
		t.Fatalf("ReviseOptions: %v", err)
	}
	if res.Attempts != 2 || res.Mode != "fill" || res.Applied {
		t.Errorf("result = %+v", res)
	}
	want := []string{"Optic neuritis", "Retinal detachment", "Ischemic optic neuropathy", "Pituitary apoplexy"}
	if !reflect.DeepEqual(res.Options.List(), want) || !reflect.DeepEqual(res.Options.Letters(), []string{"A", "B", "C", "D"}) {
		t.Errorf("options = %v", res.Options)
	}
	if len(repo.mcqs[1].Options) != 2 {
		t.Error("a preview must not be stored")
	}

	if len(llm.Prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(llm.Prompts))
	}
	if !strings.Contains(llm.Prompts[0].User, "# OPTIONS TO WRITE\nC, D") {
		t.Errorf("first prompt does not name the missing letters:\n%s", llm.Prompts[0].User)
	}
	if !strings.Contains(llm.Prompts[1].User, "- Missing option keys: D") {
		t.Errorf("retry prompt lacks the rejection reasons:\n%s", llm.Prompts[1].User)
	}
}

func TestService_ReviseOptions_ImproveKeepsCorrectAnswer(t *testing.T) {
	svc, repo, _ := newRevisionService(jsonReply(t, map[string]string{
		"A": "Anti-AChR antibodies",
		"B": "Anti-MuSK antibodies",
		"C": "Anti-VGCC antibodies",
		"D": "Anti-GQ1b antibodies",
	}))
	res, err := svc.ReviseOptions(context.Background(), 3, models.ReviseRequest{
		Mode:         "improve",
		Instructions: "Avoid steroids.",
		Apply:        true,
	})
	if err != nil {
		t.Fatalf("ReviseOptions: %v", err)
	}
	if !res.Applied || !reflect.DeepEqual(res.Forbidden, []string{"steroids"}) {
		t.Errorf("result = %+v", res)
	}
	stored := repo.mcqs[3]
	if len(stored.Options) != 4 || stored.Options.Text("A") != "Anti-AChR" || stored.Options.Text("B") != "Anti-MuSK antibodies" {
		t.Errorf("stored options = %v", stored.Options)
	}
	if stored.CorrectAnswer != "A" || stored.CorrectAnswerText != "Anti-AChR" || repo.fixed[3] {
		t.Errorf("answer = %q %q fixed=%v", stored.CorrectAnswer, stored.CorrectAnswerText, repo.fixed[3])
	}
}

func TestService_ReviseOptions_Errors(t *testing.T) {
	ctx := context.Background()

	svc, _, llm := newRevisionService("not json", `{"C": "Botulism", "D": "Botulism"}`, `{"C": ""}`)
	_, err := svc.ReviseOptions(ctx, 1, models.ReviseRequest{Mode: "fill"})
	var rerr *RevisionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RevisionError, got %v", err)
	}
	if !reflect.DeepEqual(rerr.Issues, []string{"Missing option keys: D", "Option C is empty."}) {
		t.Errorf("last issues = %q", rerr.Issues)
	}
	if !strings.Contains(llm.Prompts[1].User, "Invalid JSON output: not json") {
		t.Errorf("second prompt should report the unparseable draft:\n%s", llm.Prompts[1].User)
	}

	if _, err := svc.ReviseOptions(ctx, 1, models.ReviseRequest{Mode: "shuffle"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.ReviseOptions(ctx, 99, models.ReviseRequest{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	plain, _, _ := newTestService()
	if _, err := plain.ReviseOptions(ctx, 1, models.ReviseRequest{}); !errors.Is(err, ErrNoLLM) {
		t.Errorf("expected ErrNoLLM, got %v", err)
	}
}

func TestService_ReviseQuestion(t *testing.T) {
	svc, repo, _ := newRevisionService(
		`{"stem": "Shorter stem about optic neuritis."}`,
		jsonReply(t, map[string]string{"stem": revisedStem}),
	)
	res, err := svc.ReviseQuestion(context.Background(), 1, models.ReviseRequest{Apply: true})
	if err != nil {
		t.Fatalf("ReviseQuestion: %v", err)
	}
	if res.Attempts != 2 || res.QuestionText != revisedStem || len(res.Options) != 0 {
		t.Errorf("result = %+v", res)
	}
	if repo.mcqs[1].QuestionText != revisedStem || len(repo.mcqs[1].Options) != 2 {
		t.Errorf("stored question = %q", repo.mcqs[1].QuestionText)
	}
}

func TestService_ReviseExplanation(t *testing.T) {
	good := strings.Repeat("Optic neuritis causes painful monocular vision loss with a relative afferent pupillary defect and reduced color vision. ", 8)
	svc, repo, _ := newRevisionService(
		jsonReply(t, map[string]string{"explanation": good + "It is linked to multiple sclerosis."}),
		jsonReply(t, map[string]string{"explanation": good}),
	)
	res, err := svc.ReviseExplanation(context.Background(), 1, models.ReviseRequest{
		Instructions: "Do not mention multiple sclerosis.",
		Apply:        true,
	})
	if err != nil {
		t.Fatalf("ReviseExplanation: %v", err)
	}
	if res.Attempts != 2 || res.Mode != "enhance" || !res.Applied {
		t.Errorf("result = %+v", res)
	}
	if repo.mcqs[1].UnifiedExplanation != strings.TrimSpace(good) {
		t.Errorf("stored explanation = %q", repo.mcqs[1].UnifiedExplanation)
	}

	if _, err := svc.ReviseExplanation(context.Background(), 1, models.ReviseRequest{Mode: "summarize"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHandler_Revise(t *testing.T) {
	h, _ := newTestHandler()
	rec := httptest.NewRecorder()
	h.ReviseOptions(rec, request(http.MethodPost, "/", nil, "1", 5))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without a model status = %d, want 503", rec.Code)
	}

	h.service.SetLLM(&casegen.MockClient{Replies: []string{`{"C": "x"}`, `{"C": "x"}`, `{"C": "x"}`}})
	rec = httptest.NewRecorder()
	h.ReviseOptions(rec, request(http.MethodPost, "/", models.ReviseRequest{Mode: "fill"}, "1", 5))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("rejected drafts status = %d, want 422", rec.Code)
	}

	h.service.SetLLM(&casegen.MockClient{Replies: []string{`{"C": "Ischemic optic neuropathy", "D": "Pituitary apoplexy"}`}})
	rec = httptest.NewRecorder()
	h.ReviseOptions(rec, request(http.MethodPost, "/", nil, "1", 5))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res models.RevisionResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Options) != 4 || res.Applied {
		t.Errorf("result = %+v", res)
	}

	rec = httptest.NewRecorder()
	h.ReviseQuestion(rec, request(http.MethodPost, "/", nil, "abc", 5))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ReviseExplanation(rec, request(http.MethodPost, "/", "{bad", "1", 5))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}
