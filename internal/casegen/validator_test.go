package casegen

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/neuro-mcq/backend/internal/models"
)

// stubLLM answers every prompt with fn and counts calls.
type stubLLM struct {
	calls int
	fn    func(Prompt) (*LLMResponse, error)
}

func (s *stubLLM) Generate(_ context.Context, p Prompt) (*LLMResponse, error) {
	s.calls++
	return s.fn(p)
}

// judgeStub delegates generation to the mock and answers judge prompts
// with judge.
func judgeStub(judge func() (*LLMResponse, error)) *stubLLM {
	mock := NewMockClient()
	return &stubLLM{fn: func(p Prompt) (*LLMResponse, error) {
		if isJudgePrompt(p) {
			return judge()
		}
		return mock.Generate(context.Background(), p)
	}}
}

func isJudgePrompt(p Prompt) bool {
	return len(p.User) >= len(judgeMarker) && p.User[:len(judgeMarker)] == judgeMarker
}

func mockCase(t *testing.T, mcq *models.MCQ) *models.CaseData {
	t.Helper()
	a := Analyze(mcq)
	resp, err := NewMockClient().Generate(context.Background(), Prompt{User: BuildCasePrompt(mcq, a)})
	if err != nil {
		t.Fatalf("mock generate: %v", err)
	}
	c, err := ParseCase(mcq, a, resp.Content, time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return c
}

func TestStructuralIssues_EmptyCase(t *testing.T) {
	issues := StructuralIssues(&models.CaseData{})
	if len(issues) != 6 {
		t.Errorf("expected 6 issues, got %d: %v", len(issues), issues)
	}
}

func TestCombinedScore(t *testing.T) {
	tests := []struct {
		structural, content int
		semantic            float64
		want                float64
	}{
		{0, 0, 85, 94},
		{1, 2, 75, 78},
		{12, 0, 100, 70},
		{0, 0, 0, 60},
	}
	for _, tt := range tests {
		if got := CombinedScore(tt.structural, tt.content, tt.semantic); got != tt.want {
			t.Errorf("CombinedScore(%d, %d, %v) = %v, want %v", tt.structural, tt.content, tt.semantic, got, tt.want)
		}
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		issues []string
		want   string
	}{
		{"clean", 94, nil, "Excellent case quality (score: 94.0/100)"},
		{"critical first", 60, []string{"Missing x", "Missing y", "Missing z", "slightly long"},
			"Usable with warnings case quality (score: 60.0/100). Critical issues: Missing x; Missing y"},
		{"many warnings", 85, []string{"a", "b", "c"},
			"Good case quality (score: 85.0/100). Warnings: a; b and 1 more warnings"},
		{"poor", 40, []string{"weak"}, "Poor case quality (score: 40.0/100). Warnings: weak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.score, tt.issues); got != tt.want {
				t.Errorf("Summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate_MockCasePasses(t *testing.T) {
	mcq := testMCQ()
	v := NewValidator(NewMockClient(), 70)

	res := v.Validate(context.Background(), mcq, mockCase(t, mcq))
	if res.Status != models.ValidationPassed {
		t.Fatalf("expected passed, got %s: %s %v", res.Status, res.Summary, res.AllIssues())
	}
	if res.Score != 94 {
		t.Errorf("expected score 94, got %v", res.Score)
	}
	if res.Metadata.SemanticScore != 85 || res.Metadata.StructuralScore != 100 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestValidate_JudgeErrorFallsBack(t *testing.T) {
	mcq := testMCQ()
	llm := judgeStub(func() (*LLMResponse, error) { return nil, errors.New("rate limited") })
	v := NewValidator(llm, 70)

	res := v.Validate(context.Background(), mcq, mockCase(t, mcq))
	if res.Score != 90 || res.Status != models.ValidationPassed {
		t.Errorf("expected fallback score 90 and pass, got %v %s", res.Score, res.Status)
	}
	if llm.calls != 1 {
		t.Errorf("expected one judge call, got %d", llm.calls)
	}
}

func TestSemantic_FiltersAndClamps(t *testing.T) {
	mcq := testMCQ()
	llm := judgeStub(func() (*LLMResponse, error) {
		return &LLMResponse{Content: `Verdict: {"score": 120, "issues": ["None", " ", "Timeline differs", "N/A"], "explanation": "close"}`}, nil
	})
	v := NewValidator(llm, 70)

	res := v.Semantic(context.Background(), mcq, mockCase(t, mcq))
	if res.Score != 100 || res.Method != "ai_validation" || res.Explanation != "close" {
		t.Errorf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(res.Issues, []string{"Timeline differs"}) {
		t.Errorf("issues = %v", res.Issues)
	}

	garbled := judgeStub(func() (*LLMResponse, error) { return &LLMResponse{Content: "score: high"}, nil })
	if got := NewValidator(garbled, 70).Semantic(context.Background(), mcq, mockCase(t, mcq)); got.Method != "fallback_due_to_error" || got.Score != 75 {
		t.Errorf("expected fallback for non-JSON judge output, got %+v", got)
	}

	if got := NewValidator(nil, 70).Semantic(context.Background(), mcq, mockCase(t, mcq)); got.Method != "fallback" {
		t.Errorf("expected fallback without a judge, got %+v", got)
	}
}

func TestValidate_MissingChiefComplaintFails(t *testing.T) {
	mcq := testMCQ()
	c := mockCase(t, mcq)
	c.ClinicalPresentation.ChiefComplaint = ""

	res := NewValidator(NewMockClient(), 70).Validate(context.Background(), mcq, c)
	if res.Score != 88 {
		t.Errorf("expected score 88, got %v", res.Score)
	}
	if res.Status != models.ValidationFailed {
		t.Errorf("expected failed despite score above threshold, got %s", res.Status)
	}
}

func TestValidate_WeakSemanticLowersScoreOnly(t *testing.T) {
	mcq := testMCQ()
	res := NewValidator(&MockClient{Score: 40}, 70).Validate(context.Background(), mcq, mockCase(t, mcq))

	if res.Status != models.ValidationPassed || res.Score != 76 {
		t.Errorf("expected pass at 76, got %s %v", res.Status, res.Score)
	}
	if len(res.SemanticIssues) != 0 {
		t.Errorf("a low judge score adds no issues of its own, got %v", res.SemanticIssues)
	}
	if want := "Acceptable case quality (score: 76.0/100)"; res.Summary != want {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestValidate_ContentMismatches(t *testing.T) {
	mcq := testMCQ()
	c := mockCase(t, mcq)
	c.SourceMCQID = 7
	c.Specialty = "Epilepsy"
	c.ClinicalPresentation.HistoryPresentIllness = "This is an example history with no details from the stem at all."
	c.ClinicalPresentation.ChiefComplaint = "Weakness for two hours"

	issues := ContentIssues(mcq, c)
	want := []string{
		"MCQ ID mismatch: expected 42, got 7",
		"Specialty mismatch: expected Stroke/Vascular, got Epilepsy",
		"Contains placeholder or example text",
	}
	if len(issues) < len(want) || !reflect.DeepEqual(issues[:3], want) {
		t.Errorf("issues = %v", issues)
	}
	critical, _ := SplitIssues(issues)
	if len(critical) == 0 {
		t.Error("expected lost details to be reported as missing")
	}
}

func TestValidate_NilCase(t *testing.T) {
	res := NewValidator(nil, 70).Validate(context.Background(), testMCQ(), nil)
	if res.Status != models.ValidationError {
		t.Errorf("expected error status, got %s", res.Status)
	}
}
