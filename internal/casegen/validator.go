package casegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/neuro-mcq/backend/internal/models"
)

const fallbackSemanticScore = 75

// Validator scores a generated case against its source MCQ.
type Validator struct {
	llm      LLMClient // nil disables the semantic judge
	minScore float64
	now      func() time.Time
}

func NewValidator(llm LLMClient, minScore float64) *Validator {
	return &Validator{llm: llm, minScore: minScore, now: time.Now}
}

// SemanticResult is the judge's verdict.
type SemanticResult struct {
	Score       float64  `json:"score"`
	Issues      []string `json:"issues"`
	Explanation string   `json:"explanation"`
	Method      string   `json:"method"`
}

// Validate runs the structural, content and semantic checks and combines
// them into a status, score and summary.
func (v *Validator) Validate(ctx context.Context, mcq *models.MCQ, c *models.CaseData) models.CaseValidation {
	if mcq == nil || c == nil {
		msg := "nothing to validate"
		return models.CaseValidation{
			Status:           models.ValidationError,
			Summary:          "Validation error: " + msg,
			StructuralIssues: []string{"Validation process failed: " + msg},
			Metadata:         models.ValidationMetadata{ValidatedAt: v.now()},
		}
	}

	structural := StructuralIssues(c)
	content := ContentIssues(mcq, c)
	semantic := v.Semantic(ctx, mcq, c)

	score := CombinedScore(len(structural), len(content), semantic.Score)

	status := models.ValidationPassed
	switch {
	case hasCritical(structural):
		status = models.ValidationFailed
	case score < v.minScore:
		status = models.ValidationFailed
	}

	res := models.CaseValidation{
		Status:           status,
		Score:            score,
		StructuralIssues: nonNil(structural),
		ContentIssues:    nonNil(content),
		SemanticIssues:   nonNil(semantic.Issues),
		Metadata: models.ValidationMetadata{
			StructuralScore: float64(100 - 10*len(structural)),
			ContentScore:    float64(100 - 15*len(content)),
			SemanticScore:   semantic.Score,
			Explanation:     semantic.Explanation,
			ValidatedAt:     v.now(),
		},
	}
	res.Summary = Summary(score, res.AllIssues())
	log.Printf("[casegen] Validation for MCQ %d: %s (score: %.1f)", mcq.ID, status, score)
	return res
}

// StructuralIssues checks required fields and minimum lengths.
func StructuralIssues(c *models.CaseData) []string {
	var issues []string
	cp := c.ClinicalPresentation
	if cp.ChiefComplaint == "" {
		issues = append(issues, "Missing chief complaint")
	}
	if cp.HistoryPresentIllness == "" {
		issues = append(issues, "Missing history of present illness")
	}
	if c.QuestionPrompt == "" {
		issues = append(issues, "Missing question prompt")
	}
	if c.CoreConceptType == "" {
		issues = append(issues, "Missing core concept type")
	}
	if utf8.RuneCountInString(cp.ChiefComplaint) < 10 {
		issues = append(issues, "Chief complaint too short")
	}
	if utf8.RuneCountInString(cp.HistoryPresentIllness) < 50 {
		issues = append(issues, "History too brief")
	}
	return issues
}

// CaseText is the text preservation checks search: history, examination
// and chief complaint.
func CaseText(c *models.CaseData) string {
	cp := c.ClinicalPresentation
	return cp.HistoryPresentIllness + " " + cp.PhysicalExamination + " " + cp.ChiefComplaint
}

// ContentIssues checks that the case belongs to the MCQ and keeps its
// clinical details and investigation results.
func ContentIssues(mcq *models.MCQ, c *models.CaseData) []string {
	var issues []string
	if c.SourceMCQID != mcq.ID {
		issues = append(issues, fmt.Sprintf("MCQ ID mismatch: expected %d, got %d", mcq.ID, c.SourceMCQID))
	}
	if c.Specialty != mcq.Subspecialty {
		issues = append(issues, fmt.Sprintf("Specialty mismatch: expected %s, got %s", mcq.Subspecialty, c.Specialty))
	}
	hpi := strings.ToLower(c.ClinicalPresentation.HistoryPresentIllness)
	if strings.Contains(hpi, "placeholder") || strings.Contains(hpi, "example") {
		issues = append(issues, "Contains placeholder or example text")
	}

	caseText := CaseText(c)
	issues = append(issues, ExtractClinicalDetails(mcq.QuestionText).MissingDetails(caseText)...)

	inv := ExtractInvestigations(mcq.QuestionText)
	if len(inv.All) > 0 {
		res := inv.Validate(caseText)
		for _, missing := range res.Missing {
			issues = append(issues, fmt.Sprintf("Missing critical investigation: '%s'", missing))
		}
		if res.Rate < 50 {
			issues = append(issues, fmt.Sprintf("Low investigation preservation rate: %.1f%%", res.Rate))
		}
	}
	return issues
}

var genericIssues = map[string]bool{"any issues found": true, "none": true, "n/a": true}

// Semantic asks the judge model for a 0-100 alignment score. Without a
// judge, or when the judge fails, the score falls back to 75.
func (v *Validator) Semantic(ctx context.Context, mcq *models.MCQ, c *models.CaseData) SemanticResult {
	if v.llm == nil {
		return SemanticResult{Score: fallbackSemanticScore, Issues: []string{}, Method: "fallback"}
	}
	fallback := SemanticResult{Score: fallbackSemanticScore, Issues: []string{}, Method: "fallback_due_to_error"}

	resp, err := v.llm.Generate(ctx, Prompt{
		User:        BuildJudgePrompt(mcq, c),
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		log.Printf("[casegen] WARN: semantic validation failed for MCQ %d: %v", mcq.ID, err)
		return fallback
	}
	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("[casegen] WARN: semantic validation for MCQ %d returned no JSON", mcq.ID)
		return fallback
	}
	var out struct {
		Score       *float64 `json:"score"`
		Issues      []string `json:"issues"`
		Explanation string   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("[casegen] WARN: semantic validation for MCQ %d: %v", mcq.ID, err)
		return fallback
	}

	res := SemanticResult{Score: fallbackSemanticScore, Issues: []string{}, Explanation: out.Explanation, Method: "ai_validation"}
	if out.Score != nil {
		res.Score = math.Max(0, math.Min(100, *out.Score))
	}
	for _, issue := range out.Issues {
		trimmed := strings.TrimSpace(issue)
		if trimmed == "" || genericIssues[strings.ToLower(trimmed)] {
			continue
		}
		res.Issues = append(res.Issues, trimmed)
	}
	return res
}

// CombinedScore weights structure 30%, content 30% and the semantic score
// 40%, rounded to one decimal.
func CombinedScore(structural, content int, semantic float64) float64 {
	s := math.Max(0, float64(100-10*structural))
	c := math.Max(0, float64(100-15*content))
	return math.Round((0.3*s+0.3*c+0.4*semantic)*10) / 10
}

func isCritical(issue string) bool {
	return strings.Contains(issue, "Missing")
}

func hasCritical(issues []string) bool {
	for _, i := range issues {
		if isCritical(i) {
			return true
		}
	}
	return false
}

// SplitIssues separates critical issues (those reporting something
// missing) from warnings.
func SplitIssues(issues []string) (critical, warnings []string) {
	for _, i := range issues {
		if isCritical(i) {
			critical = append(critical, i)
		} else {
			warnings = append(warnings, i)
		}
	}
	return critical, warnings
}

func qualityLabel(score float64) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 80:
		return "Good"
	case score >= 70:
		return "Acceptable"
	case score >= 50:
		return "Usable with warnings"
	default:
		return "Poor"
	}
}

// Summary renders the one-line verdict shown with a case.
func Summary(score float64, issues []string) string {
	summary := fmt.Sprintf("%s case quality (score: %.1f/100)", qualityLabel(score), score)
	critical, warnings := SplitIssues(issues)
	switch {
	case len(critical) > 0:
		summary += ". Critical issues: " + strings.Join(firstN(critical, 2), "; ")
	case len(warnings) > 0:
		summary += ". Warnings: " + strings.Join(firstN(warnings, 2), "; ")
		if len(warnings) > 2 {
			summary += fmt.Sprintf(" and %d more warnings", len(warnings)-2)
		}
	}
	return summary
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
