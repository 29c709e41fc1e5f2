package importer

import (
	"fmt"
	"strings"

	"github.com/neuro-mcq/backend/internal/models"
)

// ValidationError collects every problem found in one MCQ.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validate checks that an MCQ can be stored and served.
func Validate(m *models.MCQ) error {
	var errs []string
	if strings.TrimSpace(m.QuestionText) == "" {
		errs = append(errs, "empty question_text")
	}
	if len(m.Options) < 2 {
		errs = append(errs, fmt.Sprintf("expected at least 2 options, got %d", len(m.Options)))
	}
	seen := make(map[string]bool, len(m.Options))
	for i, opt := range m.Options {
		if opt.Letter == "" || seen[opt.Letter] {
			errs = append(errs, fmt.Sprintf("option %d has missing or duplicate letter %q", i+1, opt.Letter))
		}
		seen[opt.Letter] = true
		if strings.TrimSpace(opt.Text) == "" {
			errs = append(errs, fmt.Sprintf("option %s is empty", opt.Letter))
		}
	}
	if !m.HasValidAnswer() {
		errs = append(errs, fmt.Sprintf("correct_answer %q does not match any option", m.CorrectAnswer))
	}
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"correct_answer", m.CorrectAnswer, models.MaxAnswerLen},
		{"exam_year", m.ExamYear, models.MaxExamYearLen},
		{"difficulty_level", m.DifficultyLevel, models.MaxLabelLen},
		{"verification_confidence", m.VerificationConfidence, models.MaxLabelLen},
	} {
		if len(f.value) > f.max {
			errs = append(errs, fmt.Sprintf("%s longer than %d characters", f.name, f.max))
		}
	}
	if m.ExamType != "" && !models.ValidExamTypes[m.ExamType] {
		errs = append(errs, fmt.Sprintf("invalid exam_type %q", m.ExamType))
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Prepare repairs and validates an imported MCQ in place.
func Prepare(m *models.MCQ) error {
	if fixed, changed := NormalizeAnswer(m); changed {
		m.CorrectAnswer = fixed
	}
	if m.CorrectAnswerText == "" {
		m.CorrectAnswerText = m.AnswerText()
	}
	if m.Subspecialty == "" {
		m.Subspecialty = models.UnclassifiedSubspecialty
	}
	m.ImageURL = models.NormalizeImageURL(m.ImageURL)
	return Validate(m)
}
