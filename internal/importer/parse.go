package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/neuro-mcq/backend/internal/models"
	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("payload is not valid JSON")

// ParseResult is everything recovered from one import document.
type ParseResult struct {
	Version int
	Source  string
	MCQs    []models.MCQ
	Issues  []string
}

// rawItem is one MCQ object plus the subspecialty implied by its position
// in a nested document.
type rawItem struct {
	JSON         string
	Subspecialty string
}

// Parse decodes an export envelope, a bare array, an object with a
// mcqs/questions array, or an object of arrays keyed by subspecialty.
// Bare NaN and Infinity tokens are tolerated.
func Parse(data []byte) (*ParseResult, error) {
	if !gjson.ValidBytes(data) {
		fixed, n := FixNaN(data)
		if n == 0 || !gjson.ValidBytes(fixed) {
			return nil, ErrInvalidJSON
		}
		data = fixed
	}

	root := gjson.ParseBytes(data)
	res := &ParseResult{
		Version: int(root.Get("version").Int()),
		Source:  root.Get("source").String(),
	}

	items, err := collect(root)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		m, err := decodeItem(gjson.Parse(item.JSON))
		if err != nil {
			res.Issues = append(res.Issues, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}
		if m.Subspecialty == "" {
			m.Subspecialty = item.Subspecialty
		}
		res.MCQs = append(res.MCQs, *m)
	}
	return res, nil
}

func collect(root gjson.Result) ([]rawItem, error) {
	switch {
	case root.IsArray():
		return arrayItems(root, ""), nil
	case root.IsObject():
		for _, key := range []string{"mcqs", "questions"} {
			if v := root.Get(key); v.IsArray() {
				return arrayItems(v, ""), nil
			}
		}
		if looksLikeMCQ(root) {
			return []rawItem{{JSON: root.Raw}}, nil
		}
		var items []rawItem
		root.ForEach(func(key, value gjson.Result) bool {
			switch {
			case value.IsArray():
				items = append(items, arrayItems(value, key.String())...)
			case value.IsObject():
				for _, k := range []string{"mcqs", "questions"} {
					if v := value.Get(k); v.IsArray() {
						items = append(items, arrayItems(v, key.String())...)
					}
				}
			}
			return true
		})
		return items, nil
	}
	return nil, fmt.Errorf("unsupported top-level JSON %s", root.Type)
}

func arrayItems(arr gjson.Result, subspecialty string) []rawItem {
	var items []rawItem
	arr.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			items = append(items, rawItem{JSON: value.Raw, Subspecialty: subspecialty})
		}
		return true
	})
	return items
}

func looksLikeMCQ(r gjson.Result) bool {
	return firstOf(r, "question_text", "question").Exists()
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

var optionPrefixRe = regexp.MustCompile(`^\(?[A-Ha-h][\.\)]\s+`)

func decodeItem(r gjson.Result) (*models.MCQ, error) {
	m := &models.MCQ{
		ID:                     r.Get("id").Int(),
		QuestionNumber:         firstOf(r, "question_number", "number").String(),
		QuestionText:           strings.TrimSpace(firstOf(r, "question_text", "question").String()),
		CorrectAnswer:          strings.TrimSpace(firstOf(r, "correct_answer", "correct", "answer").String()),
		CorrectAnswerText:      strings.TrimSpace(r.Get("correct_answer_text").String()),
		Subspecialty:           strings.TrimSpace(r.Get("subspecialty").String()),
		SourceFile:             r.Get("source_file").String(),
		ExamType:               models.NormalizeExamType(r.Get("exam_type").String()),
		ExamYear:               strings.TrimSpace(r.Get("exam_year").String()),
		AIGenerated:            r.Get("ai_generated").Bool(),
		UnifiedExplanation:     r.Get("unified_explanation").String(),
		VerificationConfidence: r.Get("verification_confidence").String(),
		PrimaryCategory:        r.Get("primary_category").String(),
		SecondaryCategory:      r.Get("secondary_category").String(),
		KeyConcept:             r.Get("key_concept").String(),
		DifficultyLevel:        r.Get("difficulty_level").String(),
		ImageURL:               models.NormalizeImageURL(r.Get("image_url").String()),
	}
	if m.QuestionText == "" {
		return nil, errors.New("missing question text")
	}

	if opts := firstOf(r, "options", "choices"); opts.Exists() {
		if err := json.Unmarshal([]byte(opts.Raw), &m.Options); err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
		for i := range m.Options {
			m.Options[i].Text = strings.TrimSpace(optionPrefixRe.ReplaceAllString(m.Options[i].Text, ""))
		}
	}

	exp := r.Get("explanation")
	switch {
	case exp.Type == gjson.String:
		m.Explanation = exp.String()
	case exp.IsObject():
		if s := exp.Get("sections"); s.IsObject() {
			exp = s
		}
		m.ExplanationSections = sectionsFrom(exp)
	}
	if s := r.Get("explanation_sections"); s.IsObject() {
		if m.ExplanationSections == nil {
			m.ExplanationSections = make(map[string]string)
		}
		for k, v := range sectionsFrom(s) {
			m.ExplanationSections[k] = v
		}
	}
	return m, nil
}

func sectionsFrom(obj gjson.Result) map[string]string {
	out := make(map[string]string)
	obj.ForEach(func(key, value gjson.Result) bool {
		text := value.String()
		if value.IsObject() || value.IsArray() {
			text = value.Raw
		}
		if strings.TrimSpace(text) != "" {
			out[key.String()] = text
		}
		return true
	})
	return out
}
