package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

type ExamType string

const (
	ExamBasic      ExamType = "Basic level"
	ExamAdvanced   ExamType = "Advanced"
	ExamBoardLevel ExamType = "Board-level"
	ExamOther      ExamType = "Other"
)

var ValidExamTypes = map[ExamType]bool{
	ExamBasic:      true,
	ExamAdvanced:   true,
	ExamBoardLevel: true,
	ExamOther:      true,
}

var examTypeAliases = map[string]ExamType{
	"part_i":      ExamAdvanced,
	"part i":      ExamAdvanced,
	"part 1":      ExamAdvanced,
	"part_ii":     ExamBoardLevel,
	"part ii":     ExamBoardLevel,
	"part 2":      ExamBoardLevel,
	"promotion":   ExamBasic,
	"basic level": ExamBasic,
	"basic":       ExamBasic,
	"advanced":    ExamAdvanced,
	"board-level": ExamBoardLevel,
	"board level": ExamBoardLevel,
	"other":       ExamOther,
}

// NormalizeExamType maps legacy exam labels onto the current exam types.
// Empty input stays empty; anything unrecognised becomes Other.
func NormalizeExamType(s string) ExamType {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	if et, ok := examTypeAliases[key]; ok {
		return et
	}
	return ExamOther
}

const UnclassifiedSubspecialty = "Other/Unclassified"

// ── Options ────────────────────────────────────────────

type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Options is the ordered answer list of an MCQ. It decodes from a list of
// strings, a list of {letter,text} objects, or an object keyed by letter,
// and always encodes as an object keyed by letter.
type Options []Option

func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(opt.Letter)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Options) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("options object: %w", err)
		}
		*o = OptionsFromMap(m)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("options list: %w", err)
		}
		opts := make(Options, 0, len(raw))
		for i, item := range raw {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				var opt Option
				if err := json.Unmarshal(item, &opt); err != nil {
					return fmt.Errorf("option %d: %w", i+1, err)
				}
				if opt.Letter == "" {
					opt.Letter = LetterFor(i)
				}
				opt.Letter = strings.ToUpper(strings.TrimSpace(opt.Letter))
				opts = append(opts, opt)
				continue
			}
			var text string
			if err := json.Unmarshal(item, &text); err != nil {
				return fmt.Errorf("option %d: %w", i+1, err)
			}
			opts = append(opts, Option{Letter: LetterFor(i), Text: text})
		}
		*o = opts
		return nil
	}
	return fmt.Errorf("options: unsupported JSON value %q", string(trimmed[:1]))
}

// OptionsFromMap builds options sorted by normalized letter.
func OptionsFromMap(m map[string]string) Options {
	opts := make(Options, 0, len(m))
	for k, v := range m {
		opts = append(opts, Option{Letter: strings.ToUpper(strings.TrimSpace(k)), Text: v})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Letter < opts[j].Letter })
	return opts
}

// OptionsFromList assigns letters A, B, C... in order.
func OptionsFromList(texts []string) Options {
	opts := make(Options, len(texts))
	for i, t := range texts {
		opts[i] = Option{Letter: LetterFor(i), Text: t}
	}
	return opts
}

// LetterFor returns the option letter for a zero-based index.
func LetterFor(i int) string {
	return string(rune('A' + i))
}

func (o Options) Dict() map[string]string {
	m := make(map[string]string, len(o))
	for _, opt := range o {
		m[opt.Letter] = opt.Text
	}
	return m
}

func (o Options) List() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Text
	}
	return out
}

func (o Options) Letters() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Letter
	}
	return out
}

func (o Options) Has(letter string) bool {
	for _, opt := range o {
		if opt.Letter == letter {
			return true
		}
	}
	return false
}

// Text returns the option text for a letter, or "" if absent.
func (o Options) Text(letter string) string {
	for _, opt := range o {
		if opt.Letter == letter {
			return opt.Text
		}
	}
	return ""
}

// ── MCQ ────────────────────────────────────────────────

type MCQ struct {
	ID                     int64             `json:"id"`
	QuestionNumber         string            `json:"question_number"`
	QuestionText           string            `json:"question_text"`
	Options                Options           `json:"options"`
	CorrectAnswer          string            `json:"correct_answer"`
	CorrectAnswerText      string            `json:"correct_answer_text"`
	Subspecialty           string            `json:"subspecialty"`
	SourceFile             string            `json:"source_file,omitempty"`
	ExamType               ExamType          `json:"exam_type,omitempty"`
	ExamYear               string            `json:"exam_year,omitempty"`
	AIGenerated            bool              `json:"ai_generated"`
	UnifiedExplanation     string            `json:"unified_explanation,omitempty"`
	Explanation            string            `json:"explanation,omitempty"`
	ExplanationSections    map[string]string `json:"explanation_sections,omitempty"`
	VerificationConfidence string            `json:"verification_confidence,omitempty"`
	PrimaryCategory        string            `json:"primary_category,omitempty"`
	SecondaryCategory      string            `json:"secondary_category,omitempty"`
	KeyConcept             string            `json:"key_concept,omitempty"`
	DifficultyLevel        string            `json:"difficulty_level,omitempty"`
	ImageURL               string            `json:"image_url,omitempty"`
	FixedAt                *time.Time        `json:"fixed_at,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// CorrectLetters splits the stored answer on commas or whitespace,
// upper-cases it and removes duplicates while keeping order.
func (m *MCQ) CorrectLetters() []string {
	return SplitLetters(m.CorrectAnswer)
}

// SplitLetters parses an answer string such as "a, C" into ["A", "C"].
func SplitLetters(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '/' || r == '\t'
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		l := strings.ToUpper(strings.TrimSpace(f))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Widths of the short text columns in the mcqs and answer tables.
const (
	MaxAnswerLen   = 20
	MaxExamYearLen = 10
	MaxLabelLen    = 20
)

// HasValidAnswer reports whether every answer letter names an existing option.
func (m *MCQ) HasValidAnswer() bool {
	letters := m.CorrectLetters()
	if len(letters) == 0 {
		return false
	}
	for _, l := range letters {
		if !m.Options.Has(l) {
			return false
		}
	}
	return true
}

// IsCorrect compares the selection with the answer as sets of letters.
func (m *MCQ) IsCorrect(selected string) bool {
	want := m.CorrectLetters()
	got := SplitLetters(selected)
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	set := make(map[string]bool, len(want))
	for _, l := range want {
		set[l] = true
	}
	for _, l := range got {
		if !set[l] {
			return false
		}
	}
	return true
}

// AnswerText returns correct_answer_text, or the joined option texts of the
// correct letters when it is empty.
func (m *MCQ) AnswerText() string {
	if strings.TrimSpace(m.CorrectAnswerText) != "" {
		return m.CorrectAnswerText
	}
	var parts []string
	for _, l := range m.CorrectLetters() {
		if t := m.Options.Text(l); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}

func (m *MCQ) WordCount() int {
	return len(strings.Fields(m.QuestionText))
}

// ── Image URLs ─────────────────────────────────────────

var driveIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

// NormalizeImageURL rewrites Google Drive share links into their embeddable
// preview form. Other URLs are returned trimmed.
func NormalizeImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || !strings.Contains(u, "drive.google.com") {
		return u
	}
	for _, re := range driveIDPatterns {
		if m := re.FindStringSubmatch(u); m != nil {
			return "https://drive.google.com/file/d/" + m[1] + "/preview"
		}
	}
	return u
}

// DirectImageURL rewrites Google Drive share links into a link that serves
// the image itself, for use in <img> tags.
func DirectImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || !strings.Contains(u, "drive.google.com") {
		return u
	}
	for _, re := range driveIDPatterns {
		if m := re.FindStringSubmatch(u); m != nil {
			return "https://drive.google.com/uc?export=view&id=" + m[1]
		}
	}
	return u
}

// ── Requests & Responses ───────────────────────────────

type MCQFilter struct {
	Subspecialty   string
	ExamType       ExamType
	ExamYear       string
	Query          string
	HasExplanation *bool
	UserID         int64
	Page           int
	PageSize       int
}

type MCQListResponse struct {
	MCQs     []MCQ `json:"mcqs"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

type MCQDetail struct {
	MCQ
	ExplanationText string `json:"explanation_text"`
	HasExplanation  bool   `json:"has_explanation"`
	Bookmarked      bool   `json:"bookmarked"`
	Note            string `json:"note,omitempty"`
	Hidden          bool   `json:"hidden"`
}

type SubspecialtyCount struct {
	Subspecialty string           `json:"subspecialty"`
	Total        int              `json:"total"`
	ByExamType   map[ExamType]int `json:"by_exam_type"`
}

type CheckAnswerRequest struct {
	Selected string `json:"selected"`
}

type CheckAnswerResponse struct {
	Correct         bool     `json:"correct"`
	CorrectLetters  []string `json:"correct_letters"`
	CorrectText     string   `json:"correct_text"`
	ExplanationText string   `json:"explanation_text"`
}

type ExamAnswer struct {
	MCQID    int64  `json:"mcq_id"`
	Selected string `json:"selected"`
}

type SubmitExamRequest struct {
	Answers []ExamAnswer `json:"answers"`
}

type SubspecialtyScore struct {
	Subspecialty string `json:"subspecialty"`
	Correct      int    `json:"correct"`
	Total        int    `json:"total"`
}

type SubmitExamResponse struct {
	Correct        int                 `json:"correct"`
	Total          int                 `json:"total"`
	Percentage     float64             `json:"percentage"`
	BySubspecialty []SubspecialtyScore `json:"by_subspecialty"`
	IncorrectIDs   []int64             `json:"incorrect_ids"`
}

type UpdateQuestionRequest struct {
	QuestionText string `json:"question_text"`
}

type UpdateOptionsRequest struct {
	Options           Options `json:"options"`
	CorrectAnswer     string  `json:"correct_answer"`
	CorrectAnswerText string  `json:"correct_answer_text"`
}

type UpdateExplanationRequest struct {
	UnifiedExplanation  string            `json:"unified_explanation"`
	ExplanationSections map[string]string `json:"explanation_sections"`
}

type UpdateImageRequest struct {
	ImageURL string `json:"image_url"`
}

type UpdateMetadataRequest struct {
	Subspecialty      *string   `json:"subspecialty"`
	ExamType          *ExamType `json:"exam_type"`
	ExamYear          *string   `json:"exam_year"`
	PrimaryCategory   *string   `json:"primary_category"`
	SecondaryCategory *string   `json:"secondary_category"`
	KeyConcept        *string   `json:"key_concept"`
	DifficultyLevel   *string   `json:"difficulty_level"`
}

// ReviseRequest asks the model to revise part of an MCQ. Mode is "fill" or
// "improve" for options and "enhance" or "rewrite" for explanations. Without
// Apply the revision is returned as a preview and nothing is stored.
type ReviseRequest struct {
	Mode         string `json:"mode"`
	Instructions string `json:"instructions"`
	Apply        bool   `json:"apply"`
}

type RevisionResult struct {
	MCQID        int64    `json:"mcq_id"`
	Field        string   `json:"field"`
	Mode         string   `json:"mode,omitempty"`
	QuestionText string   `json:"question_text,omitempty"`
	Options      Options  `json:"options,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
	Forbidden    []string `json:"forbidden_terms,omitempty"`
	Attempts     int      `json:"attempts"`
	Applied      bool     `json:"applied"`
}

type DashboardResponse struct {
	TotalMCQs      int                 `json:"total_mcqs"`
	Subspecialties []SubspecialtyCount `json:"subspecialties"`
	AnsweredCount  int                 `json:"answered_count"`
	IncorrectCount int                 `json:"incorrect_count"`
	BookmarkCount  int                 `json:"bookmark_count"`
	FlashcardCount int                 `json:"flashcard_count"`
	DueFlashcards  int                 `json:"due_flashcards"`
	CurrentStreak  int                 `json:"current_streak"`
	LongestStreak  int                 `json:"longest_streak"`
}
