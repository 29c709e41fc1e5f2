package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var nonFiniteTokens = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// FixNaN replaces bare NaN, Infinity and -Infinity tokens outside string
// literals with null. It returns the rewritten document and the number of
// replacements.
func FixNaN(data []byte) ([]byte, int) {
	var out bytes.Buffer
	out.Grow(len(data))
	inString, escaped := false, false
	count := 0

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}

		replaced := false
		if i == 0 || !isIdentByte(data[i-1]) {
			for _, tok := range nonFiniteTokens {
				end := i + len(tok)
				if bytes.HasPrefix(data[i:], tok) && (end == len(data) || !isIdentByte(data[end])) {
					out.WriteString("null")
					i = end - 1
					count++
					replaced = true
					break
				}
			}
		}
		if !replaced {
			out.WriteByte(c)
		}
	}
	return out.Bytes(), count
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Flatten rewrites any supported layout into a flat JSON array of MCQ
// objects. Items from subspecialty-keyed groups get that subspecialty when
// they do not carry one.
func Flatten(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		fixed, _ := FixNaN(data)
		if !gjson.ValidBytes(fixed) {
			return nil, ErrInvalidJSON
		}
		data = fixed
	}
	items, err := collect(gjson.ParseBytes(data))
	if err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		raw := item.JSON
		if item.Subspecialty != "" && strings.TrimSpace(gjson.Get(raw, "subspecialty").String()) == "" {
			raw, err = sjson.Set(raw, "subspecialty", item.Subspecialty)
			if err != nil {
				return nil, fmt.Errorf("set subspecialty: %w", err)
			}
		}
		parts = append(parts, raw)
	}
	return []byte("[" + strings.Join(parts, ",") + "]"), nil
}

type ChunkResult struct {
	Chunks [][]byte
	// Oversize holds indexes of items that alone exceed the byte limit.
	Oversize []int
}

// Chunk splits a JSON array into compact arrays holding at most maxItems
// items and at most maxBytes bytes each. A single item larger than maxBytes
// becomes its own chunk.
func Chunk(data []byte, maxItems, maxBytes int) (*ChunkResult, error) {
	if maxItems <= 0 || maxBytes <= 2 {
		return nil, fmt.Errorf("invalid chunk limits: items=%d bytes=%d", maxItems, maxBytes)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("chunk input must be a JSON array: %w", err)
	}

	res := &ChunkResult{}
	var cur bytes.Buffer
	n := 0
	flush := func() {
		if n == 0 {
			return
		}
		cur.WriteByte(']')
		res.Chunks = append(res.Chunks, append([]byte(nil), cur.Bytes()...))
		cur.Reset()
		n = 0
	}

	for i, item := range items {
		var compact bytes.Buffer
		if err := json.Compact(&compact, item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		size := compact.Len()
		if size+2 > maxBytes {
			res.Oversize = append(res.Oversize, i)
		}

		// existing bytes, separator, item, closing bracket
		projected := cur.Len() + 1 + size + 1
		if n > 0 && (n >= maxItems || projected > maxBytes) {
			flush()
		}
		if n == 0 {
			cur.WriteByte('[')
		} else {
			cur.WriteByte(',')
		}
		cur.Write(compact.Bytes())
		n++
	}
	flush()
	return res, nil
}

// ── Answers ────────────────────────────────────────────

var answerTokenRe = regexp.MustCompile(`(?i)^\(?(?:option\s+)?([A-H])[\)\.:]?$`)

// NormalizeAnswer repairs a stored answer. Single letters are upper-cased,
// multi-answer strings keep the letters that exist as options, and empty or
// "None" answers are derived from the explanation or from
// correct_answer_text. It returns the repaired value and whether it changed.
func NormalizeAnswer(m *models.MCQ) (string, bool) {
	raw := strings.TrimSpace(m.CorrectAnswer)

	if sm := answerTokenRe.FindStringSubmatch(raw); sm != nil {
		fixed := strings.ToUpper(sm[1])
		if len(m.Options) == 0 || m.Options.Has(fixed) {
			return fixed, fixed != m.CorrectAnswer
		}
	}

	if letters := models.SplitLetters(raw); len(letters) > 1 {
		var valid []string
		for _, l := range letters {
			if len(l) == 1 && m.Options.Has(l) {
				valid = append(valid, l)
			}
		}
		if len(valid) > 0 {
			fixed := strings.Join(valid, ",")
			return fixed, fixed != m.CorrectAnswer
		}
	}

	if derived := deriveAnswer(m); derived != "" {
		return derived, derived != m.CorrectAnswer
	}
	return m.CorrectAnswer, false
}

func deriveAnswer(m *models.MCQ) string {
	for _, text := range []string{
		m.ExplanationSections["option_analysis"],
		m.UnifiedExplanation,
		m.Explanation,
	} {
		if l := explanation.CorrectFromOptionAnalysis(text); l != "" && (len(m.Options) == 0 || m.Options.Has(l)) {
			return l
		}
	}

	want := normalizeText(m.CorrectAnswerText)
	if want == "" {
		return ""
	}
	for _, opt := range m.Options {
		if normalizeText(opt.Text) == want {
			return opt.Letter
		}
	}
	for _, opt := range m.Options {
		got := normalizeText(opt.Text)
		if got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
			return opt.Letter
		}
	}
	return ""
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ── Normalize ──────────────────────────────────────────

type NormalizeReport struct {
	Items           int `json:"items"`
	NaNFixed        int `json:"nan_fixed"`
	ExamTypesFixed  int `json:"exam_types_fixed"`
	AnswersFixed    int `json:"answers_fixed"`
	ImageURLsFixed  int `json:"image_urls_fixed"`
	ItemsUnreadable int `json:"items_unreadable"`
}

// Normalize flattens a raw document and rewrites exam_type, correct_answer
// and image_url of each item in place, leaving other fields untouched.
func Normalize(data []byte) ([]byte, *NormalizeReport, error) {
	report := &NormalizeReport{}
	fixed, n := FixNaN(data)
	report.NaNFixed = n

	out, err := Flatten(fixed)
	if err != nil {
		return nil, nil, err
	}

	items := gjson.ParseBytes(out).Array()
	report.Items = len(items)
	for i, item := range items {
		if et := item.Get("exam_type"); et.Exists() && et.Type == gjson.String {
			norm := string(models.NormalizeExamType(et.String()))
			if norm != et.String() {
				if out, err = sjson.SetBytes(out, fmt.Sprintf("%d.exam_type", i), norm); err != nil {
					return nil, nil, fmt.Errorf("item %d exam_type: %w", i, err)
				}
				report.ExamTypesFixed++
			}
		}

		if img := item.Get("image_url"); img.Type == gjson.String {
			norm := models.NormalizeImageURL(img.String())
			if norm != img.String() {
				if out, err = sjson.SetBytes(out, fmt.Sprintf("%d.image_url", i), norm); err != nil {
					return nil, nil, fmt.Errorf("item %d image_url: %w", i, err)
				}
				report.ImageURLsFixed++
			}
		}

		m, err := decodeItem(item)
		if err != nil {
			report.ItemsUnreadable++
			continue
		}
		if answer, changed := NormalizeAnswer(m); changed {
			if out, err = sjson.SetBytes(out, fmt.Sprintf("%d.correct_answer", i), answer); err != nil {
				return nil, nil, fmt.Errorf("item %d correct_answer: %w", i, err)
			}
			report.AnswersFixed++
		}
	}
	return out, report, nil
}
