package explanation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/neuro-mcq/backend/internal/models"
)

type Section struct {
	Key      string
	Title    string
	Required bool
}

// Sections is the canonical display order.
var Sections = []Section{
	{Key: "option_analysis", Title: "Option Analysis", Required: true},
	{Key: "conceptual_foundation", Title: "Conceptual Foundation"},
	{Key: "pathophysiology", Title: "Pathophysiology"},
	{Key: "clinical_manifestation", Title: "Clinical Manifestation"},
	{Key: "diagnostic_approach", Title: "Diagnostic Approach"},
	{Key: "classification_and_nosology", Title: "Classification and Nosology"},
	{Key: "management_principles", Title: "Management Principles", Required: true},
	{Key: "follow_up_guidelines", Title: "Follow-up Guidelines"},
	{Key: "clinical_pearls", Title: "Clinical Pearls"},
	{Key: "current_evidence", Title: "Current Evidence"},
}

var sectionIndex = func() map[string]Section {
	m := make(map[string]Section, len(Sections))
	for _, s := range Sections {
		m[s.Key] = s
	}
	return m
}()

var placeholderPhrases = []string{
	"explanation not available",
	"no explanation",
	"to be added",
	"coming soon",
	"placeholder",
	"tbd",
	"included within the unified explanation",
}

// Merge renders sections as markdown blocks, known sections first.
func Merge(sections map[string]string) string {
	var blocks []string
	for _, s := range Sections {
		content := strings.TrimSpace(sections[s.Key])
		if content == "" {
			continue
		}
		blocks = append(blocks, "### "+s.Title+"\n\n"+content)
	}

	var extra []string
	for k := range sections {
		if _, known := sectionIndex[k]; !known {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		content := strings.TrimSpace(sections[k])
		if content == "" {
			continue
		}
		blocks = append(blocks, "### "+titleCase(k)+"\n\n"+content)
	}

	return strings.Join(blocks, "\n\n")
}

func titleCase(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Text picks the best available explanation for display.
func Text(m *models.MCQ) string {
	if strings.TrimSpace(m.UnifiedExplanation) != "" {
		return m.UnifiedExplanation
	}
	if strings.TrimSpace(m.Explanation) != "" {
		return m.Explanation
	}
	return Merge(m.ExplanationSections)
}

func HasExplanation(m *models.MCQ) bool {
	if IsMeaningful(m.UnifiedExplanation) || IsMeaningful(m.Explanation) {
		return true
	}
	for _, key := range []string{"option_analysis", "conceptual_foundation", "clinical_manifestation"} {
		if IsMeaningful(m.ExplanationSections[key]) {
			return true
		}
	}
	return false
}

// MissingRequired lists required sections that are empty or placeholder text.
func MissingRequired(sections map[string]string) []string {
	var missing []string
	for _, s := range Sections {
		if s.Required && !IsMeaningful(sections[s.Key]) {
			missing = append(missing, s.Key)
		}
	}
	return missing
}

// IsMeaningful rejects short, placeholder and header-only text.
func IsMeaningful(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 50 {
		return false
	}
	if strings.Contains(t, "Classification Reason:") {
		return false
	}

	lower := strings.ToLower(t)
	for _, p := range placeholderPhrases {
		if strings.Contains(lower, p) && len(t) < 100 {
			return false
		}
	}

	if strings.Contains(t, "#") && len(t) < 150 {
		for _, para := range strings.Split(t, "\n\n") {
			p := strings.TrimSpace(para)
			if len(p) > 30 && !strings.HasPrefix(p, "#") {
				return true
			}
		}
		return false
	}
	return true
}

// ── Answer recovery ────────────────────────────────────

var (
	optionCorrectRe = regexp.MustCompile(`(?i)Option ([A-H]):\s*[^–\-\n]+[–\-]\s*Correct\b`)
	optionLineRe    = regexp.MustCompile(`Option ([A-H])\b`)
	answerPhraseRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)correct answer is (?:option )?\(?([A-H])\b`),
		regexp.MustCompile(`(?i)answer:\s*\(?([A-H])\b`),
		regexp.MustCompile(`(?i)option ([A-H]) is (?:the )?correct`),
	}
)

// CorrectFromOptionAnalysis recovers the correct letter from explanation
// text. It returns "" when no letter can be identified.
func CorrectFromOptionAnalysis(text string) string {
	if text == "" {
		return ""
	}
	if m := optionCorrectRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "correct") ||
			strings.Contains(lower, "incorrect") ||
			strings.Contains(lower, "partially correct") {
			continue
		}
		if m := optionLineRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}

	for _, re := range answerPhraseRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}
