package explanation

import (
	"reflect"
	"strings"
	"testing"

	"github.com/neuro-mcq/backend/internal/models"
)

const longText = "Myasthenia gravis is an autoimmune disorder of the neuromuscular junction with fatigable weakness."

func TestMergeOrdersSections(t *testing.T) {
	got := Merge(map[string]string{
		"management_principles": "Pyridostigmine first.",
		"option_analysis":       "Option A: correct.",
		"extra_notes":           "Something else.",
		"clinical_pearls":       "   ",
	})
	want := "### Option Analysis\n\nOption A: correct.\n\n" +
		"### Management Principles\n\nPyridostigmine first.\n\n" +
		"### Extra Notes\n\nSomething else."
	if got != want {
		t.Errorf("Merge =\n%q\nwant\n%q", got, want)
	}
	if Merge(nil) != "" {
		t.Error("Merge(nil) should be empty")
	}
}

func TestTextPriority(t *testing.T) {
	m := &models.MCQ{
		UnifiedExplanation:  "unified",
		Explanation:         "plain",
		ExplanationSections: map[string]string{"option_analysis": "sections"},
	}
	if got := Text(m); got != "unified" {
		t.Errorf("Text = %q, want unified", got)
	}
	m.UnifiedExplanation = ""
	if got := Text(m); got != "plain" {
		t.Errorf("Text = %q, want plain", got)
	}
	m.Explanation = ""
	if got := Text(m); !strings.Contains(got, "sections") {
		t.Errorf("Text = %q, want merged sections", got)
	}
}

func TestIsMeaningful(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"short", "Too short.", false},
		{"long prose", longText, true},
		{"classification marker", longText + " Classification Reason: keywords", false},
		{"placeholder under 100", "Explanation not available for this item at this time, sorry.", false},
		{"placeholder over 100", longText + " This part is to be added later by the editorial team.", true},
		{"header only", "### Option Analysis\n\n### Management Principles\n\n## x", false},
		{"header with paragraph", "### Option Analysis\n\nOption B is correct because of the lesion site.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMeaningful(tt.text); got != tt.want {
				t.Errorf("IsMeaningful(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestHasExplanation(t *testing.T) {
	tests := []struct {
		name string
		mcq  models.MCQ
		want bool
	}{
		{"none", models.MCQ{}, false},
		{"unified", models.MCQ{UnifiedExplanation: longText}, true},
		{"option analysis section", models.MCQ{ExplanationSections: map[string]string{"option_analysis": longText}}, true},
		{"only pearls", models.MCQ{ExplanationSections: map[string]string{"clinical_pearls": longText}}, false},
	}
	for _, tt := range tests {
		if got := HasExplanation(&tt.mcq); got != tt.want {
			t.Errorf("%s: HasExplanation = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMissingRequired(t *testing.T) {
	got := MissingRequired(map[string]string{"option_analysis": longText})
	if !reflect.DeepEqual(got, []string{"management_principles"}) {
		t.Errorf("MissingRequired = %v", got)
	}
}

func TestCorrectFromOptionAnalysis(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"en dash", "Option A: Stroke – Incorrect\nOption C: Myasthenia gravis – Correct. The ice pack test...", "C"},
		{"hyphen", "Option B: Migraine - Correct answer", "B"},
		{"lower case verdict", "Option A: Stroke - incorrect\noption c: Myasthenia gravis - correct", "C"},
		{"line fallback", "Option A: wrong, incorrect.\nOption D (Guillain-Barré) is the correct choice.", "D"},
		{"skips partially correct", "Option A is partially correct.\nOption B explains it and is correct.", "B"},
		{"phrase", "After review the correct answer is option E.", "E"},
		{"answer colon", "answer: c", "C"},
		{"nothing", "No clue here.", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CorrectFromOptionAnalysis(tt.text); got != tt.want {
				t.Errorf("CorrectFromOptionAnalysis = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	in := `<div><h3>Option Analysis</h3><p>Option <b>B</b> is correct.</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul></div>`
	want := "Option Analysis\nOption B is correct.\none\ntwo"
	if got := StripHTML(in); got != want {
		t.Errorf("StripHTML =\n%q\nwant\n%q", got, want)
	}
	if got := StripHTML("  plain text  "); got != "plain text" {
		t.Errorf("plain passthrough = %q", got)
	}
}

func TestImageURLs(t *testing.T) {
	in := `<p>See <img src="https://x.test/a.png"> and <img src='https://x.test/b.png'/><img src="https://x.test/a.png"><img alt="none"></p>`
	want := []string{"https://x.test/a.png", "https://x.test/b.png"}
	if got := ImageURLs(in); !reflect.DeepEqual(got, want) {
		t.Errorf("ImageURLs = %v, want %v", got, want)
	}
	if got := ImageURLs("no images"); got != nil {
		t.Errorf("ImageURLs(plain) = %v", got)
	}
}
