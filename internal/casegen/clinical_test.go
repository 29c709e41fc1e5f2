package casegen

import (
	"reflect"
	"strings"
	"testing"
)

const seizureStem = `A patient presents with a figure of 4, fencing posture, and right side nose rubbing after head trauma 2 days ago. MRI shows a left temporal lobe lesion. Which localization is most likely?`

func detailTexts(ds []Detail) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Text
	}
	return out
}

func detailLabels(ds []Detail) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Label
	}
	return out
}

func TestExtractClinicalDetails(t *testing.T) {
	d := ExtractClinicalDetails(seizureStem)

	if got := detailTexts(d.Lateralization); !reflect.DeepEqual(got, []string{"right side", "left temporal"}) {
		t.Errorf("lateralization = %v", got)
	}
	if got := detailLabels(d.Signs); !reflect.DeepEqual(got, []string{"figure of 4", "fencing posture", "nose rubbing"}) {
		t.Errorf("signs = %v", got)
	}
	if got := detailLabels(d.ClinicalContext); !reflect.DeepEqual(got, []string{"head trauma"}) {
		t.Errorf("clinical context = %v", got)
	}
	if got := detailTexts(d.Temporal); !reflect.DeepEqual(got, []string{"2 days ago"}) {
		t.Errorf("temporal = %v", got)
	}
	if got := detailLabels(d.Anatomy); !reflect.DeepEqual(got, []string{"temporal lobe"}) {
		t.Errorf("anatomy = %v", got)
	}
	if !reflect.DeepEqual(d.CriticalPhrases, []string{"figure of 4"}) {
		t.Errorf("critical phrases = %v", d.CriticalPhrases)
	}
	if len(d.Investigations) != 1 || d.Investigations[0].Kind != "MRI" {
		t.Errorf("investigations = %+v", d.Investigations)
	}
	if len(d.Requirements) != 7 {
		t.Errorf("expected 7 requirements, got %d: %v", len(d.Requirements), d.Requirements)
	}
	if !strings.Contains(d.Lateralization[0].Context, "nose rubbing") {
		t.Errorf("expected context window around match, got %q", d.Lateralization[0].Context)
	}
}

func TestExtractClinicalDetails_QuotedAndEponyms(t *testing.T) {
	d := ExtractClinicalDetails(`He describes "walking on cotton wool" and a positive Romberg's sign.`)
	want := []string{"walking on cotton wool", "Romberg's sign"}
	if !reflect.DeepEqual(d.CriticalPhrases, want) {
		t.Errorf("critical phrases = %v, want %v", d.CriticalPhrases, want)
	}
}

func TestClinicalDetails_MissingDetails(t *testing.T) {
	d := ExtractClinicalDetails(seizureStem)

	kept := "Right side nose rubbing with a figure of 4 and fencing posture after head trauma; left temporal findings."
	if issues := d.MissingDetails(kept); len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}

	issues := d.MissingDetails("Generic abnormal postures.")
	if len(issues) != 7 {
		t.Fatalf("expected 7 issues, got %d: %v", len(issues), issues)
	}
	if issues[0] != "Missing critical lateralization: 'right side'" {
		t.Errorf("first issue = %q", issues[0])
	}
	if issues[len(issues)-1] != "Missing clinical context: head trauma" {
		t.Errorf("last issue = %q", issues[len(issues)-1])
	}
}

func TestClinicalDetails_PreservationPrompt(t *testing.T) {
	prompt := ExtractClinicalDetails(seizureStem).PreservationPrompt()
	required := []string{
		"MANDATORY PRESERVATION REQUIREMENTS",
		"Must preserve exact lateralization: 'right side'",
		"Must include exact term: 'fencing posture'",
		"Must maintain trauma context: head trauma",
		"Must preserve timing: '2 days ago'",
		"Must include specific location: 'temporal lobe'",
		"Must include exact phrase: 'figure of 4'",
	}
	for _, r := range required {
		if !strings.Contains(prompt, r) {
			t.Errorf("prompt missing %q", r)
		}
	}

	bare := ExtractClinicalDetails("What is the treatment?").PreservationPrompt()
	if strings.Contains(bare, "MANDATORY") {
		t.Error("expected no requirement block for a stem without details")
	}
}

const eegStem = "A 7-year-old boy presents with visual hallucinations. An electroencephalogram (EEG) shows occipital lobe spikes. MRI brain shows normal findings. What is the management?"

func TestExtractInvestigations(t *testing.T) {
	inv := ExtractInvestigations(eegStem)
	if len(inv.All) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(inv.All), inv.All)
	}
	f := inv.All[0]
	if f.TestType != "EEG" || f.Finding != "occipital lobe spikes" || f.Importance != ImportanceCritical {
		t.Errorf("unexpected finding %+v", f)
	}
	if f.FullText != "electroencephalogram (EEG) shows occipital lobe spikes" {
		t.Errorf("full text = %q", f.FullText)
	}

	lab := ExtractInvestigations("Glucose: 45 mg/dL and CSF shows high protein.")
	if len(lab.ByCategory["laboratory"]) != 2 {
		t.Fatalf("expected 2 laboratory findings, got %+v", lab.All)
	}
	if lab.All[0].Finding != "45" || lab.All[0].Importance != ImportanceSupporting {
		t.Errorf("glucose finding = %+v", lab.All[0])
	}
}

func TestExtractInvestigations_DeduplicatesOverlappingPatterns(t *testing.T) {
	inv := ExtractInvestigations("An EEG shows generalized spike-wave discharges.")
	if len(inv.All) != 1 {
		t.Errorf("expected 1 finding, got %d: %+v", len(inv.All), inv.All)
	}
}

func TestExtractInvestigations_WordBoundary(t *testing.T) {
	inv := ExtractInvestigations("The treatment effect shows promise.")
	if len(inv.All) != 0 {
		t.Errorf("expected no findings, got %+v", inv.All)
	}
}

func TestValidatePreservation(t *testing.T) {
	tests := []struct {
		name     string
		mcq      string
		caseText string
		valid    bool
		rate     float64
		missing  int
	}{
		{"kept", eegStem, "EEG demonstrated occipital spikes.", true, 100, 0},
		{"dropped", eegStem, "Normal examination.", false, 0, 1},
		{"no findings", "What is the first-line drug?", "anything", true, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidatePreservation(tt.mcq, tt.caseText)
			if res.Valid != tt.valid || res.Rate != tt.rate || len(res.Missing) != tt.missing {
				t.Errorf("got %+v", res)
			}
		})
	}
}

func TestEnhanceCase(t *testing.T) {
	caseText := "The patient had visual hallucinations. Given this, what next?"
	got := EnhanceCase(caseText, eegStem)
	want := "The patient had visual hallucinations.\n\nInvestigations performed:\n- electroencephalogram (EEG) shows occipital lobe spikes\n\nGiven this, what next?"
	if got != want {
		t.Errorf("EnhanceCase =\n%q\nwant\n%q", got, want)
	}

	appended := EnhanceCase("Visual hallucinations only.", eegStem)
	if !strings.HasSuffix(appended, "- electroencephalogram (EEG) shows occipital lobe spikes\n") {
		t.Errorf("expected section at the end, got %q", appended)
	}

	kept := "EEG shows occipital spikes."
	if EnhanceCase(kept, eegStem) != kept {
		t.Error("expected unchanged text when findings are kept")
	}
}

func TestInvestigations_PreservationPrompt(t *testing.T) {
	prompt := ExtractInvestigations(eegStem).PreservationPrompt()
	if !strings.Contains(prompt, "NEUROPHYSIOLOGY FINDINGS") ||
		!strings.Contains(prompt, "- MUST INCLUDE: electroencephalogram (EEG) shows occipital lobe spikes") {
		t.Errorf("unexpected prompt:\n%s", prompt)
	}
	if ExtractInvestigations("No tests.").PreservationPrompt() != "" {
		t.Error("expected empty prompt without findings")
	}
}
