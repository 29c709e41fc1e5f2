package casegen

import (
	"fmt"
	"regexp"
	"strings"
)

type Importance string

const (
	ImportanceCritical   Importance = "critical"
	ImportanceSupporting Importance = "supporting"
)

// Finding is one investigation result quoted in a question stem.
type Finding struct {
	TestType   string     `json:"test_type"`
	Finding    string     `json:"finding"`
	FullText   string     `json:"full_text"`
	Importance Importance `json:"importance"`
	Category   string     `json:"category"`
}

// Investigations groups findings by category in the order they are reported.
type Investigations struct {
	ByCategory map[string][]Finding `json:"by_category"`
	All        []Finding            `json:"all_findings"`
}

// PreservationResult reports which findings a case kept.
type PreservationResult struct {
	Valid     bool     `json:"valid"`
	Missing   []string `json:"missing_investigations"`
	Preserved []string `json:"preserved_investigations"`
	Rate      float64  `json:"preservation_rate"`
}

var investigationCategories = []string{"neurophysiology", "imaging", "laboratory", "pathology", "clinical_tests"}

type investigationPattern struct {
	re       *regexp.Regexp
	testType string
}

func ip(expr, testType string) investigationPattern {
	return investigationPattern{re: regexp.MustCompile(`(?i)\b` + expr), testType: testType}
}

var investigationPatterns = map[string][]investigationPattern{
	"neurophysiology": {
		ip(`(EEG|electroencephalogram)\s+shows?\s+([^.]+)`, "EEG"),
		ip(`(EEG|electroencephalogram)\s+demonstrates?\s+([^.]+)`, "EEG"),
		ip(`(EEG|electroencephalogram)\s+reveals?\s+([^.]+)`, "EEG"),
		ip(`(EEG|electroencephalogram)[:]\s*([^.]+)`, "EEG"),
		ip(`electroencephalogram\s*\(EEG\)\s+shows?\s+([^.]+)`, "EEG"),
		ip(`electroencephalogram\s*\(EEG\)\s+demonstrates?\s+([^.]+)`, "EEG"),
		ip(`electroencephalogram\s*\(EEG\)\s+reveals?\s+([^.]+)`, "EEG"),
		ip(`An?\s+(EEG|electroencephalogram)\s+shows?\s+([^.]+)`, "EEG"),
		ip(`(EMG|electromyography)\s+shows?\s+([^.]+)`, "EMG"),
		ip(`(NCS|nerve conduction study)\s+shows?\s+([^.]+)`, "NCS"),
		ip(`nerve conduction\s+shows?\s+([^.]+)`, "NCS"),
		ip(`(VEP|visual evoked potential)\s+shows?\s+([^.]+)`, "VEP"),
		ip(`(BAEP|brainstem auditory evoked potential)\s+shows?\s+([^.]+)`, "BAEP"),
		ip(`(SSEP|somatosensory evoked potential)\s+shows?\s+([^.]+)`, "SSEP"),
	},
	"imaging": {
		ip(`(MRI|magnetic resonance imaging)\s+shows?\s+([^.]+)`, "MRI"),
		ip(`(MRI|magnetic resonance imaging)\s+demonstrates?\s+([^.]+)`, "MRI"),
		ip(`(MRI|magnetic resonance imaging)\s+reveals?\s+([^.]+)`, "MRI"),
		ip(`brain\s+MRI\s+shows?\s+([^.]+)`, "MRI"),
		ip(`spine\s+MRI\s+shows?\s+([^.]+)`, "MRI"),
		ip(`(CT|computed tomography)\s+shows?\s+([^.]+)`, "CT"),
		ip(`(CT scan)\s+shows?\s+([^.]+)`, "CT"),
		ip(`head\s+CT\s+shows?\s+([^.]+)`, "CT"),
		ip(`(angiography|angiogram)\s+shows?\s+([^.]+)`, "Angiography"),
		ip(`(PET|positron emission tomography)\s+shows?\s+([^.]+)`, "PET"),
		ip(`(SPECT)\s+shows?\s+([^.]+)`, "SPECT"),
		ip(`(ultrasound|sonography)\s+shows?\s+([^.]+)`, "Ultrasound"),
	},
	"laboratory": {
		ip(`(CBC|complete blood count)\s+shows?\s+([^.]+)`, "CBC"),
		ip(`(hemoglobin|Hgb|Hb)\s*[:=]\s*([0-9.]+)`, "Hemoglobin"),
		ip(`(glucose|blood sugar)\s*[:=]\s*([0-9.]+)`, "Glucose"),
		ip(`(creatinine)\s*[:=]\s*([0-9.]+)`, "Creatinine"),
		ip(`(CSF|cerebrospinal fluid)\s+shows?\s+([^.]+)`, "CSF"),
		ip(`(CSF|cerebrospinal fluid)\s+analysis\s+reveals?\s+([^.]+)`, "CSF"),
		ip(`lumbar puncture\s+shows?\s+([^.]+)`, "CSF"),
		ip(`(antibody|antibodies)\s+to\s+([^.]+)`, "Antibody"),
		ip(`(anti-[A-Za-z0-9]+)\s+antibodies?\s+([^.]+)`, "Antibody"),
		ip(`genetic\s+testing\s+shows?\s+([^.]+)`, "Genetic"),
		ip(`(mutation|deletion)\s+in\s+([^.]+)`, "Genetic"),
	},
	"pathology": {
		ip(`(biopsy)\s+shows?\s+([^.]+)`, "Biopsy"),
		ip(`(histopathology)\s+shows?\s+([^.]+)`, "Histopathology"),
		ip(`(pathology)\s+shows?\s+([^.]+)`, "Pathology"),
	},
	"clinical_tests": {
		ip(`(Tensilon test)\s+([^.]+)`, "Tensilon"),
		ip(`(ice pack test)\s+([^.]+)`, "Ice pack"),
		ip(`(Romberg test)\s+([^.]+)`, "Romberg"),
	},
}

func importanceFor(category, testType string) Importance {
	switch category {
	case "imaging", "pathology":
		return ImportanceCritical
	case "neurophysiology":
		if testType == "EEG" {
			return ImportanceCritical
		}
	}
	return ImportanceSupporting
}

// ExtractInvestigations finds every investigation result in the text. A
// result matched by several patterns with the same wording is kept once.
func ExtractInvestigations(text string) Investigations {
	inv := Investigations{ByCategory: make(map[string][]Finding)}
	seen := make(map[string]bool)
	for _, category := range investigationCategories {
		for _, p := range investigationPatterns[category] {
			for _, m := range p.re.FindAllStringSubmatch(text, -1) {
				f := Finding{
					TestType:   p.testType,
					FullText:   m[0],
					Importance: importanceFor(category, p.testType),
					Category:   category,
				}
				switch {
				case category == "clinical_tests":
					f.Finding = strings.TrimSpace(m[1])
				case len(m) >= 3:
					f.Finding = strings.TrimSpace(m[2])
				default:
					f.Finding = strings.TrimSpace(m[1])
				}
				key := p.testType + "|" + strings.ToLower(f.Finding)
				if seen[key] {
					continue
				}
				seen[key] = true
				inv.ByCategory[category] = append(inv.ByCategory[category], f)
				inv.All = append(inv.All, f)
			}
		}
	}
	return inv
}

// PreservationPrompt lists the findings the generator has to keep. It is
// empty when the text quotes no investigations.
func (inv Investigations) PreservationPrompt() string {
	if len(inv.All) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nCRITICAL INVESTIGATION PRESERVATION REQUIREMENTS:\n\n")
	b.WriteString("ALL DIAGNOSTIC TEST RESULTS FROM THE MCQ MUST BE PRESERVED EXACTLY:\n")
	for _, category := range investigationCategories {
		findings := inv.ByCategory[category]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s FINDINGS:\n", strings.ToUpper(category))
		for _, f := range findings {
			fmt.Fprintf(&b, "- MUST INCLUDE: %s\n", f.FullText)
		}
	}
	b.WriteString(`
VALIDATION REQUIREMENTS:
- The case MUST include ALL investigation findings mentioned in the original MCQ
- Test results must be presented in the EXACT same format and with the SAME values
- Critical findings (EEG, MRI, CT, biopsy) are MANDATORY for case validity
- These findings directly determine the diagnosis and management approach

FAILURE TO PRESERVE INVESTIGATION FINDINGS WILL COMPROMISE THE EDUCATIONAL OBJECTIVE.
`)
	return b.String()
}

var (
	wordRe         = regexp.MustCompile(`\b\w+\b`)
	findingStopSet = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"with": true, "shows": true, "demonstrates": true, "reveals": true,
	}
)

func findingKeywords(finding string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(finding), -1) {
		if len(w) > 2 && !findingStopSet[w] {
			out = append(out, w)
		}
	}
	return out
}

// ValidatePreservation checks each finding of mcqText against caseText. A
// finding counts as kept when any of its keywords appears in the case.
func ValidatePreservation(mcqText, caseText string) PreservationResult {
	return ExtractInvestigations(mcqText).Validate(caseText)
}

func (inv Investigations) Validate(caseText string) PreservationResult {
	res := PreservationResult{Valid: true, Rate: 100}
	if len(inv.All) == 0 {
		return res
	}
	lower := strings.ToLower(caseText)
	for _, f := range inv.All {
		kept := false
		for _, kw := range findingKeywords(f.Finding) {
			if strings.Contains(lower, kw) {
				kept = true
				break
			}
		}
		if kept {
			res.Preserved = append(res.Preserved, f.FullText)
		} else {
			res.Missing = append(res.Missing, f.FullText)
			res.Valid = false
		}
	}
	res.Rate = float64(len(res.Preserved)) / float64(len(inv.All)) * 100
	return res
}

// EnhanceCase appends an "Investigations performed:" section listing the
// findings of mcqText missing from caseText. The section goes before a
// "Given this" question lead-in when there is one.
func EnhanceCase(caseText, mcqText string) string {
	inv := ExtractInvestigations(mcqText)
	if len(inv.All) == 0 {
		return caseText
	}
	res := inv.Validate(caseText)
	if res.Valid {
		return caseText
	}

	var section strings.Builder
	section.WriteString("\n\nInvestigations performed:\n")
	for _, missing := range res.Missing {
		fmt.Fprintf(&section, "- %s\n", missing)
	}

	if before, after, found := strings.Cut(caseText, "Given this"); found {
		return strings.TrimRight(before, " \t\r\n") + section.String() + "\nGiven this" + after
	}
	return strings.TrimRight(caseText, " \t\r\n") + section.String()
}
