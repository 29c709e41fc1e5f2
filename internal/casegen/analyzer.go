package casegen

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/neuro-mcq/backend/internal/models"
)

// Analysis is what the analyzer learns about an MCQ before generation.
type Analysis struct {
	QuestionType        models.QuestionType        `json:"question_type"`
	Complexity          models.CaseComplexity      `json:"complexity"`
	Patient             models.PatientDemographics `json:"patient_info"`
	AgeDescriptor       string                     `json:"age_descriptor"`
	Symptoms            []string                   `json:"symptoms"`
	KeyConcepts         []string                   `json:"key_concepts"`
	SpecialtyConfidence float64                    `json:"specialty_confidence"`
}

// PatientDescription renders "7-year-old male" or "elderly female".
func (a Analysis) PatientDescription() string {
	if _, err := strconv.Atoi(a.AgeDescriptor); err == nil {
		return a.AgeDescriptor + "-year-old " + a.Patient.Gender
	}
	return a.AgeDescriptor + " " + a.Patient.Gender
}

var specialtyKeywords = map[string][]string{
	"Movement Disorders": {"parkinson", "dystonia", "chorea", "tremor", "bradykinesia", "rigidity"},
	"Epilepsy":           {"seizure", "epilep", "convuls", "ictal", "postictal"},
	"Stroke/Vascular":    {"stroke", "hemorrhage", "infarct", "tpa", "thrombo", "ischemic"},
	"Dementia":           {"alzheimer", "dementia", "memory", "cognitive", "confusion"},
	"Headache":           {"headache", "migraine", "cluster", "tension"},
	"Neuromuscular":      {"myasthenia", "neuropathy", "myopathy", "weakness", "muscle"},
}

type questionPatterns struct {
	kind     models.QuestionType
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Checked in order; the first group with a match wins.
var questionTypePatterns = []questionPatterns{
	{models.QuestionDiagnosis, compileAll(
		`most likely diagnosis`, `what is the diagnosis`, `which condition`, `diagnosed with`,
		`likely cause`, `clinical diagnosis`, `provisional diagnosis`, `working diagnosis`,
		`primary diagnosis`, `underlying condition`, `this patient has`, `this condition is`,
		`consistent with`, `suggests.*diagnosis`, `findings.*suggest`, `clinical picture.*consistent`,
	)},
	{models.QuestionDifferential, compileAll(
		`differential diagnosis`, `differential.*includes`, `consider.*differential`,
		`broad.*differential`, `narrow.*differential`, `most.*appropriate.*differential`,
		`differential.*considerations`, `list.*of.*diagnoses`, `possible.*diagnoses`, `likely.*diagnoses`,
	)},
	{models.QuestionLocalization, compileAll(
		`which localization`, `localization.*most likely`, `most likely.*localization`,
		`localization.*of.*lesion`, `lesion.*located`, `anatomical.*location`, `site.*of.*lesion`,
		`where.*is.*lesion`, `neuroanatomical.*localization`, `level.*of.*lesion`,
		`location.*of.*pathology`, `anatomical.*site`, `localizing.*sign`, `lateralizing.*sign`,
		`level.*of.*injury`, `spinal.*level`, `brain.*region`, `cortical.*area`,
	)},
	{models.QuestionManagement, compileAll(
		`next step in management`, `best treatment`, `what should be done`, `appropriate therapy`,
		`second-line management`, `first-line treatment`, `most appropriate management`,
		`treatment of choice`, `next step`, `what is the.*management`, `how should.*be treated`,
		`appropriate treatment`, `therapeutic.*option`, `next.*intervention`, `what should be switched`,
		`should be switched to`, `switch to`, `changed to`, `medication.*change`, `drug.*choice`,
		`therapy.*recommend`, `treatment.*plan`, `manage.*patient`, `best.*approach`,
		`optimal.*treatment`, `immediate.*action`, `emergency.*management`, `long-term.*management`,
		`preventive.*treatment`, `maintenance.*therapy`,
	)},
	{models.QuestionInvestigation, compileAll(
		`next step in workup`, `best test`, `which study`, `appropriate investigation`,
		`most useful.*test`, `next.*investigation`, `diagnostic.*test`, `most appropriate.*study`,
		`confirm.*diagnosis`, `evaluate.*further`, `additional.*testing`, `imaging.*study`,
		`laboratory.*test`, `further.*workup`, `initial.*test`, `screening.*test`,
		`monitoring.*test`, `follow.*study`,
	)},
	{models.QuestionPathophysiology, compileAll(
		`mechanism.*responsible`, `pathophysiology`, `underlying.*mechanism`, `physiologic.*basis`,
		`explains.*finding`, `reason.*for`, `cause.*of.*symptom`, `why.*occur`, `results.*from`,
		`due.*to.*mechanism`, `molecular.*basis`, `cellular.*process`,
	)},
}

// DetectQuestionType classifies the question stem.
func DetectQuestionType(text string) models.QuestionType {
	lower := strings.ToLower(text)
	for _, group := range questionTypePatterns {
		for _, re := range group.patterns {
			if re.MatchString(lower) {
				return group.kind
			}
		}
	}
	return models.QuestionDiagnosis
}

var complexTerms = []string{"refractory", "resistant", "multiple", "complications", "differential"}

// AssessComplexity scores stem length and a few markers of harder questions.
func AssessComplexity(text string) models.CaseComplexity {
	score := 0
	switch n := utf8.RuneCountInString(text); {
	case n > 500:
		score += 2
	case n > 200:
		score++
	}
	lower := strings.ToLower(text)
	for _, term := range complexTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	switch {
	case score >= 4:
		return models.ComplexityAdvanced
	case score >= 2:
		return models.ComplexityIntermediate
	default:
		return models.ComplexityBasic
	}
}

// ── Demographics ───────────────────────────────────────

var exactAgeRe = regexp.MustCompile(`(?i)(\d+)[-\s]year[-\s]old`)

var agePatterns = []struct {
	re         *regexp.Regexp
	age        int
	descriptor string
}{
	{regexp.MustCompile(`(?i)\b(infant|baby)\b`), 1, "infant"},
	{regexp.MustCompile(`(?i)\b(child|kid)\b`), 8, "child"},
	{regexp.MustCompile(`(?i)\b(adolescent|teenager|teen)\b`), 16, "adolescent"},
	{regexp.MustCompile(`(?i)\b(young)\b`), 28, "young"},
	{regexp.MustCompile(`(?i)\b(middle[-\s]aged)\b`), 50, "middle-aged"},
	{regexp.MustCompile(`(?i)\b(elderly|old)\b`), 72, "elderly"},
}

var genderPatterns = []struct {
	re     *regexp.Regexp
	gender string
}{
	{regexp.MustCompile(`(?i)\bboy\b`), "male"},
	{regexp.MustCompile(`(?i)\bgirl\b`), "female"},
	{regexp.MustCompile(`(?i)\b(woman|female)\b`), "female"},
	{regexp.MustCompile(`(?i)\b(man|male)\b`), "male"},
	{regexp.MustCompile(`(?i)\b(she|her)\b`), "female"},
	{regexp.MustCompile(`(?i)\b(he|his|him)\b`), "male"},
}

// ExtractPatient returns demographics and the age descriptor used in the
// prompt: the exact age when given, otherwise a descriptive term.
func ExtractPatient(text string) (models.PatientDemographics, string) {
	p := models.PatientDemographics{Age: 45, Gender: "male"}
	descriptor := "45"

	if m := exactAgeRe.FindStringSubmatch(text); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			p.Age = age
			descriptor = m[1]
		}
	} else {
		for _, ap := range agePatterns {
			if ap.re.MatchString(text) {
				p.Age = ap.age
				descriptor = ap.descriptor
				break
			}
		}
	}

	for _, gp := range genderPatterns {
		if gp.re.MatchString(text) {
			p.Gender = gp.gender
			break
		}
	}
	return p, descriptor
}

var symptomKeywords = []string{"pain", "weakness", "numbness", "seizure", "headache"}

func extractSymptoms(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

var capitalizedPhraseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

func keyConcepts(mcq *models.MCQ) []string {
	var out []string
	if mcq.Subspecialty != "" {
		out = append(out, strings.ToLower(mcq.Subspecialty))
	}
	return append(out, capitalizedPhraseRe.FindAllString(mcq.QuestionText, 3)...)
}

// SpecialtyConfidence is the share of the subspecialty's keywords found in
// the stem: 0.5 with no subspecialty, 0 for one without a keyword list.
func SpecialtyConfidence(mcq *models.MCQ) float64 {
	if mcq.Subspecialty == "" {
		return 0.5
	}
	keywords := specialtyKeywords[mcq.Subspecialty]
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(mcq.QuestionText)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	conf := float64(matches) / float64(len(keywords))
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Analyze runs every analyzer step over the MCQ.
func Analyze(mcq *models.MCQ) Analysis {
	patient, descriptor := ExtractPatient(mcq.QuestionText)
	return Analysis{
		QuestionType:        DetectQuestionType(mcq.QuestionText),
		Complexity:          AssessComplexity(mcq.QuestionText),
		Patient:             patient,
		AgeDescriptor:       descriptor,
		Symptoms:            extractSymptoms(mcq.QuestionText),
		KeyConcepts:         keyConcepts(mcq),
		SpecialtyConfidence: SpecialtyConfidence(mcq),
	}
}
