package casegen

import (
	"reflect"
	"strings"
	"testing"

	"github.com/neuro-mcq/backend/internal/models"
)

func TestDetectQuestionType(t *testing.T) {
	tests := []struct {
		text string
		want models.QuestionType
	}{
		{"A 30-year-old man has a tremor. What is the most likely diagnosis?", models.QuestionDiagnosis},
		{"Which of the following belongs in the differential diagnosis?", models.QuestionDifferential},
		{"Which localization is most likely?", models.QuestionLocalization},
		{"What is the next step in management?", models.QuestionManagement},
		{"Her levetiracetam should be switched to which drug?", models.QuestionManagement},
		{"Which study should be ordered first?", models.QuestionInvestigation},
		{"Which mechanism is responsible for the tremor?", models.QuestionPathophysiology},
		{"Describe the blood supply of the pons.", models.QuestionDiagnosis},
	}
	for _, tt := range tests {
		if got := DetectQuestionType(tt.text); got != tt.want {
			t.Errorf("DetectQuestionType(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestAssessComplexity(t *testing.T) {
	long := strings.Repeat("a ", 251)
	tests := []struct {
		name string
		text string
		want models.CaseComplexity
	}{
		{"short plain", "A man has a headache.", models.ComplexityBasic},
		{"two markers", "Refractory seizures with multiple drugs tried.", models.ComplexityIntermediate},
		{"long with markers", long + " refractory and resistant", models.ComplexityAdvanced},
		{"medium length", strings.Repeat("b", 210), models.ComplexityBasic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssessComplexity(tt.text); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExtractPatient(t *testing.T) {
	tests := []struct {
		text       string
		age        int
		gender     string
		descriptor string
		desc       string
	}{
		{"A 7-year-old boy presents with staring spells.", 7, "male", "7", "7-year-old male"},
		{"An elderly woman falls at home.", 72, "female", "elderly", "elderly female"},
		{"She reports daily headaches.", 45, "female", "45", "45-year-old female"},
		{"A young man develops diplopia.", 28, "male", "young", "young male"},
		{"A 62 year old girl", 62, "female", "62", "62-year-old female"},
		{"Patient with ataxia.", 45, "male", "45", "45-year-old male"},
	}
	for _, tt := range tests {
		p, descriptor := ExtractPatient(tt.text)
		if p.Age != tt.age || p.Gender != tt.gender || descriptor != tt.descriptor {
			t.Errorf("ExtractPatient(%q) = %+v, %q; want age %d gender %s descriptor %q",
				tt.text, p, descriptor, tt.age, tt.gender, tt.descriptor)
		}
		a := Analysis{Patient: p, AgeDescriptor: descriptor}
		if got := a.PatientDescription(); got != tt.desc {
			t.Errorf("PatientDescription() = %q, want %q", got, tt.desc)
		}
	}
}

func TestSpecialtyConfidence(t *testing.T) {
	tests := []struct {
		subspecialty string
		text         string
		want         float64
	}{
		{"Epilepsy", "A seizure followed by postictal confusion.", 0.6},
		{"", "Anything", 0.5},
		{"Neuro-ophthalmology", "Optic neuritis", 0},
		{"Headache", "Migraine with a cluster of tension headache features", 1},
	}
	for _, tt := range tests {
		mcq := &models.MCQ{Subspecialty: tt.subspecialty, QuestionText: tt.text}
		if got := SpecialtyConfidence(mcq); got != tt.want {
			t.Errorf("SpecialtyConfidence(%q) = %v, want %v", tt.subspecialty, got, tt.want)
		}
	}
}

func TestAnalyze_KeyConceptsAndSymptoms(t *testing.T) {
	mcq := &models.MCQ{
		Subspecialty: "Epilepsy",
		QuestionText: "A Boy from Cairo had Status Epilepticus with weakness and headache.",
	}
	a := Analyze(mcq)

	wantConcepts := []string{"epilepsy", "Boy", "Cairo", "Status Epilepticus"}
	if !reflect.DeepEqual(a.KeyConcepts, wantConcepts) {
		t.Errorf("KeyConcepts = %v, want %v", a.KeyConcepts, wantConcepts)
	}
	wantSymptoms := []string{"weakness", "headache"}
	if !reflect.DeepEqual(a.Symptoms, wantSymptoms) {
		t.Errorf("Symptoms = %v, want %v", a.Symptoms, wantSymptoms)
	}
	if a.Patient.Gender != "male" {
		t.Errorf("expected male from 'Boy', got %s", a.Patient.Gender)
	}
}
