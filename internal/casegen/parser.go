package casegen

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/neuro-mcq/backend/internal/models"
)

const GeneratorVersion = "v2.0.0"

var ErrNoJSON = errors.New("no JSON found in model response")

type generatedCase struct {
	SourceMCQID          json.RawMessage              `json:"source_mcq_id"`
	ClinicalPresentation *models.ClinicalPresentation `json:"clinical_presentation"`
	QuestionPrompt       string                       `json:"question_prompt"`
	CoreConceptType      string                       `json:"core_concept_type"`
	LearningObjectives   []string                     `json:"learning_objectives"`
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// ExtractJSON returns the JSON object in a model response, ignoring code
// fences and any prose around it.
func ExtractJSON(response string) (string, error) {
	return extractJSONObject(response)
}

// extractJSONObject returns the span from the first '{' to the last '}'.
func extractJSONObject(s string) (string, error) {
	s = stripCodeFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// ParseCase decodes a model response into CaseData for mcq. The source id
// is always forced to the MCQ's id; the value the model returned is kept in
// the metadata.
func ParseCase(mcq *models.MCQ, a Analysis, response string, now time.Time) (*models.CaseData, error) {
	raw, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var gen generatedCase
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return nil, fmt.Errorf("failed to parse case JSON: %w", err)
	}
	if gen.ClinicalPresentation == nil {
		return nil, fmt.Errorf("case JSON has no clinical_presentation")
	}

	returnedID := strings.Trim(strings.TrimSpace(string(gen.SourceMCQID)), `"`)
	if returnedID != fmt.Sprint(mcq.ID) {
		log.Printf("[casegen] WARN: model returned MCQ id %q for MCQ %d, corrected", returnedID, mcq.ID)
	}

	cp := *gen.ClinicalPresentation
	if cp.PastMedicalHistory == nil {
		cp.PastMedicalHistory = []string{}
	}
	if cp.Medications == nil {
		cp.Medications = []string{}
	}
	if cp.VitalSigns == nil {
		cp.VitalSigns = map[string]interface{}{}
	}
	objectives := gen.LearningObjectives
	if objectives == nil {
		objectives = []string{}
	}

	return &models.CaseData{
		SourceMCQID:          mcq.ID,
		Specialty:            mcq.Subspecialty,
		QuestionType:         a.QuestionType,
		Complexity:           a.Complexity,
		PatientDemographics:  a.Patient,
		ClinicalPresentation: cp,
		QuestionPrompt:       gen.QuestionPrompt,
		CoreConceptType:      gen.CoreConceptType,
		LearningObjectives:   objectives,
		Metadata: models.CaseMetadata{
			GeneratedAt:       now,
			SourceMCQChecksum: Checksum(mcq),
			GeneratorVersion:  GeneratorVersion,
			APIReturnedMCQID:  returnedID,
			OriginalMCQText:   mcq.QuestionText,
		},
	}, nil
}

// Checksum fingerprints the MCQ fields a case depends on: the first 16 hex
// chars of md5("{id}_{text}_{answer}_{subspecialty}").
func Checksum(mcq *models.MCQ) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d_%s_%s_%s", mcq.ID, mcq.QuestionText, mcq.CorrectAnswer, mcq.Subspecialty)))
	return hex.EncodeToString(sum[:])[:16]
}
