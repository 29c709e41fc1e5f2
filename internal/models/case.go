package models

import (
	"encoding/json"
	"time"
)

type QuestionType string

const (
	QuestionDiagnosis       QuestionType = "diagnosis"
	QuestionDifferential    QuestionType = "differential"
	QuestionLocalization    QuestionType = "localization"
	QuestionManagement      QuestionType = "management"
	QuestionInvestigation   QuestionType = "investigation"
	QuestionPathophysiology QuestionType = "pathophysiology"
	QuestionPrognosis       QuestionType = "prognosis"
	QuestionPrevention      QuestionType = "prevention"
)

type CaseComplexity string

const (
	ComplexityBasic        CaseComplexity = "basic"
	ComplexityIntermediate CaseComplexity = "intermediate"
	ComplexityAdvanced     CaseComplexity = "advanced"
)

type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationError   ValidationStatus = "error"
)

type ConversionStatus string

const (
	ConversionPending    ConversionStatus = "pending"
	ConversionProcessing ConversionStatus = "processing"
	ConversionCompleted  ConversionStatus = "completed"
	ConversionFailed     ConversionStatus = "failed"
)

type PatientDemographics struct {
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// ClinicalPresentation is the structured case body returned by the model.
type ClinicalPresentation struct {
	ChiefComplaint        string                 `json:"chief_complaint"`
	HistoryPresentIllness string                 `json:"history_present_illness"`
	PastMedicalHistory    []string               `json:"past_medical_history"`
	Medications           []string               `json:"medications"`
	PhysicalExamination   string                 `json:"physical_examination"`
	VitalSigns            map[string]interface{} `json:"vital_signs"`
}

type CaseMetadata struct {
	GeneratedAt       time.Time `json:"generated_at"`
	SourceMCQChecksum string    `json:"source_mcq_checksum"`
	GeneratorVersion  string    `json:"generator_version"`
	APIReturnedMCQID  string    `json:"api_returned_mcq_id,omitempty"`
	OriginalMCQText   string    `json:"original_mcq_text"`
}

// CaseData is a generated case before it is flattened for clients.
type CaseData struct {
	SourceMCQID          int64                `json:"source_mcq_id"`
	Specialty            string               `json:"specialty"`
	QuestionType         QuestionType         `json:"question_type"`
	Complexity           CaseComplexity       `json:"complexity"`
	PatientDemographics  PatientDemographics  `json:"patient_demographics"`
	ClinicalPresentation ClinicalPresentation `json:"clinical_presentation"`
	QuestionPrompt       string               `json:"question_prompt"`
	CoreConceptType      string               `json:"core_concept_type"`
	LearningObjectives   []string             `json:"learning_objectives"`
	Metadata             CaseMetadata         `json:"metadata"`
}

type ValidationMetadata struct {
	StructuralScore float64   `json:"structural_score"`
	ContentScore    float64   `json:"content_score"`
	SemanticScore   float64   `json:"semantic_score"`
	Explanation     string    `json:"semantic_explanation,omitempty"`
	Attempt         int       `json:"attempt"`
	ValidatedAt     time.Time `json:"validated_at"`
}

type CaseValidation struct {
	Status           ValidationStatus   `json:"status"`
	Score            float64            `json:"score"`
	StructuralIssues []string           `json:"structural_issues"`
	ContentIssues    []string           `json:"content_issues"`
	SemanticIssues   []string           `json:"semantic_issues"`
	Summary          string             `json:"summary"`
	Metadata         ValidationMetadata `json:"metadata"`
}

// AllIssues returns structural, content and semantic issues in that order.
func (v CaseValidation) AllIssues() []string {
	out := make([]string, 0, len(v.StructuralIssues)+len(v.ContentIssues)+len(v.SemanticIssues))
	out = append(out, v.StructuralIssues...)
	out = append(out, v.ContentIssues...)
	out = append(out, v.SemanticIssues...)
	return out
}

type ProfessionalValidation struct {
	Passed         bool      `json:"passed"`
	Score          float64   `json:"score"`
	Reason         string    `json:"reason"`
	Method         string    `json:"method"`
	Issues         []string  `json:"issues"`
	HasWarnings    bool      `json:"has_warnings"`
	WarningCount   int       `json:"warning_count"`
	CriticalIssues []string  `json:"critical_issues"`
	ValidatedAt    time.Time `json:"validated_at"`
}

type ExtendedCaseData struct {
	PatientDemographics  PatientDemographics  `json:"patient_demographics"`
	ClinicalPresentation ClinicalPresentation `json:"clinical_presentation"`
	LearningObjectives   []string             `json:"learning_objectives"`
	Validation           CaseValidation       `json:"validation_metadata"`
}

// ConvertedCase is the flat case format served to clients.
type ConvertedCase struct {
	SourceMCQID            int64                  `json:"source_mcq_id"`
	ClinicalPresentation   string                 `json:"clinical_presentation"`
	PatientDemographics    string                 `json:"patient_demographics"`
	QuestionPrompt         string                 `json:"question_prompt"`
	CoreConceptType        string                 `json:"core_concept_type"`
	Specialty              string                 `json:"specialty"`
	QuestionType           QuestionType           `json:"question_type"`
	Difficulty             CaseComplexity         `json:"difficulty"`
	ProfessionalValidation ProfessionalValidation `json:"professional_validation"`
	MCQSourceValidated     bool                   `json:"mcq_source_validated"`
	GeneratorVersion       string                 `json:"generator_version"`
	MCQChecksum            string                 `json:"mcq_checksum"`
	GeneratedAt            time.Time              `json:"generated_at"`
	ExtendedData           ExtendedCaseData       `json:"_extended_data"`
	DebugLog               []DebugStep            `json:"_debug_log,omitempty"`
}

type DebugStep struct {
	Step string      `json:"step"`
	Data interface{} `json:"data,omitempty"`
	At   time.Time   `json:"timestamp"`
}

// ── Sessions ───────────────────────────────────────────

type CaseSession struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	MCQID        int64            `json:"mcq_id"`
	TrackingID   string           `json:"tracking_id"`
	Status       ConversionStatus `json:"status"`
	Attempts     int              `json:"attempts"`
	CaseData     json.RawMessage  `json:"case_data,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type ConversionEvent struct {
	ID         int64           `json:"id"`
	SessionID  int64           `json:"session_id"`
	TrackingID string          `json:"tracking_id"`
	MCQID      int64           `json:"mcq_id"`
	Step       string          `json:"step"`
	Status     string          `json:"status"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type TrackingReport struct {
	TrackingID string            `json:"tracking_id"`
	Session    *CaseSession      `json:"session,omitempty"`
	Events     []ConversionEvent `json:"events"`
}

type IntegrityIssue struct {
	SessionID int64  `json:"session_id"`
	MCQID     int64  `json:"mcq_id"`
	Problem   string `json:"problem"`
}

type IntegrityReport struct {
	Checked int              `json:"checked"`
	Issues  []IntegrityIssue `json:"issues"`
}
