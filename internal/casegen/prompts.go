package casegen

import (
	"fmt"
	"strings"

	"github.com/neuro-mcq/backend/internal/models"
)

const (
	generationTemperature = 0.3
	generationMaxTokens   = 2000
	judgeTemperature      = 0.1
	judgeMaxTokens        = 500
)

// judgeMarker identifies semantic-judge prompts.
const judgeMarker = "Evaluate if this case scenario appropriately teaches the same medical concept"

func CaseSystemPrompt() string {
	return `You are a medical education expert creating adaptive case-based learning scenarios from neurology board MCQs.
Every case teaches the EXACT same concept as its source question, keeps its patient demographics and clinical details verbatim, and leads to the same clinical decision.
Respond with a single JSON object and nothing else.`
}

var phaseGuidance = map[models.QuestionType]string{
	models.QuestionManagement: `MANAGEMENT QUESTION - SPECIFIC GUIDANCE:
- OPTION A, ESTABLISHED DIAGNOSIS (most common): the condition is known; ask for the best treatment or next step and leave out unnecessary workup.
- OPTION B, ONGOING TREATMENT: the patient is on therapy that needs changing; include the current drug, response and side effects.
- OPTION C, POST-INVESTIGATION: test results that guide treatment are available.
CHOOSE THE OPTION that best matches what the original MCQ is testing.`,
	models.QuestionDiagnosis: `DIAGNOSIS QUESTION - SPECIFIC GUIDANCE:
- OPTION A, INITIAL PRESENTATION: symptoms requiring diagnosis; progress HPI, examination, clinical reasoning.
- OPTION B, POST-EXAMINATION: history and examination done; the key signs narrow the differential.
- OPTION C, POST-INVESTIGATION: initial test results clinch the diagnosis.
CHOOSE THE OPTION that creates the same diagnostic challenge as the original MCQ.`,
	models.QuestionDifferential: `DIFFERENTIAL DIAGNOSIS QUESTION - SPECIFIC GUIDANCE:
- OPTION A, POST-EXAMINATION (most common): findings that several conditions could explain.
- OPTION B, INITIAL PRESENTATION: a complex symptom pattern that needs broad reasoning.
CHOOSE THE OPTION that requires the same differential reasoning as the original MCQ.`,
	models.QuestionLocalization: `LOCALIZATION QUESTION - SPECIFIC GUIDANCE:
- OPTION A, POST-EXAMINATION (most common): specific neurological signs that localize the lesion.
- OPTION B, POST-INVESTIGATION: imaging or test findings that correspond to a level or location.
- OPTION C, CLINICAL CORRELATION: signs mapped to a brain or spinal structure.
CHOOSE THE OPTION that requires the same localization reasoning as the original MCQ.`,
	models.QuestionInvestigation: `INVESTIGATION QUESTION - SPECIFIC GUIDANCE:
- OPTION A, POST-EXAMINATION (most common): findings that justify a specific test.
- OPTION B, INITIAL PRESENTATION: a symptom complex that drives the initial workup.
- OPTION C, POST-INITIAL-INVESTIGATION: earlier results with questions still open.
CHOOSE THE OPTION that requires the same investigative reasoning as the original MCQ.`,
	models.QuestionPathophysiology: `PATHOPHYSIOLOGY QUESTION - SPECIFIC GUIDANCE:
Present a case that illustrates the mechanism being tested, connects the findings to the biological process,
and asks "What explains this finding?" or "What is the mechanism?".`,
}

const generalGuidance = `GENERAL CLINICAL QUESTION - ADAPTIVE GUIDANCE:
- Match the type of clinical reasoning required
- Start at the phase that leads to the same decision point
- Teach the same core concept and focus on the same aspect of patient care`

// QuestionTypeInstructions explains which clinical phase the case should
// open at for the given question type.
func QuestionTypeInstructions(qt models.QuestionType, question string) string {
	guidance, ok := phaseGuidance[qt]
	if !ok {
		guidance = generalGuidance
	}
	return fmt.Sprintf(`ORIGINAL QUESTION ANALYSIS: %q

CLINICAL PHASES TO CHOOSE FROM:
1. INITIAL PRESENTATION (HPI/Chief Complaint) - diagnostic challenges
2. POST-EXAMINATION (after history/exam) - some findings established
3. POST-INVESTIGATION (after initial tests) - diagnosis suspected
4. ESTABLISHED DIAGNOSIS (condition confirmed) - management/treatment questions
5. ONGOING TREATMENT (patient on therapy) - treatment modification questions

%s`, question, guidance)
}

// BuildCasePrompt assembles the generation prompt for one MCQ.
func BuildCasePrompt(mcq *models.MCQ, a Analysis) string {
	patient := a.PatientDescription()
	details := ExtractClinicalDetails(mcq.QuestionText)
	investigations := ExtractInvestigations(mcq.QuestionText)
	qt := strings.ToUpper(string(a.QuestionType))

	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL MCQ (ID: %d):\n", mcq.ID)
	fmt.Fprintf(&b, "Question: %s\n", mcq.QuestionText)
	fmt.Fprintf(&b, "Subspecialty: %s\n", mcq.Subspecialty)
	fmt.Fprintf(&b, "Correct Answer: %s\n\n", mcq.CorrectAnswer)

	b.WriteString("ANALYSIS:\n")
	fmt.Fprintf(&b, "- Question Type: %s\n", a.QuestionType)
	fmt.Fprintf(&b, "- Complexity: %s\n", a.Complexity)
	fmt.Fprintf(&b, "- Patient: %s\n", patient)

	b.WriteString(details.PreservationPrompt())
	b.WriteString(investigations.PreservationPrompt())

	b.WriteString("\nCRITICAL TASK: Create a realistic clinical case that teaches the EXACT SAME CONCEPT as this MCQ, starting at the most appropriate clinical phase.\n\n")
	b.WriteString(QuestionTypeInstructions(a.QuestionType, mcq.QuestionText))

	fmt.Fprintf(&b, `

CASE DESIGN REQUIREMENTS:
1. EXACT CONCEPT ALIGNMENT: focus on the same medical concept as the original MCQ
2. PATIENT DEMOGRAPHICS: use exactly %s
3. CLINICAL REASONING MATCH: require the same type of reasoning and lead to the same decision point
4. QUESTION TYPE CONSISTENCY: %s questions must generate %s scenarios
5. AGE DESCRIPTOR PRESERVATION: if the original says "young female", the case says "young female"
6. SOURCE VERIFICATION: include the source MCQ ID %d in your response
7. CLINICAL DETAIL PRESERVATION: follow ALL preservation requirements above

RESPONSE FORMAT (JSON):
{
    "source_mcq_id": %d,
    "clinical_presentation": {
        "chief_complaint": "Main presenting symptom",
        "history_present_illness": "Detailed history of current problem",
        "past_medical_history": ["relevant", "conditions"],
        "medications": ["current", "medications"],
        "physical_examination": "Relevant examination findings",
        "vital_signs": {"bp": "120/80", "hr": "72", "temp": "98.6"}
    },
    "question_prompt": "What is the most appropriate next step?",
    "core_concept_type": "Primary medical concept being tested",
    "learning_objectives": ["objective1", "objective2", "objective3"]
}

IMPORTANT: The source_mcq_id MUST be %d. Generate the case now:
`, patient, qt, qt, mcq.ID, mcq.ID, mcq.ID)

	return b.String()
}

// BuildJudgePrompt asks the model to score how well the case teaches the
// question's concept.
func BuildJudgePrompt(mcq *models.MCQ, c *models.CaseData) string {
	return fmt.Sprintf(`%s as the original MCQ.

ORIGINAL MCQ:
%s
Subspecialty: %s

GENERATED CASE:
Chief Complaint: %s
History: %s
Core Concept: %s

CRITICAL VALIDATION REQUIREMENTS:
1. The case MUST teach the EXACT SAME MEDICAL CONDITION as the original MCQ
2. Specific findings in the MCQ (CT, MRI, etc.) MUST appear in the case
3. Trauma/injury in the MCQ MUST remain trauma/injury in the case
4. Anatomical locations in the MCQ MUST be the same in the case
5. The case should lead to the SAME diagnostic conclusion
6. The QUESTION TYPE must match: management stays management, diagnosis stays diagnosis, investigation stays test selection
7. Clinical signs, lateralization and specific terminology (e.g. "figure of 4", "fencing posture") MUST be kept verbatim

MAJOR MISMATCHES (score 0-20): a different condition, a traumatic injury turned non-traumatic, or a management question turned diagnostic.
DETAIL PRESERVATION FAILURES (score 0-30): specific signs generalized, lateralization dropped, trauma context lost.

Rate the alignment on a scale of 0-100:
- 90-100: Excellent alignment - same condition with appropriate clinical variation
- 70-89: Good alignment - same condition with minor presentation differences
- 50-69: Moderate alignment - related conditions within the same diagnostic category
- 30-49: Acceptable alignment - same subspecialty with educational value
- 20-29: Poor alignment - different conditions but same specialty
- 0-19: Severe mismatch - completely different medical conditions

If the case teaches valuable concepts within the same subspecialty, score at least 40.

Respond with JSON only:
{"score": 85, "issues": [], "explanation": "brief explanation"}
`, judgeMarker, mcq.QuestionText, mcq.Subspecialty,
		c.ClinicalPresentation.ChiefComplaint,
		c.ClinicalPresentation.HistoryPresentIllness,
		c.CoreConceptType)
}
