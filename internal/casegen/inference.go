package casegen

import (
	"regexp"
	"strings"
)

// Inference is a clinical detail implied by a finding in the case text,
// such as the contralateral fencing posture that goes with ipsilateral
// nose rubbing.
type Inference struct {
	Detail     string  `json:"detail"`
	Basis      string  `json:"anatomical_basis"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`

	trigger *regexp.Regexp
}

func inf(trigger, detail, basis string, confidence float64, category string) Inference {
	return Inference{
		Detail:     detail,
		Basis:      basis,
		Confidence: confidence,
		Category:   category,
		trigger:    regexp.MustCompile(`(?i)` + trigger),
	}
}

// inferenceGroup rules are applied in order. Only seizure rules go through
// the contextual checks.
type inferenceGroup struct {
	name       string
	contextual bool
	rules      []Inference
}

var inferenceGroups = []inferenceGroup{
	{name: "seizure", contextual: true, rules: []Inference{
		inf(`(right.{0,20}nose.{0,20}rubbing|nose.{0,20}rubbing.{0,20}right)`,
			"The left arm was noted to be extended in a fencing posture during the tonic phase",
			"Right temporal lobe seizures cause contralateral (left) arm extension due to crossed motor pathways",
			0.9, "seizure_semiology"),
		inf(`(left.{0,20}nose.{0,20}rubbing|nose.{0,20}rubbing.{0,20}left)`,
			"The right arm was noted to be extended in a fencing posture during the tonic phase",
			"Left temporal lobe seizures cause contralateral (right) arm extension due to crossed motor pathways",
			0.9, "seizure_semiology"),
		inf(`figure.{0,10}of.{0,10}4.{0,50}(right|left)`,
			"The dystonic posturing was asymmetric, more prominent on the contralateral side",
			"Figure of 4 sign indicates supplementary motor area involvement with contralateral predominance",
			0.85, "seizure_semiology"),
		inf(`(automatisms|lip.{0,10}smacking|chewing.{0,10}movements|picking.{0,10}movements)`,
			"During these episodes, the patient appeared confused and was unresponsive to verbal commands",
			"Complex automatisms indicate impaired consciousness due to bilateral temporal involvement",
			0.8, "seizure_consciousness"),
		inf(`(speech.{0,10}arrest|unable.{0,10}to.{0,10}speak)`,
			"The patient was unable to follow commands during the episode but could grunt or make sounds",
			"Ictal speech arrest involves dominant hemisphere language areas while preserving vocalization centers",
			0.85, "seizure_language"),
		inf(`(seizure|episode|convulsion).{0,50}(brief|seconds|minutes)`,
			"Following the episode, there was a brief period of confusion lasting 1-2 minutes before full recovery",
			"Post-ictal confusion is expected after complex partial seizures due to temporary hippocampal dysfunction",
			0.75, "seizure_recovery"),
		inf(`(seizure|epilep).{0,100}(management|medication|treatment)`,
			"On examination, the patient is alert and oriented with normal vital signs. Neurological examination is unremarkable with normal mental status, cranial nerves, motor strength, reflexes, and coordination",
			"Normal interictal neurological examination is typical after generalized seizures in patients without underlying structural abnormalities",
			0.9, "examination_findings"),
		inf(`(visual.{0,20}hallucination|colorful|circular.{0,20}objects)`,
			"On examination during interictal periods, the child is alert and cooperative with normal vital signs. Visual fields are intact, and neurological examination including fundoscopy is normal",
			"Benign childhood epilepsy with occipital paroxysms typically has normal interictal examination",
			0.85, "examination_findings"),
		// Adds nothing; when it fires, the recovery rule above is withheld.
		inf(`(visual.{0,20}hallucination|visual.{0,20}phenomena).{0,50}(no.{0,10}loss.{0,10}consciousness|alert|awake)`,
			"",
			"Visual auras without loss of consciousness do not cause post-ictal confusion",
			0.95, "seizure_exclusion"),
	}},
	{name: "neurological", rules: []Inference{
		inf(`(ptosis|miosis|anhidrosis)`,
			"The pupillary asymmetry was more noticeable in dim lighting conditions",
			"Horner's syndrome is more apparent in low light when normal pupil dilation is impaired",
			0.8, "autonomic"),
		inf(`(right.{0,20}hemiparesis|left.{0,20}hemiparesis)`,
			"The weakness followed an upper motor neuron pattern with increased tone and hyperreflexia",
			"Central hemiparesis involves pyramidal tract damage causing spastic weakness pattern",
			0.9, "motor"),
		inf(`(hemianopia|visual.{0,10}field.{0,10}defect)`,
			"The patient was unaware of the visual deficit initially (anosognosia for hemianopia)",
			"Posterior cerebral artery strokes often cause hemianopia with initial lack of awareness",
			0.7, "visual"),
		inf(`(ataxia|coordination.{0,10}problems|dysmetria)`,
			"Gait was wide-based with tendency to fall toward the side of the lesion",
			"Cerebellar lesions cause ipsilateral ataxia with characteristic gait abnormalities",
			0.85, "cerebellar"),
		inf(`(management|treatment).{0,50}(approach|medication|therapy)`,
			"Physical examination reveals stable vital signs and findings consistent with the presenting condition",
			"Management decisions require complete clinical assessment including examination findings",
			0.8, "examination_context"),
		inf(`localization.{0,50}(likely|most)`,
			"Neurological examination demonstrates focal findings consistent with the suspected anatomical location",
			"Localization questions require specific examination findings that correlate with neuroanatomy",
			0.85, "localization_exam"),
	}},
	{name: "vascular", rules: []Inference{
		inf(`(sudden.{0,10}onset|acute.{0,10}stroke)`,
			"The symptoms reached maximum severity within minutes of onset",
			"Vascular events typically have rapid onset due to immediate loss of blood supply",
			0.9, "temporal"),
		inf(`(bilateral.{0,20}weakness|hypotension)`,
			"Weakness was most prominent in the shoulders and hips (man-in-the-barrel syndrome)",
			"Watershed infarcts affect border zones between vascular territories, sparing face and distal extremities",
			0.8, "vascular_pattern"),
		inf(`(pure.{0,10}motor|pure.{0,10}sensory)`,
			"No cortical signs such as aphasia, neglect, or visual field defects were present",
			"Lacunar strokes affect subcortical structures, sparing cortical functions",
			0.85, "stroke_pattern"),
	}},
	{name: "movement", rules: []Inference{
		inf(`(rest.{0,10}tremor|pill.{0,10}rolling)`,
			"The tremor was asymmetric, more prominent on one side, and improved with voluntary movement",
			"Parkinsonian tremor typically begins unilaterally due to asymmetric substantia nigra degeneration",
			0.9, "movement"),
		inf(`(action.{0,10}tremor|postural.{0,10}tremor)`,
			"The tremor was bilateral but asymmetric, and notably improved with alcohol consumption",
			"Essential tremor involves cerebellar circuits and characteristically responds to alcohol",
			0.8, "movement"),
		inf(`(dystonia|dystonic.{0,10}posturing)`,
			"The abnormal posturing was task-specific and could be temporarily relieved by sensory tricks",
			"Dystonia involves basal ganglia circuits and shows characteristic sensory geste patterns",
			0.8, "movement"),
	}},
}

// EnhanceWithInferences adds the details implied by findings in
// presentation. mcqText is only used as context for the seizure rules.
func EnhanceWithInferences(presentation, mcqText string) string {
	out, _ := ApplyInferences(presentation, mcqText)
	return out
}

// ApplyInferences is EnhanceWithInferences that also returns the rules it
// applied. Triggers are matched against the original presentation; the
// duplicate check runs against the text as it grows.
func ApplyInferences(presentation, mcqText string) (string, []Inference) {
	context := strings.ToLower(presentation + " " + mcqText)
	excluded := map[string]bool{}
	for _, rule := range inferenceGroups[0].rules {
		if rule.Detail == "" && rule.trigger.MatchString(presentation) {
			excluded["seizure_recovery"] = true
		}
	}

	text := presentation
	var applied []Inference
	for _, group := range inferenceGroups {
		for _, rule := range group.rules {
			if rule.Detail == "" || excluded[rule.Category] || !rule.trigger.MatchString(presentation) {
				continue
			}
			if group.contextual && !inferenceFits(rule, context) {
				continue
			}
			if inferencePresent(text, rule.Detail) {
				continue
			}
			text = insertSentence(text, rule.Detail)
			applied = append(applied, rule)
		}
	}
	return text, applied
}

var (
	visualAuraTerms = []string{
		"visual hallucination", "colorful", "circular objects", "moving circles",
		"visual field", "visual phenomena", "sees colors", "perceives",
		"occipital", "benign childhood epilepsy", "occipital paroxysms",
		"visual aura", "simple partial", "focal seizure",
	}
	consciousTerms = []string{
		"no loss of consciousness", "alert", "awake", "conscious",
		"no impairment of consciousness", "remains conscious",
		"fully aware", "alert during episode", "responsive during",
	}
	childTerms = []string{
		"7-year-old", "8-year-old", "9-year-old", "10-year-old",
		"child", "childhood", "pediatric", "boy", "girl",
	}
)

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// inferenceFits withholds seizure inferences that contradict the case, for
// example post-ictal confusion after a visual aura with preserved awareness.
// context is the lower-cased presentation plus question text.
func inferenceFits(rule Inference, context string) bool {
	detail := strings.ToLower(rule.Detail)
	visual := containsAny(context, visualAuraTerms...)

	if strings.Contains(detail, "post-ictal confusion") {
		switch {
		case visual && containsAny(context, consciousTerms...):
			return false
		case visual && containsAny(context, childTerms...) && strings.Contains(context, "visual hallucination"):
			return false
		case strings.Contains(context, "visual") && containsAny(context, "brief", "short"):
			return false
		case strings.Contains(context, "occipital") && strings.Contains(context, "visual"):
			return false
		}
	}

	switch rule.Category {
	case "examination_findings":
		if !containsAny(context, "seizure", "epilep") {
			return false
		}
		if strings.Contains(detail, "visual") && !containsAny(context, "visual", "hallucination", "occipital") {
			return false
		}
	case "seizure_recovery":
		if containsAny(context, "child", "boy", "girl", "7-year-old", "8-year-old") && strings.Contains(context, "visual") {
			return false
		}
	case "seizure_consciousness":
		if strings.Contains(context, "visual hallucination") && strings.Contains(detail, "consciousness") {
			return false
		}
	}
	return true
}

var (
	inferenceStopWords = map[string]bool{
		"the": true, "was": true, "were": true, "is": true, "are": true, "a": true, "an": true,
		"and": true, "or": true, "but": true, "in": true, "on": true, "at": true, "to": true,
		"for": true, "of": true, "with": true, "by": true, "during": true, "noted": true, "observed": true,
	}
	nonWordRe = regexp.MustCompile(`[^\w]`)
)

// keyPhrases returns runs of two or more significant words (longer than
// three characters, not stop words) from detail.
func keyPhrases(detail string) []string {
	var phrases, run []string
	flush := func() {
		if len(run) >= 2 {
			phrases = append(phrases, strings.Join(run, " "))
		}
		run = nil
	}
	for _, word := range strings.Fields(strings.ToLower(detail)) {
		clean := nonWordRe.ReplaceAllString(word, "")
		if len(clean) > 3 && !inferenceStopWords[clean] {
			run = append(run, clean)
			continue
		}
		flush()
	}
	flush()
	return phrases
}

// inferencePresent reports whether text already states any key phrase of
// detail.
func inferencePresent(text, detail string) bool {
	lower := strings.ToLower(text)
	for _, p := range keyPhrases(detail) {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// insertSentence puts detail in before the last sentence of text, which is
// usually the question lead-in, or appends it when text is one sentence.
func insertSentence(text, detail string) string {
	detail = strings.TrimRight(detail, ".")
	sentences := strings.Split(text, ". ")
	if len(sentences) < 2 {
		return strings.TrimRight(text, ".") + ". " + detail
	}
	last := len(sentences) - 1
	out := append(append(sentences[:last:last], detail), sentences[last])
	return strings.Join(out, ". ")
}
