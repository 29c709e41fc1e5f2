package casegen

import (
	"fmt"
	"regexp"
	"strings"
)

// Detail is one clinical detail found in a question stem. Label is the
// canonical term (sign name, context name, anatomical location) and Text the
// lower-cased matched text.
type Detail struct {
	Kind    string `json:"type"`
	Label   string `json:"label,omitempty"`
	Text    string `json:"text"`
	Context string `json:"full_context,omitempty"`
}

// ClinicalDetails lists every detail a generated case has to keep.
type ClinicalDetails struct {
	Lateralization  []Detail `json:"lateralization"`
	Signs           []Detail `json:"specific_signs"`
	ClinicalContext []Detail `json:"clinical_context"`
	Temporal        []Detail `json:"temporal_context"`
	Anatomy         []Detail `json:"anatomical_specifics"`
	CriticalPhrases []string `json:"critical_phrases"`
	Investigations  []Detail `json:"investigation_findings"`
	Requirements    []string `json:"preservation_requirements"`
}

type detailPattern struct {
	re    *regexp.Regexp
	kind  string
	label string
}

func dp(expr, kind, label string) detailPattern {
	return detailPattern{re: regexp.MustCompile(`(?i)` + expr), kind: kind, label: label}
}

var lateralizationPatterns = []detailPattern{
	dp(`\bright\s+(side|sided|hand|arm|leg|eye|facial|temporal|frontal|parietal|occipital)`, "right_sided", ""),
	dp(`\bleft\s+(side|sided|hand|arm|leg|eye|facial|temporal|frontal|parietal|occipital)`, "left_sided", ""),
	dp(`\bright\s+(weakness|numbness|tremor|rigidity|dystonia|seizure)`, "right_symptom", ""),
	dp(`\bleft\s+(weakness|numbness|tremor|rigidity|dystonia|seizure)`, "left_symptom", ""),
	dp(`\bunilateral\s+right`, "unilateral_right", ""),
	dp(`\bunilateral\s+left`, "unilateral_left", ""),
	dp(`\bipsilateral`, "ipsilateral", ""),
	dp(`\bcontralateral`, "contralateral", ""),
	dp(`\bbilateral`, "bilateral", ""),
}

var signPatterns = []detailPattern{
	dp(`\bfigure\s+of\s+4\b`, "dystonic_sign", "figure of 4"),
	dp(`\bfencing\s+posture\b`, "seizure_sign", "fencing posture"),
	dp(`\bhorner'?s\s+syndrome\b`, "autonomic_sign", "Horner's syndrome"),
	dp(`\bptosis\b`, "cranial_nerve_sign", "ptosis"),
	dp(`\bmiosis\b`, "pupil_sign", "miosis"),
	dp(`\bmydriasis\b`, "pupil_sign", "mydriasis"),
	dp(`\banisocoria\b`, "pupil_sign", "anisocoria"),
	dp(`\bnystagmus\b`, "ocular_sign", "nystagmus"),
	dp(`\boscillopsia\b`, "visual_sign", "oscillopsia"),
	dp(`\bdiplopia\b`, "visual_sign", "diplopia"),
	dp(`\bhemianopia\b`, "visual_field_sign", "hemianopia"),
	dp(`\bquadrantanopia\b`, "visual_field_sign", "quadrantanopia"),
	dp(`\baphasia\b`, "language_sign", "aphasia"),
	dp(`\bdysarthria\b`, "speech_sign", "dysarthria"),
	dp(`\bdysphagia\b`, "swallowing_sign", "dysphagia"),
	dp(`\bataxia\b`, "coordination_sign", "ataxia"),
	dp(`\bdysmetria\b`, "coordination_sign", "dysmetria"),
	dp(`\bhemiparesis\b`, "motor_sign", "hemiparesis"),
	dp(`\bhemiplegia\b`, "motor_sign", "hemiplegia"),
	dp(`\bquadriparesis\b`, "motor_sign", "quadriparesis"),
	dp(`\bquadriplegia\b`, "motor_sign", "quadriplegia"),
	dp(`\bparaparesis\b`, "motor_sign", "paraparesis"),
	dp(`\bparaplegia\b`, "motor_sign", "paraplegia"),
	dp(`\bhypesthesia\b`, "sensory_sign", "hypesthesia"),
	dp(`\banesthesia\b`, "sensory_sign", "anesthesia"),
	dp(`\bhyperreflexia\b`, "reflex_sign", "hyperreflexia"),
	dp(`\bhyporeflexia\b`, "reflex_sign", "hyporeflexia"),
	dp(`\bareflexia\b`, "reflex_sign", "areflexia"),
	dp(`\bbabinski\s+sign\b`, "pathological_reflex", "Babinski sign"),
	dp(`\bclonus\b`, "pathological_reflex", "clonus"),

	dp(`\bbradykinesia\b`, "movement_sign", "bradykinesia"),
	dp(`\brigidity\b`, "movement_sign", "rigidity"),
	dp(`\btremor\b`, "movement_sign", "tremor"),
	dp(`\bchorea\b`, "movement_sign", "chorea"),
	dp(`\ballism\b`, "movement_sign", "ballism"),
	dp(`\bdystonia\b`, "movement_sign", "dystonia"),
	dp(`\bmyoclonus\b`, "movement_sign", "myoclonus"),

	dp(`\bnose\s+rubbing\b`, "automatism", "nose rubbing"),
	dp(`\blip\s+smacking\b`, "automatism", "lip smacking"),
	dp(`\bchewing\s+movements\b`, "automatism", "chewing movements"),
	dp(`\bfidgeting\b`, "automatism", "fidgeting"),
	dp(`\bpicking\s+movements\b`, "automatism", "picking movements"),
	dp(`\btonic\s+posturing\b`, "seizure_sign", "tonic posturing"),
	dp(`\bclonic\s+jerking\b`, "seizure_sign", "clonic jerking"),
	dp(`\btonic[-\s]clonic\b`, "seizure_sign", "tonic-clonic"),
}

var clinicalContextPatterns = []detailPattern{
	dp(`\btraumatic\s+brain\s+injury\b`, "trauma", "TBI"),
	dp(`\bhead\s+trauma\b`, "trauma", "head trauma"),
	dp(`\bmotorcycle\s+accident\b`, "trauma", "motorcycle accident"),
	dp(`\bcar\s+accident\b`, "trauma", "motor vehicle accident"),
	dp(`\bfall\s+from\s+height\b`, "trauma", "fall from height"),
	dp(`\bsports\s+injury\b`, "trauma", "sports injury"),

	dp(`\bmeningitis\b`, "infectious", "meningitis"),
	dp(`\bencephalitis\b`, "infectious", "encephalitis"),
	dp(`\babscess\b`, "infectious", "abscess"),

	dp(`\bstroke\b`, "vascular", "stroke"),
	dp(`\binfarct\b`, "vascular", "infarct"),
	dp(`\bhemorrhage\b`, "vascular", "hemorrhage"),
	dp(`\baneurysm\b`, "vascular", "aneurysm"),
	dp(`\bav\s+malformation\b`, "vascular", "AV malformation"),

	dp(`\bparkinson\b`, "degenerative", "Parkinson disease"),
	dp(`\balzheimer\b`, "degenerative", "Alzheimer disease"),
	dp(`\bmultiple\s+sclerosis\b`, "demyelinating", "multiple sclerosis"),
}

var temporalPatterns = []detailPattern{
	dp(`\bacute\b`, "acute", ""),
	dp(`\bchronic\b`, "chronic", ""),
	dp(`\bsubacute\b`, "subacute", ""),
	dp(`\bsudden\s+onset\b`, "sudden", ""),
	dp(`\bgradual\s+onset\b`, "gradual", ""),
	dp(`\bprogressive\b`, "progressive", ""),
	dp(`\bintermittent\b`, "intermittent", ""),
	dp(`\bepisodic\b`, "episodic", ""),
	dp(`\b(\d+)\s+years?\s+ago\b`, "years_ago", ""),
	dp(`\b(\d+)\s+months?\s+ago\b`, "months_ago", ""),
	dp(`\b(\d+)\s+weeks?\s+ago\b`, "weeks_ago", ""),
	dp(`\b(\d+)\s+days?\s+ago\b`, "days_ago", ""),
	dp(`\b(\d+)\s+hours?\s+ago\b`, "hours_ago", ""),
}

var anatomyPatterns = []detailPattern{
	dp(`\bfrontal\s+lobe\b`, "brain_region", "frontal lobe"),
	dp(`\btemporal\s+lobe\b`, "brain_region", "temporal lobe"),
	dp(`\bparietal\s+lobe\b`, "brain_region", "parietal lobe"),
	dp(`\boccipital\s+lobe\b`, "brain_region", "occipital lobe"),
	dp(`\bcerebellum\b`, "brain_region", "cerebellum"),
	dp(`\bbrainstem\b`, "brain_region", "brainstem"),
	dp(`\bmidbrain\b`, "brain_region", "midbrain"),
	dp(`\bpons\b`, "brain_region", "pons"),
	dp(`\bmedulla\b`, "brain_region", "medulla"),
	dp(`\bthalamus\b`, "brain_region", "thalamus"),
	dp(`\bhypothalamus\b`, "brain_region", "hypothalamus"),
	dp(`\bbasal\s+ganglia\b`, "brain_region", "basal ganglia"),
	dp(`\bcaudate\b`, "brain_region", "caudate"),
	dp(`\bputamen\b`, "brain_region", "putamen"),
	dp(`\bglobus\s+pallidus\b`, "brain_region", "globus pallidus"),
	dp(`\bsubstantia\s+nigra\b`, "brain_region", "substantia nigra"),

	dp(`\binferior\s+olive\b`, "nucleus", "inferior olive"),
	dp(`\binterstitial\s+nucleus\s+of\s+cajal\b`, "nucleus", "interstitial nucleus of Cajal"),
	dp(`\bdentate\s+nucleus\b`, "nucleus", "dentate nucleus"),
	dp(`\bred\s+nucleus\b`, "nucleus", "red nucleus"),

	dp(`\bcervical\s+spine\b`, "spinal_region", "cervical spine"),
	dp(`\bthoracic\s+spine\b`, "spinal_region", "thoracic spine"),
	dp(`\blumbar\s+spine\b`, "spinal_region", "lumbar spine"),
	dp(`\bsacral\s+spine\b`, "spinal_region", "sacral spine"),
}

var (
	quotedRe          = regexp.MustCompile(`"([^"]*)"`)
	criticalPhraseRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b[A-Z][a-z]+'?s\s+(?:syndrome|disease|sign|test|maneuver)\b`),
		regexp.MustCompile(`(?i)\bfigure\s+of\s+\d+\b`),
		regexp.MustCompile(`(?i)\b\d+[-/]\d+\s+(?:rule|criteria|scale)\b`),
	}
	findingMentionPatterns = []detailPattern{
		dp(`\bMRI\s+shows?\s+([^.]+)`, "MRI", ""),
		dp(`\bCT\s+shows?\s+([^.]+)`, "CT", ""),
		dp(`\bEEG\s+shows?\s+([^.]+)`, "EEG", ""),
		dp(`\bCSF\s+shows?\s+([^.]+)`, "CSF", ""),
		dp(`\bLumbar\s+puncture\s+shows?\s+([^.]+)`, "LP", ""),
	}
)

func matchDetails(text string, patterns []detailPattern, withContext bool) []Detail {
	var out []Detail
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			d := Detail{Kind: p.kind, Label: p.label, Text: strings.ToLower(text[loc[0]:loc[1]])}
			if withContext {
				d.Context = window(text, loc[0], loc[1], 20)
			}
			out = append(out, d)
		}
	}
	return out
}

// window returns text[start-pad:end+pad] clamped to the string.
func window(text string, start, end, pad int) string {
	from, to := start-pad, end+pad
	if from < 0 {
		from = 0
	}
	if to > len(text) {
		to = len(text)
	}
	return strings.ToValidUTF8(text[from:to], "")
}

func criticalPhrases(text string) []string {
	var phrases []string
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		phrases = append(phrases, m[1])
	}
	for _, re := range criticalPhraseRes {
		phrases = append(phrases, re.FindAllString(text, -1)...)
	}
	return uniqueStrings(phrases)
}

func findingMentions(text string) []Detail {
	var out []Detail
	for _, p := range findingMentionPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			out = append(out, Detail{Kind: p.kind, Label: strings.TrimSpace(m[1]), Text: m[0]})
		}
	}
	return out
}

// ExtractClinicalDetails finds the details of a question stem that a case
// generated from it must keep.
func ExtractClinicalDetails(text string) ClinicalDetails {
	d := ClinicalDetails{
		Lateralization:  matchDetails(text, lateralizationPatterns, true),
		Signs:           matchDetails(text, signPatterns, true),
		ClinicalContext: matchDetails(text, clinicalContextPatterns, false),
		Temporal:        matchDetails(text, temporalPatterns, false),
		Anatomy:         matchDetails(text, anatomyPatterns, false),
		CriticalPhrases: criticalPhrases(text),
		Investigations:  findingMentions(text),
	}
	d.Requirements = d.requirements()
	return d
}

func (d ClinicalDetails) requirements() []string {
	var reqs []string
	if len(d.Lateralization) > 0 {
		reqs = append(reqs, "PRESERVE EXACT LATERALIZATION: Must include specific terms: "+joinUnique(d.Lateralization, detailText))
	}
	if len(d.Signs) > 0 {
		reqs = append(reqs, "PRESERVE SPECIFIC CLINICAL SIGNS: Must include exact terms: "+joinUnique(d.Signs, detailLabel))
	}
	if len(d.ClinicalContext) > 0 {
		reqs = append(reqs, "PRESERVE CLINICAL CONTEXT: Must maintain context: "+joinUnique(d.ClinicalContext, detailLabel))
	}
	if len(d.Temporal) > 0 {
		reqs = append(reqs, "PRESERVE TEMPORAL CONTEXT: Must include timing: "+joinUnique(d.Temporal, detailText))
	}
	if len(d.Anatomy) > 0 {
		reqs = append(reqs, "PRESERVE ANATOMICAL SPECIFICS: Must include: "+joinUnique(d.Anatomy, detailLabel))
	}
	if len(d.CriticalPhrases) > 0 {
		reqs = append(reqs, "PRESERVE CRITICAL PHRASES: Must include exactly: "+strings.Join(d.CriticalPhrases, ", "))
	}
	if len(d.Investigations) > 0 {
		reqs = append(reqs, "PRESERVE INVESTIGATION FINDINGS: Must include: "+joinUnique(d.Investigations, func(x Detail) string { return x.Kind }))
	}
	return reqs
}

func detailText(d Detail) string  { return d.Text }
func detailLabel(d Detail) string { return d.Label }

func joinUnique(details []Detail, field func(Detail) string) string {
	vals := make([]string, len(details))
	for i, d := range details {
		vals[i] = field(d)
	}
	return strings.Join(uniqueStrings(vals), ", ")
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// PreservationPrompt renders the details as instructions for the generator.
func (d ClinicalDetails) PreservationPrompt() string {
	var b strings.Builder
	b.WriteString("\nCRITICAL CLINICAL DETAIL PRESERVATION REQUIREMENTS:\n\n")

	if len(d.Requirements) > 0 {
		b.WriteString("MANDATORY PRESERVATION REQUIREMENTS:\n")
		for _, r := range d.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(d.Lateralization) > 0 {
		b.WriteString("LATERALIZATION REQUIREMENTS:\n")
		for _, l := range d.Lateralization {
			fmt.Fprintf(&b, "- Must preserve exact lateralization: '%s' in context: '%s'\n", l.Text, l.Context)
		}
		b.WriteString("\n")
	}
	if len(d.Signs) > 0 {
		b.WriteString("SPECIFIC CLINICAL SIGNS REQUIREMENTS:\n")
		for _, s := range d.Signs {
			fmt.Fprintf(&b, "- Must include exact term: '%s' (original: '%s')\n", s.Label, s.Text)
		}
		b.WriteString("\n")
	}
	if len(d.ClinicalContext) > 0 {
		b.WriteString("CLINICAL CONTEXT REQUIREMENTS:\n")
		for _, c := range d.ClinicalContext {
			fmt.Fprintf(&b, "- Must maintain %s context: %s\n", c.Kind, c.Label)
		}
		b.WriteString("\n")
	}
	if len(d.Temporal) > 0 {
		b.WriteString("TEMPORAL CONTEXT REQUIREMENTS:\n")
		for _, t := range d.Temporal {
			fmt.Fprintf(&b, "- Must preserve timing: '%s'\n", t.Text)
		}
		b.WriteString("\n")
	}
	if len(d.Anatomy) > 0 {
		b.WriteString("ANATOMICAL SPECIFICITY REQUIREMENTS:\n")
		for _, a := range d.Anatomy {
			fmt.Fprintf(&b, "- Must include specific location: '%s'\n", a.Label)
		}
		b.WriteString("\n")
	}
	if len(d.CriticalPhrases) > 0 {
		b.WriteString("CRITICAL PHRASES REQUIREMENTS:\n")
		for _, p := range d.CriticalPhrases {
			fmt.Fprintf(&b, "- Must include exact phrase: '%s'\n", p)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
VALIDATION REQUIREMENTS:
- The generated case MUST be validated against these preservation requirements
- Any missing critical details will result in case rejection
- All specific medical terminology must be preserved exactly
- Lateralization information is critical and cannot be generalized
- Clinical context (trauma vs non-trauma, acute vs chronic) must be maintained

FAILURE TO PRESERVE THESE DETAILS WILL COMPROMISE EDUCATIONAL INTEGRITY.
`)
	return b.String()
}

// MissingDetails compares the details with the case text and returns one
// issue per missing lateralization, sign or phrase, plus one when none of
// the clinical contexts appear.
func (d ClinicalDetails) MissingDetails(caseText string) []string {
	lower := strings.ToLower(caseText)
	var issues []string
	for _, l := range d.Lateralization {
		if !strings.Contains(lower, l.Text) {
			issues = append(issues, fmt.Sprintf("Missing critical lateralization: '%s'", l.Text))
		}
	}
	for _, s := range d.Signs {
		if !strings.Contains(lower, strings.ToLower(s.Label)) {
			issues = append(issues, fmt.Sprintf("Missing specific clinical sign: '%s'", s.Label))
		}
	}
	for _, p := range d.CriticalPhrases {
		if !strings.Contains(lower, strings.ToLower(p)) {
			issues = append(issues, fmt.Sprintf("Missing critical phrase: '%s'", p))
		}
	}
	if len(d.ClinicalContext) > 0 {
		var names []string
		for _, c := range d.ClinicalContext {
			if strings.Contains(lower, strings.ToLower(c.Label)) {
				return issues
			}
			names = append(names, c.Label)
		}
		issues = append(issues, "Missing clinical context: "+strings.Join(names, ", "))
	}
	return issues
}
