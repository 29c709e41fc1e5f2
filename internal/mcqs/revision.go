package mcqs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/tidwall/gjson"
)

// ErrNoLLM is returned by the revision methods when no model is configured.
var ErrNoLLM = errors.New("no language model configured")

// RevisionError carries the reasons the last model draft was rejected.
type RevisionError struct {
	Field  string
	Issues []string
}

func (e *RevisionError) Error() string {
	return fmt.Sprintf("%s revision rejected: %s", e.Field, strings.Join(e.Issues, "; "))
}

const (
	reviseAttempts     = 3
	instructionLimit   = 800
	minOptionChars     = 12
	minOptionBodyChars = 5
	questionMinWords   = 45
	questionMinChars   = 220
	questionSimilarity = 0.92
)

// SetLLM enables model-assisted revision of questions, options and
// explanations.
func (s *Service) SetLLM(llm casegen.LLMClient) {
	s.llm = llm
}

// ── Validation ─────────────────────────────────────────

var (
	spaceRe        = regexp.MustCompile(`\s+`)
	wordRe         = regexp.MustCompile(`\w+`)
	controlRe      = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	optionLabelRe  = regexp.MustCompile(`(?im)^\s*([A-D])[\)\.\-\:]\s*(.+)`)
	wantsOptionsRe = regexp.MustCompile(`(?i)\b(multiple[-\s]?choice|answer choices?|options?)\b`)
	forbiddenRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)do not (?:mention|include|use|reference)\s+([^.;\n]+)`),
		regexp.MustCompile(`(?i)avoid\s+([^.;\n]+)`),
		regexp.MustCompile(`(?i)without (?:mentioning|including|referencing)\s+([^.;\n]+)`),
		regexp.MustCompile(`(?i)never (?:mention|include)\s+([^.;\n]+)`),
	}
	termSplitRe = regexp.MustCompile(`,|/|;|\band\b|\bor\b`)
	termCleanRe = regexp.MustCompile(`[^a-z0-9\s/-]`)
)

// Pronouns and references to the item itself are never forbidden terms.
var forbiddenExcluded = map[string]bool{
	"question stem": true, "stem": true, "question": true, "prompt": true,
	"this question": true, "it": true, "them": true, "that": true,
	"these": true, "any mention": true, "any references": true,
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))
}

func wordCount(s string) int {
	return len(wordRe.FindAllString(s, -1))
}

// PrepareInstructions tidies editor instructions: control characters and
// blank lines go, runs of spaces collapse, and the text is cut near
// instructionLimit on a word boundary.
func PrepareInstructions(text string) string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)
	text = controlRe.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	out := strings.Join(lines, "\n")
	if len(out) <= instructionLimit {
		return out
	}
	cut := strings.TrimRight(truncate(out, instructionLimit), " ")
	if i := strings.LastIndex(cut, " "); i > instructionLimit*6/10 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// ForbiddenTerms pulls the phrases an editor asked to keep out of the text,
// such as "do not mention steroids or IVIG".
func ForbiddenTerms(instructions string) []string {
	seen := map[string]bool{}
	for _, re := range forbiddenRes {
		for _, m := range re.FindAllStringSubmatch(instructions, -1) {
			for _, fragment := range termSplitRe.Split(strings.ToLower(m[1]), -1) {
				term := normalizeText(termCleanRe.ReplaceAllString(fragment, " "))
				if len(term) < 3 || forbiddenExcluded[term] {
					continue
				}
				seen[term] = true
			}
		}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// ForbiddenHits returns the terms that occur in text, ignoring case and
// spacing.
func ForbiddenHits(text string, terms []string) []string {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil
	}
	var hits []string
	for _, t := range terms {
		if t = normalizeText(t); t != "" && strings.Contains(normalized, t) {
			hits = append(hits, t)
		}
	}
	sort.Strings(hits)
	return hits
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OptionDraft describes what generated options must satisfy.
type OptionDraft struct {
	Expected      []string
	Existing      map[string]string
	CorrectLetter string
	CorrectText   string
	Forbidden     []string
}

// Check validates generated options: the expected letters and no others,
// credible length, no duplicates of each other or of locked options, no
// distractor restating the correct answer, and no forbidden terms.
func (d OptionDraft) Check(generated map[string]string) []string {
	var issues []string
	expected := map[string]bool{}
	for _, l := range d.Expected {
		expected[strings.ToUpper(l)] = true
	}
	provided := map[string]bool{}
	for l := range generated {
		provided[strings.ToUpper(l)] = true
	}

	missing, unexpected := map[string]bool{}, map[string]bool{}
	for l := range expected {
		if !provided[l] {
			missing[l] = true
		}
	}
	for l := range provided {
		if !expected[l] {
			unexpected[l] = true
		}
	}
	if len(missing) > 0 {
		issues = append(issues, "Missing option keys: "+strings.Join(sortedKeys(missing), ", "))
	}
	if len(unexpected) > 0 {
		issues = append(issues, "Unexpected option keys returned: "+strings.Join(sortedKeys(unexpected), ", "))
	}

	existing := map[string]string{}
	for l, text := range d.Existing {
		if n := normalizeText(text); n != "" {
			existing[n] = strings.ToUpper(l)
		}
	}
	correctLetter := strings.ToUpper(d.CorrectLetter)
	correctText := normalizeText(d.CorrectText)

	letters := make([]string, 0, len(generated))
	for l := range generated {
		letters = append(letters, l)
	}
	sort.Strings(letters)

	seen := map[string]string{}
	for _, key := range letters {
		letter := strings.ToUpper(key)
		candidate := strings.TrimSpace(generated[key])
		if candidate == "" {
			issues = append(issues, fmt.Sprintf("Option %s is empty.", letter))
			continue
		}
		if utf8.RuneCountInString(candidate) < minOptionChars {
			issues = append(issues, fmt.Sprintf("Option %s is too short to be credible.", letter))
		}
		n := normalizeText(candidate)
		if prev, ok := seen[n]; ok && prev != letter {
			issues = append(issues, fmt.Sprintf("Option %s duplicates option %s.", letter, prev))
		} else {
			seen[n] = letter
		}
		if match, ok := existing[n]; ok && match != letter {
			issues = append(issues, fmt.Sprintf("Option %s duplicates existing option %s.", letter, match))
		}
		if correctLetter != "" && n == correctText && letter != correctLetter {
			issues = append(issues, fmt.Sprintf("Option %s matches the correct answer text.", letter))
		}
		if hits := ForbiddenHits(candidate, d.Forbidden); len(hits) > 0 {
			issues = append(issues, fmt.Sprintf("Option %s includes forbidden terms: %s", letter, strings.Join(hits, ", ")))
		}
	}
	return issues
}

// optionLabels reads "A) text" style lines out of a question.
func optionLabels(text string) map[string]string {
	out := map[string]string{}
	for _, m := range optionLabelRe.FindAllStringSubmatch(text, -1) {
		if body := strings.TrimSpace(m[2]); body != "" {
			out[strings.ToUpper(m[1])] = body
		}
	}
	return out
}

// Similarity is the difflib ratio of the normalized texts, 1 for identical.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(normalizeText(a), ""), strings.Split(normalizeText(b), ""))
	return m.Ratio()
}

// CheckQuestionRevision validates a rewritten stem. With wantsOptions the
// revision must carry exactly four labelled options A-D; without it, none.
func CheckQuestionRevision(original, revised string, wantsOptions bool, forbidden []string) []string {
	normalized := normalizeText(revised)
	if normalized == "" {
		return []string{"Model returned an empty question."}
	}

	var issues []string
	if n := utf8.RuneCountInString(strings.TrimSpace(revised)); n < questionMinChars {
		issues = append(issues, fmt.Sprintf("Revised question is too short (%d chars); needs at least %d.", n, questionMinChars))
	}
	if n := wordCount(revised); n < questionMinWords {
		issues = append(issues, fmt.Sprintf("Revised question has too few words (%d); needs at least %d.", n, questionMinWords))
	}

	if orig := normalizeText(original); orig != "" && orig == normalized {
		issues = append(issues, "Revised question is identical to the original.")
	} else if sim := Similarity(original, revised); sim >= questionSimilarity {
		issues = append(issues, fmt.Sprintf("Revised question is too similar to the original (similarity %.2f).", sim))
	}

	labels := optionLabels(revised)
	if wantsOptions {
		if len(labels) != 4 {
			issues = append(issues, "Multiple-choice request requires exactly four answer options (A-D).")
		} else {
			for _, l := range []string{"A", "B", "C", "D"} {
				if utf8.RuneCountInString(labels[l]) < minOptionBodyChars {
					issues = append(issues, fmt.Sprintf("Option %s is too short to be plausible.", l))
				}
			}
		}
	} else if len(labels) > 0 {
		issues = append(issues, "Question stem mode should not include labelled answer options.")
	}

	if hits := ForbiddenHits(revised, forbidden); len(hits) > 0 {
		issues = append(issues, "Question includes prohibited terms: "+strings.Join(hits, ", "))
	}
	return issues
}

// CheckExplanation validates a generated explanation. It must be at least
// 85% as long as the one it replaces, and never under 600 characters and
// 120 words.
func CheckExplanation(text, reference string, forbidden []string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{"Model returned empty explanation text."}
	}
	minChars := 750
	if baseline := utf8.RuneCountInString(strings.TrimSpace(reference)); baseline > 0 {
		minChars = max(600, baseline*85/100)
	}
	minWords := max(120, minChars/5)

	var issues []string
	if n := utf8.RuneCountInString(text); n < minChars {
		issues = append(issues, fmt.Sprintf("Explanation too short (%d chars); need at least %d.", n, minChars))
	}
	if n := wordCount(text); n < minWords {
		issues = append(issues, fmt.Sprintf("Explanation too brief (%d words); need at least %d.", n, minWords))
	}
	if hits := ForbiddenHits(text, forbidden); len(hits) > 0 {
		issues = append(issues, "Explanation includes forbidden terms: "+strings.Join(hits, ", "))
	}
	return issues
}

// ── Revision ───────────────────────────────────────────

// revise asks the model for a JSON draft until check accepts one. Each retry
// carries the reasons the previous draft was rejected.
func (s *Service) revise(ctx context.Context, mcqID int64, field string, p casegen.Prompt, check func(raw string) []string) (int, error) {
	if s.llm == nil {
		return 0, ErrNoLLM
	}
	base := p.User
	var issues []string
	for attempt := 1; attempt <= reviseAttempts; attempt++ {
		if len(issues) > 0 {
			p.User = base + "\n\n# PREVIOUS ATTEMPT REJECTED\n- " + strings.Join(issues, "\n- ") +
				"\nReturn only the requested JSON with these problems fixed."
		}
		resp, err := s.llm.Generate(ctx, p)
		if err != nil {
			return attempt, fmt.Errorf("revise %s for MCQ %d: %w", field, mcqID, err)
		}
		raw, err := casegen.ExtractJSON(resp.Content)
		if err != nil || !gjson.Valid(raw) {
			issues = []string{"Invalid JSON output: " + clip(resp.Content, 160)}
		} else {
			issues = check(raw)
		}
		if len(issues) == 0 {
			log.Printf("[mcqs] Revised %s for MCQ %d on attempt %d", field, mcqID, attempt)
			return attempt, nil
		}
		log.Printf("[mcqs] WARN: %s draft for MCQ %d rejected (attempt %d/%d): %s",
			field, mcqID, attempt, reviseAttempts, strings.Join(issues, "; "))
	}
	return reviseAttempts, &RevisionError{Field: field, Issues: issues}
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "[empty]"
	case len(s) > n:
		return truncate(s, n) + "..."
	}
	return s
}

func promptSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "\n# %s\n%s\n", title, body)
}

func bullets(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "- " + strings.Join(lines, "\n- ")
}

func optionLines(opts models.Options) string {
	lines := make([]string, len(opts))
	for i, o := range opts {
		lines[i] = o.Letter + ") " + o.Text
	}
	return strings.Join(lines, "\n")
}

// revisionLetters is A-D plus any further letters the MCQ already uses.
func revisionLetters(opts models.Options) []string {
	set := map[string]bool{"A": true, "B": true, "C": true, "D": true}
	for _, l := range opts.Letters() {
		set[l] = true
	}
	return sortedKeys(set)
}

const optionsSchemaHint = "Respond with a single JSON object mapping each requested option letter to its text, for example {\"C\": \"...\", \"D\": \"...\"}."

// ReviseOptions drafts answer options with the model. Mode "fill" writes
// only the missing options among A-D; "improve" rewrites every distractor
// and keeps the correct answer's text.
func (s *Service) ReviseOptions(ctx context.Context, id int64, req models.ReviseRequest) (*models.RevisionResult, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "fill"
	}
	if mode != "fill" && mode != "improve" {
		return nil, fmt.Errorf("%w: options mode must be fill or improve", ErrInvalidInput)
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	instructions := PrepareInstructions(req.Instructions)
	res := &models.RevisionResult{MCQID: id, Field: "options", Mode: mode, Forbidden: ForbiddenTerms(instructions)}

	current := m.Options.Dict()
	draft := OptionDraft{Existing: map[string]string{}, Forbidden: res.Forbidden}
	correct := m.CorrectLetters()
	if len(correct) == 1 {
		draft.CorrectLetter, draft.CorrectText = correct[0], current[correct[0]]
	}

	var system string
	requirements := []string{
		"Each distractor must be clinically plausible but ultimately incorrect.",
		"Target common neurology board exam misconceptions.",
	}
	switch mode {
	case "fill":
		for _, l := range revisionLetters(m.Options) {
			if strings.TrimSpace(current[l]) == "" {
				draft.Expected = append(draft.Expected, l)
			} else {
				draft.Existing[l] = current[l]
			}
		}
		if len(draft.Expected) == 0 {
			res.Options = m.Options
			return res, nil
		}
		system = "You are a neurology board exam item writer. Generate only the missing distractor options and leave existing options untouched."
		requirements = append([]string{"Generate only the missing options listed above.", "Match the tone, length and complexity of the existing options."}, requirements...)
		requirements = append(requirements, "Do not reveal or contradict the correct answer.")
	case "improve":
		draft.Expected = revisionLetters(m.Options)
		for _, l := range correct {
			if t := strings.TrimSpace(current[l]); t != "" {
				draft.Existing[l] = t
			}
		}
		system = "You are a neurology board exam content specialist. Refine the answer choices so every distractor is educational and clinically grounded while the correct answer stays unchanged."
		requirements = append([]string{"Keep the correct answer text exactly the same.", "Give each distractor a distinct misconception or differential diagnosis."}, requirements...)
		requirements = append(requirements, "Keep length, tone and specificity comparable across options.")
	}
	if len(res.Forbidden) > 0 {
		requirements = append(requirements, "Avoid every forbidden term exactly as listed.")
	}

	var b strings.Builder
	promptSection(&b, "QUESTION STEM", m.QuestionText)
	promptSection(&b, "CURRENT OPTIONS", optionLines(m.Options))
	promptSection(&b, "OPTIONS TO WRITE", strings.Join(draft.Expected, ", "))
	promptSection(&b, "CORRECT ANSWER (REFERENCE ONLY)", strings.Join(correct, ", "))
	promptSection(&b, "SUBSPECIALTY", m.Subspecialty)
	promptSection(&b, "REQUIREMENTS", bullets(requirements))
	promptSection(&b, "CONTEXT FROM EXPLANATION", truncate(strings.TrimSpace(explanation.Text(m)), 600))
	promptSection(&b, "EDITOR INSTRUCTIONS", instructions)
	promptSection(&b, "FORBIDDEN TERMS", bullets(res.Forbidden))
	b.WriteString("\n" + optionsSchemaHint)

	generated := map[string]string{}
	check := func(raw string) []string {
		generated = map[string]string{}
		gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
			generated[strings.ToUpper(strings.TrimSpace(k.String()))] = strings.TrimSpace(v.String())
			return true
		})
		return draft.Check(generated)
	}
	prompt := casegen.Prompt{System: system, User: b.String(), Temperature: 0.55, MaxTokens: 600}
	if res.Attempts, err = s.revise(ctx, id, "options", prompt, check); err != nil {
		return nil, err
	}

	final := map[string]string{}
	if mode == "fill" {
		for l, t := range current {
			if strings.TrimSpace(t) != "" {
				final[l] = t
			}
		}
	}
	for l, t := range generated {
		final[l] = t
	}
	if mode == "improve" {
		for l, t := range draft.Existing {
			final[l] = t
		}
	}
	res.Options = models.OptionsFromMap(final)

	if req.Apply {
		if _, err := s.update(ctx, id, func(m *models.MCQ) error {
			m.Options = res.Options
			m.CorrectAnswerText = m.AnswerText()
			return importer.Validate(m)
		}); err != nil {
			return nil, err
		}
		res.Applied = true
		log.Printf("[mcqs] Revised options applied to MCQ %d (%s)", id, mode)
	}
	return res, nil
}

// ReviseQuestion rewrites the question stem. When the instructions ask for
// options, the draft must also carry four options A-D, which replace the
// current ones on apply.
func (s *Service) ReviseQuestion(ctx context.Context, id int64, req models.ReviseRequest) (*models.RevisionResult, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	instructions := PrepareInstructions(req.Instructions)
	wantsOptions := wantsOptionsRe.MatchString(instructions)
	res := &models.RevisionResult{MCQID: id, Field: "question", Forbidden: ForbiddenTerms(instructions)}

	requirements := []string{
		"Keep the tested concept and the correct answer unchanged.",
		fmt.Sprintf("Write a complete clinical vignette of at least %d words.", questionMinWords),
		"Use fresh wording rather than lightly editing the original.",
	}
	hint := `Respond with a single JSON object: {"stem": "..."}.`
	if wantsOptions {
		hint = `Respond with a single JSON object: {"stem": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}}.`
	} else {
		requirements = append(requirements, "Do not include labelled answer options in the stem.")
	}
	if len(res.Forbidden) > 0 {
		requirements = append(requirements, "Avoid every forbidden term exactly as listed.")
	}

	var b strings.Builder
	promptSection(&b, "CURRENT QUESTION", m.QuestionText)
	promptSection(&b, "ANSWER CHOICES", optionLines(m.Options))
	promptSection(&b, "CORRECT ANSWER", m.CorrectAnswer)
	promptSection(&b, "SUBSPECIALTY", m.Subspecialty)
	promptSection(&b, "REQUIREMENTS", bullets(requirements))
	promptSection(&b, "EDITOR INSTRUCTIONS", instructions)
	promptSection(&b, "FORBIDDEN TERMS", bullets(res.Forbidden))
	b.WriteString("\n" + hint)

	var stem string
	var opts models.Options
	check := func(raw string) []string {
		stem = strings.TrimSpace(gjson.Get(raw, "stem").String())
		opts = nil
		revised := stem
		if wantsOptions {
			parsed := map[string]string{}
			gjson.Get(raw, "options").ForEach(func(k, v gjson.Result) bool {
				parsed[k.String()] = strings.TrimSpace(v.String())
				return true
			})
			opts = models.OptionsFromMap(parsed)
			if len(opts) > 0 {
				revised += "\n" + optionLines(opts)
			}
		}
		return CheckQuestionRevision(m.QuestionText, revised, wantsOptions, res.Forbidden)
	}
	prompt := casegen.Prompt{
		System:      "You are a neurology board exam editor. Rewrite the question so it reads as a polished board-style vignette.",
		User:        b.String(),
		Temperature: 0.6,
		MaxTokens:   1200,
	}
	if res.Attempts, err = s.revise(ctx, id, "question", prompt, check); err != nil {
		return nil, err
	}
	res.QuestionText, res.Options = stem, opts

	if req.Apply {
		if _, err := s.update(ctx, id, func(m *models.MCQ) error {
			m.QuestionText = stem
			if len(opts) > 0 {
				m.Options = opts
				m.CorrectAnswerText = m.AnswerText()
			}
			return importer.Validate(m)
		}); err != nil {
			return nil, err
		}
		res.Applied = true
		log.Printf("[mcqs] Revised question applied to MCQ %d", id)
	}
	return res, nil
}

// ReviseExplanation drafts a unified explanation. Mode "enhance" builds on
// the current explanation; "rewrite" starts from the question alone.
func (s *Service) ReviseExplanation(ctx context.Context, id int64, req models.ReviseRequest) (*models.RevisionResult, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "enhance"
	}
	if mode != "enhance" && mode != "rewrite" {
		return nil, fmt.Errorf("%w: explanation mode must be enhance or rewrite", ErrInvalidInput)
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	instructions := PrepareInstructions(req.Instructions)
	res := &models.RevisionResult{MCQID: id, Field: "explanation", Mode: mode, Forbidden: ForbiddenTerms(instructions)}

	reference := ""
	if mode == "enhance" {
		reference = strings.TrimSpace(explanation.Text(m))
	}

	var b strings.Builder
	promptSection(&b, "QUESTION", m.QuestionText)
	promptSection(&b, "OPTIONS", optionLines(m.Options))
	promptSection(&b, "CORRECT ANSWER", m.CorrectAnswer)
	promptSection(&b, "SUBSPECIALTY", m.Subspecialty)
	promptSection(&b, "CURRENT EXPLANATION", reference)
	promptSection(&b, "REQUIREMENTS", bullets([]string{
		"Explain why the correct answer is right and why each distractor is wrong.",
		"Cover the underlying pathophysiology and the key clinical pearls.",
		"Write at least 120 words of continuous prose.",
	}))
	promptSection(&b, "EDITOR INSTRUCTIONS", instructions)
	promptSection(&b, "FORBIDDEN TERMS", bullets(res.Forbidden))
	b.WriteString("\n" + `Respond with a single JSON object: {"explanation": "..."}.`)

	var text string
	check := func(raw string) []string {
		text = strings.TrimSpace(gjson.Get(raw, "explanation").String())
		return CheckExplanation(text, reference, res.Forbidden)
	}
	prompt := casegen.Prompt{
		System:      "You are a neurology educator writing board review explanations. Always return valid JSON.",
		User:        b.String(),
		Temperature: 0.5,
		MaxTokens:   2500,
	}
	if res.Attempts, err = s.revise(ctx, id, "explanation", prompt, check); err != nil {
		return nil, err
	}
	res.Explanation = text

	if req.Apply {
		if _, err := s.update(ctx, id, func(m *models.MCQ) error {
			m.UnifiedExplanation = text
			return nil
		}); err != nil {
			return nil, err
		}
		res.Applied = true
		log.Printf("[mcqs] Revised explanation applied to MCQ %d (%s)", id, mode)
	}
	return res, nil
}
