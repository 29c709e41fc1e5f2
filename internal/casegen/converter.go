package casegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/neuro-mcq/backend/internal/cache"
	"github.com/neuro-mcq/backend/internal/config"
	"github.com/neuro-mcq/backend/internal/models"
)

const (
	CacheVersion            = "v2_professional"
	LegacyGeneratorVersion  = "v2.0.0_professional"
	professionalMethod      = "professional_v2"
	conversionCacheKeyStart = "mcq_case_conversion_"
)

var (
	ErrNoGenerator      = errors.New("no case generator configured")
	ErrConversionFailed = errors.New("case conversion failed")
)

// ConversionError is returned when every attempt fails. It unwraps to
// ErrConversionFailed.
type ConversionError struct {
	MCQID    int64
	Attempts int
	Reason   string
	DebugLog []models.DebugStep
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("all %d conversion attempts failed for MCQ %d: %s", e.Attempts, e.MCQID, e.Reason)
}

func (e *ConversionError) Unwrap() error { return ErrConversionFailed }

// ConvertOptions controls one conversion. OnStep, when set, receives every
// step as it happens whether or not Debug is on.
type ConvertOptions struct {
	Debug  bool
	OnStep func(models.DebugStep)
}

type cachedConversion struct {
	CaseData     models.ConvertedCase `json:"case_data"`
	CachedAt     time.Time            `json:"cached_at"`
	CacheVersion string               `json:"cache_version"`
}

// Stats describes the converter's configuration.
type Stats struct {
	CacheVersion       string `json:"cache_version"`
	MaxAttempts        int    `json:"max_retry_attempts"`
	GeneratorAvailable bool   `json:"generator_available"`
	Model              string `json:"model"`
}

// Converter turns MCQs into validated cases: analyze, generate, validate,
// retrying up to maxAttempts, with results cached per MCQ.
type Converter struct {
	llm         LLMClient
	model       string
	validator   *Validator
	cache       cache.Cache
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewConverter(llm LLMClient, model string, c cache.Cache, cfg config.ConversionConfig) *Converter {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Converter{
		llm:         llm,
		model:       model,
		validator:   NewValidator(llm, cfg.MinValidationScore),
		cache:       c,
		ttl:         cfg.CacheTTL,
		maxAttempts: attempts,
		now:         time.Now,
	}
}

// CacheKey is the cache entry for an MCQ's converted case.
func CacheKey(mcqID int64) string {
	return fmt.Sprintf("%s%d_%s", conversionCacheKeyStart, mcqID, CacheVersion)
}

type stepLog struct {
	opts  ConvertOptions
	now   func() time.Time
	steps []models.DebugStep
}

func (l *stepLog) add(step string, data interface{}) {
	s := models.DebugStep{Step: step, Data: data, At: l.now()}
	if l.opts.Debug {
		l.steps = append(l.steps, s)
		log.Printf("[casegen] [DEBUG] %s: %v", step, data)
	}
	if l.opts.OnStep != nil {
		l.opts.OnStep(s)
	}
}

// Convert returns the cached case for mcq or generates a new one.
func (cv *Converter) Convert(ctx context.Context, mcq *models.MCQ, opts ConvertOptions) (*models.ConvertedCase, error) {
	steps := &stepLog{opts: opts, now: cv.now}

	if cv.llm == nil {
		steps.add("INITIALIZATION_ERROR", ErrNoGenerator.Error())
		return nil, ErrNoGenerator
	}

	steps.add("CONVERSION_START", map[string]interface{}{
		"mcq_id":           mcq.ID,
		"subspecialty":     mcq.Subspecialty,
		"question_preview": preview(mcq.QuestionText, 100),
	})

	var cached cachedConversion
	if err := cv.cache.Get(ctx, CacheKey(mcq.ID), &cached); err == nil {
		steps.add("CACHE_HIT", "Using cached conversion")
		out := cached.CaseData
		if opts.Debug {
			out.DebugLog = steps.steps
		}
		return &out, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("[casegen] WARN: cache get for MCQ %d: %v", mcq.ID, err)
	}
	steps.add("CACHE_MISS", "No cached conversion found")

	var lastReason string
	for attempt := 1; attempt <= cv.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		steps.add(fmt.Sprintf("ATTEMPT_%d", attempt), fmt.Sprintf("Starting conversion attempt %d/%d", attempt, cv.maxAttempts))

		result, reason, err := cv.attempt(ctx, mcq, attempt, steps)
		if err != nil {
			lastReason = err.Error()
			steps.add(fmt.Sprintf("ATTEMPT_%d_ERROR", attempt), map[string]interface{}{
				"error":      err.Error(),
				"will_retry": attempt < cv.maxAttempts,
			})
			continue
		}
		if result == nil {
			lastReason = "Conversion failed validation: " + reason
			continue
		}

		steps.add("CACHE_STORE", "Storing in cache")
		entry := cachedConversion{CaseData: *result, CachedAt: cv.now(), CacheVersion: CacheVersion}
		if err := cv.cache.Set(ctx, CacheKey(mcq.ID), entry, cv.ttl); err != nil {
			log.Printf("[casegen] WARN: cache set for MCQ %d: %v", mcq.ID, err)
		}
		steps.add("CONVERSION_SUCCESS", map[string]interface{}{
			"mcq_id":           mcq.ID,
			"validation_score": result.ProfessionalValidation.Score,
			"attempts":         attempt,
		})
		if opts.Debug {
			result.DebugLog = steps.steps
		}
		return result, nil
	}

	return nil, &ConversionError{MCQID: mcq.ID, Attempts: cv.maxAttempts, Reason: lastReason, DebugLog: steps.steps}
}

// attempt runs analyze, generate and validate once. A nil case with a nil
// error means validation failed for the returned reason.
func (cv *Converter) attempt(ctx context.Context, mcq *models.MCQ, n int, steps *stepLog) (*models.ConvertedCase, string, error) {
	steps.add("ANALYSIS_START", "Analyzing MCQ content")
	analysis := Analyze(mcq)
	steps.add("ANALYSIS_COMPLETE", map[string]interface{}{
		"question_type":        analysis.QuestionType,
		"complexity":           analysis.Complexity,
		"patient_info":         fmt.Sprintf("%dyo %s", analysis.Patient.Age, analysis.Patient.Gender),
		"age_descriptor":       analysis.AgeDescriptor,
		"specialty_confidence": analysis.SpecialtyConfidence,
	})

	steps.add("GENERATION_START", "Generating case")
	resp, err := cv.llm.Generate(ctx, Prompt{
		System:      CaseSystemPrompt(),
		User:        BuildCasePrompt(mcq, analysis),
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate case: %w", err)
	}
	caseData, err := ParseCase(mcq, analysis, resp.Content, cv.now())
	if err != nil {
		return nil, "", fmt.Errorf("parse case: %w", err)
	}
	steps.add("GENERATION_COMPLETE", map[string]interface{}{
		"core_concept":              caseData.CoreConceptType,
		"learning_objectives_count": len(caseData.LearningObjectives),
		"prompt_tokens":             resp.PromptTokens,
		"output_tokens":             resp.OutputTokens,
	})

	steps.add("VALIDATION_START", "Validating generated case")
	validation := cv.validator.Validate(ctx, mcq, caseData)
	validation.Metadata.Attempt = n
	steps.add("VALIDATION_COMPLETE", map[string]interface{}{
		"status": validation.Status,
		"score":  validation.Score,
		"reason": validation.Summary,
		"issues": validation.AllIssues(),
	})

	if validation.Status != models.ValidationPassed {
		steps.add("VALIDATION_FAILED", map[string]interface{}{
			"reason":     validation.Summary,
			"issues":     validation.AllIssues(),
			"will_retry": n < cv.maxAttempts,
		})
		return nil, validation.Summary, nil
	}

	steps.add("FORMAT_CONVERSION", "Converting to legacy format")
	return cv.legacyFormat(caseData, validation), "", nil
}

// legacyFormat flattens a validated case into the shape clients render.
func (cv *Converter) legacyFormat(c *models.CaseData, v models.CaseValidation) *models.ConvertedCase {
	issues := v.AllIssues()
	critical, warnings := SplitIssues(issues)
	passed := v.Status == models.ValidationPassed

	presentation := EnhanceCase(c.ClinicalPresentation.HistoryPresentIllness, c.Metadata.OriginalMCQText)
	presentation, inferred := ApplyInferences(presentation, c.Metadata.OriginalMCQText)
	if len(inferred) > 0 {
		log.Printf("[casegen] Added %d inferred details to case for MCQ %d", len(inferred), c.SourceMCQID)
	}

	return &models.ConvertedCase{
		SourceMCQID:          c.SourceMCQID,
		ClinicalPresentation: presentation,
		PatientDemographics:  fmt.Sprintf("%d-year-old %s", c.PatientDemographics.Age, c.PatientDemographics.Gender),
		QuestionPrompt:       c.QuestionPrompt,
		CoreConceptType:      c.CoreConceptType,
		Specialty:            c.Specialty,
		QuestionType:         c.QuestionType,
		Difficulty:           c.Complexity,
		ProfessionalValidation: models.ProfessionalValidation{
			Passed:         passed,
			Score:          v.Score,
			Reason:         v.Summary,
			Method:         professionalMethod,
			Issues:         issues,
			HasWarnings:    len(issues) > 0 && passed,
			WarningCount:   len(warnings),
			CriticalIssues: nonNil(critical),
			ValidatedAt:    cv.now(),
		},
		MCQSourceValidated: true,
		GeneratorVersion:   LegacyGeneratorVersion,
		MCQChecksum:        c.Metadata.SourceMCQChecksum,
		GeneratedAt:        c.Metadata.GeneratedAt,
		ExtendedData: models.ExtendedCaseData{
			PatientDemographics:  c.PatientDemographics,
			ClinicalPresentation: c.ClinicalPresentation,
			LearningObjectives:   c.LearningObjectives,
			Validation:           v,
		},
	}
}

// ClearCache drops the cached case for one MCQ.
func (cv *Converter) ClearCache(ctx context.Context, mcqID int64) error {
	if err := cv.cache.Delete(ctx, CacheKey(mcqID)); err != nil {
		return fmt.Errorf("clear case cache for MCQ %d: %w", mcqID, err)
	}
	log.Printf("[casegen] Cache cleared for MCQ %d", mcqID)
	return nil
}

// ClearAllCaches drops every cached case and returns how many were removed.
func (cv *Converter) ClearAllCaches(ctx context.Context) (int, error) {
	keys, err := cv.cache.Keys(ctx, conversionCacheKeyStart)
	if err != nil {
		return 0, fmt.Errorf("list case cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := cv.cache.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("clear case caches: %w", err)
	}
	return len(keys), nil
}

func (cv *Converter) Stats() Stats {
	return Stats{
		CacheVersion:       CacheVersion,
		MaxAttempts:        cv.maxAttempts,
		GeneratorAvailable: cv.llm != nil,
		Model:              cv.model,
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
