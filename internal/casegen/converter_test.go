package casegen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neuro-mcq/backend/internal/cache"
	"github.com/neuro-mcq/backend/internal/config"
	"github.com/neuro-mcq/backend/internal/models"
)

var testConversion = config.ConversionConfig{
	MinValidationScore: 70,
	MaxAttempts:        3,
	CacheTTL:           time.Hour,
}

func countingMock(score float64) *stubLLM {
	mock := &MockClient{Score: score}
	return &stubLLM{fn: func(p Prompt) (*LLMResponse, error) {
		return mock.Generate(context.Background(), p)
	}}
}

func stepNames(steps []models.DebugStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Step
	}
	return out
}

func TestConvert_MockSucceeds(t *testing.T) {
	llm := countingMock(85)
	cv := NewConverter(llm, "mock", cache.NewMemoryCache(), testConversion)
	mcq := testMCQ()

	out, err := cv.Convert(context.Background(), mcq, ConvertOptions{Debug: true})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.SourceMCQID != 42 || out.PatientDemographics != "34-year-old female" {
		t.Errorf("unexpected case %d %q", out.SourceMCQID, out.PatientDemographics)
	}
	pv := out.ProfessionalValidation
	if !pv.Passed || pv.Score != 94 || pv.Method != "professional_v2" || pv.HasWarnings {
		t.Errorf("professional validation = %+v", pv)
	}
	if !strings.Contains(out.ClinicalPresentation, mcq.QuestionText) {
		t.Error("clinical presentation should keep the stem")
	}
	if out.GeneratorVersion != LegacyGeneratorVersion || out.MCQChecksum != Checksum(mcq) {
		t.Errorf("version/checksum = %s %s", out.GeneratorVersion, out.MCQChecksum)
	}
	if out.ExtendedData.Validation.Metadata.Attempt != 1 {
		t.Errorf("expected first attempt, got %d", out.ExtendedData.Validation.Metadata.Attempt)
	}
	if llm.calls != 2 {
		t.Errorf("expected generation and judge calls, got %d", llm.calls)
	}

	names := stepNames(out.DebugLog)
	if len(names) == 0 || names[0] != "CONVERSION_START" || names[len(names)-1] != "CONVERSION_SUCCESS" {
		t.Errorf("debug log = %v", names)
	}
}

func TestConvert_CacheHit(t *testing.T) {
	llm := countingMock(85)
	cv := NewConverter(llm, "mock", cache.NewMemoryCache(), testConversion)
	mcq := testMCQ()

	if _, err := cv.Convert(context.Background(), mcq, ConvertOptions{}); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	var steps []string
	out, err := cv.Convert(context.Background(), mcq, ConvertOptions{
		OnStep: func(s models.DebugStep) { steps = append(steps, s.Step) },
	})
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if llm.calls != 2 {
		t.Errorf("cache hit should not call the model, got %d calls", llm.calls)
	}
	if out.DebugLog != nil {
		t.Error("debug log should be empty without Debug")
	}
	if len(steps) != 2 || steps[1] != "CACHE_HIT" {
		t.Errorf("steps = %v", steps)
	}
}

func TestConvert_ParseFailureExhaustsAttempts(t *testing.T) {
	llm := &stubLLM{fn: func(Prompt) (*LLMResponse, error) {
		return &LLMResponse{Content: "I am unable to write this case."}, nil
	}}
	cv := NewConverter(llm, "stub", cache.NewMemoryCache(), testConversion)

	_, err := cv.Convert(context.Background(), testMCQ(), ConvertOptions{Debug: true})
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if convErr.Attempts != 3 || llm.calls != 3 {
		t.Errorf("attempts = %d, calls = %d", convErr.Attempts, llm.calls)
	}
	if !strings.Contains(convErr.Reason, ErrNoJSON.Error()) {
		t.Errorf("reason = %q", convErr.Reason)
	}
	names := stepNames(convErr.DebugLog)
	if names[len(names)-1] != "ATTEMPT_3_ERROR" {
		t.Errorf("debug log = %v", names)
	}
}

func TestConvert_ValidationFailureRetries(t *testing.T) {
	llm := countingMock(0)
	c := cache.NewMemoryCache()
	cv := NewConverter(llm, "mock", c, testConversion)

	_, err := cv.Convert(context.Background(), testMCQ(), ConvertOptions{})
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected *ConversionError, got %v", err)
	}
	if llm.calls != 6 {
		t.Errorf("expected 3 generate and 3 judge calls, got %d", llm.calls)
	}
	if !strings.HasPrefix(convErr.Reason, "Conversion failed validation: Usable with warnings case quality (score: 60.0/100)") {
		t.Errorf("reason = %q", convErr.Reason)
	}
	if keys, _ := c.Keys(context.Background(), conversionCacheKeyStart); len(keys) != 0 {
		t.Errorf("failed conversions must not be cached, got %v", keys)
	}
}

func TestConvert_NoGenerator(t *testing.T) {
	cv := NewConverter(nil, "", cache.NewMemoryCache(), testConversion)
	if _, err := cv.Convert(context.Background(), testMCQ(), ConvertOptions{}); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("expected ErrNoGenerator, got %v", err)
	}
	if cv.Stats().GeneratorAvailable {
		t.Error("stats should report no generator")
	}
}

func TestConverter_ClearCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	cv := NewConverter(NewMockClient(), "mock", c, testConversion)

	first := testMCQ()
	second := testMCQ()
	second.ID = 43
	for _, m := range []*models.MCQ{first, second} {
		if _, err := cv.Convert(ctx, m, ConvertOptions{}); err != nil {
			t.Fatalf("Convert %d: %v", m.ID, err)
		}
	}

	if err := cv.ClearCache(ctx, 42); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	var entry cachedConversion
	if err := c.Get(ctx, CacheKey(42), &entry); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("expected miss after clear, got %v", err)
	}

	n, err := cv.ClearAllCaches(ctx)
	if err != nil || n != 1 {
		t.Errorf("ClearAllCaches = %d, %v", n, err)
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(42); got != "mcq_case_conversion_42_v2_professional" {
		t.Errorf("CacheKey = %q", got)
	}
}
