package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/neuro-mcq/backend/internal/config"
	"github.com/neuro-mcq/backend/internal/models"
)

var (
	ErrNotFound     = errors.New("case session not found")
	ErrForbidden    = errors.New("case session belongs to another user")
	ErrInvalidState = errors.New("case session cannot be retried")
)

const (
	stuckMessage     = "conversion timed out in processing"
	claimBatchSize   = 3
	sessionListLimit = 100
	integrityLimit   = 500
)

// Repository is the persistence for sessions and events. *Store implements it.
type Repository interface {
	FindActive(ctx context.Context, userID, mcqID int64) (*models.CaseSession, error)
	Create(ctx context.Context, sess *models.CaseSession) error
	Get(ctx context.Context, id int64) (*models.CaseSession, error)
	GetByTracking(ctx context.Context, trackingID string) (*models.CaseSession, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.CaseSession, error)
	Delete(ctx context.Context, id int64) error
	ResetForRetry(ctx context.Context, id int64) (bool, error)
	ClaimPending(ctx context.Context, limit int) ([]models.CaseSession, error)
	Complete(ctx context.Context, id int64, caseData []byte) error
	Fail(ctx context.Context, id int64, message string) error
	ResetStuck(ctx context.Context, cutoff time.Time, maxAttempts int) (int, int, error)
	Completed(ctx context.Context, limit int) ([]models.CaseSession, error)
	RecordEvent(ctx context.Context, e *models.ConversionEvent) error
	Events(ctx context.Context, trackingID string) ([]models.ConversionEvent, error)
	RecentEvents(ctx context.Context, limit int) ([]models.ConversionEvent, error)
}

type MCQSource interface {
	Get(ctx context.Context, id int64) (*models.MCQ, error)
}

// CaseConverter is the conversion engine. *casegen.Converter implements it.
type CaseConverter interface {
	Convert(ctx context.Context, mcq *models.MCQ, opts casegen.ConvertOptions) (*models.ConvertedCase, error)
	ClearCache(ctx context.Context, mcqID int64) error
	ClearAllCaches(ctx context.Context) (int, error)
	Stats() casegen.Stats
}

type Service struct {
	repo      Repository
	mcqs      MCQSource
	converter CaseConverter
	cfg       config.ConversionConfig
	now       func() time.Time
}

func NewService(repo Repository, mcqs MCQSource, converter CaseConverter, cfg config.ConversionConfig) *Service {
	return &Service{repo: repo, mcqs: mcqs, converter: converter, cfg: cfg, now: time.Now}
}

// ── Sessions ────────────────────────────────────────────

// StartConversion queues a conversion of the MCQ for the user. An existing
// completed, pending or processing session is returned instead, with
// created false.
func (s *Service) StartConversion(ctx context.Context, userID, mcqID int64) (*models.CaseSession, bool, error) {
	if _, err := s.mcqs.Get(ctx, mcqID); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindActive(ctx, userID, mcqID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	sess := &models.CaseSession{
		UserID:     userID,
		MCQID:      mcqID,
		TrackingID: uuid.NewString(),
		Status:     models.ConversionPending,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, false, err
	}
	s.event(ctx, sess, "SESSION_CREATED", "info", map[string]interface{}{"user_id": userID})
	log.Printf("[cases] Session %d (%s) queued for MCQ %d", sess.ID, sess.TrackingID, mcqID)
	return sess, true, nil
}

// owned loads a session and checks that it belongs to userID.
func (s *Service) owned(ctx context.Context, userID, id int64) (*models.CaseSession, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *Service) Session(ctx context.Context, userID, id int64) (*models.CaseSession, error) {
	return s.owned(ctx, userID, id)
}

func (s *Service) Sessions(ctx context.Context, userID int64) ([]models.CaseSession, error) {
	list, err := s.repo.ListForUser(ctx, userID, sessionListLimit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.CaseSession{}
	}
	return list, nil
}

func (s *Service) DeleteSession(ctx context.Context, userID, id int64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Retry(ctx context.Context, userID, id int64) (*models.CaseSession, error) {
	sess, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, sess.Status)
	}
	s.event(ctx, sess, "SESSION_RETRY", "info", nil)
	return s.repo.Get(ctx, id)
}

// ── Worker ──────────────────────────────────────────────

// StartConversionWorker polls for pending sessions until ctx is cancelled.
func (s *Service) StartConversionWorker(ctx context.Context) {
	interval := s.cfg.WorkerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[case-worker] Background conversion worker started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[case-worker] Shutting down")
			return
		case <-ticker.C:
			s.processQueue(ctx)
		}
	}
}

func (s *Service) processQueue(ctx context.Context) {
	if s.cfg.StuckAfter > 0 {
		requeued, failed, err := s.repo.ResetStuck(ctx, s.now().Add(-s.cfg.StuckAfter), s.maxAttempts())
		if err != nil {
			log.Printf("[case-worker] WARN: reset stuck sessions: %v", err)
		} else if requeued+failed > 0 {
			log.Printf("[case-worker] Stuck sessions: %d requeued, %d failed", requeued, failed)
		}
	}

	sessions, err := s.repo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		log.Printf("[case-worker] error claiming sessions: %v", err)
		return
	}
	for i := range sessions {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, &sessions[i])
	}
}

func (s *Service) maxAttempts() int {
	if s.cfg.MaxAttempts < 1 {
		return 1
	}
	return s.cfg.MaxAttempts
}

// process converts one claimed session and stores the outcome. Every
// converter step is written to the session's event trail.
func (s *Service) process(ctx context.Context, sess *models.CaseSession) {
	s.event(ctx, sess, "SESSION_PROCESSING", "info", map[string]interface{}{"attempt": sess.Attempts})

	mcq, err := s.mcqs.Get(ctx, sess.MCQID)
	if err != nil {
		s.fail(ctx, sess, fmt.Sprintf("load MCQ %d: %v", sess.MCQID, err))
		return
	}

	result, err := s.converter.Convert(ctx, mcq, casegen.ConvertOptions{
		OnStep: func(step models.DebugStep) {
			s.event(ctx, sess, step.Step, StepStatus(step.Step), step.Data)
		},
	})
	if err != nil {
		s.fail(ctx, sess, err.Error())
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.fail(ctx, sess, fmt.Sprintf("encode case: %v", err))
		return
	}
	if err := s.repo.Complete(ctx, sess.ID, data); err != nil {
		log.Printf("[case-worker] error completing session %d: %v", sess.ID, err)
		return
	}
	s.event(ctx, sess, "SESSION_COMPLETED", "success", map[string]interface{}{
		"score": result.ProfessionalValidation.Score,
	})
	log.Printf("[case-worker] completed: session=%d mcq=%d score=%.1f",
		sess.ID, sess.MCQID, result.ProfessionalValidation.Score)
}

func (s *Service) fail(ctx context.Context, sess *models.CaseSession, message string) {
	if err := s.repo.Fail(ctx, sess.ID, message); err != nil {
		log.Printf("[case-worker] error failing session %d: %v", sess.ID, err)
	}
	s.event(ctx, sess, "SESSION_FAILED", "failed", map[string]interface{}{"error": message})
	log.Printf("[case-worker] failed: session=%d mcq=%d err=%s", sess.ID, sess.MCQID, message)
}

// StepStatus classifies a converter step name for the event trail.
func StepStatus(step string) string {
	switch {
	case strings.Contains(step, "ERROR"):
		return "error"
	case strings.Contains(step, "FAILED"):
		return "failed"
	case strings.HasSuffix(step, "SUCCESS"), strings.HasSuffix(step, "COMPLETE"), step == "CACHE_HIT":
		return "success"
	default:
		return "info"
	}
}

func (s *Service) event(ctx context.Context, sess *models.CaseSession, step, status string, details interface{}) {
	e := &models.ConversionEvent{
		SessionID:  sess.ID,
		TrackingID: sess.TrackingID,
		MCQID:      sess.MCQID,
		Step:       step,
		Status:     status,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			raw, _ = json.Marshal(fmt.Sprint(details))
		}
		e.Details = raw
	}
	if err := s.repo.RecordEvent(ctx, e); err != nil {
		log.Printf("[cases] WARN: record event %s for %s: %v", step, sess.TrackingID, err)
	}
}

// ── Staff ───────────────────────────────────────────────

func (s *Service) ClearCache(ctx context.Context, mcqID int64) error {
	return s.converter.ClearCache(ctx, mcqID)
}

func (s *Service) ClearAllCaches(ctx context.Context) (int, error) {
	return s.converter.ClearAllCaches(ctx)
}

func (s *Service) Stats() casegen.Stats {
	return s.converter.Stats()
}

func (s *Service) Tracking(ctx context.Context, trackingID string) (*models.TrackingReport, error) {
	if _, err := uuid.Parse(trackingID); err != nil {
		return nil, ErrNotFound
	}
	report := &models.TrackingReport{TrackingID: trackingID}

	sess, err := s.repo.GetByTracking(ctx, trackingID)
	switch {
	case err == nil:
		report.Session = sess
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	events, err := s.repo.Events(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	if report.Session == nil && len(events) == 0 {
		return nil, ErrNotFound
	}
	if events == nil {
		events = []models.ConversionEvent{}
	}
	report.Events = events
	return report, nil
}

func (s *Service) RecentEvents(ctx context.Context, limit int) ([]models.ConversionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.repo.RecentEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.ConversionEvent{}
	}
	return events, nil
}

// IntegrityCheck verifies that each completed session's case still belongs
// to its MCQ and was generated from the MCQ's current content.
func (s *Service) IntegrityCheck(ctx context.Context) (*models.IntegrityReport, error) {
	sessions, err := s.repo.Completed(ctx, integrityLimit)
	if err != nil {
		return nil, err
	}
	report := &models.IntegrityReport{Checked: len(sessions), Issues: []models.IntegrityIssue{}}
	add := func(sess models.CaseSession, problem string) {
		report.Issues = append(report.Issues, models.IntegrityIssue{SessionID: sess.ID, MCQID: sess.MCQID, Problem: problem})
	}

	for _, sess := range sessions {
		var c models.ConvertedCase
		if err := json.Unmarshal(sess.CaseData, &c); err != nil {
			add(sess, "case data is not a valid case: "+err.Error())
			continue
		}
		if c.SourceMCQID != sess.MCQID {
			add(sess, fmt.Sprintf("case source_mcq_id %d does not match session MCQ %d", c.SourceMCQID, sess.MCQID))
		}
		mcq, err := s.mcqs.Get(ctx, sess.MCQID)
		if err != nil {
			add(sess, "MCQ could not be loaded: "+err.Error())
			continue
		}
		if c.MCQChecksum != casegen.Checksum(mcq) {
			add(sess, "MCQ changed since the case was generated (checksum mismatch)")
		}
	}
	if len(report.Issues) > 0 {
		log.Printf("[cases] Integrity check: %d issues in %d sessions", len(report.Issues), report.Checked)
	}
	return report, nil
}
