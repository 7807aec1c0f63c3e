package analyses

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"menuscore-backend/internal/analyses/scoring"
	"menuscore-backend/internal/extraction"
	"menuscore-backend/internal/shared/metrics"
	"menuscore-backend/internal/shared/telemetry"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	defaultPollTimeout    = 5 * time.Second
	defaultFailureMessage = "extraction failed"
	maxContactFieldLength = 200
)

// Status is the client-facing view of an analysis in flight.
type Status struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Progress   *int      `json:"progress,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Transition string    `json:"-"`
}

// Service drives the analysis lifecycle: submission, status polling,
// completion and the result reads.
type Service struct {
	Repo               Repo
	Extractor          extraction.Client
	MarketplaceDomains []string
	// PollTimeout bounds one upstream status query.
	PollTimeout time.Duration
	// PollInterval is the minimum time between upstream queries for one analysis.
	PollInterval time.Duration
	Now          func() time.Time

	polls       singleflight.Group
	limiterOnce sync.Once
	limiter     *pollLimiter
}

// Submit validates the link, starts an extraction task and records the analysis.
// Nothing is stored when any step fails.
func (s *Service) Submit(ctx context.Context, rawLink string) (Analysis, error) {
	link, err := ValidateLink(rawLink, s.MarketplaceDomains)
	if err != nil {
		return Analysis{}, err
	}

	if !s.Extractor.HealthCheck(ctx) {
		telemetry.Warn("analysis.extractor_unhealthy", LogFields(ctx, "", map[string]any{"link": link}))
		return Analysis{}, ErrUpstreamUnavailable
	}

	taskID, err := s.Extractor.StartTask(ctx, link)
	if err != nil {
		telemetry.Error("analysis.start_failed", LogFields(ctx, "", map[string]any{"link": link, "err": err}))
		return Analysis{}, fmt.Errorf("%w: %w", ErrUpstreamError, err)
	}

	now := s.now()
	analysis := Analysis{
		ID:               uuid.NewString(),
		SourceLink:       link,
		Status:           StatusProcessing,
		ExtractionTaskID: taskID,
		Downloads:        []Download{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		telemetry.Error("analysis.create_failed", LogFields(ctx, analysis.ID, map[string]any{"task_id": taskID, "err": err}))
		return Analysis{}, err
	}

	metrics.IncAnalysisSubmitted()
	telemetry.Info("analysis.submitted", LogFields(ctx, analysis.ID, map[string]any{"task_id": taskID, "link": link}))
	return analysis, nil
}

// GetStatus returns the current status, querying the extractor at most once
// per call while the analysis is processing. Concurrent polls for the same
// id share one upstream query. Upstream errors never fail the call.
func (s *Service) GetStatus(ctx context.Context, analysisID string) (Status, error) {
	current, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Status{}, err
	}
	if current.Status != StatusProcessing || current.ExtractionTaskID == "" {
		return statusOf(current, ""), nil
	}
	if !s.pollLimiter().Allow(analysisID) {
		return statusOf(current, ""), nil
	}

	v, err, _ := s.polls.Do(analysisID, func() (any, error) {
		// The deadline bounds the upstream calls only; folding the answer
		// into the record must not fail because the extractor was slow.
		writeCtx := context.WithoutCancel(ctx)
		pollCtx, cancel := context.WithTimeout(writeCtx, s.pollTimeout())
		defer cancel()
		return s.pollOnce(pollCtx, writeCtx, current)
	})
	if err != nil {
		return Status{}, err
	}
	updated := v.(Analysis)
	transition := ""
	if updated.Status != current.Status {
		transition = current.Status + "->" + updated.Status
	}
	return statusOf(updated, transition), nil
}

func (s *Service) pollOnce(pollCtx, writeCtx context.Context, current Analysis) (Analysis, error) {
	task, err := s.Extractor.PollTask(pollCtx, current.ExtractionTaskID)
	if err != nil {
		s.upstreamPollError(writeCtx, current, "poll", err)
		return current, nil
	}

	switch task.Status {
	case extraction.StatusCompleted:
		est, err := s.Extractor.FetchResult(pollCtx, current.ExtractionTaskID)
		if err != nil {
			s.upstreamPollError(writeCtx, current, "fetch", err)
			return current, nil
		}
		return s.Complete(writeCtx, current.ID, est)
	case extraction.StatusFailed:
		message := strings.TrimSpace(task.Message)
		if message == "" {
			message = defaultFailureMessage
		}
		return s.fail(writeCtx, current.ID, message)
	default:
		return s.recordProgress(writeCtx, current.ID, task.Progress)
	}
}

func (s *Service) upstreamPollError(ctx context.Context, current Analysis, stage string, err error) {
	metrics.IncExtractionPollError()
	telemetry.Warn("analysis.poll_failed", LogFields(ctx, current.ID, map[string]any{
		"task_id": current.ExtractionTaskID,
		"stage":   stage,
		"err":     err,
	}))
}

// Complete scores the extracted data and marks the analysis completed.
// It is idempotent: a terminal analysis is returned unchanged.
func (s *Service) Complete(ctx context.Context, analysisID string, est scoring.Establishment) (Analysis, error) {
	transitioned := false
	updated, err := s.Repo.Update(ctx, analysisID, func(a *Analysis) error {
		if a.IsTerminal() {
			return ErrNoChange
		}
		result := scoring.Score(est)
		now := s.now()
		full := 100
		a.Results = &result
		a.Status = StatusCompleted
		a.ExtractionProgress = &full
		a.ErrorMessage = ""
		a.CompletedAt = &now
		transitioned = true
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}
	if transitioned {
		s.finished(updated)
		metrics.IncAnalysisCompleted()
		telemetry.Info("analysis.completed", LogFields(ctx, updated.ID, map[string]any{
			"overall_score":   updated.Results.OverallScore,
			"composite_score": updated.Results.CompositeScore,
			"recommendations": len(updated.Results.Recommendations),
		}))
	}
	return updated, nil
}

func (s *Service) fail(ctx context.Context, analysisID, message string) (Analysis, error) {
	transitioned := false
	updated, err := s.Repo.Update(ctx, analysisID, func(a *Analysis) error {
		if a.IsTerminal() {
			return ErrNoChange
		}
		now := s.now()
		a.Status = StatusFailed
		a.ErrorMessage = message
		a.CompletedAt = &now
		transitioned = true
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}
	if transitioned {
		s.finished(updated)
		metrics.IncAnalysisFailed()
		telemetry.Warn("analysis.failed", LogFields(ctx, updated.ID, map[string]any{"error": message}))
	}
	return updated, nil
}

func (s *Service) recordProgress(ctx context.Context, analysisID string, progress *int) (Analysis, error) {
	if progress == nil {
		return s.Repo.GetByID(ctx, analysisID)
	}
	value := min(max(*progress, 0), 100)
	return s.Repo.Update(ctx, analysisID, func(a *Analysis) error {
		if a.IsTerminal() {
			return ErrNoChange
		}
		if a.ExtractionProgress != nil && *a.ExtractionProgress == value {
			return ErrNoChange
		}
		a.ExtractionProgress = &value
		return nil
	})
}

func (s *Service) finished(a Analysis) {
	s.pollLimiter().Forget(a.ID)
	if a.CompletedAt != nil {
		metrics.ObserveAnalysisDurationMs(float64(a.CompletedAt.Sub(a.CreatedAt).Milliseconds()))
	}
}

// GetPreview returns a completed analysis. Redaction is applied by the caller.
func (s *Service) GetPreview(ctx context.Context, analysisID string) (Analysis, error) {
	a, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if a.Status != StatusCompleted || a.Results == nil {
		return Analysis{}, ErrNotReady
	}
	return a, nil
}

// GetFullResult returns a completed and paid analysis. Readiness is checked
// before payment.
func (s *Service) GetFullResult(ctx context.Context, analysisID string) (Analysis, error) {
	a, err := s.GetPreview(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if !a.IsPaid() {
		return Analysis{}, ErrPaymentRequired
	}
	return a, nil
}

// SaveContact stores requester contact details, replacing earlier ones.
func (s *Service) SaveContact(ctx context.Context, analysisID string, contact Contact) error {
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Phone = strings.TrimSpace(contact.Phone)
	if contact.Email == "" {
		return NewValidationError("email", "required")
	}
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return NewValidationError("email", "invalid")
	}
	if len(contact.Name) > maxContactFieldLength || len(contact.Phone) > maxContactFieldLength {
		return NewValidationError("contact", "too long")
	}

	_, err := s.Repo.Update(ctx, analysisID, func(a *Analysis) error {
		contact.SavedAt = s.now()
		a.Contact = &contact
		return nil
	})
	if err != nil {
		return err
	}
	telemetry.Info("analysis.contact_saved", LogFields(ctx, analysisID, nil))
	return nil
}

// GetContact returns the stored contact, if any.
func (s *Service) GetContact(ctx context.Context, analysisID string) (Contact, bool, error) {
	a, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Contact{}, false, err
	}
	if a.Contact == nil {
		return Contact{}, false, nil
	}
	return *a.Contact, true, nil
}

func (s *Service) pollLimiter() *pollLimiter {
	s.limiterOnce.Do(func() {
		s.limiter = newPollLimiter(s.PollInterval, s.Now)
	})
	return s.limiter
}

func (s *Service) pollTimeout() time.Duration {
	if s.PollTimeout > 0 {
		return s.PollTimeout
	}
	return defaultPollTimeout
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func statusOf(a Analysis, transition string) Status {
	st := Status{
		ID:         a.ID,
		Status:     a.Status,
		Error:      a.ErrorMessage,
		UpdatedAt:  a.UpdatedAt,
		Transition: transition,
	}
	if a.ExtractionProgress != nil {
		p := *a.ExtractionProgress
		st.Progress = &p
	}
	return st
}
