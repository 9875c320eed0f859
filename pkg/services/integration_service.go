package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/logging"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/repositories"
	"github.com/forgeline-inc/forgeline-engine/pkg/retry"
)

// DispatchOutcome is the observable result of one physical call attempt.
type DispatchOutcome struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	Duration   time.Duration
}

// Dispatcher re-executes a recorded call. The bridge client implements it;
// the orchestrator uses it for operator-triggered retries so the original
// request is reissued exactly as captured.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body string) (*DispatchOutcome, error)
}

// IntegrationService records every call to the external bridge and owns
// the retry/archival state machine over the recorded rows. Recording is
// synchronous with the call it wraps: the outcome is durable before the
// bridge caller observes the result.
type IntegrationService interface {
	// RecordOutcome classifies and persists one call attempt. The log's
	// Status, IsRetriable, and ErrorMessage are derived here; headers and
	// bodies are sanitized before persistence.
	RecordOutcome(ctx context.Context, log *models.IntegrationLog, callErr error) error

	// Retry re-dispatches a FAILED or PENDING_RETRY retriable row. The new
	// attempt gets its own row linked to the original; the original
	// transitions to RETRIED and is never reused. Returns the new row.
	Retry(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error)

	// ScheduleRetry marks a FAILED retriable row PENDING_RETRY without
	// executing it.
	ScheduleRetry(ctx context.Context, id uuid.UUID) error

	// Archive moves a settled row to ARCHIVED. Archiving an already
	// archived row is a no-op.
	Archive(ctx context.Context, id uuid.UUID) error

	// SetDispatcher installs the dispatcher after construction. The bridge
	// client records through this service, so the two are built in sequence
	// and linked here.
	SetDispatcher(d Dispatcher)

	Get(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error)
	List(ctx context.Context, filter models.IntegrationLogFilter) ([]*models.IntegrationLog, int64, error)
	Stats(ctx context.Context) (*models.IntegrationStats, error)
}

type integrationService struct {
	repo       repositories.IntegrationLogRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewIntegrationService creates a new IntegrationService. The dispatcher
// may be nil when no bridge is configured; Retry then fails with
// ErrRetryNotAllowed.
func NewIntegrationService(repo repositories.IntegrationLogRepository, dispatcher Dispatcher, logger *zap.Logger) IntegrationService {
	return &integrationService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.Named("integration"),
		now:        time.Now,
	}
}

var _ IntegrationService = (*integrationService)(nil)

func (s *integrationService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *integrationService) RecordOutcome(ctx context.Context, log *models.IntegrationLog, callErr error) error {
	if callErr != nil {
		log.Status = models.IntegrationStatusFailed
		log.ErrorMessage = logging.SanitizeError(callErr)
		log.IsRetriable = retry.IsTransient(callErr)
	} else if log.StatusCode >= 200 && log.StatusCode < 300 {
		log.Status = models.IntegrationStatusSuccess
		log.IsRetriable = false
	} else {
		log.Status = models.IntegrationStatusFailed
		log.ErrorMessage = fmt.Sprintf("bridge returned status %d", log.StatusCode)
		log.IsRetriable = retry.RetriableStatusCode(log.StatusCode)
	}

	log.RequestHeaders = logging.SanitizeHeaders(log.RequestHeaders)
	log.ResponseHeaders = logging.SanitizeHeaders(log.ResponseHeaders)
	log.RequestBody = logging.SanitizeBody(log.RequestBody)
	log.ResponseBody = logging.SanitizeBody(log.ResponseBody)

	if err := s.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("failed to record integration call: %w", err)
	}

	s.logger.Debug("Recorded integration call",
		zap.String("id", log.ID.String()),
		zap.String("endpoint", log.Endpoint),
		zap.String("status", string(log.Status)),
		zap.Bool("retriable", log.IsRetriable))

	return nil
}

func (s *integrationService) Retry(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error) {
	original, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !models.IsRetriableStatus(original.Status) || !original.IsRetriable {
		return nil, fmt.Errorf("%w: status=%s retriable=%v",
			apperrors.ErrRetryNotAllowed, original.Status, original.IsRetriable)
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("%w: no bridge configured", apperrors.ErrRetryNotAllowed)
	}

	attempt := &models.IntegrationLog{
		Direction:      original.Direction,
		Endpoint:       original.Endpoint,
		Method:         original.Method,
		RequestHeaders: original.RequestHeaders,
		RequestBody:    original.RequestBody,
		RetryOfID:      &original.ID,
		TraceID:        original.TraceID,
		UserID:         original.UserID,
	}

	outcome, callErr := s.dispatcher.Dispatch(ctx, original.Method, original.Endpoint, original.RequestHeaders, original.RequestBody)
	if outcome != nil {
		attempt.StatusCode = outcome.StatusCode
		attempt.ResponseHeaders = outcome.Headers
		attempt.ResponseBody = outcome.Body
		attempt.DurationMS = outcome.Duration.Milliseconds()
	}

	if err := s.RecordOutcome(ctx, attempt, callErr); err != nil {
		return nil, err
	}

	if err := s.repo.MarkRetried(ctx, original.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Retried integration call",
		zap.String("original_id", original.ID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("attempt_status", string(attempt.Status)))

	return attempt, nil
}

func (s *integrationService) ScheduleRetry(ctx context.Context, id uuid.UUID) error {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if log.Status != models.IntegrationStatusFailed || !log.IsRetriable {
		return fmt.Errorf("%w: status=%s retriable=%v",
			apperrors.ErrRetryNotAllowed, log.Status, log.IsRetriable)
	}

	return s.repo.UpdateStatus(ctx, id, models.IntegrationStatusPendingRetry)
}

func (s *integrationService) Archive(ctx context.Context, id uuid.UUID) error {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Idempotent: archiving an archived row does nothing.
	if log.Status == models.IntegrationStatusArchived {
		return nil
	}

	if !models.CanTransition(log.Status, models.IntegrationStatusArchived) {
		return fmt.Errorf("%w: cannot archive row in status %s",
			apperrors.ErrInvalidTransition, log.Status)
	}

	return s.repo.UpdateStatus(ctx, id, models.IntegrationStatusArchived)
}

func (s *integrationService) Get(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *integrationService) List(ctx context.Context, filter models.IntegrationLogFilter) ([]*models.IntegrationLog, int64, error) {
	return s.repo.List(ctx, filter)
}

func (s *integrationService) Stats(ctx context.Context) (*models.IntegrationStats, error) {
	return s.repo.Stats(ctx, s.now())
}
