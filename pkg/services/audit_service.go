package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/repositories"
)

// AuditService is the write side of the append-only audit ledger plus its
// read-only query surface. Writes are fire-and-forget: a storage fault is
// logged operationally and never reaches the triggering business action.
type AuditService interface {
	// Record appends an audit entry asynchronously. The call returns
	// immediately; the caller's response is never held pending the write.
	Record(entry *models.AuditEntry)

	// GetByEntity lists entries for one entity, newest first.
	GetByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)

	// GetByDateRange lists entries in [from, to), newest first.
	GetByDateRange(ctx context.Context, entityType string, from, to time.Time, limit int) ([]*models.AuditEntry, error)

	// GetByUser lists entries triggered by one user, newest first.
	GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditEntry, error)

	// Wait blocks until all in-flight audit writes have settled. Intended
	// for shutdown and tests.
	Wait()
}

// Diff returns the keys whose serialized values differ between before and
// after, each mapped to its from/to pair. A key present on only one side
// counts as present-with-nil on the other. Equality is byte equality of
// the JSON serialization, so semantically equal but differently formatted
// values diff as changed; that conservative behavior is intentional.
func Diff(before, after map[string]any) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)

	for key, beforeVal := range before {
		afterVal, inAfter := after[key]
		if !inAfter {
			changes[key] = models.FieldChange{From: beforeVal, To: nil}
			continue
		}
		if !jsonEqual(beforeVal, afterVal) {
			changes[key] = models.FieldChange{From: beforeVal, To: afterVal}
		}
	}

	for key, afterVal := range after {
		if _, inBefore := before[key]; !inBefore {
			changes[key] = models.FieldChange{From: nil, To: afterVal}
		}
	}

	return changes
}

func jsonEqual(a, b any) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aJSON) == string(bJSON)
}

type auditService struct {
	repo         repositories.AuditRepository
	logger       *zap.Logger
	writeTimeout time.Duration
	inflight     sync.WaitGroup
}

// NewAuditService creates a new AuditService. writeTimeout bounds each
// detached write; zero falls back to 10 seconds.
func NewAuditService(repo repositories.AuditRepository, writeTimeout time.Duration, logger *zap.Logger) AuditService {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &auditService{
		repo:         repo,
		logger:       logger.Named("audit"),
		writeTimeout: writeTimeout,
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(entry *models.AuditEntry) {
	if len(entry.Changes) == 0 && (entry.Before != nil || entry.After != nil) {
		entry.Changes = Diff(entry.Before, entry.After)
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		// Detached from the request context on purpose: the audit write
		// must not be cancelled by the caller's response completing.
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		if err := s.repo.Create(ctx, entry); err != nil {
			s.logger.Error("Audit write failed",
				zap.String("action", entry.Action),
				zap.String("entity_type", entry.EntityType),
				zap.String("entity_id", entry.EntityID),
				zap.Error(err))
		}
	}()
}

func (s *auditService) GetByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	return s.repo.GetByEntity(ctx, entityType, entityID)
}

func (s *auditService) GetByDateRange(ctx context.Context, entityType string, from, to time.Time, limit int) ([]*models.AuditEntry, error) {
	return s.repo.GetByDateRange(ctx, entityType, from, to, limit)
}

func (s *auditService) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditEntry, error) {
	return s.repo.GetByUser(ctx, userID, limit)
}

func (s *auditService) Wait() {
	s.inflight.Wait()
}
