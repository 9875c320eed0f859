package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// mockIntegrationService serves canned log rows and records which
// operations were invoked.
type mockIntegrationService struct {
	logs      map[uuid.UUID]*models.IntegrationLog
	retried   []uuid.UUID
	archived  []uuid.UUID
	scheduled []uuid.UUID
	retryErr  error
}

func newMockIntegrationService() *mockIntegrationService {
	return &mockIntegrationService{logs: make(map[uuid.UUID]*models.IntegrationLog)}
}

func (m *mockIntegrationService) RecordOutcome(_ context.Context, log *models.IntegrationLog, _ error) error {
	m.logs[log.ID] = log
	return nil
}

func (m *mockIntegrationService) Retry(_ context.Context, id uuid.UUID) (*models.IntegrationLog, error) {
	if m.retryErr != nil {
		return nil, m.retryErr
	}
	original, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	m.retried = append(m.retried, id)
	attempt := &models.IntegrationLog{
		ID:        uuid.New(),
		RetryOfID: &original.ID,
		Status:    models.IntegrationStatusSuccess,
	}
	return attempt, nil
}

func (m *mockIntegrationService) ScheduleRetry(_ context.Context, id uuid.UUID) error {
	if _, ok := m.logs[id]; !ok {
		return apperrors.ErrNotFound
	}
	m.scheduled = append(m.scheduled, id)
	return nil
}

func (m *mockIntegrationService) Archive(_ context.Context, id uuid.UUID) error {
	log, ok := m.logs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !models.CanTransition(log.Status, models.IntegrationStatusArchived) && log.Status != models.IntegrationStatusArchived {
		return apperrors.ErrInvalidTransition
	}
	m.archived = append(m.archived, id)
	return nil
}

func (m *mockIntegrationService) SetDispatcher(services.Dispatcher) {}

func (m *mockIntegrationService) Get(_ context.Context, id uuid.UUID) (*models.IntegrationLog, error) {
	log, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return log, nil
}

func (m *mockIntegrationService) List(_ context.Context, _ models.IntegrationLogFilter) ([]*models.IntegrationLog, int64, error) {
	out := make([]*models.IntegrationLog, 0, len(m.logs))
	for _, log := range m.logs {
		out = append(out, log)
	}
	return out, int64(len(out)), nil
}

func (m *mockIntegrationService) Stats(_ context.Context) (*models.IntegrationStats, error) {
	return &models.IntegrationStats{TodayTotal: int64(len(m.logs))}, nil
}

func setupIntegrationTest(t *testing.T) (*http.ServeMux, *mockIntegrationService) {
	t.Helper()

	svc := newMockIntegrationService()
	mux := http.NewServeMux()
	NewIntegrationHandler(svc, zap.NewNop()).
		RegisterRoutes(mux, auth.NewMiddleware(stubValidator{}, zap.NewNop()))
	return mux, svc
}

func seedFailedLog(svc *mockIntegrationService) *models.IntegrationLog {
	log := &models.IntegrationLog{
		ID:          uuid.New(),
		Direction:   models.DirectionOutbound,
		Endpoint:    "/api/tables/materials/records",
		Method:      "POST",
		StatusCode:  502,
		Status:      models.IntegrationStatusFailed,
		IsRetriable: true,
		CreatedAt:   time.Now(),
	}
	svc.logs[log.ID] = log
	return log
}

func TestIntegrationList_RequiresAdmin(t *testing.T) {
	mux, _ := setupIntegrationTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/integration-logs", "production_manager", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/integration-logs", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntegrationList_Payload(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/integration-logs?status=FAILED&page=2&page_size=10", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Total    int64 `json:"total"`
			Page     int   `json:"page"`
			PageSize int   `json:"page_size"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, int64(1), response.Data.Total)
	assert.Equal(t, 2, response.Data.Page)
	assert.Equal(t, 10, response.Data.PageSize)
}

func TestIntegrationList_BadTimeFilter(t *testing.T) {
	mux, _ := setupIntegrationTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/integration-logs?from=yesterday", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrationStats(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/integration-logs/stats", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIntegrationGet(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/integration-logs/"+log.ID.String(), "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/integration-logs/"+uuid.NewString(), "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/integration-logs/not-a-uuid", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrationRetry(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/integration-logs/"+log.ID.String()+"/retry", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{log.ID}, svc.retried)

	var response struct {
		Data models.IntegrationLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotNil(t, response.Data.RetryOfID)
	assert.Equal(t, log.ID, *response.Data.RetryOfID)
}

func TestIntegrationRetry_NotAllowed(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)
	svc.retryErr = apperrors.ErrRetryNotAllowed

	rec := doJSON(t, mux, http.MethodPost, "/api/integration-logs/"+log.ID.String()+"/retry", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIntegrationScheduleRetry(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/integration-logs/"+log.ID.String()+"/schedule-retry", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{log.ID}, svc.scheduled)
}

func TestIntegrationArchive(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)

	rec := doJSON(t, mux, http.MethodPatch, "/api/integration-logs/"+log.ID.String()+"/archive", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{log.ID}, svc.archived)
}

func TestIntegrationArchive_InvalidTransition(t *testing.T) {
	mux, svc := setupIntegrationTest(t)
	log := seedFailedLog(svc)
	log.Status = models.IntegrationStatusPendingRetry

	rec := doJSON(t, mux, http.MethodPatch, "/api/integration-logs/"+log.ID.String()+"/archive", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
