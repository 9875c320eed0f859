package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/database"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// IntegrationLogRepository provides data access for integration call logs.
// Rows are insert-only except for the status column, which moves through
// the transition machine owned by the integration service.
type IntegrationLogRepository interface {
	// Create inserts a new log row with its initial status.
	Create(ctx context.Context, log *models.IntegrationLog) error

	// GetByID returns one log row.
	GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error)

	// UpdateStatus moves a row to a new status and refreshes updated_at.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error

	// MarkRetried transitions a row to RETRIED and bumps its retry count.
	MarkRetried(ctx context.Context, id uuid.UUID) error

	// List returns a page of log rows matching the filter plus the total
	// match count.
	List(ctx context.Context, filter models.IntegrationLogFilter) ([]*models.IntegrationLog, int64, error)

	// Stats returns the aggregate counters for the stats endpoint.
	Stats(ctx context.Context, now time.Time) (*models.IntegrationStats, error)
}

type integrationLogRepository struct {
	db *database.DB
}

// NewIntegrationLogRepository creates a new IntegrationLogRepository.
func NewIntegrationLogRepository(db *database.DB) IntegrationLogRepository {
	return &integrationLogRepository{db: db}
}

var _ IntegrationLogRepository = (*integrationLogRepository)(nil)

func (r *integrationLogRepository) Create(ctx context.Context, log *models.IntegrationLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	now := time.Now()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = log.CreatedAt

	reqHeaders, err := marshalNullable(log.RequestHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}
	respHeaders, err := marshalNullable(log.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	query := `
		INSERT INTO integration_logs (
			id, direction, endpoint, method, status_code, duration_ms,
			request_headers, request_body, response_headers, response_body,
			error_message, retry_count, is_retriable, status, retry_of_id,
			client_ip, user_id, trace_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		          $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = r.db.Exec(ctx, query,
		log.ID,
		log.Direction,
		log.Endpoint,
		log.Method,
		log.StatusCode,
		log.DurationMS,
		reqHeaders,
		log.RequestBody,
		respHeaders,
		log.ResponseBody,
		log.ErrorMessage,
		log.RetryCount,
		log.IsRetriable,
		log.Status,
		log.RetryOfID,
		log.ClientIP,
		log.UserID,
		log.TraceID,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration log: %w", err)
	}

	return nil
}

const integrationLogColumns = `id, direction, endpoint, method, status_code, duration_ms,
		request_headers, request_body, response_headers, response_body,
		error_message, retry_count, is_retriable, status, retry_of_id,
		client_ip, user_id, trace_id, created_at, updated_at`

func (r *integrationLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationLog, error) {
	query := `
		SELECT ` + integrationLogColumns + `
		FROM integration_logs
		WHERE id = $1`

	log, err := scanIntegrationLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return log, nil
}

func (r *integrationLogRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	query := `
		UPDATE integration_logs
		SET status = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update integration log status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *integrationLogRepository) MarkRetried(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE integration_logs
		SET status = $2, retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, models.IntegrationStatusRetried)
	if err != nil {
		return fmt.Errorf("failed to mark integration log retried: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *integrationLogRepository) List(ctx context.Context, filter models.IntegrationLogFilter) ([]*models.IntegrationLog, int64, error) {
	where, args := buildIntegrationLogWhere(filter)

	countQuery := `SELECT COUNT(*) FROM integration_logs` + where
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count integration logs: %w", err)
	}

	order := " ORDER BY created_at ASC"
	if filter.SortDesc {
		order = " ORDER BY created_at DESC"
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + integrationLogColumns + ` FROM integration_logs` + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query integration logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.IntegrationLog
	for rows.Next() {
		log, err := scanIntegrationLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating integration logs: %w", err)
	}

	return logs, total, nil
}

func (r *integrationLogRepository) Stats(ctx context.Context, now time.Time) (*models.IntegrationStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	hourAgo := now.Add(-time.Hour)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE created_at >= $1 AND status = $3),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE created_at >= $2 AND status = $3),
			COALESCE(AVG(duration_ms), 0),
			COUNT(*) FILTER (WHERE status = $4)
		FROM integration_logs`

	var stats models.IntegrationStats
	err := r.db.QueryRow(ctx, query, dayStart, hourAgo,
		models.IntegrationStatusFailed, models.IntegrationStatusPendingRetry).Scan(
		&stats.TodayTotal,
		&stats.TodayFailed,
		&stats.LastHourTotal,
		&stats.LastHourFailed,
		&stats.AvgDurationMS,
		&stats.PendingRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query integration stats: %w", err)
	}

	return &stats, nil
}

// buildIntegrationLogWhere assembles the WHERE clause and its positional
// arguments for List. All predicates are ANDed.
func buildIntegrationLogWhere(filter models.IntegrationLogFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Direction != "" {
		add("direction = $%d", filter.Direction)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Method != "" {
		add("method = $%d", filter.Method)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(endpoint ILIKE $%d OR error_message ILIKE $%d)", len(args), len(args)))
	}
	if filter.StatusCodeMin > 0 {
		add("status_code >= $%d", filter.StatusCodeMin)
	}
	if filter.StatusCodeMax > 0 {
		add("status_code <= $%d", filter.StatusCodeMax)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanIntegrationLog(row pgx.Row) (*models.IntegrationLog, error) {
	var log models.IntegrationLog
	var reqHeaders, respHeaders []byte

	err := row.Scan(
		&log.ID,
		&log.Direction,
		&log.Endpoint,
		&log.Method,
		&log.StatusCode,
		&log.DurationMS,
		&reqHeaders,
		&log.RequestBody,
		&respHeaders,
		&log.ResponseBody,
		&log.ErrorMessage,
		&log.RetryCount,
		&log.IsRetriable,
		&log.Status,
		&log.RetryOfID,
		&log.ClientIP,
		&log.UserID,
		&log.TraceID,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan integration log: %w", err)
	}

	if len(reqHeaders) > 0 && string(reqHeaders) != "null" {
		if err := json.Unmarshal(reqHeaders, &log.RequestHeaders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request headers: %w", err)
		}
	}
	if len(respHeaders) > 0 && string(respHeaders) != "null" {
		if err := json.Unmarshal(respHeaders, &log.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response headers: %w", err)
		}
	}

	return &log, nil
}
