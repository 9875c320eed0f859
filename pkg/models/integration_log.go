package models

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationStatus is the lifecycle status of one recorded bridge call.
type IntegrationStatus string

const (
	IntegrationStatusSuccess      IntegrationStatus = "SUCCESS"
	IntegrationStatusFailed       IntegrationStatus = "FAILED"
	IntegrationStatusPendingRetry IntegrationStatus = "PENDING_RETRY"
	IntegrationStatusRetried      IntegrationStatus = "RETRIED"
	IntegrationStatusArchived     IntegrationStatus = "ARCHIVED"
)

// integrationTransitions enumerates every legal status transition. A status
// absent from the map (ARCHIVED) accepts no further transitions.
var integrationTransitions = map[IntegrationStatus][]IntegrationStatus{
	IntegrationStatusSuccess:      {IntegrationStatusArchived},
	IntegrationStatusFailed:       {IntegrationStatusPendingRetry, IntegrationStatusRetried, IntegrationStatusArchived},
	IntegrationStatusPendingRetry: {IntegrationStatusRetried},
	IntegrationStatusRetried:      {IntegrationStatusArchived},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to IntegrationStatus) bool {
	for _, next := range integrationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRetriableStatus reports whether a row in this status may be retried at
// all. Retry eligibility additionally requires the row's IsRetriable flag.
func IsRetriableStatus(s IntegrationStatus) bool {
	return s == IntegrationStatusFailed || s == IntegrationStatusPendingRetry
}

// IntegrationDirection distinguishes inbound from outbound calls.
type IntegrationDirection string

const (
	DirectionInbound  IntegrationDirection = "inbound"
	DirectionOutbound IntegrationDirection = "outbound"
)

// IntegrationLog is one physical call attempt to or from the external
// bridge. A retry never reuses a row; it creates a new one linked through
// RetryOfID, so the history of every attempt is immutable.
type IntegrationLog struct {
	ID              uuid.UUID            `json:"id"`
	Direction       IntegrationDirection `json:"direction"`
	Endpoint        string               `json:"endpoint"`
	Method          string               `json:"method"`
	StatusCode      int                  `json:"status_code"`
	DurationMS      int64                `json:"duration_ms"`
	RequestHeaders  map[string]string    `json:"request_headers,omitempty"`
	RequestBody     string               `json:"request_body,omitempty"`
	ResponseHeaders map[string]string    `json:"response_headers,omitempty"`
	ResponseBody    string               `json:"response_body,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	RetryCount      int                  `json:"retry_count"`
	IsRetriable     bool                 `json:"is_retriable"`
	Status          IntegrationStatus    `json:"status"`
	RetryOfID       *uuid.UUID           `json:"retry_of_id,omitempty"`
	ClientIP        string               `json:"client_ip,omitempty"`
	UserID          *uuid.UUID           `json:"user_id,omitempty"`
	TraceID         string               `json:"trace_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// IntegrationLogFilter narrows integration log listings.
type IntegrationLogFilter struct {
	Direction     IntegrationDirection
	Status        IntegrationStatus
	Method        string
	Search        string // matched against endpoint and error message
	StatusCodeMin int
	StatusCodeMax int
	From          *time.Time
	To            *time.Time
	SortDesc      bool
	Page          int
	PageSize      int
}

// IntegrationStats are the aggregate counters served by the stats endpoint.
type IntegrationStats struct {
	TodayTotal     int64   `json:"today_total"`
	TodayFailed    int64   `json:"today_failed"`
	LastHourTotal  int64   `json:"last_hour_total"`
	LastHourFailed int64   `json:"last_hour_failed"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	PendingRetries int64   `json:"pending_retries"`
}
