// Package bridge provides a client for the external ERP bridge process.
// Every call through it is recorded by the integration service before the
// caller observes the outcome; the client itself never retries.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// DefaultTimeout is the maximum time to wait for bridge responses.
const DefaultTimeout = 30 * time.Second

// DefaultHealthTimeout bounds the health probe.
const DefaultHealthTimeout = 5 * time.Second

// Recorder is the slice of the integration service the client needs.
type Recorder interface {
	RecordOutcome(ctx context.Context, log *models.IntegrationLog, callErr error) error
}

// Client talks to the external ERP bridge over HTTP.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
	recorder      Recorder
	logger        *zap.Logger
}

// Config holds bridge client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// NewClient creates a new bridge client.
func NewClient(cfg Config, recorder Recorder, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthTimeout
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    &http.Client{Timeout: timeout},
		healthTimeout: healthTimeout,
		recorder:      recorder,
		logger:        logger.Named("bridge"),
	}
}

// CheckHealth probes the bridge's health endpoint. Unreachability is a
// normal condition, reported as false, never as an error.
func (c *Client) CheckHealth(ctx context.Context) bool {
	endpoint, err := buildURL(c.baseURL, "health")
	if err != nil {
		c.logger.Warn("Invalid bridge base URL", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Bridge health probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Push sends records for one entity mapping to the bridge. The mapping's
// direction must permit writes originating here.
func (c *Client) Push(ctx context.Context, slug string, mapping models.ERPMapping, payload any) error {
	if !mapping.Direction.AllowsPush() {
		return fmt.Errorf("%w: direction %s does not allow push", apperrors.ErrSyncDirection, mapping.Direction)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	endpoint, err := buildURL(c.baseURL, "tables", mapping.Table(slug), "records")
	if err != nil {
		return err
	}

	_, err = c.call(ctx, http.MethodPost, endpoint, string(body))
	return err
}

// Pull fetches records for one entity mapping from the bridge. The
// mapping's direction must permit reads from the external system.
func (c *Client) Pull(ctx context.Context, slug string, mapping models.ERPMapping) ([]map[string]any, error) {
	if !mapping.Direction.AllowsPull() {
		return nil, fmt.Errorf("%w: direction %s does not allow pull", apperrors.ErrSyncDirection, mapping.Direction)
	}

	endpoint, err := buildURL(c.baseURL, "tables", mapping.Table(slug), "records")
	if err != nil {
		return nil, err
	}

	respBody, err := c.call(ctx, http.MethodGet, endpoint, "")
	if err != nil {
		return nil, err
	}

	var response struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal([]byte(respBody), &response); err != nil {
		return nil, fmt.Errorf("failed to parse bridge response: %w", err)
	}
	return response.Records, nil
}

// Dispatch implements services.Dispatcher so the retry orchestrator can
// reissue a recorded call verbatim.
func (c *Client) Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body string) (*services.DispatchOutcome, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &services.DispatchOutcome{Duration: time.Since(start)}, fmt.Errorf("bridge call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &services.DispatchOutcome{
			StatusCode: resp.StatusCode,
			Duration:   time.Since(start),
		}, fmt.Errorf("failed to read bridge response: %w", err)
	}

	return &services.DispatchOutcome{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       string(respBody),
		Duration:   time.Since(start),
	}, nil
}

// call dispatches a request and records the attempt synchronously before
// returning the outcome to the caller, so no call is ever lost between
// dispatch and record.
func (c *Client) call(ctx context.Context, method, endpoint, body string) (string, error) {
	headers := map[string]string{"Accept": "application/json"}
	if body != "" {
		headers["Content-Type"] = "application/json"
	}

	outcome, callErr := c.Dispatch(ctx, method, endpoint, headers, body)

	log := &models.IntegrationLog{
		Direction:      models.DirectionOutbound,
		Endpoint:       endpoint,
		Method:         method,
		RequestHeaders: headers,
		RequestBody:    body,
	}
	if outcome != nil {
		log.StatusCode = outcome.StatusCode
		log.ResponseHeaders = outcome.Headers
		log.ResponseBody = outcome.Body
		log.DurationMS = outcome.Duration.Milliseconds()
	}

	if err := c.recorder.RecordOutcome(ctx, log, callErr); err != nil {
		c.logger.Error("Failed to record bridge call",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return "", err
	}

	if callErr != nil {
		return "", callErr
	}
	if outcome.StatusCode < 200 || outcome.StatusCode >= 300 {
		return "", fmt.Errorf("bridge returned status %d", outcome.StatusCode)
	}
	return outcome.Body, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
