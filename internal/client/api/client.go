// Package api is the HTTP client the focus client uses to talk to the
// engagement service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the engagement API client.
type ClientConfig struct {
	// BaseURL includes the API base path, e.g. http://localhost:8080/api.
	BaseURL string

	Timeout time.Duration

	// StatusRetrier retries status fetches. Defaults to retry.StatusFetchRetrier.
	StatusRetrier *retry.Retrier

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS / RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// CheckInRequest is the body of POST /daily-checkin.
type CheckInRequest struct {
	StudentID     string   `json:"student_id"`
	QuizScore     float64  `json:"quiz_score"`
	FocusMinutes  *float64 `json:"focus_minutes,omitempty"`
	FocusDuration string   `json:"focus_duration,omitempty"`
}

// ViolationRequest is the body of POST /report-cheat.
type ViolationRequest struct {
	StudentID     string `json:"student_id"`
	FocusDuration string `json:"focus_duration,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// EngagementResponse is returned by check-in and violation reports.
type EngagementResponse struct {
	Status  engagement.State `json:"status"`
	Warning string           `json:"warning,omitempty"`
}

// Message is the user-facing outcome, with the warning appended when present.
func (r *EngagementResponse) Message() string {
	msg := "Status: " + string(r.Status)
	if r.Warning != "" {
		msg += " (warning: " + r.Warning + ")"
	}
	return msg
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the engagement service.
type Client struct {
	config        ClientConfig
	baseURL       string
	httpClient    *http.Client
	statusRetrier *retry.Retrier
	logger        *slog.Logger
}

// NewClient creates a client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	c := &Client{
		config:     config,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger.With("component", "engagement_api"),
	}

	c.statusRetrier = config.StatusRetrier
	if c.statusRetrier == nil {
		c.statusRetrier = retry.StatusFetchRetrier(
			retry.WithRetryIf(IsRetryable),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				c.logger.Debug("status fetch failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			}),
		)
	}
	return c
}

// CheckIn submits a daily check-in.
func (c *Client) CheckIn(ctx context.Context, req CheckInRequest) (*EngagementResponse, error) {
	var resp EngagementResponse
	if err := c.do(ctx, http.MethodPost, "/daily-checkin", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportViolation reports a focus violation. It is not retried.
func (c *Client) ReportViolation(ctx context.Context, req ViolationRequest) (*EngagementResponse, error) {
	var resp EngagementResponse
	if err := c.do(ctx, http.MethodPost, "/report-cheat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the authoritative status, retrying transient failures.
func (c *Client) Status(ctx context.Context, studentID string) (*engagement.StatusView, error) {
	path := "/student/" + url.PathEscape(studentID) + "/status"
	return retry.DoWithData(ctx, c.statusRetrier, func(ctx context.Context) (*engagement.StatusView, error) {
		var view engagement.StatusView
		if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
			return nil, err
		}
		return &view, nil
	})
}

// CompleteIntervention marks a remedial task done.
func (c *Client) CompleteIntervention(ctx context.Context, studentID, interventionID, focusDuration string) error {
	body := map[string]string{"student_id": studentID, "intervention_id": interventionID}
	if focusDuration != "" {
		body["focus_duration"] = focusDuration
	}
	return c.do(ctx, http.MethodPost, "/complete-intervention", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engagement api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRetryable reports server-side and transport failures.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
