package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL: srv.URL + "/",
		Timeout: time.Second,
		StatusRetrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(time.Millisecond),
			retry.WithRetryIf(IsRetryable),
		),
	})
}

func TestReportViolation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/report-cheat", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s-1", body["student_id"])
		assert.Equal(t, "03:07", body["focus_duration"])
		_, _ = w.Write([]byte(`{"status":"needs_intervention","warning":"mentor notification may have failed"}`))
	})

	resp, err := c.ReportViolation(context.Background(), ViolationRequest{StudentID: "s-1", FocusDuration: "03:07"})
	require.NoError(t, err)
	assert.Equal(t, engagement.StateNeedsIntervention, resp.Status)
	assert.Contains(t, resp.Message(), "warning: mentor notification may have failed")
}

func TestCheckIn_ValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"validation_error","message":"quiz_score is required"}}`))
	})

	_, err := c.CheckIn(context.Background(), CheckInRequest{StudentID: "s-1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "quiz_score is required", apiErr.Message)
	assert.False(t, IsRetryable(err))
}

func TestStatus_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/student/s-1/status", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"student":{"id":"s-1","state":"remedial"},"intervention":{"id":"i-1","status":"pending"}}`))
	})

	view, err := c.Status(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, engagement.StateRemedial, view.Student.State)
	assert.Equal(t, "i-1", view.Intervention.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStatus_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Status(context.Background(), "ghost")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}
