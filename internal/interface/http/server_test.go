package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/application/command"
	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/application/query"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/memory"
)

type stubNotifier struct {
	res   escalation.NotifyResult
	err   error
	calls int
}

func (n *stubNotifier) Notify(context.Context, escalation.MentorAlert) (escalation.NotifyResult, error) {
	n.calls++
	return n.res, n.err
}

type testAPI struct {
	store    *memory.Store
	notifier *stubNotifier
	handler  http.Handler
	coord    *escalation.Coordinator
}

// viewCache is an in-process StatusCache that can be invalidated.
type viewCache struct {
	mu    sync.Mutex
	views map[string]*engagement.StatusView
}

func (c *viewCache) GetStatus(_ context.Context, id string) (*engagement.StatusView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[id], nil
}

func (c *viewCache) SetStatus(_ context.Context, id string, v *engagement.StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[id] = v
	return nil
}

func (c *viewCache) InvalidateStatus(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	return nil
}

// gatedPublisher holds every push until release is closed.
type gatedPublisher struct {
	release chan struct{}
}

func (p *gatedPublisher) Publish(ctx context.Context, _ string, _ engagement.StatusUpdate) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestAPI(t *testing.T) *testAPI {
	return newCachedTestAPI(t, nil, nil)
}

func newCachedTestAPI(t *testing.T, cache *viewCache, publisher escalation.StatusPublisher) *testAPI {
	t.Helper()

	store := memory.New()
	notifier := &stubNotifier{}
	coord := escalation.NewCoordinator(store, notifier, publisher, escalation.DefaultConfig(), nil)

	var statusCache query.StatusCache
	if cache != nil {
		coord.WithStatusInvalidator(cache)
		statusCache = cache
	}
	deps := command.Deps{Store: store, Coordinator: coord}

	health := NewHealthChecker("test")
	health.AddCheck("store", PingCheck(store))

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, Dependencies{
		RegisterStudent:      command.NewRegisterStudentHandler(deps),
		DailyCheckIn:         command.NewDailyCheckInHandler(deps),
		ReportViolation:      command.NewReportViolationHandler(deps),
		AssignIntervention:   command.NewAssignInterventionHandler(deps, true),
		CompleteIntervention: command.NewCompleteInterventionHandler(deps),
		GetStatus:            query.NewGetStatusHandler(store, statusCache, nil),
		GetLogs:              query.NewGetLogsHandler(store),
		Health:               health,
	})

	api := &testAPI{store: store, notifier: notifier, handler: srv.Handler(), coord: coord}
	t.Cleanup(coord.Drain)

	rec := api.do(t, http.MethodPost, "/students", map[string]any{"student_id": "s-1", "display_name": "Aru"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) state(t *testing.T) engagement.State {
	t.Helper()
	st, err := a.store.Students().GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	return st.State
}

func TestDailyCheckIn_Thresholds(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]any
		want   engagement.State
		notify bool
	}{
		{"on track", map[string]any{"quiz_score": 8, "focus_minutes": 61}, engagement.StateNormal, false},
		{"score boundary", map[string]any{"quiz_score": 7, "focus_minutes": 61}, engagement.StateNeedsIntervention, true},
		{"focus boundary", map[string]any{"quiz_score": 9, "focus_minutes": 60}, engagement.StateNeedsIntervention, true},
		{"clock duration", map[string]any{"quiz_score": 9, "focus_duration": "61:30"}, engagement.StateNormal, false},
		{"string score", map[string]any{"quiz_score": "8.5", "focus_minutes": "90"}, engagement.StateNormal, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			tc.body["student_id"] = "s-1"

			rec := api.do(t, http.MethodPost, "/daily-checkin", tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[EngagementResponse](t, rec)
			assert.Equal(t, tc.want, resp.Status)
			assert.Empty(t, resp.Warning)
			assert.Equal(t, tc.want, api.state(t))
			assert.Equal(t, tc.notify, api.notifier.calls == 1)
			assert.Len(t, api.store.Logs(), 1)
		})
	}
}

func TestDailyCheckIn_MissingFields(t *testing.T) {
	api := newTestAPI(t)

	for _, body := range []any{
		map[string]any{"quiz_score": 8, "focus_minutes": 61},
		map[string]any{"student_id": "s-1", "focus_minutes": 61},
		map[string]any{"student_id": "s-1", "quiz_score": 8},
		map[string]any{"student_id": "s-1", "quiz_score": true, "focus_minutes": 61},
		"{not json",
	} {
		rec := api.do(t, http.MethodPost, "/daily-checkin", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.NotEmpty(t, decode[ErrorBody](t, rec).Error.Message)
	}
	assert.Empty(t, api.store.Logs())
}

func TestDailyCheckIn_UnknownStudent(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/daily-checkin", map[string]any{"student_id": "ghost", "quiz_score": 8, "focus_minutes": 61})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDailyCheckIn_NotificationFailureStillSucceeds(t *testing.T) {
	api := newTestAPI(t)
	api.notifier.err = errors.New("transport down")

	rec := api.do(t, http.MethodPost, "/daily-checkin", map[string]any{"student_id": "s-1", "quiz_score": 3, "focus_minutes": 10})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[EngagementResponse](t, rec)
	assert.Equal(t, engagement.StateNeedsIntervention, resp.Status)
	assert.Equal(t, escalation.WarningNotifyFailed, resp.Warning)
	assert.Equal(t, engagement.StateNeedsIntervention, api.state(t))
	assert.Len(t, api.store.Logs(), 1)
}

func TestDailyCheckIn_NotificationSkippedWarns(t *testing.T) {
	api := newTestAPI(t)
	api.notifier.res = escalation.NotifyResult{Skipped: true, Message: "no mentor configured"}

	rec := api.do(t, http.MethodPost, "/daily-checkin", map[string]any{"student_id": "s-1", "quiz_score": 3, "focus_minutes": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no mentor configured", decode[EngagementResponse](t, rec).Warning)
}

func TestDailyCheckIn_PersistenceFailure(t *testing.T) {
	api := newTestAPI(t)
	api.store.FailOn(memory.OpAppendLog, errors.New("disk full"))

	rec := api.do(t, http.MethodPost, "/daily-checkin", map[string]any{"student_id": "s-1", "quiz_score": 8, "focus_minutes": 61})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, "internal_error", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "disk full")
}

func TestReportCheat(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/report-cheat", map[string]any{"student_id": "s-1", "focus_duration": "05:30"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engagement.StateNeedsIntervention, decode[EngagementResponse](t, rec).Status)

	logs := api.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "cheated", logs[0].Outcome)
	assert.InDelta(t, 5.5, logs[0].FocusMinutes, 1e-9)
	assert.Equal(t, 1, api.notifier.calls)

	rec = api.do(t, http.MethodPost, "/report-cheat", map[string]any{"focus_duration": "05:30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterventionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/assign-intervention", map[string]any{"student_id": "s-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/assign-intervention", map[string]any{"student_id": "s-1", "task_description": "Redo quiz 3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode[AssignResponse](t, rec)
	assert.True(t, assigned.Success)
	require.NotEmpty(t, assigned.InterventionID)
	assert.Equal(t, engagement.StateRemedial, api.state(t))

	rec = api.do(t, http.MethodPost, "/assign-intervention", map[string]any{"student_id": "s-1", "task_description": "Another"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/student/s-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[engagement.StatusView](t, rec)
	assert.Equal(t, engagement.StateRemedial, view.Student.State)
	require.NotNil(t, view.Intervention)
	assert.Equal(t, assigned.InterventionID, view.Intervention.ID)

	rec = api.do(t, http.MethodPost, "/complete-intervention", map[string]any{"student_id": "s-1", "intervention_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, engagement.StateRemedial, api.state(t))

	rec = api.do(t, http.MethodPost, "/complete-intervention", map[string]any{"student_id": "s-1", "intervention_id": assigned.InterventionID, "focus_duration": "12:00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CompleteResponse](t, rec).Success)
	assert.Equal(t, engagement.StateNormal, api.state(t))

	iv := api.store.Intervention(assigned.InterventionID)
	require.NotNil(t, iv)
	assert.Equal(t, engagement.InterventionCompleted, iv.Status)
	assert.NotNil(t, iv.CompletedAt)

	rec = api.do(t, http.MethodGet, "/student/s-1/status", nil)
	view = decode[engagement.StatusView](t, rec)
	assert.Nil(t, view.Intervention)
	assert.Contains(t, rec.Body.String(), `"intervention":null`)
}

func TestGetStatus_NotFound(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/student/ghost/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorBody](t, rec).Error.Code)
}

func TestGetLogs(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.do(t, http.MethodPost, "/daily-checkin", map[string]any{"student_id": "s-1", "quiz_score": 8, "focus_minutes": 61})
	}

	rec := api.do(t, http.MethodGet, "/student/s-1/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Logs []engagement.DailyLog `json:"logs"`
	}](t, rec)
	assert.Len(t, body.Logs, 2)
}

func TestRegisterStudent_Duplicate(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/students", map[string]any{"student_id": "s-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthStatus](t, rec).Healthy)

	api.store.FailOn(memory.OpPing, errors.New("down"))
	rec = api.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = api.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestStatusForError(t *testing.T) {
	code, _ := statusForError(engagement.ErrMissingStudentID)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = statusForError(engagement.ErrStudentNotFound)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = statusForError(engagement.ErrInterventionPending)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = statusForError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestGetStatus_FreshAfterReportWhilePushPending(t *testing.T) {
	cache := &viewCache{views: map[string]*engagement.StatusView{}}
	pub := &gatedPublisher{release: make(chan struct{})}
	api := newCachedTestAPI(t, cache, pub)
	t.Cleanup(func() { close(pub.release) })

	rec := api.do(t, http.MethodGet, "/student/s-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engagement.StateNormal, decode[engagement.StatusView](t, rec).Student.State)

	rec = api.do(t, http.MethodPost, "/report-cheat", map[string]any{"student_id": "s-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/student/s-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engagement.StateNeedsIntervention, decode[engagement.StatusView](t, rec).Student.State)
}
