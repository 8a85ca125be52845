package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/client/api"
	"github.com/alem-hub/engagement-hub/internal/client/focus"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

type fakeService struct {
	completeErr error
	completed   []string
	view        *engagement.StatusView

	checkIns   []api.CheckInRequest
	checkInErr error
	checkIn    *api.EngagementResponse
}

func (f *fakeService) CheckIn(_ context.Context, req api.CheckInRequest) (*api.EngagementResponse, error) {
	f.checkIns = append(f.checkIns, req)
	return f.checkIn, f.checkInErr
}

func (f *fakeService) CompleteIntervention(_ context.Context, _, interventionID, _ string) error {
	f.completed = append(f.completed, interventionID)
	return f.completeErr
}

func (f *fakeService) Status(context.Context, string) (*engagement.StatusView, error) {
	return f.view, nil
}

func newTestModel(t *testing.T) (model, *focus.Monitor) {
	return newTestModelWithService(t, nil)
}

func newTestModelWithService(t *testing.T, service engagementService) (model, *focus.Monitor) {
	t.Helper()
	terminal := focus.NewEventSource()
	mon := focus.NewMonitor(focus.MonitorConfig{
		StudentID:    "s1",
		Observers:    []focus.LifecycleObserver{terminal},
		TickInterval: time.Hour,
	})
	t.Cleanup(mon.Close)
	return newModel("s1", mon, terminal, service), mon
}

func press(m model, k string) model {
	var msg tea.KeyMsg
	if k == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	} else {
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func TestModel_ToggleAndReset(t *testing.T) {
	m, mon := newTestModel(t)

	m = press(m, " ")
	assert.Equal(t, focus.PhaseRunning, mon.Snapshot().Phase)

	m = press(m, " ")
	assert.Equal(t, focus.PhaseStopped, mon.Snapshot().Phase)

	press(m, "r")
	assert.Equal(t, focus.PhaseIdle, mon.Snapshot().Phase)
}

func TestModel_BlurWhileRunningViolates(t *testing.T) {
	m, mon := newTestModel(t)

	m = press(m, " ")
	next, _ := m.Update(tea.BlurMsg{})
	m = next.(model)
	mon.Wait()

	assert.Equal(t, focus.PhaseViolated, mon.Snapshot().Phase)
	assert.Equal(t, engagement.StateNeedsIntervention, mon.Local().Snapshot().Status)

	next, _ = m.Update(stateMsg(mon.Local().Snapshot()))
	assert.Contains(t, next.View(), "focus lost")
}

func TestModel_BlurWhileIdleIsHarmless(t *testing.T) {
	m, mon := newTestModel(t)

	next, _ := m.Update(tea.BlurMsg{})
	require.IsType(t, model{}, next)
	assert.Equal(t, focus.PhaseIdle, mon.Snapshot().Phase)
	assert.Equal(t, engagement.StateNormal, mon.Local().Snapshot().Status)
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func pendingTask() *engagement.Intervention {
	return &engagement.Intervention{
		ID:              "iv-1",
		StudentID:       "s1",
		TaskDescription: "redo quiz 3",
		Status:          engagement.InterventionPending,
	}
}

func TestModel_DoneCompletesPendingTask(t *testing.T) {
	tasks := &fakeService{view: &engagement.StatusView{
		Student: &engagement.Student{ID: "s1", State: engagement.StateNormal},
	}}
	m, mon := newTestModelWithService(t, tasks)
	mon.Local().Dispatch(focus.StatusPushed{Update: engagement.StatusUpdate{
		Status:       engagement.StateRemedial,
		Intervention: pendingTask(),
	}})
	next, _ := m.Update(stateMsg(mon.Local().Snapshot()))
	m = next.(model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	assert.Equal(t, []string{"iv-1"}, tasks.completed)
	state := mon.Local().Snapshot()
	assert.Equal(t, engagement.StateNormal, state.Status)
	assert.Nil(t, state.Intervention)
	assert.Equal(t, "Task done. Welcome back.", state.Message)
}

func TestModel_DoneOnClosedTask(t *testing.T) {
	tasks := &fakeService{completeErr: &api.APIError{StatusCode: http.StatusNotFound}}
	m, mon := newTestModelWithService(t, tasks)
	mon.Local().Dispatch(focus.StatusPushed{Update: engagement.StatusUpdate{
		Status:       engagement.StateRemedial,
		Intervention: pendingTask(),
	}})
	next, _ := m.Update(stateMsg(mon.Local().Snapshot()))
	m = next.(model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, "That task is already closed.", mon.Local().Snapshot().Message)
}

func TestModel_DoneWithoutTaskIsIgnored(t *testing.T) {
	tasks := &fakeService{}
	m, _ := newTestModelWithService(t, tasks)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	assert.Nil(t, cmd)
	assert.Empty(t, tasks.completed)
}

func typeText(m model, text string) model {
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(model)
	}
	return m
}

func TestModel_CheckInSubmitsScoreAndSessionClock(t *testing.T) {
	service := &fakeService{
		checkIn: &api.EngagementResponse{
			Status:  engagement.StateNormal,
			Warning: "focus time below target",
		},
		view: &engagement.StatusView{
			Student: &engagement.Student{ID: "s1", State: engagement.StateNormal},
		},
	}
	m, mon := newTestModelWithService(t, service)

	m = press(m, "c")
	require.True(t, m.entering)
	assert.Contains(t, m.View(), "Quiz score:")

	m = typeText(m, "7.5")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.False(t, m.entering)
	assert.Nil(t, cmd())

	require.Len(t, service.checkIns, 1)
	req := service.checkIns[0]
	assert.Equal(t, "s1", req.StudentID)
	assert.InDelta(t, 7.5, req.QuizScore, 1e-9)
	assert.Equal(t, mon.Snapshot().Clock(), req.FocusDuration)

	msg := mon.Local().Snapshot().Message
	assert.Contains(t, msg, "Check-in recorded.")
	assert.Contains(t, msg, "focus time below target")
}

func TestModel_CheckInRejectsNonNumericScore(t *testing.T) {
	service := &fakeService{}
	m, mon := newTestModelWithService(t, service)

	m = press(m, "c")
	m = typeText(m, "abc")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	assert.Nil(t, cmd)
	assert.True(t, m.entering)
	assert.Empty(t, service.checkIns)
	assert.Equal(t, "Quiz score must be a non-negative number.", mon.Local().Snapshot().Message)
}

func TestModel_CheckInValidationError(t *testing.T) {
	service := &fakeService{checkInErr: &api.APIError{
		StatusCode: http.StatusBadRequest,
		Message:    "quiz_score must be between 0 and 10",
	}}
	m, mon := newTestModelWithService(t, service)

	m = press(m, "c")
	m = typeText(m, "42")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, "Check-in rejected: quiz_score must be between 0 and 10", mon.Local().Snapshot().Message)
}

func TestModel_CheckInEscCancels(t *testing.T) {
	service := &fakeService{}
	m, mon := newTestModelWithService(t, service)

	m = press(m, "c")
	m = typeText(m, "q")
	require.True(t, m.entering, "q is typed into the prompt, not quit")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(model)
	assert.Nil(t, cmd)
	assert.False(t, m.entering)
	assert.NotContains(t, m.View(), "Quiz score:")
	assert.Empty(t, service.checkIns)

	press(m, " ")
	assert.Equal(t, focus.PhaseRunning, mon.Snapshot().Phase)
}
