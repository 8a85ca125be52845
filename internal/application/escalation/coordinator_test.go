package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/memory"
)

type stubNotifier struct {
	mu     sync.Mutex
	result NotifyResult
	err    error
	block  bool
	alerts []MentorAlert
}

func (n *stubNotifier) Notify(ctx context.Context, alert MentorAlert) (NotifyResult, error) {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	if n.block {
		<-ctx.Done()
		return NotifyResult{}, ctx.Err()
	}
	return n.result, n.err
}

func (n *stubNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates map[string][]engagement.StatusUpdate
	err     error

	// firstDelay stalls the first push only.
	firstDelay time.Duration
	calls      int
	gate       chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, studentID string, u engagement.StatusUpdate) error {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if first && p.firstDelay > 0 {
		time.Sleep(p.firstDelay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updates == nil {
		p.updates = make(map[string][]engagement.StatusUpdate)
	}
	p.updates[studentID] = append(p.updates[studentID], u)
	return p.err
}

func (p *recordingPublisher) all(studentID string) []engagement.StatusUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engagement.StatusUpdate(nil), p.updates[studentID]...)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (i *countingInvalidator) InvalidateStatus(context.Context, string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return nil
}

func (i *countingInvalidator) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

func (p *recordingPublisher) last(studentID string) (engagement.StatusUpdate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.updates[studentID]
	if len(u) == 0 {
		return engagement.StatusUpdate{}, false
	}
	return u[len(u)-1], true
}

type fixture struct {
	store     *memory.Store
	notifier  *stubNotifier
	publisher *recordingPublisher
	coord     *Coordinator
	machine   *engagement.Machine
	student   *engagement.Student
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := memory.New()
	st, err := engagement.NewStudent("s-1", "Dana", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Students().Create(context.Background(), st))

	f := &fixture{
		store:     store,
		notifier:  &stubNotifier{},
		publisher: &recordingPublisher{},
		machine:   engagement.NewMachine(engagement.DefaultThresholds()),
		student:   st,
	}
	f.coord = NewCoordinator(store, f.notifier, f.publisher, cfg, nil)
	return f
}

func (f *fixture) apply(t *testing.T, sig engagement.Signal) (*Result, error) {
	t.Helper()
	d, err := f.machine.Decide(f.student.State, sig)
	require.NoError(t, err)
	return f.coord.Apply(context.Background(), Transition{
		Student:      f.student,
		Decision:     d,
		QuizScore:    sig.QuizScore,
		FocusMinutes: sig.FocusMinutes,
	})
}

// assign stores a pending intervention and applies the assignment.
func (f *fixture) assign(t *testing.T, id string) *engagement.Intervention {
	t.Helper()
	iv, err := engagement.NewIntervention(id, f.student.ID, "Rewrite the essay", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.Interventions().Create(context.Background(), iv))

	d, err := f.machine.Decide(f.student.State, engagement.Signal{Kind: engagement.SignalAssign})
	require.NoError(t, err)
	_, err = f.coord.Apply(context.Background(), Transition{Student: f.student, Decision: d, Intervention: iv})
	require.NoError(t, err)
	return iv
}

func (f *fixture) storedState(t *testing.T) engagement.State {
	t.Helper()
	st, err := f.store.Students().GetByID(context.Background(), f.student.ID)
	require.NoError(t, err)
	return st.State
}

func TestCoordinator_OnTrackCheckInDoesNotNotify(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	res, err := f.apply(t, engagement.CheckIn(8, 61))
	require.NoError(t, err)
	f.coord.Drain()

	assert.Equal(t, engagement.StateNormal, res.State)
	assert.Equal(t, NotificationNone, res.Notification)
	assert.Empty(t, res.Warning)
	assert.Zero(t, f.notifier.calls())

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, engagement.OutcomeOnTrack, logs[0].Outcome)

	u, ok := f.publisher.last("s-1")
	require.True(t, ok)
	assert.Equal(t, engagement.StateNormal, u.Status)
}

func TestCoordinator_FailingCheckInNotifies(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	res, err := f.apply(t, engagement.CheckIn(7, 61))
	require.NoError(t, err)

	assert.Equal(t, engagement.StateNeedsIntervention, res.State)
	assert.Equal(t, NotificationSent, res.Notification)
	require.Equal(t, 1, f.notifier.calls())
	assert.Equal(t, 7.0, f.notifier.alerts[0].QuizScore)
	assert.Equal(t, engagement.OutcomeNeedsIntervention, f.notifier.alerts[0].Reason)
}

func TestCoordinator_NotifierFailureStillPersists(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.notifier.err = errors.New("connection refused")

	res, err := f.apply(t, engagement.CheckIn(2, 10))
	require.NoError(t, err)
	f.coord.Drain()

	assert.Equal(t, engagement.StateNeedsIntervention, res.State)
	assert.Equal(t, NotificationFailed, res.Notification)
	assert.Equal(t, WarningNotifyFailed, res.Warning)
	assert.Len(t, f.store.Logs(), 1)
	assert.Equal(t, engagement.StateNeedsIntervention, f.storedState(t))

	_, pushed := f.publisher.last("s-1")
	assert.True(t, pushed)
}

func TestCoordinator_NotifierTimeoutCountsAsFailed(t *testing.T) {
	f := newFixture(t, Config{NotifyTimeout: 20 * time.Millisecond})
	f.notifier.block = true

	start := time.Now()
	res, err := f.apply(t, engagement.Violation(3, ""))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, NotificationFailed, res.Notification)
	assert.NotEmpty(t, res.Warning)
}

func TestCoordinator_SkippedCarriesTransportMessage(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.notifier.result = NotifyResult{Skipped: true, Message: "no mentor chat configured"}

	res, err := f.apply(t, engagement.Violation(3, "blur"))
	require.NoError(t, err)

	assert.Equal(t, NotificationSkipped, res.Notification)
	assert.Equal(t, "no mentor chat configured", res.Warning)
	assert.Equal(t, "blur", f.store.Logs()[0].Outcome)
}

func TestCoordinator_LogFailureAbortsBeforeStateChange(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.store.FailOn(memory.OpAppendLog, errors.New("disk full"))

	_, err := f.apply(t, engagement.CheckIn(2, 10))
	require.Error(t, err)

	assert.True(t, shared.IsPersistence(err))
	assert.Equal(t, engagement.StateNormal, f.storedState(t))
	assert.Zero(t, f.notifier.calls())
}

func TestCoordinator_StateFailureKeepsLogRow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.store.FailOn(memory.OpUpdateState, errors.New("connection reset"))

	_, err := f.apply(t, engagement.CheckIn(2, 10))
	require.Error(t, err)

	assert.True(t, shared.IsPersistence(err))
	assert.Len(t, f.store.Logs(), 1)
	assert.Zero(t, f.notifier.calls())
}

func TestCoordinator_PublishFailureIsContained(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publisher.err = errors.New("hub closed")

	res, err := f.apply(t, engagement.CheckIn(9, 90))
	require.NoError(t, err)
	f.coord.Drain()

	assert.Equal(t, engagement.StateNormal, res.State)
}

func TestCoordinator_ViolationClearsInterventionInPush(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d, err := f.machine.Decide(engagement.StateRemedial, engagement.Violation(1, ""))
	require.NoError(t, err)

	_, err = f.coord.Apply(context.Background(), Transition{
		Student:      f.student,
		Decision:     d,
		Intervention: &engagement.Intervention{ID: "i-1"},
	})
	require.NoError(t, err)
	f.coord.Drain()

	u, ok := f.publisher.last("s-1")
	require.True(t, ok)
	assert.Nil(t, u.Intervention)
}

type countingLimiter struct {
	allowed int
	err     error
}

func (l *countingLimiter) Allow(context.Context, string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.allowed <= 0 {
		return false, nil
	}
	l.allowed--
	return true, nil
}

func TestRateLimitedNotifier(t *testing.T) {
	next := &stubNotifier{}
	n := NewRateLimitedNotifier(next, &countingLimiter{allowed: 1}, nil)

	res, err := n.Notify(context.Background(), MentorAlert{StudentID: "s-1"})
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	res, err = n.Notify(context.Background(), MentorAlert{StudentID: "s-1"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, next.calls())

	broken := NewRateLimitedNotifier(next, &countingLimiter{err: errors.New("redis down")}, nil)
	res, err = broken.Notify(context.Background(), MentorAlert{StudentID: "s-1"})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, next.calls())
}

func TestCoordinator_InvalidatesStatusBeforeReturning(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publisher.gate = make(chan struct{})
	inv := &countingInvalidator{}
	f.coord.WithStatusInvalidator(inv)

	_, err := f.apply(t, engagement.Violation(3, ""))
	require.NoError(t, err)

	assert.Equal(t, 1, inv.count(), "cache must be dropped while the push is still pending")

	close(f.publisher.gate)
	f.coord.Drain()
	assert.Equal(t, 2, inv.count())
}

func TestCoordinator_InvalidatesNothingOnFailedUpdate(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	inv := &countingInvalidator{}
	f.coord.WithStatusInvalidator(inv)
	f.store.FailOn(memory.OpUpdateState, errors.New("connection reset"))

	_, err := f.apply(t, engagement.CheckIn(2, 10))
	require.Error(t, err)
	f.coord.Drain()

	assert.Zero(t, inv.count())
}

func TestCoordinator_PushesKeepApplyOrderPerStudent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publisher.firstDelay = 30 * time.Millisecond

	f.assign(t, "iv-1")
	_, err := f.apply(t, engagement.CheckIn(2, 10))
	require.NoError(t, err)
	f.coord.Drain()

	updates := f.publisher.all("s-1")
	require.Len(t, updates, 2)
	assert.Equal(t, engagement.StateRemedial, updates[0].Status)
	assert.Equal(t, engagement.StateNeedsIntervention, updates[1].Status)
	assert.False(t, updates[1].UpdatedAt.Before(updates[0].UpdatedAt))
	assert.Equal(t, engagement.StateNeedsIntervention, f.storedState(t))
}

func TestCoordinator_CheckInPushCarriesPendingIntervention(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	iv := f.assign(t, "iv-1")
	_, err := f.apply(t, engagement.CheckIn(2, 10))
	require.NoError(t, err)
	f.coord.Drain()

	u, ok := f.publisher.last("s-1")
	require.True(t, ok)
	assert.Equal(t, engagement.StateNeedsIntervention, u.Status)
	require.NotNil(t, u.Intervention)
	assert.Equal(t, iv.ID, u.Intervention.ID)
}

func TestCoordinator_SkipsPushWhenPendingLookupFails(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.store.FailOn(memory.OpFindPending, errors.New("timeout"))

	res, err := f.apply(t, engagement.CheckIn(2, 10))
	require.NoError(t, err)
	f.coord.Drain()

	assert.Equal(t, engagement.StateNeedsIntervention, res.State)
	_, pushed := f.publisher.last("s-1")
	assert.False(t, pushed)
}
