// Package escalation sequences persistence, mentor notification and status
// push for every engagement transition.
package escalation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// WarningNotifyFailed is returned to the caller when the transport errored or timed out.
const WarningNotifyFailed = "mentor notification may have failed"

// WarningNotifySkipped is used when the transport declines without a message.
const WarningNotifySkipped = "mentor notification was skipped"

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// MentorAlert is what the mentor transport needs to escalate a student.
type MentorAlert struct {
	StudentID    string
	DisplayName  string
	QuizScore    float64
	FocusMinutes float64
	Reason       string
}

// NotifyResult is the transport's answer. Skipped means it declined on purpose.
type NotifyResult struct {
	Skipped bool
	Message string
}

// Notifier delivers mentor alerts.
type Notifier interface {
	Notify(ctx context.Context, alert MentorAlert) (NotifyResult, error)
}

// StatusPublisher pushes state changes to connected clients. Implementations
// may drop updates; the polling endpoint remains authoritative.
type StatusPublisher interface {
	Publish(ctx context.Context, studentID string, update engagement.StatusUpdate) error
}

// StatusInvalidator drops cached status views. It runs before Apply returns
// so a read that follows the response never sees the previous state.
type StatusInvalidator interface {
	InvalidateStatus(ctx context.Context, studentID string) error
}

// NotificationOutcome classifies the notification step.
type NotificationOutcome string

const (
	NotificationNone    NotificationOutcome = "none"
	NotificationSent    NotificationOutcome = "sent"
	NotificationSkipped NotificationOutcome = "skipped"
	NotificationFailed  NotificationOutcome = "failed"
)

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// Transition is a decided state change ready to be applied.
type Transition struct {
	Student      *engagement.Student
	Decision     engagement.Decision
	QuizScore    float64
	FocusMinutes float64

	// Intervention is attached to the pushed status update. When nil the
	// student's current pending intervention is attached instead, unless
	// the decision clears it.
	Intervention *engagement.Intervention
}

// Result reflects what actually happened. State is always the persisted state.
type Result struct {
	State        engagement.State
	Notification NotificationOutcome
	Warning      string
	LogID        int64
}

// Config for the coordinator.
type Config struct {
	// NotifyTimeout bounds the transport call. Expiry counts as failed.
	NotifyTimeout time.Duration

	// PublishTimeout bounds each background status push.
	PublishTimeout time.Duration
}

// DefaultConfig returns a 5s notification timeout.
func DefaultConfig() Config {
	return Config{
		NotifyTimeout:  5 * time.Second,
		PublishTimeout: 3 * time.Second,
	}
}

// Coordinator applies transitions. It is safe for concurrent use.
type Coordinator struct {
	students      engagement.StudentRepository
	logs          engagement.DailyLogRepository
	interventions engagement.InterventionRepository
	notifier      Notifier
	publisher     StatusPublisher
	invalidator   StatusInvalidator
	config        Config
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	queues   map[string]*pushQueue
	inflight sync.WaitGroup
}

// pushQueue holds one student's updates in the order they were applied.
type pushQueue struct {
	pending []engagement.StatusUpdate
}

// NewCoordinator creates a coordinator. notifier and publisher may be nil.
func NewCoordinator(
	store engagement.Store,
	notifier Notifier,
	publisher StatusPublisher,
	config Config,
	logger *slog.Logger,
) *Coordinator {
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = DefaultConfig().NotifyTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		students:      store.Students(),
		logs:          store.DailyLogs(),
		interventions: store.Interventions(),
		notifier:      notifier,
		publisher:     publisher,
		config:        config,
		logger:        logger.With("component", "escalation"),
		now:           func() time.Time { return time.Now().UTC() },
		queues:        make(map[string]*pushQueue),
	}
}

// WithStatusInvalidator sets the cache dropped on every state change.
func (c *Coordinator) WithStatusInvalidator(inv StatusInvalidator) *Coordinator {
	c.invalidator = inv
	return c
}

// WithClock overrides the time source. Intended for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Apply persists the transition, escalates when needed and pushes the new status.
//
// A failed log write aborts before any state change. A failed state update
// after a successful log write is reported as a persistence error and the log
// row stays. Notification problems never fail the call.
func (c *Coordinator) Apply(ctx context.Context, tr Transition) (*Result, error) {
	studentID := tr.Student.ID
	d := tr.Decision
	// Postgres keeps microseconds; pushed and fetched timestamps must compare equal.
	now := c.now().Truncate(time.Microsecond)

	result := &Result{State: d.Target, Notification: NotificationNone}

	if d.WriteLog {
		entry := &engagement.DailyLog{
			StudentID:    studentID,
			QuizScore:    tr.QuizScore,
			FocusMinutes: tr.FocusMinutes,
			Outcome:      d.Outcome,
			CreatedAt:    now,
		}
		if err := c.logs.Append(ctx, entry); err != nil {
			return nil, asPersistence("daily_log", "Append", err)
		}
		result.LogID = entry.ID
	}

	if err := c.students.UpdateState(ctx, studentID, d.Target, now); err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, asPersistence("student", "UpdateState", err)
	}
	tr.Student.State = d.Target
	tr.Student.UpdatedAt = now
	c.invalidate(ctx, studentID)

	c.logger.Info("engagement state applied",
		"student_id", studentID,
		"from", d.From,
		"to", d.Target,
		"outcome", d.Outcome,
	)

	if d.NotifyMentor {
		result.Notification, result.Warning = c.notify(ctx, tr)
	}

	if update, ok := c.statusUpdate(ctx, tr, now); ok {
		c.publish(ctx, studentID, update)
	}

	return result, nil
}

// statusUpdate builds the push for tr. It reports false when the pending
// intervention cannot be read, since a push without it would clear the
// client's task.
func (c *Coordinator) statusUpdate(ctx context.Context, tr Transition, now time.Time) (engagement.StatusUpdate, bool) {
	update := engagement.StatusUpdate{Status: tr.Decision.Target, UpdatedAt: now}
	if tr.Decision.ClearIntervention {
		return update, true
	}
	if tr.Intervention != nil {
		update.Intervention = tr.Intervention
		return update, true
	}

	pending, err := c.interventions.FindPending(ctx, tr.Student.ID)
	if err != nil {
		c.logger.Warn("status push skipped, pending intervention unavailable",
			"student_id", tr.Student.ID,
			"error", err,
		)
		return update, false
	}
	update.Intervention = pending
	return update, true
}

func (c *Coordinator) invalidate(ctx context.Context, studentID string) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.InvalidateStatus(ctx, studentID); err != nil {
		c.logger.Warn("status cache invalidation failed", "student_id", studentID, "error", err)
	}
}

func (c *Coordinator) notify(ctx context.Context, tr Transition) (NotificationOutcome, string) {
	if c.notifier == nil {
		return NotificationSkipped, "no mentor transport configured"
	}

	reason := tr.Decision.Outcome
	alert := MentorAlert{
		StudentID:    tr.Student.ID,
		DisplayName:  tr.Student.DisplayName,
		QuizScore:    tr.QuizScore,
		FocusMinutes: tr.FocusMinutes,
		Reason:       reason,
	}

	notifyCtx, cancel := context.WithTimeout(ctx, c.config.NotifyTimeout)
	defer cancel()

	type reply struct {
		res NotifyResult
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := c.notifier.Notify(notifyCtx, alert)
		done <- reply{res, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-notifyCtx.Done():
		r.err = shared.WrapError("escalation", "Notify", shared.ErrTimeout, "mentor transport timed out", notifyCtx.Err())
	}

	switch {
	case r.err != nil:
		c.logger.Warn("mentor notification failed",
			"student_id", alert.StudentID,
			"reason", reason,
			"error", r.err,
		)
		return NotificationFailed, WarningNotifyFailed
	case r.res.Skipped:
		msg := r.res.Message
		if msg == "" {
			msg = WarningNotifySkipped
		}
		c.logger.Info("mentor notification skipped", "student_id", alert.StudentID, "message", msg)
		return NotificationSkipped, msg
	default:
		return NotificationSent, ""
	}
}

// publish queues the update behind earlier ones for the same student. One
// goroutine per student delivers the queue in Apply order.
func (c *Coordinator) publish(ctx context.Context, studentID string, update engagement.StatusUpdate) {
	if c.publisher == nil {
		return
	}

	c.inflight.Add(1)
	c.mu.Lock()
	q, running := c.queues[studentID]
	if !running {
		q = &pushQueue{}
		c.queues[studentID] = q
	}
	q.pending = append(q.pending, update)
	c.mu.Unlock()

	if !running {
		go c.deliver(context.WithoutCancel(ctx), studentID, q)
	}
}

func (c *Coordinator) deliver(ctx context.Context, studentID string, q *pushQueue) {
	for {
		c.mu.Lock()
		if len(q.pending) == 0 {
			delete(c.queues, studentID)
			c.mu.Unlock()
			return
		}
		update := q.pending[0]
		q.pending = q.pending[1:]
		c.mu.Unlock()

		pubCtx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
		if err := c.publisher.Publish(pubCtx, studentID, update); err != nil {
			c.logger.Warn("status push failed", "student_id", studentID, "error", err)
		}
		// Evicts a view back-filled by a read that raced the state update.
		c.invalidate(pubCtx, studentID)
		cancel()

		c.inflight.Done()
	}
}

// Drain waits for background pushes started so far.
func (c *Coordinator) Drain() {
	c.inflight.Wait()
}

func asPersistence(domain, op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) && shared.IsPersistence(err) {
		return err
	}
	return shared.Persistence(domain, op, err)
}
