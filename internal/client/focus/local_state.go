package focus

import (
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/engagement-hub/internal/client/api"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// LocalState is the client's cached, possibly stale view of the student.
type LocalState struct {
	Status       engagement.State
	Intervention *engagement.Intervention

	// Message is the last outcome shown to the user.
	Message string

	// Optimistic is set between a local violation and the next
	// authoritative status.
	Optimistic bool
	SyncedAt   time.Time

	// ServerUpdatedAt is the server timestamp of the held status. Older
	// pushes and fetches are ignored.
	ServerUpdatedAt time.Time
}

// Action is an input to Reduce.
type Action interface{ isAction() }

// ViolationDetected is dispatched before the report leaves the device.
type ViolationDetected struct{}

// ReportResolved carries the service's answer to a violation report.
type ReportResolved struct {
	Response *api.EngagementResponse
	Err      error
}

// CheckInResolved carries the service's answer to a daily check-in.
type CheckInResolved struct {
	Response *api.EngagementResponse
	Err      error
}

// StatusFetched carries an authoritative status from polling or reconcile.
type StatusFetched struct {
	View *engagement.StatusView
	At   time.Time
}

// StatusPushed carries an update from the push channel.
type StatusPushed struct {
	Update engagement.StatusUpdate
	At     time.Time
}

// Notice replaces the message and leaves the status alone.
type Notice struct{ Text string }

func (ViolationDetected) isAction() {}
func (ReportResolved) isAction()    {}
func (CheckInResolved) isAction()   {}
func (StatusFetched) isAction()     {}
func (StatusPushed) isAction()      {}
func (Notice) isAction()            {}

// Reduce applies a to s. Authoritative data overwrites optimistic local data
// unless the server stamped it older than the status already held.
func Reduce(s LocalState, a Action) LocalState {
	switch a := a.(type) {
	case ViolationDetected:
		s.Status = engagement.StateNeedsIntervention
		s.Intervention = nil
		s.Optimistic = true
		s.Message = "Focus lost. Your mentor has been alerted."

	case ReportResolved:
		if a.Err != nil {
			s.Message = "Focus lost. The report could not be confirmed."
			return s
		}
		if a.Response != nil {
			s.Status = a.Response.Status
			s.Message = a.Response.Message()
		}

	case CheckInResolved:
		var apiErr *api.APIError
		switch {
		case errors.As(a.Err, &apiErr) && apiErr.StatusCode < 500:
			s.Message = "Check-in rejected: " + apiErr.Message
		case a.Err != nil:
			s.Message = "Check-in could not be submitted. Try again."
		case a.Response != nil:
			s.Status = a.Response.Status
			s.Message = "Check-in recorded. " + a.Response.Message()
		}

	case StatusFetched:
		if a.View == nil || a.View.Student == nil || s.stale(a.View.Student.UpdatedAt) {
			return s
		}
		s.Status = a.View.Student.State
		s.Intervention = a.View.Intervention
		s.Optimistic = false
		s.SyncedAt = a.At
		s.ServerUpdatedAt = a.View.Student.UpdatedAt

	case StatusPushed:
		if s.stale(a.Update.UpdatedAt) {
			return s
		}
		s.Status = a.Update.Status
		s.Intervention = a.Update.Intervention
		s.Optimistic = false
		s.SyncedAt = a.At
		if !a.Update.UpdatedAt.IsZero() {
			s.ServerUpdatedAt = a.Update.UpdatedAt
		}

	case Notice:
		s.Message = a.Text
	}
	return s
}

func (s LocalState) stale(at time.Time) bool {
	return !at.IsZero() && at.Before(s.ServerUpdatedAt)
}

// Local holds LocalState and serializes dispatches.
type Local struct {
	mu       sync.RWMutex
	state    LocalState
	onChange func(LocalState)
}

// NewLocal creates a store seeded with initial.
func NewLocal(initial LocalState) *Local {
	if initial.Status == "" {
		initial.Status = engagement.StateNormal
	}
	return &Local{state: initial}
}

// OnChange registers a callback run after every dispatch, outside the lock.
func (l *Local) OnChange(fn func(LocalState)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Dispatch reduces a into the current state.
func (l *Local) Dispatch(a Action) LocalState {
	l.mu.Lock()
	l.state = Reduce(l.state, a)
	next, fn := l.state, l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(next)
	}
	return next
}

// Snapshot returns the current state.
func (l *Local) Snapshot() LocalState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}
