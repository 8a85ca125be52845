// Package memory is an in-process engagement.Store used by tests and by the
// server when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// Operation names accepted by FailOn.
const (
	OpCreateStudent        = "students.create"
	OpGetStudent           = "students.get"
	OpUpdateState          = "students.update_state"
	OpAppendLog            = "daily_logs.append"
	OpListLogs             = "daily_logs.list"
	OpCreateIntervention   = "interventions.create"
	OpFindPending          = "interventions.find_pending"
	OpCompleteIntervention = "interventions.complete"
	OpPing                 = "ping"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu            sync.Mutex
	students      map[string]*engagement.Student
	logs          []*engagement.DailyLog
	interventions []*engagement.Intervention
	nextLogID     int64
	failures      map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		students: make(map[string]*engagement.Student),
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) Students() engagement.StudentRepository           { return studentRepo{s} }
func (s *Store) DailyLogs() engagement.DailyLogRepository         { return logRepo{s} }
func (s *Store) Interventions() engagement.InterventionRepository { return interventionRepo{s} }

// Ping implements engagement.Store.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail(OpPing)
}

// Logs returns a snapshot of every log row, oldest first.
func (s *Store) Logs() []engagement.DailyLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engagement.DailyLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, *l)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

type studentRepo struct{ s *Store }

func (r studentRepo) Create(_ context.Context, st *engagement.Student) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreateStudent); err != nil {
		return err
	}
	if _, ok := r.s.students[st.ID]; ok {
		return engagement.ErrStudentExists
	}
	cp := *st
	r.s.students[st.ID] = &cp
	return nil
}

func (r studentRepo) GetByID(_ context.Context, id string) (*engagement.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpGetStudent); err != nil {
		return nil, err
	}
	st, ok := r.s.students[id]
	if !ok {
		return nil, engagement.ErrStudentNotFound
	}
	cp := *st
	return &cp, nil
}

func (r studentRepo) UpdateState(_ context.Context, id string, state engagement.State, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpUpdateState); err != nil {
		return err
	}
	st, ok := r.s.students[id]
	if !ok {
		return engagement.ErrStudentNotFound
	}
	st.State = state
	st.UpdatedAt = at
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY LOGS
// ══════════════════════════════════════════════════════════════════════════════

type logRepo struct{ s *Store }

func (r logRepo) Append(_ context.Context, l *engagement.DailyLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpAppendLog); err != nil {
		return err
	}
	r.s.nextLogID++
	l.ID = r.s.nextLogID
	cp := *l
	r.s.logs = append(r.s.logs, &cp)
	return nil
}

func (r logRepo) ListByStudent(_ context.Context, studentID string, limit int) ([]*engagement.DailyLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpListLogs); err != nil {
		return nil, err
	}
	var out []*engagement.DailyLog
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		if r.s.logs[i].StudentID != studentID {
			continue
		}
		cp := *r.s.logs[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTIONS
// ══════════════════════════════════════════════════════════════════════════════

type interventionRepo struct{ s *Store }

func (r interventionRepo) Create(_ context.Context, i *engagement.Intervention) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreateIntervention); err != nil {
		return err
	}
	cp := *i
	r.s.interventions = append(r.s.interventions, &cp)
	return nil
}

func (r interventionRepo) FindPending(_ context.Context, studentID string) (*engagement.Intervention, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpFindPending); err != nil {
		return nil, err
	}

	var pending []*engagement.Intervention
	for _, i := range r.s.interventions {
		if i.StudentID == studentID && i.IsPending() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.SliceStable(pending, func(a, b int) bool {
		return pending[a].AssignedAt.After(pending[b].AssignedAt)
	})
	cp := *pending[0]
	return &cp, nil
}

func (r interventionRepo) Complete(_ context.Context, id, studentID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCompleteIntervention); err != nil {
		return false, err
	}
	for _, i := range r.s.interventions {
		if i.ID == id && i.StudentID == studentID && i.IsPending() {
			return true, i.Complete(at)
		}
	}
	return false, nil
}

// Intervention returns a copy of the intervention with id, or nil.
func (s *Store) Intervention(id string) *engagement.Intervention {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.interventions {
		if i.ID == id {
			cp := *i
			return &cp
		}
	}
	return nil
}
