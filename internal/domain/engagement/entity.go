package engagement

import (
	"strings"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// State is the engagement state of a student.
type State string

const (
	// StateNormal is the initial state: the student is on track.
	StateNormal State = "normal"
	// StateNeedsIntervention means engagement signals failed and a mentor was alerted.
	StateNeedsIntervention State = "needs_intervention"
	// StateRemedial means a mentor assigned a remedial task.
	StateRemedial State = "remedial"
)

// IsValid checks that the state is one of the three known states.
func (s State) IsValid() bool {
	switch s {
	case StateNormal, StateNeedsIntervention, StateRemedial:
		return true
	default:
		return false
	}
}

// RequiresMentor reports whether entering this state needs a human mentor's attention.
func (s State) RequiresMentor() bool {
	return s == StateNeedsIntervention
}

// String returns the wire representation of the state.
func (s State) String() string {
	return string(s)
}

// ParseState parses a stored state value.
func ParseState(v string) (State, error) {
	s := State(strings.TrimSpace(v))
	if !s.IsValid() {
		return "", shared.NewDomainError("student", "ParseState", shared.ErrInvalidState, "unknown engagement state "+v)
	}
	return s, nil
}

// Outcome tags written to the daily log.
const (
	OutcomeOnTrack           = "on_track"
	OutcomeNeedsIntervention = "needs_intervention"

	// DefaultViolationReason is used when a focus violation carries no reason.
	DefaultViolationReason = "cheated"
)

// InterventionStatus is the lifecycle status of a remedial task.
type InterventionStatus string

const (
	InterventionPending   InterventionStatus = "pending"
	InterventionCompleted InterventionStatus = "completed"
)

// IsValid checks the intervention status.
func (s InterventionStatus) IsValid() bool {
	return s == InterventionPending || s == InterventionCompleted
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is a learner tracked by the engagement system.
type Student struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewStudent creates a student in the initial state.
func NewStudent(id, displayName string, now time.Time) (*Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, shared.NewDomainError("student", "Create", shared.ErrInvalidID, "student id is required")
	}
	if len(id) > 64 {
		return nil, shared.NewDomainError("student", "Create", shared.ErrInvalidID, "student id is too long")
	}
	return &Student{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		State:       StateNormal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY LOG
// ══════════════════════════════════════════════════════════════════════════════

// DailyLog is an immutable audit record written once per check-in or violation.
type DailyLog struct {
	ID           int64     `json:"id"`
	StudentID    string    `json:"student_id"`
	QuizScore    float64   `json:"quiz_score"`
	FocusMinutes float64   `json:"focus_minutes"`
	Outcome      string    `json:"outcome"`
	CreatedAt    time.Time `json:"created_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTION
// ══════════════════════════════════════════════════════════════════════════════

// Intervention is a remedial task a mentor assigned to a student.
type Intervention struct {
	ID              string             `json:"id"`
	StudentID       string             `json:"student_id"`
	TaskDescription string             `json:"task_description"`
	Status          InterventionStatus `json:"status"`
	AssignedAt      time.Time          `json:"assigned_at"`
	CompletedAt     *time.Time         `json:"completed_at"`
}

// NewIntervention creates a pending intervention.
func NewIntervention(id, studentID, task string, now time.Time) (*Intervention, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTaskDescription
	}
	if studentID == "" {
		return nil, ErrMissingStudentID
	}
	return &Intervention{
		ID:              id,
		StudentID:       studentID,
		TaskDescription: task,
		Status:          InterventionPending,
		AssignedAt:      now,
	}, nil
}

// IsPending reports whether the task is still open.
func (i *Intervention) IsPending() bool {
	return i.Status == InterventionPending
}

// Complete marks the intervention completed.
func (i *Intervention) Complete(now time.Time) error {
	if !i.IsPending() {
		return ErrInterventionNotFound
	}
	i.Status = InterventionCompleted
	i.CompletedAt = &now
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrMissingStudentID      = shared.Validation("engagement", "Validate", "student_id is required")
	ErrMissingQuizScore      = shared.Validation("engagement", "Validate", "quiz_score is required")
	ErrMissingFocus          = shared.Validation("engagement", "Validate", "focus_minutes or focus_duration is required")
	ErrMissingInterventionID = shared.Validation("intervention", "Validate", "intervention_id is required")
	ErrEmptyTaskDescription  = shared.NewDomainError("intervention", "Assign", shared.ErrEmptyValue, "task_description is required")

	ErrStudentNotFound      = shared.NewDomainError("student", "Find", shared.ErrNotFound, "student not found")
	ErrStudentExists        = shared.NewDomainError("student", "Create", shared.ErrAlreadyExists, "student already exists")
	ErrInterventionNotFound = shared.NewDomainError("intervention", "Complete", shared.ErrNotFound, "no matching pending intervention")
	ErrInterventionPending  = shared.NewDomainError("intervention", "Assign", shared.ErrAlreadyExists, "student already has a pending intervention")
)
