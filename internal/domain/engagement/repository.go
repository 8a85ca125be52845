package engagement

import (
	"context"
	"time"
)

// StudentRepository stores students and their current state.
type StudentRepository interface {
	// Create inserts a new student. Returns ErrStudentExists on duplicate id.
	Create(ctx context.Context, s *Student) error

	// GetByID returns the student or ErrStudentNotFound.
	GetByID(ctx context.Context, id string) (*Student, error)

	// UpdateState overwrites the state. Returns ErrStudentNotFound when no row was affected.
	UpdateState(ctx context.Context, id string, state State, at time.Time) error
}

// DailyLogRepository is the append-only audit trail.
type DailyLogRepository interface {
	// Append writes a new row and fills in its ID.
	Append(ctx context.Context, log *DailyLog) error

	// ListByStudent returns the most recent rows first.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*DailyLog, error)
}

// InterventionRepository stores remedial tasks.
type InterventionRepository interface {
	// Create inserts a pending intervention.
	Create(ctx context.Context, i *Intervention) error

	// FindPending returns the most recently assigned pending intervention,
	// or nil when there is none.
	FindPending(ctx context.Context, studentID string) (*Intervention, error)

	// Complete marks a pending intervention completed. It reports false when
	// no row matched both id and student.
	Complete(ctx context.Context, id, studentID string, at time.Time) (bool, error)
}

// Store groups the repositories a request handler needs.
type Store interface {
	Students() StudentRepository
	DailyLogs() DailyLogRepository
	Interventions() InterventionRepository
	Ping(ctx context.Context) error
}
