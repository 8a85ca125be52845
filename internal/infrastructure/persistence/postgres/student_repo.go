package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// StudentRepository implements engagement.StudentRepository.
type StudentRepository struct {
	db Querier
}

// NewStudentRepository creates a repository on top of any Querier.
func NewStudentRepository(db Querier) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *engagement.Student) error {
	const query = `
		INSERT INTO students (id, display_name, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, s.ID, s.DisplayName, string(s.State), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return engagement.ErrStudentExists
		}
		return shared.WrapError("student", "Create", shared.ErrPersistence, "failed to insert student", err)
	}
	return nil
}

// GetByID loads a student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*engagement.Student, error) {
	const query = `
		SELECT id, display_name, state, created_at, updated_at
		FROM students
		WHERE id = $1`

	var (
		s     engagement.Student
		state string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.DisplayName, &state, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, engagement.ErrStudentNotFound
		}
		return nil, shared.WrapError("student", "GetByID", shared.ErrPersistence, "failed to load student", err)
	}

	s.State, err = engagement.ParseState(state)
	if err != nil {
		return nil, shared.WrapError("student", "GetByID", shared.ErrPersistence, "stored state is invalid", err)
	}
	return &s, nil
}

// UpdateState overwrites the state. The row-level update serializes
// concurrent writers; the last one wins.
func (r *StudentRepository) UpdateState(ctx context.Context, id string, state engagement.State, at time.Time) error {
	const query = `UPDATE students SET state = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(state), at)
	if err != nil {
		return shared.WrapError("student", "UpdateState", shared.ErrPersistence, "failed to update state", err)
	}
	if tag.RowsAffected() == 0 {
		return engagement.ErrStudentNotFound
	}
	return nil
}
