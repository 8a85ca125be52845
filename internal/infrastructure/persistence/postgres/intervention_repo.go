package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// InterventionRepository implements engagement.InterventionRepository.
type InterventionRepository struct {
	db Querier
}

// NewInterventionRepository creates a repository.
func NewInterventionRepository(db Querier) *InterventionRepository {
	return &InterventionRepository{db: db}
}

// Create inserts a pending intervention.
func (r *InterventionRepository) Create(ctx context.Context, i *engagement.Intervention) error {
	const query = `
		INSERT INTO interventions (id, student_id, task_description, status, assigned_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, i.ID, i.StudentID, i.TaskDescription, string(i.Status), i.AssignedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return engagement.ErrStudentNotFound
		}
		return shared.WrapError("intervention", "Create", shared.ErrPersistence, "failed to insert intervention", err)
	}
	return nil
}

// FindPending returns the newest pending intervention or nil.
func (r *InterventionRepository) FindPending(ctx context.Context, studentID string) (*engagement.Intervention, error) {
	const query = `
		SELECT id, student_id, task_description, status, assigned_at, completed_at
		FROM interventions
		WHERE student_id = $1 AND status = 'pending'
		ORDER BY assigned_at DESC
		LIMIT 1`

	var (
		i      engagement.Intervention
		status string
	)
	err := r.db.QueryRow(ctx, query, studentID).Scan(
		&i.ID, &i.StudentID, &i.TaskDescription, &status, &i.AssignedAt, &i.CompletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, shared.WrapError("intervention", "FindPending", shared.ErrPersistence, "failed to load intervention", err)
	}
	i.Status = engagement.InterventionStatus(status)
	return &i, nil
}

// Complete closes the pending intervention matching both id and student.
func (r *InterventionRepository) Complete(ctx context.Context, id, studentID string, at time.Time) (bool, error) {
	const query = `
		UPDATE interventions
		SET status = 'completed', completed_at = $3
		WHERE id = $1 AND student_id = $2 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id, studentID, at)
	if err != nil {
		return false, shared.WrapError("intervention", "Complete", shared.ErrPersistence, "failed to complete intervention", err)
	}
	return tag.RowsAffected() > 0, nil
}
