package postgres

import (
	"context"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// DailyLogRepository implements engagement.DailyLogRepository.
type DailyLogRepository struct {
	db Querier
}

// NewDailyLogRepository creates a repository.
func NewDailyLogRepository(db Querier) *DailyLogRepository {
	return &DailyLogRepository{db: db}
}

// Append inserts a row and sets log.ID.
func (r *DailyLogRepository) Append(ctx context.Context, log *engagement.DailyLog) error {
	const query = `
		INSERT INTO daily_logs (student_id, quiz_score, focus_minutes, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		log.StudentID, log.QuizScore, log.FocusMinutes, log.Outcome, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return engagement.ErrStudentNotFound
		}
		return shared.WrapError("daily_log", "Append", shared.ErrPersistence, "failed to append log", err)
	}
	return nil
}

// ListByStudent returns up to limit rows, newest first.
func (r *DailyLogRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*engagement.DailyLog, error) {
	const query = `
		SELECT id, student_id, quiz_score, focus_minutes, outcome, created_at
		FROM daily_logs
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, shared.WrapError("daily_log", "ListByStudent", shared.ErrPersistence, "failed to query logs", err)
	}
	defer rows.Close()

	logs := make([]*engagement.DailyLog, 0, limit)
	for rows.Next() {
		var l engagement.DailyLog
		if err := rows.Scan(&l.ID, &l.StudentID, &l.QuizScore, &l.FocusMinutes, &l.Outcome, &l.CreatedAt); err != nil {
			return nil, shared.WrapError("daily_log", "ListByStudent", shared.ErrPersistence, "failed to scan log", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("daily_log", "ListByStudent", shared.ErrPersistence, "row iteration failed", err)
	}
	return logs, nil
}
