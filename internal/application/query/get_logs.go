package query

import (
	"context"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 200
)

// GetLogsQuery lists recent audit rows for a student.
type GetLogsQuery struct {
	StudentID string
	Limit     int
}

// GetLogsHandler serves the audit trail.
type GetLogsHandler struct {
	store engagement.Store
}

// NewGetLogsHandler creates a handler.
func NewGetLogsHandler(store engagement.Store) *GetLogsHandler {
	return &GetLogsHandler{store: store}
}

// Handle returns newest rows first. Unknown students are reported as not found.
func (h *GetLogsHandler) Handle(ctx context.Context, q GetLogsQuery) ([]*engagement.DailyLog, error) {
	id := strings.TrimSpace(q.StudentID)
	if id == "" {
		return nil, engagement.ErrMissingStudentID
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	if _, err := h.store.Students().GetByID(ctx, id); err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.Persistence("student", "GetByID", err)
	}

	logs, err := h.store.DailyLogs().ListByStudent(ctx, id, limit)
	if err != nil {
		return nil, shared.Persistence("daily_log", "ListByStudent", err)
	}
	if logs == nil {
		logs = []*engagement.DailyLog{}
	}
	return logs, nil
}
