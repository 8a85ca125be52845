// Package query contains the read operations of the engagement service.
package query

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// StatusCache is an optional read-through cache for status views.
type StatusCache interface {
	GetStatus(ctx context.Context, studentID string) (*engagement.StatusView, error) // nil, nil on miss
	SetStatus(ctx context.Context, studentID string, view *engagement.StatusView) error
}

// GetStatusQuery asks for the authoritative status of one student.
type GetStatusQuery struct {
	StudentID string
}

// GetStatusHandler serves status views.
type GetStatusHandler struct {
	store  engagement.Store
	cache  StatusCache
	logger *slog.Logger
}

// NewGetStatusHandler creates a handler. cache may be nil.
func NewGetStatusHandler(store engagement.Store, cache StatusCache, logger *slog.Logger) *GetStatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStatusHandler{store: store, cache: cache, logger: logger}
}

// Handle returns the student and the latest pending intervention, if any.
// Cache errors are logged and fall through to the store.
func (h *GetStatusHandler) Handle(ctx context.Context, q GetStatusQuery) (*engagement.StatusView, error) {
	id := strings.TrimSpace(q.StudentID)
	if id == "" {
		return nil, engagement.ErrMissingStudentID
	}

	if h.cache != nil {
		view, err := h.cache.GetStatus(ctx, id)
		if err != nil {
			h.logger.Warn("status cache read failed", "student_id", id, "error", err)
		} else if view != nil {
			return view, nil
		}
	}

	st, err := h.store.Students().GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.Persistence("student", "GetByID", err)
	}

	iv, err := h.store.Interventions().FindPending(ctx, id)
	if err != nil {
		return nil, shared.Persistence("intervention", "FindPending", err)
	}

	view := &engagement.StatusView{Student: st, Intervention: iv}

	if h.cache != nil {
		if err := h.cache.SetStatus(ctx, id, view); err != nil {
			h.logger.Warn("status cache write failed", "student_id", id, "error", err)
		}
	}
	return view, nil
}
