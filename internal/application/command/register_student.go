package command

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// RegisterStudentCommand enrolls a student. An empty StudentID gets a generated one.
type RegisterStudentCommand struct {
	StudentID   string
	DisplayName string
}

// RegisterStudentHandler creates students in the normal state.
type RegisterStudentHandler struct {
	deps Deps
	now  func() time.Time
}

// NewRegisterStudentHandler creates a handler.
func NewRegisterStudentHandler(deps Deps) *RegisterStudentHandler {
	deps.withDefaults()
	return &RegisterStudentHandler{deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// Handle stores the student.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*engagement.Student, error) {
	id := strings.TrimSpace(cmd.StudentID)
	if id == "" {
		id = h.deps.IDs.GenerateID()
	}

	st, err := engagement.NewStudent(id, cmd.DisplayName, h.now())
	if err != nil {
		return nil, err
	}

	if err := h.deps.Store.Students().Create(ctx, st); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, persistence("student", "Create", err)
	}

	h.deps.Logger.Info("student registered", "student_id", st.ID)
	return st, nil
}
