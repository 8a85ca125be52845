package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN INTERVENTION
// ══════════════════════════════════════════════════════════════════════════════

// AssignInterventionCommand is issued by a mentor.
type AssignInterventionCommand struct {
	StudentID       string
	TaskDescription string
}

// Validate checks required fields.
func (c AssignInterventionCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return engagement.ErrMissingStudentID
	}
	if strings.TrimSpace(c.TaskDescription) == "" {
		return engagement.ErrEmptyTaskDescription
	}
	return nil
}

// AssignInterventionResult identifies the created task.
type AssignInterventionResult struct {
	InterventionID string
	Status         engagement.State
}

// AssignInterventionHandler creates pending interventions.
type AssignInterventionHandler struct {
	deps             Deps
	rejectDuplicates bool
	now              func() time.Time
}

// NewAssignInterventionHandler creates a handler. With rejectDuplicates set,
// a second pending intervention for the same student is refused.
func NewAssignInterventionHandler(deps Deps, rejectDuplicates bool) *AssignInterventionHandler {
	deps.withDefaults()
	return &AssignInterventionHandler{
		deps:             deps,
		rejectDuplicates: rejectDuplicates,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Handle stores the intervention and forces the student into remedial.
// The current state is not checked.
func (h *AssignInterventionHandler) Handle(ctx context.Context, cmd AssignInterventionCommand) (*AssignInterventionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	st, err := loadStudent(ctx, h.deps.Store.Students(), strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, err
	}

	repo := h.deps.Store.Interventions()

	if h.rejectDuplicates {
		pending, err := repo.FindPending(ctx, st.ID)
		if err != nil {
			return nil, persistence("intervention", "FindPending", err)
		}
		if pending != nil {
			return nil, engagement.ErrInterventionPending
		}
	}

	iv, err := engagement.NewIntervention(h.deps.IDs.GenerateID(), st.ID, cmd.TaskDescription, h.now())
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, iv); err != nil {
		return nil, persistence("intervention", "Create", err)
	}

	decision, err := h.deps.Machine.Decide(st.State, engagement.Signal{Kind: engagement.SignalAssign})
	if err != nil {
		return nil, fmt.Errorf("assign_intervention: %w", err)
	}

	res, err := h.deps.Coordinator.Apply(ctx, escalation.Transition{
		Student:      st,
		Decision:     decision,
		Intervention: iv,
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("intervention assigned", "student_id", st.ID, "intervention_id", iv.ID)

	return &AssignInterventionResult{InterventionID: iv.ID, Status: res.State}, nil
}
