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
// COMPLETE INTERVENTION
// ══════════════════════════════════════════════════════════════════════════════

// CompleteInterventionCommand closes a pending remedial task.
type CompleteInterventionCommand struct {
	StudentID      string
	InterventionID string

	// FocusDuration is accepted for parity with other client calls. It is
	// logged but never persisted.
	FocusDuration any
}

// Validate checks required fields.
func (c CompleteInterventionCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return engagement.ErrMissingStudentID
	}
	if strings.TrimSpace(c.InterventionID) == "" {
		return engagement.ErrMissingInterventionID
	}
	return nil
}

// CompleteInterventionHandler completes interventions.
type CompleteInterventionHandler struct {
	deps Deps
	now  func() time.Time
}

// NewCompleteInterventionHandler creates a handler.
func NewCompleteInterventionHandler(deps Deps) *CompleteInterventionHandler {
	deps.withDefaults()
	return &CompleteInterventionHandler{
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Handle marks the intervention completed and returns the student to normal,
// even if other pending interventions remain.
func (h *CompleteInterventionHandler) Handle(ctx context.Context, cmd CompleteInterventionCommand) (*EngagementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	studentID := strings.TrimSpace(cmd.StudentID)
	interventionID := strings.TrimSpace(cmd.InterventionID)

	st, err := loadStudent(ctx, h.deps.Store.Students(), studentID)
	if err != nil {
		return nil, err
	}

	ok, err := h.deps.Store.Interventions().Complete(ctx, interventionID, st.ID, h.now())
	if err != nil {
		return nil, persistence("intervention", "Complete", err)
	}
	if !ok {
		return nil, engagement.ErrInterventionNotFound
	}

	decision, err := h.deps.Machine.Decide(st.State, engagement.Signal{Kind: engagement.SignalComplete})
	if err != nil {
		return nil, fmt.Errorf("complete_intervention: %w", err)
	}

	res, err := h.deps.Coordinator.Apply(ctx, escalation.Transition{
		Student:  st,
		Decision: decision,
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("intervention completed",
		"student_id", st.ID,
		"intervention_id", interventionID,
		"focus_minutes", engagement.NormalizeFocusMinutes(nil, cmd.FocusDuration),
	)

	return fromEscalation(res), nil
}
