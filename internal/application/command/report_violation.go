package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT VIOLATION
// A focus-loss detected by the client during a running session.
// ══════════════════════════════════════════════════════════════════════════════

// ReportViolationCommand is sent by the focus monitor.
type ReportViolationCommand struct {
	StudentID     string
	FocusMinutes  any
	FocusDuration any
	Reason        string // defaults to "cheated"
}

// Validate checks required fields.
func (c ReportViolationCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return engagement.ErrMissingStudentID
	}
	return nil
}

// ReportViolationHandler escalates focus violations.
type ReportViolationHandler struct {
	deps Deps
}

// NewReportViolationHandler creates a handler.
func NewReportViolationHandler(deps Deps) *ReportViolationHandler {
	deps.withDefaults()
	return &ReportViolationHandler{deps: deps}
}

// Handle moves the student to needs_intervention from any state.
func (h *ReportViolationHandler) Handle(ctx context.Context, cmd ReportViolationCommand) (*EngagementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	st, err := loadStudent(ctx, h.deps.Store.Students(), strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, err
	}

	focus := engagement.NormalizeFocusMinutes(cmd.FocusMinutes, cmd.FocusDuration)
	sig := engagement.Violation(focus, cmd.Reason)

	decision, err := h.deps.Machine.Decide(st.State, sig)
	if err != nil {
		return nil, fmt.Errorf("report_violation: %w", err)
	}

	h.deps.Logger.Info("focus violation reported",
		"student_id", st.ID,
		"reason", sig.Reason,
		"focus_minutes", focus,
	)

	res, err := h.deps.Coordinator.Apply(ctx, escalation.Transition{
		Student:      st,
		Decision:     decision,
		FocusMinutes: focus,
	})
	if err != nil {
		return nil, err
	}
	return fromEscalation(res), nil
}
