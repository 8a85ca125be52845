package command

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHECK-IN
// ══════════════════════════════════════════════════════════════════════════════

// DailyCheckInCommand carries a periodic engagement submission.
type DailyCheckInCommand struct {
	StudentID string

	// QuizScore is required; nil means the field was absent.
	QuizScore *float64

	// FocusMinutes and FocusDuration hold the raw JSON values. At least one
	// must be present; see engagement.NormalizeFocusMinutes.
	FocusMinutes  any
	FocusDuration any
}

// Validate checks required fields.
func (c DailyCheckInCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return engagement.ErrMissingStudentID
	}
	if c.QuizScore == nil {
		return engagement.ErrMissingQuizScore
	}
	if math.IsNaN(*c.QuizScore) || math.IsInf(*c.QuizScore, 0) {
		return shared.Validation("engagement", "Validate", "quiz_score must be a finite number")
	}
	if c.FocusMinutes == nil && c.FocusDuration == nil {
		return engagement.ErrMissingFocus
	}
	return nil
}

// DailyCheckInHandler evaluates check-ins.
type DailyCheckInHandler struct {
	deps Deps
}

// NewDailyCheckInHandler creates a handler.
func NewDailyCheckInHandler(deps Deps) *DailyCheckInHandler {
	deps.withDefaults()
	return &DailyCheckInHandler{deps: deps}
}

// Handle runs the check-in through the state machine and the coordinator.
func (h *DailyCheckInHandler) Handle(ctx context.Context, cmd DailyCheckInCommand) (*EngagementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	st, err := loadStudent(ctx, h.deps.Store.Students(), strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, err
	}

	focus := engagement.NormalizeFocusMinutes(cmd.FocusMinutes, cmd.FocusDuration)
	sig := engagement.CheckIn(*cmd.QuizScore, focus)

	decision, err := h.deps.Machine.Decide(st.State, sig)
	if err != nil {
		return nil, fmt.Errorf("daily_checkin: %w", err)
	}

	res, err := h.deps.Coordinator.Apply(ctx, escalation.Transition{
		Student:      st,
		Decision:     decision,
		QuizScore:    sig.QuizScore,
		FocusMinutes: sig.FocusMinutes,
	})
	if err != nil {
		return nil, err
	}
	return fromEscalation(res), nil
}
