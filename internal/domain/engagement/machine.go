package engagement

import (
	"fmt"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// SignalKind identifies what drove a transition.
type SignalKind int

const (
	SignalCheckIn SignalKind = iota + 1
	SignalViolation
	SignalAssign
	SignalComplete
)

// String returns a log-friendly name.
func (k SignalKind) String() string {
	switch k {
	case SignalCheckIn:
		return "check_in"
	case SignalViolation:
		return "violation"
	case SignalAssign:
		return "assign_intervention"
	case SignalComplete:
		return "complete_intervention"
	default:
		return fmt.Sprintf("signal(%d)", int(k))
	}
}

// Signal is a single engagement input.
type Signal struct {
	Kind         SignalKind
	QuizScore    float64
	FocusMinutes float64
	Reason       string // violations only
}

// CheckIn builds a daily check-in signal.
func CheckIn(quizScore, focusMinutes float64) Signal {
	return Signal{Kind: SignalCheckIn, QuizScore: quizScore, FocusMinutes: focusMinutes}
}

// Violation builds a focus-violation signal. An empty reason becomes DefaultViolationReason.
func Violation(focusMinutes float64, reason string) Signal {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultViolationReason
	}
	return Signal{Kind: SignalViolation, FocusMinutes: focusMinutes, Reason: reason}
}

// Decision is everything the state machine requires after a signal.
type Decision struct {
	From   State
	Target State

	// WriteLog is true when a DailyLog row with Outcome must be appended
	// before the state is changed.
	WriteLog bool
	Outcome  string

	NotifyMentor bool

	// ClearIntervention tells the client to drop its cached intervention.
	ClearIntervention bool

	CreateIntervention   bool
	CompleteIntervention bool
}

// Changed reports whether the decision moves the student to another state.
func (d Decision) Changed() bool {
	return d.From != d.Target
}

// Thresholds are the strict lower bounds a check-in must exceed to be on track.
type Thresholds struct {
	PassScore   float64
	PassMinutes float64
}

// DefaultThresholds returns score > 7 and focus > 60 minutes.
func DefaultThresholds() Thresholds {
	return Thresholds{PassScore: 7, PassMinutes: 60}
}

// Machine evaluates signals against the current state.
type Machine struct {
	thresholds Thresholds
}

// NewMachine creates a state machine with the given thresholds.
func NewMachine(t Thresholds) *Machine {
	return &Machine{thresholds: t}
}

// Thresholds returns the configured thresholds.
func (m *Machine) Thresholds() Thresholds {
	return m.thresholds
}

// OnTrack applies the strict check-in guard on both dimensions.
func (m *Machine) OnTrack(quizScore, focusMinutes float64) bool {
	return quizScore > m.thresholds.PassScore && focusMinutes > m.thresholds.PassMinutes
}

// Decide maps (current state, signal) to a Decision. The target never depends
// on the current state, so the function is total over states; only an unknown
// signal kind is rejected.
func (m *Machine) Decide(current State, sig Signal) (Decision, error) {
	d := Decision{From: current}

	switch sig.Kind {
	case SignalCheckIn:
		d.WriteLog = true
		if m.OnTrack(sig.QuizScore, sig.FocusMinutes) {
			d.Target = StateNormal
			d.Outcome = OutcomeOnTrack
		} else {
			d.Target = StateNeedsIntervention
			d.Outcome = OutcomeNeedsIntervention
			d.NotifyMentor = true
		}

	case SignalViolation:
		reason := sig.Reason
		if reason == "" {
			reason = DefaultViolationReason
		}
		d.Target = StateNeedsIntervention
		d.WriteLog = true
		d.Outcome = reason
		d.NotifyMentor = true
		d.ClearIntervention = true

	case SignalAssign:
		d.Target = StateRemedial
		d.CreateIntervention = true

	case SignalComplete:
		d.Target = StateNormal
		d.CompleteIntervention = true

	default:
		return Decision{}, shared.NewDomainError("engagement", "Decide", shared.ErrStateTransition,
			"unknown signal "+sig.Kind.String())
	}

	return d, nil
}
