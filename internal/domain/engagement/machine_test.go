package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

func TestMachine_CheckInThresholds(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	tests := []struct {
		name    string
		score   float64
		minutes float64
		want    State
		outcome string
		notify  bool
	}{
		{"both above", 8, 61, StateNormal, OutcomeOnTrack, false},
		{"score on boundary", 7, 61, StateNeedsIntervention, OutcomeNeedsIntervention, true},
		{"focus on boundary", 9, 60, StateNeedsIntervention, OutcomeNeedsIntervention, true},
		{"both failing", 2, 10, StateNeedsIntervention, OutcomeNeedsIntervention, true},
		{"fractional pass", 7.01, 60.01, StateNormal, OutcomeOnTrack, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Decide(StateRemedial, CheckIn(tt.score, tt.minutes))
			require.NoError(t, err)

			assert.Equal(t, tt.want, d.Target)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.notify, d.NotifyMentor)
			assert.True(t, d.WriteLog)
			assert.Equal(t, StateRemedial, d.From)
		})
	}
}

func TestMachine_ViolationFromAnyState(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	for _, from := range []State{StateNormal, StateNeedsIntervention, StateRemedial} {
		d, err := m.Decide(from, Violation(12.5, ""))
		require.NoError(t, err)

		assert.Equal(t, StateNeedsIntervention, d.Target)
		assert.Equal(t, DefaultViolationReason, d.Outcome)
		assert.True(t, d.NotifyMentor)
		assert.True(t, d.ClearIntervention)
		assert.True(t, d.WriteLog)
	}

	d, err := m.Decide(StateNormal, Violation(0, "  tab hidden "))
	require.NoError(t, err)
	assert.Equal(t, "tab hidden", d.Outcome)
}

func TestMachine_InterventionSignals(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	d, err := m.Decide(StateNeedsIntervention, Signal{Kind: SignalAssign})
	require.NoError(t, err)
	assert.Equal(t, StateRemedial, d.Target)
	assert.True(t, d.CreateIntervention)
	assert.False(t, d.WriteLog)
	assert.False(t, d.NotifyMentor)

	d, err = m.Decide(StateRemedial, Signal{Kind: SignalComplete})
	require.NoError(t, err)
	assert.Equal(t, StateNormal, d.Target)
	assert.True(t, d.CompleteIntervention)
	assert.False(t, d.WriteLog)
	assert.True(t, d.Changed())
}

func TestMachine_UnknownSignal(t *testing.T) {
	m := NewMachine(DefaultThresholds())

	_, err := m.Decide(StateNormal, Signal{Kind: SignalKind(42)})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestMachine_AlwaysYieldsValidState(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	signals := []Signal{
		CheckIn(8, 61), CheckIn(0, 0), Violation(3, "blur"),
		{Kind: SignalAssign}, {Kind: SignalComplete},
	}

	state := StateNormal
	for i := 0; i < 50; i++ {
		d, err := m.Decide(state, signals[i%len(signals)])
		require.NoError(t, err)
		require.True(t, d.Target.IsValid())
		state = d.Target
	}
}

func TestMachine_CustomThresholds(t *testing.T) {
	m := NewMachine(Thresholds{PassScore: 5, PassMinutes: 30})

	assert.True(t, m.OnTrack(6, 31))
	assert.False(t, m.OnTrack(5, 31))
	assert.Equal(t, 5.0, m.Thresholds().PassScore)
}
