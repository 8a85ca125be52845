package engagement

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

func TestParseState(t *testing.T) {
	s, err := ParseState("remedial")
	require.NoError(t, err)
	assert.Equal(t, StateRemedial, s)

	_, err = ParseState("sleeping")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestNewStudent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s, err := NewStudent(" s-1 ", "Aruzhan", now)
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, StateNormal, s.State)
	assert.Equal(t, now, s.UpdatedAt)

	_, err = NewStudent("", "x", now)
	assert.True(t, shared.IsValidation(err))

	_, err = NewStudent(strings.Repeat("a", 65), "x", now)
	assert.True(t, shared.IsValidation(err))
}

func TestIntervention_Lifecycle(t *testing.T) {
	now := time.Now()

	_, err := NewIntervention("i-1", "s-1", "   ", now)
	assert.ErrorIs(t, err, ErrEmptyTaskDescription)

	i, err := NewIntervention("i-1", "s-1", "Re-read chapter 3", now)
	require.NoError(t, err)
	assert.True(t, i.IsPending())
	assert.Nil(t, i.CompletedAt)

	later := now.Add(time.Hour)
	require.NoError(t, i.Complete(later))
	assert.Equal(t, InterventionCompleted, i.Status)
	require.NotNil(t, i.CompletedAt)
	assert.Equal(t, later, *i.CompletedAt)

	assert.True(t, shared.IsNotFound(i.Complete(later)))
}
