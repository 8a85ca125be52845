package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/memory"
)

type mapCache struct {
	views  map[string]*engagement.StatusView
	getErr error
	sets   int
}

func (c *mapCache) GetStatus(_ context.Context, id string) (*engagement.StatusView, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.views[id], nil
}

func (c *mapCache) SetStatus(_ context.Context, id string, v *engagement.StatusView) error {
	c.sets++
	c.views[id] = v
	return nil
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	now := time.Now()

	st, err := engagement.NewStudent("s-1", "Dana", now)
	require.NoError(t, err)
	require.NoError(t, store.Students().Create(ctx, st))

	iv, err := engagement.NewIntervention("iv-1", "s-1", "Essay", now)
	require.NoError(t, err)
	require.NoError(t, store.Interventions().Create(ctx, iv))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.DailyLogs().Append(ctx, &engagement.DailyLog{StudentID: "s-1", Outcome: engagement.OutcomeOnTrack, CreatedAt: now}))
	}
	return store
}

func TestGetStatus(t *testing.T) {
	store := seed(t)
	cache := &mapCache{views: map[string]*engagement.StatusView{}}
	h := NewGetStatusHandler(store, cache, nil)

	view, err := h.Handle(context.Background(), GetStatusQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, engagement.StateNormal, view.Student.State)
	require.NotNil(t, view.Intervention)
	assert.Equal(t, "iv-1", view.Intervention.ID)
	assert.Equal(t, 1, cache.sets)

	store.FailOn(memory.OpGetStudent, errors.New("down"))
	cached, err := h.Handle(context.Background(), GetStatusQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Same(t, view, cached)
}

func TestGetStatus_CacheErrorFallsThrough(t *testing.T) {
	store := seed(t)
	h := NewGetStatusHandler(store, &mapCache{views: map[string]*engagement.StatusView{}, getErr: errors.New("redis down")}, nil)

	view, err := h.Handle(context.Background(), GetStatusQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", view.Student.ID)
}

func TestGetStatus_Errors(t *testing.T) {
	store := seed(t)
	h := NewGetStatusHandler(store, nil, nil)

	_, err := h.Handle(context.Background(), GetStatusQuery{StudentID: "ghost"})
	assert.True(t, shared.IsNotFound(err))

	store.FailOn(memory.OpFindPending, errors.New("timeout"))
	_, err = h.Handle(context.Background(), GetStatusQuery{StudentID: "s-1"})
	assert.True(t, shared.IsPersistence(err))
}

func TestGetLogs(t *testing.T) {
	store := seed(t)
	h := NewGetLogsHandler(store)

	logs, err := h.Handle(context.Background(), GetLogsQuery{StudentID: "s-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(3), logs[0].ID)

	_, err = h.Handle(context.Background(), GetLogsQuery{StudentID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}
