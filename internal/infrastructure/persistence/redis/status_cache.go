package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// StatusCache keeps status views for the polling endpoint. The escalation
// coordinator drops a student's entry before answering a state change.
type StatusCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatusCache creates a status cache. ttl <= 0 uses TTLStatusView.
func NewStatusCache(cache *Cache, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusView
	}
	return &StatusCache{cache: cache, ttl: ttl}
}

// GetStatus returns nil, nil on a miss.
func (s *StatusCache) GetStatus(ctx context.Context, studentID string) (*engagement.StatusView, error) {
	var view engagement.StatusView
	if err := s.cache.Get(ctx, StatusKey(studentID), &view); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

// SetStatus stores the view.
func (s *StatusCache) SetStatus(ctx context.Context, studentID string, view *engagement.StatusView) error {
	return s.cache.Set(ctx, StatusKey(studentID), view, s.ttl)
}

// InvalidateStatus drops the cached view.
func (s *StatusCache) InvalidateStatus(ctx context.Context, studentID string) error {
	return s.cache.Delete(ctx, StatusKey(studentID))
}
