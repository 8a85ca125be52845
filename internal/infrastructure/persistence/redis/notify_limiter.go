package redis

import (
	"context"
	"time"
)

// NotifyLimiter allows at most Max mentor alerts per student per Window.
// It satisfies escalation.Limiter.
type NotifyLimiter struct {
	cache  *Cache
	max    int64
	window time.Duration
}

// NewNotifyLimiter creates a limiter. max <= 0 disables limiting.
func NewNotifyLimiter(cache *Cache, max int, window time.Duration) *NotifyLimiter {
	if window <= 0 {
		window = TTLNotifyWindow
	}
	return &NotifyLimiter{cache: cache, max: int64(max), window: window}
}

// Allow counts the attempt and reports whether it fits the budget.
func (l *NotifyLimiter) Allow(ctx context.Context, studentID string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	n, err := l.cache.IncrWindow(ctx, NotifyLimitKey(studentID), l.window)
	if err != nil {
		return false, err
	}
	return n <= l.max, nil
}
