package escalation

import (
	"context"
	"log/slog"
)

// Limiter decides whether another alert for key may be sent now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitedNotifier skips alerts for students that were escalated recently.
// When the limiter itself fails the alert is sent anyway.
type RateLimitedNotifier struct {
	next    Notifier
	limiter Limiter
	logger  *slog.Logger
}

// NewRateLimitedNotifier wraps next with limiter.
func NewRateLimitedNotifier(next Notifier, limiter Limiter, logger *slog.Logger) *RateLimitedNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitedNotifier{next: next, limiter: limiter, logger: logger}
}

// Notify implements Notifier.
func (n *RateLimitedNotifier) Notify(ctx context.Context, alert MentorAlert) (NotifyResult, error) {
	ok, err := n.limiter.Allow(ctx, alert.StudentID)
	if err != nil {
		n.logger.Warn("notify limiter unavailable", "student_id", alert.StudentID, "error", err)
	} else if !ok {
		return NotifyResult{Skipped: true, Message: "mentor was already notified recently"}, nil
	}
	return n.next.Notify(ctx, alert)
}
