package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/pkg/circuitbreaker"
)

// MentorNotifier implements escalation.Notifier on top of Client.
type MentorNotifier struct {
	client  *Client
	chatID  int64
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewMentorNotifier creates a notifier. A zero chatID makes every call a skip.
// breaker may be nil.
func NewMentorNotifier(client *Client, chatID int64, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *MentorNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MentorNotifier{client: client, chatID: chatID, breaker: breaker, logger: logger}
}

// Notify sends the escalation message. It reports a skip when no mentor chat
// is configured or the transport breaker is open; any send error is returned.
func (n *MentorNotifier) Notify(ctx context.Context, alert escalation.MentorAlert) (escalation.NotifyResult, error) {
	if n.client == nil || n.chatID == 0 {
		return escalation.NotifyResult{Skipped: true, Message: "no mentor chat configured"}, nil
	}

	text := FormatMentorAlert(alert)
	send := func(ctx context.Context) error {
		_, err := n.client.SendHTML(ctx, n.chatID, text)
		return err
	}

	var err error
	if n.breaker != nil {
		err = n.breaker.Execute(ctx, send)
		if circuitbreaker.Rejected(err) {
			n.logger.Warn("mentor transport breaker open, escalation skipped",
				"student_id", alert.StudentID,
				"total_failures", n.breaker.Counts().TotalFailures,
			)
			return escalation.NotifyResult{Skipped: true, Message: "mentor transport temporarily disabled"}, nil
		}
	} else {
		err = send(ctx)
	}

	if err != nil {
		if IsChatUnreachable(err) {
			n.logger.Error("mentor chat unreachable", "chat_id", n.chatID, "error", err)
		}
		return escalation.NotifyResult{}, err
	}
	return escalation.NotifyResult{}, nil
}

// FormatMentorAlert renders the alert as Telegram HTML.
func FormatMentorAlert(a escalation.MentorAlert) string {
	var b strings.Builder

	name := a.StudentID
	if a.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", a.DisplayName, a.StudentID)
	}

	b.WriteString("🚨 <b>Student needs attention</b>\n\n")
	fmt.Fprintf(&b, "Student: <code>%s</code>\n", html.EscapeString(name))

	if a.Reason == engagement.OutcomeNeedsIntervention {
		fmt.Fprintf(&b, "Quiz score: <b>%.1f</b>\n", a.QuizScore)
		fmt.Fprintf(&b, "Focus time: <b>%.1f min</b>\n", a.FocusMinutes)
	} else {
		fmt.Fprintf(&b, "Focus violation: <b>%s</b>\n", html.EscapeString(a.Reason))
		fmt.Fprintf(&b, "Focus time before violation: <b>%.1f min</b>\n", a.FocusMinutes)
	}

	b.WriteString("\nAssign an intervention to move the student into remedial work.")
	return b.String()
}
