package focus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// StatusFetcher fetches the authoritative status.
type StatusFetcher interface {
	Status(ctx context.Context, studentID string) (*engagement.StatusView, error)
}

// SyncConfig configures a Syncer.
type SyncConfig struct {
	StudentID string
	Fetcher   StatusFetcher
	Local     *Local

	// StreamURL is the ws:// or wss:// push endpoint. Empty means poll only.
	StreamURL string

	PollInterval time.Duration
	// RetryAfter is how long to poll before trying the stream again.
	RetryAfter time.Duration

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Syncer keeps Local current: from the push stream when it is available,
// from polling otherwise.
type Syncer struct {
	config SyncConfig
	logger *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(config SyncConfig) *Syncer {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = 15 * time.Second
	}
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.Local == nil {
		config.Local = NewLocal(LocalState{})
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{config: config, logger: logger.With("component", "status_sync")}
}

// Run syncs until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	s.Refresh(ctx)

	for {
		if s.config.StreamURL != "" {
			err := s.stream(ctx)
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("status stream unavailable, polling", "error", err)
		}

		until := time.Duration(0)
		if s.config.StreamURL != "" {
			until = s.config.RetryAfter
		}
		if err := s.poll(ctx, until); err != nil {
			return nil
		}
	}
}

// Refresh fetches the status once.
func (s *Syncer) Refresh(ctx context.Context) {
	if s.config.Fetcher == nil {
		return
	}
	view, err := s.config.Fetcher.Status(ctx, s.config.StudentID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("status refresh failed", "student_id", s.config.StudentID, "error", err)
		}
		return
	}
	s.config.Local.Dispatch(StatusFetched{View: view, At: time.Now()})
}

// poll refreshes on every interval. A zero until polls until ctx ends.
func (s *Syncer) poll(ctx context.Context, until time.Duration) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if until > 0 {
		t := time.NewTimer(until)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return nil
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

type streamFrame struct {
	Event     string                   `json:"event"`
	StudentID string                   `json:"student_id,omitempty"`
	Data      *engagement.StatusUpdate `json:"data,omitempty"`
}

// stream announces the student's identity and applies pushed updates until
// the connection drops.
func (s *Syncer) stream(ctx context.Context) error {
	u, err := url.Parse(s.config.StreamURL)
	if err != nil {
		return fmt.Errorf("parse stream url: %w", err)
	}

	conn, resp, err := s.config.Dialer.DialContext(ctx, u.String(), http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(streamFrame{Event: "identify", StudentID: s.config.StudentID}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	// Updates published while disconnected are lost; catch up once.
	s.Refresh(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		switch frame.Event {
		case "identified":
			s.logger.Debug("status stream identified", "student_id", frame.StudentID)
		case "status_update":
			if frame.Data == nil {
				continue
			}
			s.config.Local.Dispatch(StatusPushed{Update: *frame.Data, At: time.Now()})
		}
	}
}

// ErrNoStream is returned by StreamURLFor when no base URL is configured.
var ErrNoStream = errors.New("focus: no status stream configured")

// StreamURLFor derives the push endpoint from the API base URL.
func StreamURLFor(baseURL string) (string, error) {
	if baseURL == "" {
		return "", ErrNoStream
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
