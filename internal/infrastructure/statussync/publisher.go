// Package statussync pushes engagement state changes to connected clients.
//
// Delivery is best effort. Clients that miss an update recover by polling
// GET /student/{id}/status.
package statussync

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// EventStatusUpdate is the event name clients listen for.
const EventStatusUpdate = "status_update"

// Envelope is the wire frame sent to clients.
type Envelope struct {
	Event string                   `json:"event"`
	Data  *engagement.StatusUpdate `json:"data,omitempty"`
}

var (
	_ escalation.StatusPublisher = Nop{}
	_ escalation.StatusPublisher = (*Hub)(nil)
	_ escalation.StatusPublisher = (*RedisRelay)(nil)
)

// Nop discards updates.
type Nop struct{}

// Publish implements escalation.StatusPublisher.
func (Nop) Publish(context.Context, string, engagement.StatusUpdate) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics counts push traffic.
type Metrics struct {
	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	relayed   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Relayed   int64 `json:"relayed"`
}

// Snapshot returns current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published: m.published.Load(),
		Delivered: m.delivered.Load(),
		Dropped:   m.dropped.Load(),
		Relayed:   m.relayed.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrClosed is returned by operations on a closed hub or relay.
	ErrClosed = errors.New("statussync: closed")

	// ErrMissingStudentID is returned when a client never identifies itself.
	ErrMissingStudentID = errors.New("statussync: missing student id")
)
