package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/engagement-hub/internal/client/api"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/pkg/timeutil"
)

// Phase of a focus session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseStopped
	PhaseViolated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	case PhaseViolated:
		return "violated"
	default:
		return "unknown"
	}
}

// Reporter is the part of the engagement API the monitor needs.
type Reporter interface {
	ReportViolation(ctx context.Context, req api.ViolationRequest) (*api.EngagementResponse, error)
	Status(ctx context.Context, studentID string) (*engagement.StatusView, error)
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	StudentID string
	Reporter  Reporter
	Local     *Local

	// Observers are subscribed for the lifetime of the monitor.
	Observers []LifecycleObserver

	TickInterval  time.Duration
	ReportTimeout time.Duration

	// Reason is sent with violation reports. Empty lets the service
	// pick its default.
	Reason string

	Logger *slog.Logger
}

// Snapshot is a point-in-time view of the timer.
type Snapshot struct {
	Phase          Phase
	ElapsedSeconds int
	Violated       bool
}

// Clock renders the elapsed time as MM:SS.
func (s Snapshot) Clock() string { return timeutil.FormatClock(s.ElapsedSeconds) }

// Monitor is the client-side focus timer. A lifecycle suspension while the
// timer runs ends the session as a violation, reported once per session.
type Monitor struct {
	studentID string
	reporter  Reporter
	local     *Local
	reason    string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	phase    Phase
	elapsed  int
	violated bool
	stop     chan struct{}
	closed   bool

	unsubs  []func()
	tickers sync.WaitGroup
	reports sync.WaitGroup
}

// NewMonitor creates a monitor and subscribes it to the configured observers.
func NewMonitor(config MonitorConfig) *Monitor {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.ReportTimeout <= 0 {
		config.ReportTimeout = 10 * time.Second
	}
	if config.Local == nil {
		config.Local = NewLocal(LocalState{})
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		studentID: config.StudentID,
		reporter:  config.Reporter,
		local:     config.Local,
		reason:    config.Reason,
		interval:  config.TickInterval,
		timeout:   config.ReportTimeout,
		logger:    logger.With("component", "focus_monitor"),
	}

	for _, o := range config.Observers {
		m.unsubs = append(m.unsubs, o.Observe(func(source string) { m.HandleSuspend(source) }))
	}
	return m
}

// Local returns the state store the monitor writes to.
func (m *Monitor) Local() *Local { return m.local }

// Start begins a new session. Starting clears a previous violation so a
// later suspension can be reported again.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.phase == PhaseRunning {
		return
	}
	m.phase = PhaseRunning
	m.violated = false

	stop := make(chan struct{})
	m.stop = stop
	m.tickers.Add(1)
	go m.run(stop)
}

// Stop pauses the timer without reporting anything.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseRunning {
		return
	}
	m.halt()
	m.phase = PhaseStopped
}

// Reset halts the timer and zeroes it.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.halt()
	m.elapsed = 0
	m.violated = false
	m.phase = PhaseIdle
}

// advance adds a second if the session that owns stop is still running.
// A nil stop matches whichever session is running.
func (m *Monitor) advance(stop chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseRunning && (stop == nil || m.stop == stop) {
		m.elapsed++
	}
}

// Snapshot returns the current timer state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Phase: m.phase, ElapsedSeconds: m.elapsed, Violated: m.violated}
}

// HandleSuspend ends a running session as a violation. It returns false
// when there was nothing to report: the timer was not running, or this
// session already reported.
func (m *Monitor) HandleSuspend(source string) bool {
	m.mu.Lock()
	if m.closed || m.phase != PhaseRunning || m.violated {
		m.mu.Unlock()
		return false
	}
	m.halt()
	m.phase = PhaseViolated
	m.violated = true
	elapsed := m.elapsed
	m.reports.Add(1)
	m.mu.Unlock()

	m.logger.Info("focus lost",
		"student_id", m.studentID,
		"source", source,
		"elapsed", timeutil.FormatClock(elapsed),
	)
	m.local.Dispatch(ViolationDetected{})

	go m.report(elapsed)
	return true
}

// Wait blocks until in-flight violation reports finish.
func (m *Monitor) Wait() {
	m.reports.Wait()
}

// Close unsubscribes from lifecycle events, halts the timer and waits for
// in-flight reports.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.halt()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	m.tickers.Wait()
	m.reports.Wait()
}

// halt stops the ticker goroutine. Callers hold mu.
func (m *Monitor) halt() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Monitor) run(stop chan struct{}) {
	defer m.tickers.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.advance(stop)
		}
	}
}

// report sends the violation and then reconciles with the authoritative
// status. A failure leaves the optimistic local state in place.
func (m *Monitor) report(elapsed int) {
	defer m.reports.Done()

	if m.reporter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	resp, err := m.reporter.ReportViolation(ctx, api.ViolationRequest{
		StudentID:     m.studentID,
		FocusDuration: timeutil.FormatClock(elapsed),
		Reason:        m.reason,
	})
	if err != nil {
		m.logger.Warn("violation report failed", "student_id", m.studentID, "error", err)
	}
	m.local.Dispatch(ReportResolved{Response: resp, Err: err})

	view, err := m.reporter.Status(ctx, m.studentID)
	if err != nil {
		m.logger.Warn("status reconcile failed", "student_id", m.studentID, "error", err)
		return
	}
	m.local.Dispatch(StatusFetched{View: view, At: time.Now()})
}
