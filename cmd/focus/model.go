package main

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alem-hub/engagement-hub/internal/client/api"
	"github.com/alem-hub/engagement-hub/internal/client/focus"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

type keyMap struct {
	Toggle  key.Binding
	Reset   key.Binding
	Done    key.Binding
	CheckIn key.Binding
	Submit  key.Binding
	Cancel  key.Binding
	Suspend key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Reset, k.CheckIn, k.Done, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Toggle, k.Reset, k.CheckIn, k.Done}, {k.Suspend, k.Help, k.Quit}}
}

var keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" ", "s"),
		key.WithHelp("space", "start/stop"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Done: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "mark task done"),
	),
	CheckIn: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "daily check-in"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Suspend: key.NewBinding(
		key.WithKeys("ctrl+z"),
		key.WithHelp("ctrl+z", "suspend (ends the session)"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ══════════════════════════════════════════════════════════════════════════════
// STYLES
// ══════════════════════════════════════════════════════════════════════════════

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
	messageStyle = lipgloss.NewStyle().Italic(true)
)

// ══════════════════════════════════════════════════════════════════════════════
// MODEL
// ══════════════════════════════════════════════════════════════════════════════

type tickMsg time.Time

type stateMsg focus.LocalState

// engagementService is the part of the API the view calls directly.
type engagementService interface {
	CheckIn(ctx context.Context, req api.CheckInRequest) (*api.EngagementResponse, error)
	CompleteIntervention(ctx context.Context, studentID, interventionID, focusDuration string) error
	Status(ctx context.Context, studentID string) (*engagement.StatusView, error)
}

type model struct {
	studentID string
	monitor   *focus.Monitor
	terminal  *focus.EventSource
	service   engagementService
	state     focus.LocalState

	// score is the quiz-score prompt shown during a check-in.
	score    textinput.Model
	entering bool

	help  help.Model
	width int
}

func newModel(studentID string, monitor *focus.Monitor, terminal *focus.EventSource, service engagementService) model {
	score := textinput.New()
	score.Placeholder = "0-10"
	score.CharLimit = 5
	score.Width = 8
	score.Prompt = "Quiz score: "

	return model{
		studentID: studentID,
		monitor:   monitor,
		terminal:  terminal,
		service:   service,
		score:     score,
		state:     monitor.Local().Snapshot(),
		help:      help.New(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/4, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.BlurMsg:
		m.terminal.Emit("terminal_blur")

	case tea.KeyMsg:
		if m.entering {
			return m.updateScore(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			if m.monitor.Snapshot().Phase == focus.PhaseRunning {
				m.monitor.Stop()
			} else {
				m.monitor.Start()
			}
		case key.Matches(msg, keys.Reset):
			m.monitor.Reset()
		case key.Matches(msg, keys.Done):
			if iv := m.state.Intervention; iv != nil && iv.IsPending() && m.service != nil {
				return m, m.completeTask(iv.ID, m.monitor.Snapshot().Clock())
			}
		case key.Matches(msg, keys.CheckIn):
			if m.service != nil {
				m.entering = true
				m.score.Reset()
				return m, m.score.Focus()
			}
		case key.Matches(msg, keys.Suspend):
			m.terminal.Emit("terminal_suspend")
			return m, tea.Suspend
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case stateMsg:
		m.state = focus.LocalState(msg)

	case tickMsg:
		return m, tick()
	}
	return m, nil
}

// updateScore handles keys while the quiz-score prompt is open.
func (m model) updateScore(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, keys.Cancel):
		m.entering = false
		m.score.Blur()
		return m, nil
	case key.Matches(msg, keys.Submit):
		score, err := strconv.ParseFloat(strings.TrimSpace(m.score.Value()), 64)
		if err != nil || score < 0 || math.IsInf(score, 0) || math.IsNaN(score) {
			m.monitor.Local().Dispatch(focus.Notice{Text: "Quiz score must be a non-negative number."})
			return m, nil
		}
		m.entering = false
		m.score.Blur()
		return m, m.submitCheckIn(score, m.monitor.Snapshot().Clock())
	}

	var cmd tea.Cmd
	m.score, cmd = m.score.Update(msg)
	return m, cmd
}

// submitCheckIn sends the day's quiz score with the session clock as focus
// time, then refreshes the status.
func (m model) submitCheckIn(score float64, elapsed string) tea.Cmd {
	local, service, studentID := m.monitor.Local(), m.service, m.studentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := service.CheckIn(ctx, api.CheckInRequest{
			StudentID:     studentID,
			QuizScore:     score,
			FocusDuration: elapsed,
		})
		local.Dispatch(focus.CheckInResolved{Response: resp, Err: err})
		if err != nil {
			return nil
		}

		if view, err := service.Status(ctx, studentID); err == nil {
			local.Dispatch(focus.StatusFetched{View: view, At: time.Now()})
		}
		return nil
	}
}

// completeTask reports the task done and then refreshes the status. The
// result reaches the view through the local store.
func (m model) completeTask(interventionID, elapsed string) tea.Cmd {
	local, service, studentID := m.monitor.Local(), m.service, m.studentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := service.CompleteIntervention(ctx, studentID, interventionID, elapsed)
		switch {
		case api.IsNotFound(err):
			local.Dispatch(focus.Notice{Text: "That task is already closed."})
		case err != nil:
			local.Dispatch(focus.Notice{Text: "Could not mark the task done. Try again."})
			return nil
		default:
			local.Dispatch(focus.Notice{Text: "Task done. Welcome back."})
		}

		if view, err := service.Status(ctx, studentID); err == nil {
			local.Dispatch(focus.StatusFetched{View: view, At: time.Now()})
		}
		return nil
	}
}

func (m model) View() string {
	snap := m.monitor.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Focus session"))
	b.WriteString(dimStyle.Render("  " + m.studentID))
	b.WriteString("\n\n")
	b.WriteString(clockStyle.Render(snap.Clock()))
	b.WriteString("\n")
	b.WriteString(renderPhase(snap.Phase))
	b.WriteString("\n\n")

	b.WriteString("Status: ")
	b.WriteString(renderState(m.state))
	b.WriteString("\n")

	if iv := m.state.Intervention; iv != nil {
		b.WriteString(warnStyle.Render("Task from your mentor: "))
		b.WriteString(iv.TaskDescription)
		b.WriteString("\n")
	}
	if m.entering {
		b.WriteString(m.score.View())
		b.WriteString(dimStyle.Render("  enter to submit, esc to cancel"))
		b.WriteString("\n")
	}
	if m.state.Message != "" {
		b.WriteString(messageStyle.Render(m.state.Message))
		b.WriteString("\n")
	}
	if !m.state.SyncedAt.IsZero() {
		b.WriteString(dimStyle.Render("synced " + m.state.SyncedAt.Format("15:04:05")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func renderPhase(p focus.Phase) string {
	switch p {
	case focus.PhaseRunning:
		return okStyle.Render("running, stay in this window")
	case focus.PhaseViolated:
		return alertStyle.Render("focus lost, session ended")
	case focus.PhaseStopped:
		return dimStyle.Render("paused")
	default:
		return dimStyle.Render("press space to start")
	}
}

func renderState(s focus.LocalState) string {
	label := string(s.Status)
	if s.Optimistic {
		label += " (pending confirmation)"
	}
	switch s.Status {
	case engagement.StateNormal:
		return okStyle.Render(label)
	case engagement.StateRemedial:
		return warnStyle.Render(label)
	default:
		return alertStyle.Render(label)
	}
}
