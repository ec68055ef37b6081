package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// maxLogs is how many activity lines the view keeps.
const maxLogs = 200

// EventMsg wraps an executor event for the view.
type EventMsg struct {
	Event runner.Event
}

// DoneMsg signals that the run returned.
type DoneMsg struct {
	Err error
	// Serving is set when services keep running after the run.
	Serving bool
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

type taskRow struct {
	name     string
	status   models.TaskStatus
	duration time.Duration
	err      string
}

// App is the bubbletea model for a run.
type App struct {
	header  *Header
	footer  *Footer
	spinner spinner.Model

	tasks []*taskRow
	logs  []LogEntry

	width    int
	height   int
	quitting bool
	done     bool

	pendingStyle lipgloss.Style
	runningStyle lipgloss.Style
	doneStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	skippedStyle lipgloss.Style
	logStyle     lipgloss.Style
}

// New creates an App for a run of targets.
func New(targets []string, env string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	return &App{
		header:  NewHeader(targets, env),
		footer:  NewFooter(),
		spinner: sp,

		pendingStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		runningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		failedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		skippedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		logStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.header.SetWidth(msg.Width)
		a.footer.SetWidth(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.handleEvent(msg.Event)

	case DoneMsg:
		a.done = true
		switch {
		case msg.Err != nil:
			a.footer.SetRunDone(true, false, msg.Err.Error())
		case msg.Serving:
			a.footer.SetRunDone(true, true, "serving, watching for changes")
		default:
			a.footer.SetRunDone(true, true, "finished")
		}
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", a.header.View(), a.viewTasks(), a.viewLogs(), a.footer.View())
}

func (a *App) viewTasks() string {
	if len(a.tasks) == 0 {
		return a.pendingStyle.Render("  planning...") + "\n"
	}

	var b strings.Builder
	for _, t := range a.tasks {
		var icon string
		style := a.pendingStyle
		switch t.status {
		case models.TaskStatusRunning:
			icon, style = a.spinner.View(), a.runningStyle
		case models.TaskStatusDone:
			icon, style = "✓", a.doneStyle
		case models.TaskStatusFailed:
			icon, style = "✗", a.failedStyle
		case models.TaskStatusSkipped:
			icon, style = "⊘", a.skippedStyle
		default:
			icon = "·"
		}
		line := fmt.Sprintf("  %s %s", icon, t.name)
		if t.duration > 0 {
			line += fmt.Sprintf(" (%s)", t.duration.Round(time.Millisecond))
		}
		b.WriteString(style.Render(line))
		if t.err != "" {
			b.WriteString(a.failedStyle.Render("  " + t.err))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) viewLogs() string {
	limit := 10
	if a.height > 0 {
		limit = max(3, a.height-len(a.tasks)-a.header.Height()-4)
	}
	start := max(0, len(a.logs)-limit)

	var b strings.Builder
	for _, entry := range a.logs[start:] {
		ts := entry.Timestamp.Format("15:04:05")
		b.WriteString(a.logStyle.Render(fmt.Sprintf("  %s [%s] %s", ts, entry.Level, entry.Message)))
		b.WriteString("\n")
	}
	return b.String()
}

// handleEvent applies an executor event to the task rows and the log.
func (a *App) handleEvent(ev runner.Event) {
	level, message := "INFO", ev.Message
	switch ev.Type {
	case runner.EventRunStarted:
		a.tasks = a.tasks[:0]
		for _, name := range ev.Tasks {
			a.tasks = append(a.tasks, &taskRow{name: name, status: models.TaskStatusPending})
		}
		message = "run started: " + strings.Join(ev.Tasks, ", ")
	case runner.EventTaskStarted:
		a.findOrCreateTask(ev.Task).status = models.TaskStatusRunning
		message = "starting " + ev.Task
	case runner.EventTaskCompleted:
		t := a.findOrCreateTask(ev.Task)
		t.status, t.duration = models.TaskStatusDone, ev.Duration
		message = "finished " + ev.Task
	case runner.EventTaskFailed:
		t := a.findOrCreateTask(ev.Task)
		t.status, t.duration = models.TaskStatusFailed, ev.Duration
		if ev.Error != nil {
			t.err = ev.Error.Error()
		}
		level, message = "ERROR", ev.Task+" failed"
	case runner.EventTaskSkipped:
		a.findOrCreateTask(ev.Task).status = models.TaskStatusSkipped
		level, message = "WARN", "skipped "+ev.Task
	case runner.EventRunFinished:
		message = fmt.Sprintf("run finished in %s", ev.Duration.Round(time.Millisecond))
	}
	if ev.Message != "" && message != ev.Message {
		message += ": " + ev.Message
	}

	a.logs = append(a.logs, LogEntry{Timestamp: ev.Timestamp, Level: level, Message: message})
	if len(a.logs) > maxLogs {
		a.logs = a.logs[len(a.logs)-maxLogs:]
	}
	a.footer.SetTaskCounts(a.counts())
}

func (a *App) findOrCreateTask(name string) *taskRow {
	for _, t := range a.tasks {
		if t.name == name {
			return t
		}
	}
	t := &taskRow{name: name, status: models.TaskStatusPending}
	a.tasks = append(a.tasks, t)
	return t
}

func (a *App) counts() TaskCounts {
	var c TaskCounts
	for _, t := range a.tasks {
		switch t.status {
		case models.TaskStatusDone:
			c.Done++
		case models.TaskStatusFailed:
			c.Failed++
		case models.TaskStatusSkipped:
			c.Skipped++
		case models.TaskStatusRunning:
			c.Running++
		}
	}
	return c
}

// Status returns the displayed status of the named task.
func (a *App) Status(name string) models.TaskStatus {
	for _, t := range a.tasks {
		if t.name == name {
			return t.status
		}
	}
	return ""
}

// Done reports whether the run has returned.
func (a *App) Done() bool {
	return a.done
}

// NewProgram creates a program for a run of targets. Messages reach it via
// Send.
func NewProgram(targets []string, env string) (*tea.Program, *App) {
	app := New(targets, env)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward sends executor events to p until events closes or ctx is done.
func Forward(ctx context.Context, p *tea.Program, events <-chan runner.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(EventMsg{Event: ev})
		}
	}
}
