package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// TaskCounts holds the count of tasks in each status.
type TaskCounts struct {
	Done    int
	Failed  int
	Skipped int
	Running int
}

// Footer renders the status bar and keyboard hints.
type Footer struct {
	message    string
	success    bool
	runDone    bool
	width      int
	taskCounts TaskCounts

	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetRunDone marks the run as complete.
func (f *Footer) SetRunDone(done bool, success bool, message string) {
	f.runDone = done
	f.success = success
	f.message = message
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetTaskCounts updates the task counts for display.
func (f *Footer) SetTaskCounts(counts TaskCounts) {
	f.taskCounts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	var left string

	total := f.taskCounts.Done + f.taskCounts.Failed + f.taskCounts.Skipped + f.taskCounts.Running
	if total > 0 {
		counts := fmt.Sprintf("✓%d", f.taskCounts.Done)
		if f.taskCounts.Failed > 0 {
			counts += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.taskCounts.Failed))
		}
		if f.taskCounts.Skipped > 0 {
			counts += fmt.Sprintf(" ⊘%d", f.taskCounts.Skipped)
		}
		if f.taskCounts.Running > 0 {
			counts += fmt.Sprintf(" ⏳%d", f.taskCounts.Running)
		}
		left = counts
	}

	if f.runDone {
		if f.success {
			left = f.successStyle.Render("✓ " + f.message)
		} else {
			left = f.errorStyle.Render("✗ " + f.message)
		}
	}

	right := f.hintStyle.Render("q quit")
	if f.runDone {
		right = f.hintStyle.Render("Press q to exit")
	}

	if left == "" {
		return right
	}
	return left + f.separatorStyle.Render(" │ ") + right
}
