package models

import "time"

// TaskStatus represents the current state of a task within a run.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task action is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task action returned an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates a prerequisite failed so the task never ran.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusDone, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the task will not change state again in this run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed || s == TaskStatusSkipped
}

// Task is a node of the task graph: a name, the tasks that must finish
// before it, and a description shown by the CLI.
type Task struct {
	// Name is the unique identifier for this task.
	Name string `json:"name" yaml:"name"`
	// Description is a short human-readable summary.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// DependsOn lists task names that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// LongRunning marks tasks that start a service which outlives the action.
	LongRunning bool `json:"long_running,omitempty" yaml:"long_running,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status,omitempty" yaml:"-"`
	// StartedAt is when the action started, if it has.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty" yaml:"-"`
}

// Clone returns a copy of the task with its own dependency slice.
func (t *Task) Clone() *Task {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	return &c
}
