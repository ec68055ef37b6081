package runner

import "time"

// EventType represents the type of executor event.
type EventType string

const (
	// EventRunStarted indicates the executor accepted a run.
	EventRunStarted EventType = "run_started"
	// EventTaskStarted indicates a task action has started.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task action returned an error.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task was not run because a prerequisite failed.
	EventTaskSkipped EventType = "task_skipped"
	// EventRunFinished indicates every task of the run reached a terminal state.
	EventRunFinished EventType = "run_finished"
)

// Event represents an event emitted by the executor.
// These events drive the console output and the TUI.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the ID of the run the event belongs to.
	RunID string
	// Task is the name of the related task, if applicable.
	Task string
	// Tasks lists the planned task order for run_started events.
	Tasks []string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the task or run duration for completion events.
	Duration time.Duration
}
