package models

import "time"

// RunStatus represents the overall state of one CLI invocation.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates every requested task completed.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates at least one task failed or was skipped.
	RunStatusFailed RunStatus = "failed"
)

// Run records one invocation of the executor.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`
	// Targets are the task names requested on the command line.
	Targets []string `json:"targets"`
	// Env is the environment the run was built for.
	Env Env `json:"env"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run ended, if it has.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Status is the current state of the run.
	Status RunStatus `json:"status"`
	// Error is the joined error text for failed runs.
	Error string `json:"error,omitempty"`
}

// TaskRun records the outcome of a single task within a run.
type TaskRun struct {
	RunID     string        `json:"run_id"`
	Task      string        `json:"task"`
	Status    TaskStatus    `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}
