// Package runner executes task graphs: prerequisites first, independent
// tasks concurrently, dependents of a failed task skipped.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/assetflow/internal/graph"
	"github.com/ShayCichocki/assetflow/internal/logging"
	"github.com/ShayCichocki/assetflow/internal/metrics"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// Action is the body of a task. A nil Action does nothing.
type Action func(ctx context.Context) error

type definition struct {
	task   *models.Task
	action Action
}

// Executor holds task definitions and runs them.
type Executor struct {
	mu    sync.RWMutex
	defs  map[string]definition
	order []string

	concurrency int
	env         models.Env
	emitter     *EventEmitter
	recorder    Recorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
	debug       *logging.DebugLogger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency limits how many task actions run at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithEnv sets the environment recorded with each run.
func WithEnv(env models.Env) Option {
	return func(e *Executor) { e.env = env }
}

// WithEmitter sends executor events to em.
func WithEmitter(em *EventEmitter) Option {
	return func(e *Executor) { e.emitter = em }
}

// WithRecorder persists runs through r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithMetrics records task and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDebugLog routes graph tracing to d.
func WithDebugLog(d *logging.DebugLogger) Option {
	return func(e *Executor) { e.debug = d }
}

// New creates an Executor with no tasks.
func New(opts ...Option) *Executor {
	e := &Executor{
		defs:        make(map[string]definition),
		concurrency: 4,
		env:         models.EnvDevelopment,
		logger:      logging.Discard(),
		debug:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Define registers a task that runs action after every task in deps.
func (e *Executor) Define(name string, deps []string, action Action) error {
	return e.DefineTask(&models.Task{Name: name, DependsOn: deps}, action)
}

// DefineTask registers task with its action. Names must be unique.
func (e *Executor) DefineTask(task *models.Task, action Action) error {
	if task.Name == "" {
		return errors.New("task name is empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.defs[task.Name]; exists {
		return fmt.Errorf("task %q already defined", task.Name)
	}
	e.defs[task.Name] = definition{task: task.Clone(), action: action}
	e.order = append(e.order, task.Name)
	return nil
}

// Graph builds the dependency graph of every defined task.
func (e *Executor) Graph() (*graph.DependencyGraph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buildLocked(e.order)
}

func (e *Executor) buildLocked(names []string) (*graph.DependencyGraph, error) {
	tasks := make([]*models.Task, 0, len(names))
	for _, name := range names {
		t := e.defs[name].task.Clone()
		t.Status = models.TaskStatusPending
		tasks = append(tasks, t)
	}
	g := graph.New()
	g.SetDebugLog(e.debug.Log)
	if err := g.Build(tasks); err != nil {
		return nil, err
	}
	return g, nil
}

// Plan returns the tasks a run of targets would execute, prerequisites first.
func (e *Executor) Plan(targets ...string) ([]string, error) {
	g, err := e.Graph()
	if err != nil {
		return nil, err
	}
	return g.Closure(targets...)
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Tasks    []*models.Task
	Duration time.Duration
}

// Failed returns the names of tasks that failed.
func (r *Result) Failed() []string {
	var names []string
	for _, t := range r.Tasks {
		if t.Status == models.TaskStatusFailed {
			names = append(names, t.Name)
		}
	}
	return names
}

// Task returns the named task of the run, or nil.
func (r *Result) Task(name string) *models.Task {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

type outcome struct {
	name     string
	err      error
	started  time.Time
	duration time.Duration
}

// Run executes targets and everything they depend on. Unknown targets and
// cycles are reported before any action starts. A failed task marks its
// transitive dependents skipped while unrelated tasks keep running. The
// returned error joins a *TaskError per failed task.
func (e *Executor) Run(ctx context.Context, targets ...string) (*Result, error) {
	e.mu.RLock()
	full, err := e.buildLocked(e.order)
	if err != nil {
		e.mu.RUnlock()
		return nil, err
	}
	closure, err := full.Closure(targets...)
	if err != nil {
		e.mu.RUnlock()
		return nil, err
	}
	g, err := e.buildLocked(closure)
	actions := make(map[string]Action, len(closure))
	for _, name := range closure {
		actions[name] = e.defs[name].action
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:        uuid.New().String(),
		Targets:   append([]string(nil), targets...),
		Env:       e.env,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	logger := logging.WithRunID(e.logger, run.ID)
	e.record(ctx, "start run", func(ctx context.Context, r Recorder) error { return r.StartRun(ctx, run) })
	e.emitter.Emit(Event{Type: EventRunStarted, RunID: run.ID, Tasks: closure, Message: fmt.Sprintf("running %v", targets)})
	logger.Debug("run started", "targets", targets, "plan", closure)

	eg := &errgroup.Group{}
	eg.SetLimit(e.concurrency)
	results := make(chan outcome, len(closure))

	var taskErrs []error
	remaining := len(closure)
	inflight := 0

	for remaining > 0 {
		if ctx.Err() == nil {
			for _, name := range g.GetReady() {
				task := g.GetTask(name)
				action := actions[name]
				if !eg.TryGo(func() error {
					results <- e.runAction(ctx, logger, run.ID, name, action)
					return nil
				}) {
					break
				}
				now := time.Now()
				task.Status = models.TaskStatusRunning
				task.StartedAt = &now
				inflight++
			}
		}
		if inflight == 0 {
			break
		}

		res := <-results
		inflight--
		remaining--
		task := g.GetTask(res.name)
		finished := res.started.Add(res.duration)
		task.CompletedAt = &finished

		tr := &models.TaskRun{RunID: run.ID, Task: res.name, StartedAt: res.started, Duration: res.duration}
		if res.err == nil {
			task.Status = models.TaskStatusDone
			g.MarkComplete(res.name)
			tr.Status = models.TaskStatusDone
			e.emitter.Emit(Event{Type: EventTaskCompleted, RunID: run.ID, Task: res.name, Duration: res.duration})
		} else {
			task.Status = models.TaskStatusFailed
			task.Error = res.err.Error()
			tr.Status = models.TaskStatusFailed
			tr.Error = task.Error
			taskErrs = append(taskErrs, &TaskError{Task: res.name, Err: res.err})
			e.emitter.Emit(Event{Type: EventTaskFailed, RunID: run.ID, Task: res.name, Error: res.err, Duration: res.duration})
			logger.Error("task failed", "task", res.name, "error", res.err)

			for _, dep := range g.GetTransitiveDependents(res.name) {
				dt := g.GetTask(dep)
				if dt.Status != models.TaskStatusPending {
					continue
				}
				remaining--
				e.skip(ctx, run.ID, dt, fmt.Sprintf("prerequisite %q failed", res.name))
			}
		}
		e.metrics.ObserveTask(res.name, string(tr.Status), res.duration)
		e.record(ctx, "record task", func(ctx context.Context, r Recorder) error { return r.RecordTask(ctx, tr) })
	}
	_ = eg.Wait()

	// Only reachable with tasks left over when ctx was cancelled.
	for _, name := range closure {
		if t := g.GetTask(name); t.Status == models.TaskStatusPending {
			e.skip(ctx, run.ID, t, "run cancelled")
		}
	}

	result := &Result{RunID: run.ID, Duration: time.Since(run.StartedAt)}
	for _, name := range closure {
		result.Tasks = append(result.Tasks, g.GetTask(name))
	}

	runErr := errors.Join(taskErrs...)
	if runErr == nil && ctx.Err() != nil {
		for _, t := range result.Tasks {
			if t.Status == models.TaskStatusSkipped {
				runErr = ctx.Err()
				break
			}
		}
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusSucceeded
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}
	e.metrics.ObserveRun(string(run.Status))
	e.record(ctx, "finish run", func(ctx context.Context, r Recorder) error { return r.FinishRun(ctx, run) })
	e.emitter.Emit(Event{Type: EventRunFinished, RunID: run.ID, Error: runErr, Duration: result.Duration})
	logger.Debug("run finished", "status", run.Status, "duration", result.Duration)

	return result, runErr
}

// runAction executes one action, turning panics into errors.
func (e *Executor) runAction(ctx context.Context, logger *slog.Logger, runID, name string, action Action) (res outcome) {
	res = outcome{name: name, started: time.Now()}
	e.emitter.Emit(Event{Type: EventTaskStarted, RunID: runID, Task: name, Timestamp: res.started})
	logging.WithTask(logger, name).Debug("task started")

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		res.duration = time.Since(res.started)
	}()

	if action != nil {
		res.err = action(logging.WithLogger(ctx, logging.WithTask(logger, name)))
	}
	return res
}

func (e *Executor) skip(ctx context.Context, runID string, t *models.Task, reason string) {
	now := time.Now()
	t.Status = models.TaskStatusSkipped
	t.CompletedAt = &now
	e.emitter.Emit(Event{Type: EventTaskSkipped, RunID: runID, Task: t.Name, Message: reason})
	e.metrics.ObserveTask(t.Name, string(models.TaskStatusSkipped), 0)
	tr := &models.TaskRun{RunID: runID, Task: t.Name, Status: models.TaskStatusSkipped, StartedAt: now, Error: reason}
	e.record(ctx, "record task", func(ctx context.Context, r Recorder) error { return r.RecordTask(ctx, tr) })
}

// record runs fn against the recorder with a context that survives
// cancellation, so interrupted runs are still written.
func (e *Executor) record(ctx context.Context, what string, fn func(context.Context, Recorder) error) {
	if e.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), e.recorder); err != nil {
		e.logger.Warn("history "+what+" failed", "error", err)
	}
}
