// Package tasks declares the asset pipeline's tasks: the built-in catalog,
// project tasks from the config file and the long-running development
// services.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/exec"
	"github.com/ShayCichocki/assetflow/internal/livereload"
	"github.com/ShayCichocki/assetflow/internal/logging"
	"github.com/ShayCichocki/assetflow/internal/metrics"
	"github.com/ShayCichocki/assetflow/internal/pipeline"
	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// Definition is one task of the catalog.
type Definition struct {
	Name        string
	Description string
	Deps        []string
	Action      runner.Action
	// Service tasks start something that outlives the run.
	Service bool
	// Custom tasks come from the project config.
	Custom bool
}

// Catalog builds task definitions for one project configuration.
type Catalog struct {
	cfg     *config.Config
	fs      billy.Filesystem
	cmd     exec.CommandRunner
	writes  *pipeline.WriteLog
	session *Session
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	executor *runner.Executor
	notifier pipeline.Notifier
	relay    *livereload.Relay
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFilesystem replaces the project filesystem, which defaults to the
// project root on disk.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *Catalog) { c.fs = fs }
}

// WithCommandRunner replaces the runner for external commands.
func WithCommandRunner(r exec.CommandRunner) Option {
	return func(c *Catalog) { c.cmd = r }
}

// WithNotifier sets where asset pipelines stream their outputs before the
// live-reload relay is started.
func WithNotifier(n pipeline.Notifier) Option {
	return func(c *Catalog) { c.notifier = n }
}

// WithSession sets the session owning long-running services.
func WithSession(s *Session) Option {
	return func(c *Catalog) { c.session = s }
}

// WithMetrics shares collectors with the relay, supervisor and watcher.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog creates the catalog for cfg.
func NewCatalog(cfg *config.Config, opts ...Option) *Catalog {
	c := &Catalog{
		cfg:     cfg,
		cmd:     exec.NewRunner(),
		writes:  pipeline.NewWriteLog(),
		logger:  logging.Discard(),
		session: NewSession(context.Background()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = osfs.New(cfg.Root)
	}
	return c
}

// Filesystem returns the project filesystem pipelines read and write.
func (c *Catalog) Filesystem() billy.Filesystem {
	return c.fs
}

// Session returns the session owning long-running services.
func (c *Catalog) Session() *Session {
	return c.session
}

// Writes returns the log of pipeline writes.
func (c *Catalog) Writes() *pipeline.WriteLog {
	return c.writes
}

// Definitions returns every task, sorted by name. Project tasks replace
// built-in tasks of the same name.
func (c *Catalog) Definitions() []Definition {
	defs := make(map[string]Definition)
	for _, d := range c.builtins() {
		defs[d.Name] = d
	}
	for _, tc := range c.cfg.Tasks {
		defs[tc.Name] = c.custom(tc)
	}

	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Register defines every task on e. Watch rules re-run tasks through e.
func (c *Catalog) Register(e *runner.Executor) error {
	c.mu.Lock()
	c.executor = e
	c.mu.Unlock()

	for _, d := range c.Definitions() {
		task := &models.Task{Name: d.Name, Description: d.Description, DependsOn: d.Deps, LongRunning: d.Service}
		if err := e.DefineTask(task, d.Action); err != nil {
			return fmt.Errorf("defining task %s: %w", d.Name, err)
		}
	}
	return nil
}

// custom wraps a project task's shell command.
func (c *Catalog) custom(tc config.TaskConfig) Definition {
	d := Definition{Name: tc.Name, Description: tc.Description, Deps: tc.Deps, Custom: true}
	if d.Description == "" && tc.Run != "" {
		d.Description = tc.Run
	}
	if tc.Run == "" {
		return d
	}
	command := tc.Run
	d.Action = func(ctx context.Context) error {
		logger := logging.FromContext(ctx)
		out, err := c.cmd.RunShell(ctx, c.cfg.Root, command)
		if len(out) > 0 {
			logger.Info("command output", "command", command, "output", string(out))
		}
		if err != nil {
			return fmt.Errorf("running %q: %w", command, err)
		}
		return nil
	}
	return d
}

// run executes p against the project filesystem.
func (c *Catalog) run(ctx context.Context, p *pipeline.Pipeline) error {
	files, err := p.Run(ctx, c.fs, c.writes, logging.FromContext(ctx))
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("pipeline finished", "pipeline", p.Name(), "files", len(files))
	return nil
}

// stream returns the stage handing outputs to the current notifier.
func (c *Catalog) stream() pipeline.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pipeline.Stream(c.notifier)
}

// setRelay makes r the target of pipeline streams and reloads.
func (c *Catalog) setRelay(r *livereload.Relay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relay = r
	c.notifier = r
}

// currentRelay returns the running relay, or nil.
func (c *Catalog) currentRelay() *livereload.Relay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relay
}

// runTasks re-runs tasks from a watch rule.
func (c *Catalog) runTasks(ctx context.Context, names ...string) error {
	c.mu.Lock()
	e := c.executor
	c.mu.Unlock()
	if e == nil {
		return fmt.Errorf("tasks not registered with an executor")
	}
	_, err := e.Run(ctx, names...)
	return err
}
