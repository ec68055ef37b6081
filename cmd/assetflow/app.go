package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/history"
	"github.com/ShayCichocki/assetflow/internal/logging"
	"github.com/ShayCichocki/assetflow/internal/metrics"
	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/internal/tasks"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// loadConfig loads the project configuration and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.root)
	if err != nil {
		return nil, err
	}
	if flags.env != "" {
		cfg.Env = models.ParseEnv(flags.env)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.concurrency > 0 {
		cfg.Concurrency = flags.concurrency
	}
	return cfg, cfg.Validate()
}

// app wires one invocation: configuration, logging, history, metrics, the
// task catalog and the executor running it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	debug    *logging.DebugLogger
	history  *history.DB
	metrics  *metrics.Metrics
	emitter  *runner.EventEmitter
	session  *tasks.Session
	catalog  *tasks.Catalog
	executor *runner.Executor

	closeOnce sync.Once
	closeErr  error
}

// newApp builds an app for ctx. Log lines go to logOut; services started by
// the run live until ctx is done or the app is closed.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logging.Setup(cfg.Log, logOut),
		metrics: metrics.New(),
		session: tasks.NewSession(ctx),
	}

	debugPath := ""
	if cfg.Log.File != "" {
		debugPath = cfg.Abs(cfg.Log.File)
	}
	debug, err := logging.NewDebugLogger(debugPath)
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}
	a.debug = debug

	if cfg.History.Enabled {
		db, err := history.OpenMigrated(cfg.Abs(cfg.History.Path))
		if err != nil {
			// History is a convenience; a locked or unreadable database
			// must not stop a build.
			a.logger.Warn("run history disabled", "path", cfg.MaskPath(cfg.Abs(cfg.History.Path)), "error", err)
		} else {
			a.history = db
		}
	}

	a.emitter = runner.NewEventEmitter(256, a.logger)
	opts := []runner.Option{
		runner.WithConcurrency(cfg.Concurrency),
		runner.WithEnv(cfg.Env),
		runner.WithEmitter(a.emitter),
		runner.WithMetrics(a.metrics),
		runner.WithLogger(a.logger),
		runner.WithDebugLog(a.debug),
	}
	if a.history != nil {
		opts = append(opts, runner.WithRecorder(a.history))
	}
	a.executor = runner.New(opts...)

	a.catalog = tasks.NewCatalog(cfg,
		tasks.WithSession(a.session),
		tasks.WithMetrics(a.metrics),
		tasks.WithLogger(a.logger),
	)
	if err := a.catalog.Register(a.executor); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close stops running services, ends the event stream and releases the
// history database.
func (a *app) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *app) close() error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close())
	}
	if a.emitter != nil {
		a.emitter.Close()
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.debug != nil {
		errs = append(errs, a.debug.Close())
	}
	return errors.Join(errs...)
}
