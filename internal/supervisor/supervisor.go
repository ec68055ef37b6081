// Package supervisor runs the development server as a child process,
// restarts it when watched files change and reports its lifecycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/google/uuid"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/metrics"
	"github.com/ShayCichocki/assetflow/internal/watch"
)

// ErrNotRunning is returned when restarting a supervisor that was never
// started or has been closed.
var ErrNotRunning = errors.New("development server not running")

// EventType identifies a lifecycle event.
type EventType string

const (
	// EventStart fires when the server process is first launched.
	EventStart EventType = "start"
	// EventRestart fires after the server was relaunched.
	EventRestart EventType = "restart"
	// EventCrash fires when the server exits with a failure on its own.
	EventCrash EventType = "crash"
	// EventExit fires when the server exits successfully on its own.
	EventExit EventType = "exit"
)

// Event describes one lifecycle change of the server.
type Event struct {
	Type      EventType
	ProcessID string
	PID       int
	// Reason says what caused a restart, such as a changed path.
	Reason   string
	ExitCode int
	Err      error
	Time     time.Time
}

// Handler receives lifecycle events. Handlers run on the supervisor's
// goroutine and should return quickly.
type Handler func(Event)

// Supervisor keeps one server process running.
type Supervisor struct {
	root    string
	cfg     config.ServerConfig
	ignore  []string
	stdout  io.Writer
	stderr  io.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger

	// launchMu serializes launches so at most one server runs.
	launchMu sync.Mutex

	mu       sync.Mutex
	handlers []Handler
	proc     *process
	backoff  *Backoff
	watcher  *watch.Watcher
	started  bool
	closed   bool
	retry    *time.Timer
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOutput sets where the server's stdout and stderr go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithIgnore adds .gitignore-style patterns to the configured ignore list.
func WithIgnore(patterns ...string) Option {
	return func(s *Supervisor) { s.ignore = append(s.ignore, patterns...) }
}

// WithMetrics counts lifecycle events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithLogger sets the supervisor logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a supervisor for cfg with the project at root.
func New(root string, cfg config.ServerConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		root:     root,
		cfg:      cfg,
		ignore:   append([]string(nil), cfg.Ignore...),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   slog.Default(),
		backoff:  NewBackoff(cfg.CrashRestart),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s
}

// OnEvent registers h for every lifecycle event.
func (s *Supervisor) OnEvent(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// IgnoreMatcher builds the path filter for patterns in .gitignore syntax.
func IgnoreMatcher(patterns []string) watch.IgnoreFunc {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	m := gitignore.NewMatcher(ps)
	return func(rel string, isDir bool) bool {
		if rel == "." || rel == "" {
			return false
		}
		return m.Match(strings.Split(rel, "/"), isDir)
	}
}

// Start launches the server, emits EventStart and begins watching
// cfg.Watch. It returns once the process has been started.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("development server already started")
	}
	s.started = true
	s.mu.Unlock()

	if len(s.cfg.Watch) > 0 {
		w, err := watch.NewWatcher(s.root, IgnoreMatcher(s.ignore), s.logger)
		if err != nil {
			s.Close()
			return fmt.Errorf("creating server watcher: %w", err)
		}
		for _, dir := range s.cfg.Watch {
			if err := w.WatchRecursive(dir); err != nil && !errors.Is(err, watch.ErrPathNotExist) {
				w.Close()
				s.Close()
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
		s.wg.Add(1)
		go s.watchLoop(ctx, w)
	}

	if err := s.launch(EventStart, ""); err != nil {
		// Nothing else owns the supervisor yet, so stop the watch loop here.
		s.Close()
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.shutdown:
		}
	}()
	return nil
}

// Restart stops the running server and launches a new one.
func (s *Supervisor) Restart(reason string) error {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.mu.Unlock()

	return s.launch(EventRestart, reason)
}

// launch stops the current process, if any, and starts a new one.
func (s *Supervisor) launch(kind EventType, reason string) error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotRunning
	}
	old := s.proc
	s.mu.Unlock()
	if old != nil {
		old.stop(s.cfg.ShutdownTimeout)
	}

	args := append([]string{s.cfg.Script}, s.cfg.Args...)
	cmd := exec.Command(s.cfg.Command, args...)
	cmd.Dir = s.root
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.Env = os.Environ()
	// Grandchildren holding the output pipes must not block Wait forever.
	cmd.WaitDelay = time.Second

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotRunning
	}
	proc, err := startProcess(uuid.New().String(), cmd)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to start development server", "command", s.cfg.Command, "error", err)
		return err
	}
	s.proc = proc
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("development server "+string(kind), "pid", proc.pid(), "reason", reason)
	s.emit(Event{Type: kind, ProcessID: proc.id, PID: proc.pid(), Reason: reason})

	// Monitor only after the launch event so a fast crash is reported after it.
	go s.monitor(proc)
	return nil
}

// monitor waits for proc to exit and reports exits the supervisor did not
// cause.
func (s *Supervisor) monitor(proc *process) {
	defer s.wg.Done()
	<-proc.done
	if proc.wasStopped() {
		return
	}

	code, err := proc.exited()
	uptime := time.Since(proc.started)
	ev := Event{ProcessID: proc.id, PID: proc.pid(), ExitCode: code, Err: err}
	if err == nil {
		ev.Type = EventExit
		s.logger.Info("development server exited", "pid", ev.PID)
	} else {
		ev.Type = EventCrash
		s.logger.Error("development server crashed", "pid", ev.PID, "exit_code", code, "error", err)
	}
	s.emit(ev)

	if ev.Type != EventCrash {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.proc != proc {
		return
	}
	delay, ok := s.backoff.Next(uptime)
	if !ok {
		if s.cfg.CrashRestart.Enabled {
			s.logger.Error("development server keeps crashing, giving up", "attempts", s.backoff.Attempts())
		}
		return
	}
	s.logger.Info("restarting crashed development server", "delay", delay, "attempt", s.backoff.Attempts())
	s.retry = time.AfterFunc(delay, func() {
		if err := s.launch(EventRestart, "crash"); err != nil && !errors.Is(err, ErrNotRunning) {
			s.logger.Error("crash restart failed", "error", err)
		}
	})
}

// watchLoop restarts the server on changes. Events queued while a restart
// is in progress are folded into it.
func (s *Supervisor) watchLoop(ctx context.Context, w *watch.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Op == watch.OpChmod {
				continue
			}
			s.drain(w)
			if err := s.Restart(ev.Path); err != nil && !errors.Is(err, ErrNotRunning) {
				s.logger.Error("restart failed", "error", err)
			}
		}
	}
}

func (s *Supervisor) drain(w *watch.Watcher) {
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *Supervisor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.metrics.ObserveServerEvent(string(ev.Type))

	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("server event handler panicked", "event", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

// PID returns the running server's process id, or -1.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return -1
	}
	select {
	case <-s.proc.done:
		return -1
	default:
		return s.proc.pid()
	}
}

// Close stops watching and terminates the server, escalating to SIGKILL
// after cfg.ShutdownTimeout.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.shutdown)
	if s.retry != nil {
		s.retry.Stop()
	}
	proc, w := s.proc, s.watcher
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	if proc != nil {
		proc.stop(s.cfg.ShutdownTimeout)
	}
	s.wg.Wait()
	return err
}
