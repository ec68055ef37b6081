// Package watch maps filesystem changes to task runs and browser updates.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ShayCichocki/assetflow/internal/metrics"
	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// DefaultSuppressWindow is how long after a pipeline write events on the
// written path are ignored.
const DefaultSuppressWindow = 2 * time.Second

// FollowUp is what happens in the browser after a rule's tasks have run.
type FollowUp int

const (
	// FollowUpNone relies on the pipelines to stream their own outputs.
	FollowUpNone FollowUp = iota
	// FollowUpReload forces a full page reload.
	FollowUpReload
)

// Rule maps changes on Patterns to Tasks.
type Rule struct {
	Name string
	// Patterns are doublestar globs relative to the project root.
	Patterns []string
	Tasks    []string
	FollowUp FollowUp
	// Fallback rules fire only for events no other rule matched.
	Fallback bool
}

// Matches reports whether rel matches any of the rule's patterns.
func (r Rule) Matches(rel string) bool {
	for _, p := range r.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// RunFunc runs the named tasks to completion.
type RunFunc func(ctx context.Context, tasks ...string) error

// Reloader forces a full browser reload.
type Reloader interface {
	Reload()
}

// Registrar dispatches watch events to rules.
type Registrar struct {
	root     string
	run      RunFunc
	reloader Reloader
	writes   *pipeline.WriteLog
	window   time.Duration
	ignore   IgnoreFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	rules   []Rule
	watcher *Watcher
	done    chan struct{}
	closed  bool
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithReloader sets the target of reload follow-ups.
func WithReloader(r Reloader) Option {
	return func(reg *Registrar) { reg.reloader = r }
}

// WithWriteLog ignores events on paths pipelines wrote within window.
func WithWriteLog(l *pipeline.WriteLog, window time.Duration) Option {
	return func(reg *Registrar) {
		reg.writes = l
		reg.window = window
	}
}

// WithIgnore skips matching paths entirely, including when walking
// directories to watch.
func WithIgnore(fn IgnoreFunc) Option {
	return func(reg *Registrar) { reg.ignore = fn }
}

// WithMetrics counts triggered rules.
func WithMetrics(m *metrics.Metrics) Option {
	return func(reg *Registrar) { reg.metrics = m }
}

// WithLogger sets the registrar logger.
func WithLogger(l *slog.Logger) Option {
	return func(reg *Registrar) {
		if l != nil {
			reg.logger = l
		}
	}
}

// NewRegistrar creates a registrar for the project at root that runs tasks
// through run.
func NewRegistrar(root string, run RunFunc, opts ...Option) *Registrar {
	r := &Registrar{
		root:   root,
		run:    run,
		window: DefaultSuppressWindow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "watch")
	return r
}

// Add registers a rule.
func (r *Registrar) Add(rule Rule) error {
	if len(rule.Patterns) == 0 {
		return fmt.Errorf("watch rule %q has no patterns", rule.Name)
	}
	for _, p := range rule.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch rule %q: invalid pattern %q", rule.Name, p)
		}
	}
	if rule.Name == "" {
		rule.Name = strings.Join(rule.Patterns, ",")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrWatcherClosed
	}
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns the registered rules.
func (r *Registrar) Rules() []Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rules)
}

// Handle dispatches a change on rel, a root-relative slash path, and returns
// the names of the rules it fired. Task failures are logged, never returned.
func (r *Registrar) Handle(ctx context.Context, rel string) []string {
	rel = path.Clean(rel)
	if r.ignore != nil && r.ignore(rel, false) {
		return nil
	}
	if r.writes.WrittenWithin(rel, r.window) {
		r.logger.Debug("ignoring change to pipeline output", "path", rel)
		return nil
	}

	rules := r.Rules()
	var fired []string
	for _, rule := range rules {
		if rule.Fallback || !rule.Matches(rel) {
			continue
		}
		r.fire(ctx, rule, rel)
		fired = append(fired, rule.Name)
	}
	if len(fired) > 0 {
		return fired
	}
	for _, rule := range rules {
		if rule.Fallback && rule.Matches(rel) {
			r.fire(ctx, rule, rel)
			fired = append(fired, rule.Name)
		}
	}
	return fired
}

func (r *Registrar) fire(ctx context.Context, rule Rule, rel string) {
	r.metrics.ObserveWatch(rule.Name)
	r.logger.Info("change detected", "rule", rule.Name, "path", rel, "tasks", rule.Tasks)

	if len(rule.Tasks) > 0 && r.run != nil {
		if err := r.run(ctx, rule.Tasks...); err != nil {
			r.logger.Error("watch tasks failed", "rule", rule.Name, "error", err)
		}
	}
	if rule.FollowUp == FollowUpReload && r.reloader != nil {
		r.reloader.Reload()
	}
	r.writes.Prune(r.window)
}

// Start watches the directories the rules' patterns can match and handles
// events in a single loop until ctx is done or Close is called.
func (r *Registrar) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrWatcherClosed
	}
	if r.watcher != nil {
		return errors.New("watch registrar already started")
	}

	w, err := NewWatcher(r.root, r.ignore, r.logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range watchDirs(r.rules) {
		var err error
		if dir.recursive {
			err = w.WatchRecursive(dir.path)
		} else {
			err = w.Watch(dir.path)
		}
		if errors.Is(err, ErrPathNotExist) {
			r.logger.Debug("watch directory missing", "path", dir.path)
			continue
		}
		if err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", dir.path, err)
		}
	}

	r.watcher = w
	r.done = make(chan struct{})
	go r.loop(ctx, w, r.done)
	r.logger.Info("watching for changes", "rules", len(r.rules), "directories", w.WatchedPaths())
	return nil
}

func (r *Registrar) loop(ctx context.Context, w *Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Op == OpChmod {
				continue
			}
			r.Handle(ctx, ev.Path)
		}
	}
}

// Done is closed when the event loop exits.
func (r *Registrar) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Close stops watching.
func (r *Registrar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	w, done := r.watcher, r.done
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

type watchDir struct {
	path      string
	recursive bool
}

// watchDirs returns the directories to watch for rules: the static prefix
// of each glob recursively, or the parent of a literal path.
func watchDirs(rules []Rule) []watchDir {
	seen := make(map[watchDir]bool)
	var dirs []watchDir
	for _, rule := range rules {
		for _, p := range rule.Patterns {
			base, pattern := doublestar.SplitPattern(p)
			d := watchDir{path: base, recursive: true}
			if !strings.ContainsAny(pattern, "*?[{") {
				d = watchDir{path: path.Dir(p), recursive: false}
			}
			if !seen[d] {
				seen[d] = true
				dirs = append(dirs, d)
			}
		}
	}
	return dirs
}
