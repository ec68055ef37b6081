package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrWatcherClosed is returned when a closed watcher is used.
	ErrWatcherClosed = errors.New("watcher is closed")
	// ErrPathNotExist is returned when watching a path that does not exist.
	ErrPathNotExist = errors.New("path does not exist")
)

// Op describes what happened to a path.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Event is a change to one path, relative to the watcher root with forward
// slashes.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// IgnoreFunc reports whether a root-relative path should be skipped.
// Ignored directories are not descended into.
type IgnoreFunc func(rel string, isDir bool) bool

// Watcher watches directory trees below a root with fsnotify and reports
// root-relative events. Directories created after a tree is watched are
// picked up automatically.
type Watcher struct {
	root    string
	ignore  IgnoreFunc
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu     sync.Mutex
	paths  map[string]bool
	closed bool

	events  chan Event
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher rooted at root. ignore may be nil.
func NewWatcher(root string, ignore IgnoreFunc, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ignore == nil {
		ignore = func(string, bool) bool { return false }
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    abs,
		ignore:  ignore,
		watcher: fsw,
		logger:  logger,
		paths:   make(map[string]bool),
		events:  make(chan Event, 256),
		closeCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Events returns the event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Watch watches a single directory, relative to the root.
func (w *Watcher) Watch(rel string) error {
	return w.add(filepath.Join(w.root, filepath.FromSlash(rel)))
}

// WatchRecursive watches a directory, relative to the root, and every
// directory below it that is not ignored.
func (w *Watcher) WatchRecursive(rel string) error {
	dir := filepath.Join(w.root, filepath.FromSlash(rel))
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return w.add(filepath.Dir(dir))
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.ignore(w.rel(p), true) {
			return filepath.SkipDir
		}
		if err := w.add(p); err != nil {
			w.logger.Warn("watching directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) add(abs string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[abs] {
		return nil
	}
	if err := w.watcher.Add(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	w.paths[abs] = true
	return nil
}

// WatchedPaths returns the number of directories being watched.
func (w *Watcher) WatchedPaths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

func (w *Watcher) rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}
	rel := w.rel(ev.Name)

	if op&OpCreate != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.ignore(rel, true) {
				return
			}
			if err := w.WatchRecursive(rel); err != nil && !errors.Is(err, ErrWatcherClosed) {
				w.logger.Warn("watching new directory", "path", rel, "error", err)
			}
		}
	}
	if w.ignore(rel, false) {
		return
	}

	select {
	case w.events <- Event{Path: rel, Op: op, Time: time.Now()}:
	case <-w.closeCh:
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	return w.watcher.Close()
}
