package pipeline

import (
	"path/filepath"
	"sync"
	"time"
)

// WriteLog remembers when pipelines last wrote each path, so watchers can
// ignore events caused by their own outputs. A nil WriteLog records nothing.
type WriteLog struct {
	mu     sync.Mutex
	now    func() time.Time
	writes map[string]time.Time
}

// NewWriteLog creates an empty WriteLog.
func NewWriteLog() *WriteLog {
	return &WriteLog{now: time.Now, writes: make(map[string]time.Time)}
}

// Record notes a write to p, a slash path relative to the project root.
func (l *WriteLog) Record(p string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes[filepath.ToSlash(p)] = l.now()
}

// WrittenWithin reports whether p was written less than window ago.
func (l *WriteLog) WrittenWithin(p string, window time.Duration) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.writes[filepath.ToSlash(p)]
	return ok && l.now().Sub(at) < window
}

// Prune forgets writes older than window.
func (l *WriteLog) Prune(window time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-window)
	for p, at := range l.writes {
		if at.Before(cutoff) {
			delete(l.writes, p)
		}
	}
}
