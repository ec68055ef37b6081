package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ShayCichocki/assetflow/internal/config"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 32)}
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

func (l *eventLog) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server event")
		return Event{}
	}
}

func shellServer(script string) config.ServerConfig {
	return config.ServerConfig{
		Command:         "sh",
		Script:          "-c",
		Args:            []string{script},
		ShutdownTimeout: time.Second,
	}
}

func newTestSupervisor(t *testing.T, root string, cfg config.ServerConfig) (*Supervisor, *eventLog) {
	t.Helper()
	s := New(root, cfg, WithOutput(io.Discard, io.Discard))
	log := newEventLog()
	s.OnEvent(log.handle)
	t.Cleanup(func() { s.Close() })
	return s, log
}

func TestBackoff(t *testing.T) {
	cfg := config.CrashRestartConfig{
		Enabled:     true,
		Initial:     time.Second,
		Max:         5 * time.Second,
		MaxAttempts: 4,
	}

	tests := []struct {
		name      string
		uptime    time.Duration
		wantDelay time.Duration
		wantOK    bool
	}{
		{"first crash", 0, time.Second, true},
		{"doubles", 0, 2 * time.Second, true},
		{"doubles again", 0, 4 * time.Second, true},
		{"capped at max", 0, 5 * time.Second, true},
		{"gives up after max attempts", 0, 0, false},
		{"stable run resets", 6 * time.Second, time.Second, true},
	}

	b := NewBackoff(cfg)
	for _, tt := range tests {
		delay, ok := b.Next(tt.uptime)
		if delay != tt.wantDelay || ok != tt.wantOK {
			t.Errorf("%s: Next(%v) = (%v, %v), want (%v, %v)", tt.name, tt.uptime, delay, ok, tt.wantDelay, tt.wantOK)
		}
	}
}

func TestBackoff_DisabledNeverRestarts(t *testing.T) {
	b := NewBackoff(config.CrashRestartConfig{Initial: time.Second, Max: time.Minute, MaxAttempts: 5})
	if _, ok := b.Next(0); ok {
		t.Error("disabled policy asked for a restart")
	}
}

func TestIgnoreMatcher(t *testing.T) {
	ignore := IgnoreMatcher([]string{"node_modules/", ".assetflow/", ".assetflow.yaml", "# comment", "*.log"})

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"node_modules/express/index.js", false, true},
		{".assetflow", true, true},
		{".assetflow.yaml", false, true},
		{"server/debug.log", false, true},
		{"server/app.js", false, false},
		{"server", true, false},
		{".", true, false},
	}
	for _, tt := range tests {
		if got := ignore(tt.rel, tt.isDir); got != tt.want {
			t.Errorf("ignore(%q, %v) = %v, want %v", tt.rel, tt.isDir, got, tt.want)
		}
	}
}

func TestSupervisor_StartAndClose(t *testing.T) {
	s, log := newTestSupervisor(t, t.TempDir(), shellServer("exec sleep 30"))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ev := log.next(t)
	if ev.Type != EventStart || ev.PID <= 0 || ev.ProcessID == "" {
		t.Errorf("first event = %+v, want start with a pid and id", ev)
	}
	if s.PID() != ev.PID {
		t.Errorf("PID() = %d, want %d", s.PID(), ev.PID)
	}

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Close took %v, want the server terminated promptly", elapsed)
	}
	if s.PID() != -1 {
		t.Errorf("PID() after Close = %d, want -1", s.PID())
	}
	// A supervised shutdown is not a crash.
	select {
	case ev := <-log.ch:
		t.Errorf("unexpected event after Close: %+v", ev)
	default:
	}
}

func TestSupervisor_CrashIsReported(t *testing.T) {
	s, log := newTestSupervisor(t, t.TempDir(), shellServer("exit 3"))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ev := log.next(t); ev.Type != EventStart {
		t.Fatalf("first event = %v, want start", ev.Type)
	}
	ev := log.next(t)
	if ev.Type != EventCrash || ev.ExitCode != 3 {
		t.Errorf("second event = %+v, want crash with exit code 3", ev)
	}
}

func TestSupervisor_CleanExit(t *testing.T) {
	s, log := newTestSupervisor(t, t.TempDir(), shellServer("exit 0"))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	log.next(t)
	if ev := log.next(t); ev.Type != EventExit {
		t.Errorf("event = %v, want exit", ev.Type)
	}
}

func TestSupervisor_CrashRestartPolicy(t *testing.T) {
	cfg := shellServer("exit 1")
	cfg.CrashRestart = config.CrashRestartConfig{
		Enabled:     true,
		Initial:     10 * time.Millisecond,
		Max:         50 * time.Millisecond,
		MaxAttempts: 2,
	}
	s, log := newTestSupervisor(t, t.TempDir(), cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []EventType{EventStart, EventCrash, EventRestart, EventCrash, EventRestart, EventCrash}
	for i, w := range want {
		if ev := log.next(t); ev.Type != w {
			t.Fatalf("event %d = %v, want %v", i, ev.Type, w)
		}
	}
	select {
	case ev := <-log.ch:
		t.Errorf("unexpected event after giving up: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSupervisor_RestartOnChange(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "server"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	cfg := shellServer("exec sleep 30")
	cfg.Watch = []string{"."}
	cfg.Ignore = []string{"node_modules/"}
	s, log := newTestSupervisor(t, root, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := log.next(t)

	if err := os.WriteFile(filepath.Join(root, "server", "app.js"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	ev := log.next(t)
	if ev.Type != EventRestart || ev.Reason != "server/app.js" {
		t.Fatalf("event = %+v, want restart caused by server/app.js", ev)
	}
	if ev.PID == first.PID {
		t.Error("restart kept the same process")
	}
}

func TestSupervisor_RestartBeforeStart(t *testing.T) {
	s := New(t.TempDir(), shellServer("exec sleep 30"))
	if err := s.Restart("manual"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Restart before Start = %v, want ErrNotRunning", err)
	}
	s.Close()
	if err := s.Start(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Start after Close = %v, want ErrNotRunning", err)
	}
}

func TestSupervisor_FailedStartReleasesWatcher(t *testing.T) {
	root := t.TempDir()
	cfg := shellServer("")
	cfg.Command = "assetflow-no-such-server"
	cfg.Watch = []string{"."}

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		s := New(root, cfg, WithOutput(io.Discard, io.Discard))
		if err := s.Start(context.Background()); err == nil {
			t.Fatal("Start succeeded without a server command")
		}
		if err := s.Restart("server/app.js"); !errors.Is(err, ErrNotRunning) {
			t.Errorf("Restart after failed Start = %v, want ErrNotRunning", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("goroutines = %d after failed starts, want at most %d", after, before)
	}
}

func TestSupervisor_ConcurrentRestartsKeepOneServer(t *testing.T) {
	s, log := newTestSupervisor(t, t.TempDir(), shellServer("exec sleep 30"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pids := []int{log.next(t).PID}

	const restarts = 4
	var wg sync.WaitGroup
	for i := 0; i < restarts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Restart("manual"); err != nil {
				t.Errorf("Restart: %v", err)
			}
		}()
	}
	wg.Wait()
	for i := 0; i < restarts; i++ {
		pids = append(pids, log.next(t).PID)
	}

	current := s.PID()
	alive := 0
	for _, pid := range pids {
		if syscall.Kill(pid, 0) == nil {
			alive++
			if pid != current {
				t.Errorf("process %d still running, current server is %d", pid, current)
			}
		}
	}
	if alive != 1 {
		t.Errorf("%d server processes running, want 1", alive)
	}
}
