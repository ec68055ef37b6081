package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// process is one run of the server command.
type process struct {
	id      string
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	exitErr  error
	exitCode int
	// stopping is set when the supervisor ends the process on purpose.
	stopping bool
}

func startProcess(id string, cmd *exec.Cmd) (*process, error) {
	p := &process{id: id, cmd: cmd, done: make(chan struct{}), exitCode: -1}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	p.started = time.Now()
	go p.wait()
	return p, nil
}

func (p *process) wait() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	p.mu.Lock()
	p.exitErr = err
	p.exitCode = code
	p.mu.Unlock()
	close(p.done)
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *process) exited() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitErr
}

func (p *process) markStopping() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
}

func (p *process) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// stop sends SIGTERM and escalates to SIGKILL after timeout.
func (p *process) stop(timeout time.Duration) {
	p.markStopping()
	select {
	case <-p.done:
		return
	default:
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(timeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}
