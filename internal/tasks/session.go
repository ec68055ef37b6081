package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Session owns the long-running services started by tasks: the development
// server, the live-reload relay and the watchers. They live until the
// session context ends or Close is called, not until their task returns.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	services []service
	closed   bool
}

type service struct {
	name   string
	closer io.Closer
}

// NewSession creates a session bound to ctx.
func NewSession(ctx context.Context) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{ctx: ctx, cancel: cancel}
}

// Context returns the context services should run under.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Add registers a running service. Adding to a closed session closes c
// immediately.
func (s *Session) Add(name string, c io.Closer) error {
	s.mu.Lock()
	if !s.closed {
		s.services = append(s.services, service{name: name, closer: c})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	if err := c.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	return errors.New("session closed")
}

// Services returns the names of the registered services in start order.
func (s *Session) Services() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.services))
	for i, svc := range s.services {
		names[i] = svc.name
	}
	return names
}

// Active reports whether any service is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.services) > 0
}

// Wait blocks until the session context is done.
func (s *Session) Wait() {
	<-s.ctx.Done()
}

// Close stops every service, most recently started first.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	services := s.services
	s.services = nil
	s.mu.Unlock()

	s.cancel()
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", services[i].name, err))
		}
	}
	return errors.Join(errs...)
}
