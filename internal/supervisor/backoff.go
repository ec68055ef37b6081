package supervisor

import (
	"time"

	"github.com/ShayCichocki/assetflow/internal/config"
)

// Backoff decides whether and when to restart a crashed server.
// The delay starts at Initial and doubles per consecutive crash up to Max;
// after MaxAttempts consecutive crashes it gives up. A run that stayed up
// longer than Max resets the count.
type Backoff struct {
	cfg      config.CrashRestartConfig
	attempts int
}

// NewBackoff creates a policy from cfg.
func NewBackoff(cfg config.CrashRestartConfig) *Backoff {
	return &Backoff{cfg: cfg}
}

// Next returns the delay before the next restart of a process that crashed
// after running for uptime, or false if it should stay down.
func (b *Backoff) Next(uptime time.Duration) (time.Duration, bool) {
	if !b.cfg.Enabled {
		return 0, false
	}
	if uptime > b.cfg.Max {
		b.attempts = 0
	}
	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		return 0, false
	}

	delay := b.cfg.Initial
	for i := 0; i < b.attempts && delay < b.cfg.Max; i++ {
		delay *= 2
	}
	if b.cfg.Max > 0 && delay > b.cfg.Max {
		delay = b.cfg.Max
	}
	b.attempts++
	return delay, true
}

// Attempts returns the consecutive crash restarts made so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset forgets previous crashes.
func (b *Backoff) Reset() {
	b.attempts = 0
}
