package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate performs basic sanity checks on a loaded configuration.
func (c *Config) Validate() error {
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !c.Env.Valid() {
		return fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return fmt.Errorf("%w: proxy.port %d out of range", ErrInvalidConfig, c.Proxy.Port)
	}
	if _, port, err := net.SplitHostPort(c.Proxy.Target); err == nil && port == strconv.Itoa(c.Proxy.Port) {
		return fmt.Errorf("%w: proxy.port %d must differ from the proxy.target port", ErrInvalidConfig, c.Proxy.Port)
	}
	if c.Images.OptimizationLevel < 0 || c.Images.OptimizationLevel > 7 {
		return fmt.Errorf("%w: images.optimization_level must be 0-7, got %d", ErrInvalidConfig, c.Images.OptimizationLevel)
	}
	if c.Images.JPEGQuality < 0 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("%w: images.jpeg_quality must be 0-100, got %d", ErrInvalidConfig, c.Images.JPEGQuality)
	}
	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("%w: tasks[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: task %q declared twice", ErrInvalidConfig, name)
		}
		seen[name] = true
	}
	return nil
}

// MaskPath returns a short form of an absolute path for display, relative to
// the project root when possible.
func (c *Config) MaskPath(p string) string {
	if strings.HasPrefix(p, c.Root+"/") {
		return strings.TrimPrefix(p, c.Root+"/")
	}
	return p
}
