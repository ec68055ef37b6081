// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"io"
)

// CommandRunner defines the interface for running external tools such as the
// sass compiler and user-declared shell tasks.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)

	// RunInput feeds stdin to the command and returns its stdout alone.
	// On failure the error carries the command's stderr.
	RunInput(ctx context.Context, workDir string, stdin io.Reader, name string, args ...string) (stdout []byte, err error)

	// LookPath reports the resolved path of an executable, or an error if it
	// is not installed.
	LookPath(name string) (string, error)
}
