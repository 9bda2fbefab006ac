// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner runs external commands. It lets the command session backend
// be tested without spawning processes.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)
}
