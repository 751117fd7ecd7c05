package enforce

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts external command execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes actual commands.
type RealCommandRunner struct{}

// DefaultCommandRunner is the default command runner.
var DefaultCommandRunner CommandRunner = RealCommandRunner{}

// Run executes a command, folding its combined output into the error.
func (RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output executes a command and returns its stdout.
func (RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
