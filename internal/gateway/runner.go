package gateway

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultExecTimeout bounds a single command run
const DefaultExecTimeout = 30 * time.Second

// Runner executes a task's command and returns its combined output
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ShellRunner runs commands through sh -c
type ShellRunner struct {
	Shell   string
	Timeout time.Duration
}

// NewShellRunner creates a runner using /bin/sh
func NewShellRunner(timeout time.Duration) *ShellRunner {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return &ShellRunner{Shell: "sh", Timeout: timeout}
}

// Run executes command and returns stdout and stderr interleaved
func (r *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Shell, "-c", command)
	// Grandchildren can hold the output pipe open after sh is killed
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return string(out), fmt.Errorf("command timed out after %s", r.Timeout)
		}
		return string(out), err
	}
	return string(out), nil
}

// appendRunError records a failed run in the output so history views can flag it
func appendRunError(output string, err error) string {
	msg := "error: " + err.Error()
	if output == "" {
		return msg
	}
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return output + msg
}
