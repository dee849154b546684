package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// DefaultTimeout bounds a single tool invocation
const DefaultTimeout = 5 * time.Minute

// Runner executes external tools such as certbot and nginx
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExitError carries the combined output of a failed command
type ExitError struct {
	Command string
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, out)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands on the host
type ExecRunner struct {
	// Timeout is the per-command execution timeout (default: 5 minutes)
	Timeout time.Duration
}

// NewExecRunner creates a runner with the default timeout
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

// Run executes name with args and returns combined stdout and stderr
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	log.Logger.Debug().
		Str("component", "command").
		Str("command", name).
		Strs("args", args).
		Msg("running command")

	if err := cmd.Run(); err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %v: %w", timeout, err)
		}
		return output.Bytes(), &ExitError{
			Command: name + " " + strings.Join(args, " "),
			Output:  output.String(),
			Err:     err,
		}
	}

	return output.Bytes(), nil
}

// LookPath resolves a tool on PATH
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
