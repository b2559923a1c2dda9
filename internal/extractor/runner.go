// Package extractor adapts external media extractors (yt-dlp, in-process
// clients, search scrapers) to the repository interfaces.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a subprocess exceeds its deadline.
var ErrTimeout = errors.New("subprocess timed out")

// Result is the outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Success reports whether the process exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes external commands.
// A nonzero exit is reported through Result, not as an error; errors are
// reserved for processes that could not be started or did not finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// CommandRunner runs commands with os/exec under a fixed timeout.
type CommandRunner struct {
	timeout time.Duration
}

var _ Runner = (*CommandRunner)(nil)

// NewCommandRunner creates a runner. A zero timeout relies on ctx alone.
func NewCommandRunner(timeout time.Duration) *CommandRunner {
	return &CommandRunner{timeout: timeout}
}

// Run executes name with args and waits for it to exit.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: %w after %s", name, ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("start %s: %w", name, err)
	}

	return res, nil
}
