package extractor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// mockRunner is a mock implementation of Runner.
type mockRunner struct {
	RunFunc func(ctx context.Context, name string, args ...string) (*Result, error)

	calls [][]string
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return &Result{}, nil
}

func (m *mockRunner) lastArgs() string {
	if len(m.calls) == 0 {
		return ""
	}
	return strings.Join(m.calls[len(m.calls)-1], " ")
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandRunner_Run(t *testing.T) {
	requireShell(t)
	r := NewCommandRunner(5 * time.Second)

	tests := []struct {
		name       string
		script     string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{name: "success", script: "printf out", wantExit: 0, wantStdout: "out"},
		{name: "nonzero exit", script: "printf boom >&2; exit 3", wantExit: 3, wantStderr: "boom"},
		{name: "both streams", script: "printf a; printf b >&2", wantExit: 0, wantStdout: "a", wantStderr: "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), "sh", "-c", tt.script)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if string(res.Stdout) != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if string(res.Stderr) != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
			if res.Success() != (tt.wantExit == 0) {
				t.Errorf("Success() = %v", res.Success())
			}
		})
	}
}

func TestCommandRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := NewCommandRunner(50 * time.Millisecond)

	_, err := r.Run(context.Background(), "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestCommandRunner_Cancelled(t *testing.T) {
	requireShell(t)
	r := NewCommandRunner(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "sh", "-c", "sleep 5")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCommandRunner_MissingBinary(t *testing.T) {
	r := NewCommandRunner(time.Second)

	_, err := r.Run(context.Background(), "/nonexistent/yt-dlp-binary")
	if err == nil {
		t.Error("expected error for missing binary")
	}
}
