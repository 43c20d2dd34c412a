package shell

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExecutorSuccess(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()

	result, err := exec.Run(ctx, Command{Argv: "echo hello"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Ok() {
		t.Errorf("expected ok result, got exit %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("unexpected output: %q", result.Output)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestLocalExecutorNonZeroExit(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()

	result, err := exec.Run(ctx, Command{Argv: "exit 3"})
	if err != nil {
		t.Fatalf("non-zero exit should not be a Go error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitCode)
	}
	if result.Ok() {
		t.Error("result should not be ok")
	}
}

func TestLocalExecutorEnv(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()

	result, err := exec.Run(ctx, Command{
		Argv: "echo $TF_VERSION",
		Env:  []string{"TF_VERSION=tf-nightly"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(result.Output) != "tf-nightly" {
		t.Errorf("env not applied, output: %q", result.Output)
	}
}

func TestLocalExecutorTimeout(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()

	result, err := exec.Run(ctx, Command{
		Argv:    "sleep 5",
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout should yield a result, not an error: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected TimedOut")
	}
	if result.Ok() {
		t.Error("timed out result should not be ok")
	}
}

func TestLocalExecutorWorkDir(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()
	dir := t.TempDir()

	result, err := exec.Run(ctx, Command{Argv: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// On macOS TempDir may resolve through /private, so match the suffix.
	if got := strings.TrimSpace(result.Output); !strings.HasSuffix(got, strings.TrimPrefix(dir, "/private")) {
		t.Errorf("expected workdir %q, got %q", dir, got)
	}
}

func TestLocalExecutorEmptyCommand(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor()

	if _, err := exec.Run(ctx, Command{}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/root", "TF_VERSION=tensorflow"}
	overrides := []string{"TF_VERSION=tf-nightly", "CI=true"}

	merged := MergeEnv(base, overrides)

	want := map[string]string{
		"PATH":       "/bin",
		"HOME":       "/root",
		"TF_VERSION": "tf-nightly",
		"CI":         "true",
	}
	if len(merged) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(merged), merged)
	}
	for _, entry := range merged {
		key, value, _ := strings.Cut(entry, "=")
		if want[key] != value {
			t.Errorf("key %s: got %q, want %q", key, value, want[key])
		}
	}
}

func TestCapOutput(t *testing.T) {
	small := []byte("short output")
	if got := capOutput(small); got != "short output" {
		t.Errorf("small output should pass through, got %q", got)
	}

	big := make([]byte, MaxOutputBytes+100)
	for i := range big {
		big[i] = 'x'
	}
	got := capOutput(big)
	if !strings.Contains(got, "truncated") {
		t.Error("expected truncation marker")
	}
	if len(got) > MaxOutputBytes+64 {
		t.Errorf("capped output too large: %d bytes", len(got))
	}
}
