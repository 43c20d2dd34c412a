// Package shell executes pipeline commands. It is the only package in
// this repository allowed to spawn processes; the pipelint analyzer
// enforces that.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// MaxOutputBytes caps the captured output per command. When a command
// produces more, only the tail is kept.
const MaxOutputBytes = 256 * 1024

// Command is a single shell command to execute.
type Command struct {
	// Argv is the command line, run via the shell ("sh -c").
	Argv string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env contains extra KEY=value entries layered over the process
	// environment. Later entries win over earlier ones.
	Env []string

	// Timeout bounds the command's execution. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration
}

// Result is the outcome of an executed command. A non-zero exit is a
// result, not a Go error; errors are reserved for infrastructure
// failures such as a missing shell.
type Result struct {
	Command  string
	ExitCode int
	TimedOut bool
	Output   string // Combined stdout and stderr, tail-capped
	Duration time.Duration
}

// Ok returns true if the command exited zero without timing out.
func (r *Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Executor runs shell commands.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// LocalExecutor runs commands on the host via the shell.
type LocalExecutor struct {
	// Shell is the shell binary. Defaults to "/bin/sh".
	Shell string

	// ShellArg is the argument preceding the command. Defaults to "-c".
	ShellArg string
}

// NewLocalExecutor creates a LocalExecutor with default shell settings.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{
		Shell:    "/bin/sh",
		ShellArg: "-c",
	}
}

// Run executes the command and captures its combined output.
func (e *LocalExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Argv == "" {
		return nil, fmt.Errorf("empty command")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	shellArg := e.ShellArg
	if shellArg == "" {
		shellArg = "-c"
	}

	proc := exec.CommandContext(ctx, shell, shellArg, cmd.Argv)
	proc.Dir = cmd.Dir
	proc.Env = MergeEnv(os.Environ(), cmd.Env)

	start := time.Now()
	output, err := proc.CombinedOutput()
	duration := time.Since(start)

	result := &Result{
		Command:  cmd.Argv,
		Output:   capOutput(output),
		Duration: duration,
	}

	switch {
	case ctx.Err() != nil:
		// Killed by timeout or cancellation.
		result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		result.ExitCode = -1
		if !result.TimedOut {
			return result, ctx.Err()
		}
	case err != nil:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Could not execute at all: missing shell, permission, etc.
			return nil, fmt.Errorf("failed to execute %q: %w", cmd.Argv, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// MergeEnv layers override entries on top of a base environment,
// deduplicating by key so each variable appears once. Later overrides
// win, matching shell assignment semantics.
func MergeEnv(base, overrides []string) []string {
	index := make(map[string]int, len(base))
	merged := make([]string, 0, len(base)+len(overrides))

	add := func(entry string) {
		key := entry
		for i := 0; i < len(entry); i++ {
			if entry[i] == '=' {
				key = entry[:i]
				break
			}
		}
		if pos, ok := index[key]; ok {
			merged[pos] = entry
			return
		}
		index[key] = len(merged)
		merged = append(merged, entry)
	}

	for _, entry := range base {
		add(entry)
	}
	for _, entry := range overrides {
		add(entry)
	}
	return merged
}

func capOutput(output []byte) string {
	if len(output) <= MaxOutputBytes {
		return string(output)
	}
	tail := output[len(output)-MaxOutputBytes:]
	return fmt.Sprintf("... (%d bytes truncated)\n%s", len(output)-MaxOutputBytes, tail)
}
