package shell

import (
	"context"
	"sync"
	"time"
)

// FakeExecutor is a test double for Executor. It doesn't spawn any
// processes, just records commands and returns scripted results.
type FakeExecutor struct {
	mu sync.RWMutex

	// Commands tracks every command run, in order.
	Commands []Command

	// FailOn maps command lines to the exit code they should return.
	// Commands not listed exit zero.
	FailOn map[string]int

	// ErrOn maps command lines to an infrastructure error.
	ErrOn map[string]error

	// Output is returned as every result's output.
	Output string

	// Delay adds artificial delay to Run calls.
	Delay time.Duration
}

// NewFakeExecutor creates a new FakeExecutor.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		FailOn: make(map[string]int),
		ErrOn:  make(map[string]error),
	}
}

// Run implements Executor.
func (e *FakeExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return &Result{Command: cmd.Argv, ExitCode: -1}, ctx.Err()
	}

	e.mu.Lock()
	e.Commands = append(e.Commands, cmd)
	err := e.ErrOn[cmd.Argv]
	code := e.FailOn[cmd.Argv]
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Result{
		Command:  cmd.Argv,
		ExitCode: code,
		Output:   e.Output,
	}, nil
}

// RunCount returns the number of commands executed.
func (e *FakeExecutor) RunCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.Commands)
}

// CommandLines returns the executed command lines, in order.
func (e *FakeExecutor) CommandLines() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lines := make([]string, len(e.Commands))
	for i, cmd := range e.Commands {
		lines[i] = cmd.Argv
	}
	return lines
}
