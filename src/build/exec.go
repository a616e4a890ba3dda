package build

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Command is one process invocation.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string // appended to the inherited environment
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs commands. Tests substitute a fake.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// OSExecutor runs commands as child processes.
type OSExecutor struct{}

// Run starts cmd and waits for it. Cancelling ctx kills the process.
func (OSExecutor) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}
