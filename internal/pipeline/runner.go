// Package pipeline runs the ordered external-process sequence that
// assembles the KaRaMeL toolchain (and, on source-build platforms, F*
// itself) inside an isolated opam root.
//
// The sequence is strict: each step blocks until completion, a failing
// step aborts the run with no retry, and nothing is rolled back — a
// failure at step k leaves steps 1..k-1 committed to disk for manual
// cleanup, exactly as documented to users.
package pipeline

import (
	"context"
	"os"
	"os/exec"
)

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
}

// Exec abstracts process execution so tests can fake the toolchain.
type Exec interface {
	// Run executes the command and returns its combined stdout/stderr.
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner invokes real processes.
type ExecRunner struct{}

// Run implements Exec.
func (ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	out, err := c.CombinedOutput()
	return string(out), err
}
