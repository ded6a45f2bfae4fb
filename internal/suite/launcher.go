package suite

import (
	"context"
	"io"

	"relaymatrix/internal/environment"
)

// Invocation is a rendered case ready to launch.
type Invocation struct {
	JobID   string
	Case    string
	Command string
	Args    []string
	// Env holds KEY=VALUE pairs added on top of the environment's variables.
	Env    []string
	Image  string
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher runs an invocation inside an acquired environment and returns the
// exit code. When ctx is done the launched process tree or container must be
// terminated before Launch returns; the returned error is then ctx.Err().
type Launcher interface {
	Launch(ctx context.Context, env *environment.Environment, inv Invocation) (int, error)
}
