package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"relaymatrix/internal/environment"
)

// DefaultWaitDelay bounds how long Launch waits for output pipes after the
// process group has been killed.
const DefaultWaitDelay = 5 * time.Second

// ProcessLauncher runs cases as local child processes. Each case gets its
// own process group so that cancellation kills everything it spawned.
type ProcessLauncher struct {
	WaitDelay time.Duration
}

// NewProcessLauncher creates a launcher with default settings.
func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{WaitDelay: DefaultWaitDelay}
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, env *environment.Environment, inv Invocation) (int, error) {
	command := inv.Command
	if env.BinDir != "" && !strings.ContainsRune(command, filepath.Separator) {
		// Bare names resolve against the environment first.
		if _, err := os.Stat(filepath.Join(env.BinDir, command)); err == nil {
			command = filepath.Join(env.BinDir, command)
		}
	}

	cmd := exec.CommandContext(ctx, command, inv.Args...)
	cmd.Dir = env.WorkDir
	cmd.Env = processEnv(env, inv.Env)
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	configureProcAttr(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = l.WaitDelay

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", inv.Command, err)
	}

	err := cmd.Wait()
	if err != nil && ctx.Err() != nil {
		// Killed by cancellation; the exit status says nothing about the case.
		return -1, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// processEnv layers the environment's variables and the case's own on top
// of the current process environment, with the bin dir first on PATH.
func processEnv(env *environment.Environment, extra []string) []string {
	out := os.Environ()
	if env.BinDir != "" {
		out = append(out, "PATH="+env.BinDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	out = append(out, env.EnvList()...)
	return append(out, extra...)
}
