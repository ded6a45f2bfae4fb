//go:build windows

package suite

import (
	"os/exec"
)

// configureProcAttr is a no-op on Windows; there are no process groups to set up.
func configureProcAttr(cmd *exec.Cmd) {}

// killProcessGroup kills the case process. Children it spawned are not
// tracked on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
