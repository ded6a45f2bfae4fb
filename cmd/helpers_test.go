package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of c and its subcommands to its default.
// Cobra keeps flag state between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execution captures the two output streams of one command.
type execution struct {
	stdout string
	stderr string
}

// execute runs the root command with args against the config directory dir.
func execute(t *testing.T, dir string, args ...string) (execution, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config-path=" + dir}, args...))
	err := rootCmd.Execute()
	return execution{stdout: stdout.String(), stderr: stderr.String()}, err
}

const fixtureMatrix = `
maxJobs: 16
families:
  - name: chains
    axes:
      - name: chain
        kind: environment
        variants: [gaia@v8.0.0, gaia@v7.0.0]
  - name: flaky
    environment: [gaia@v8.0.0]
    quarantine:
      reason: hangs on slow runners
`

const fixtureSuite = `
cases:
  - name: version
    command: gaiad
    args: [version]
`

const fixtureConfig = `
parallel: 2
matrixPath: matrix.yaml
quarantinePath: quarantine.yaml
local:
  workDir: work
acquire:
  retries: 0
  retryDelay: 10ms
`

// writeConfigDir lays out a config directory whose gaia@v7.0.0 package does
// not match its recorded digest.
func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	script := "#!/bin/sh\necho gaia \"$@\"\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "store"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store", "gaiad"), []byte(script), 0755))
	sum := sha256.Sum256([]byte(script))
	good := hex.EncodeToString(sum[:])
	bad := hex.EncodeToString(make([]byte, sha256.Size))

	index := fmt.Sprintf(`
storeRoot: store
packages:
  gaia@v8.0.0:
    executables:
      gaiad: {path: gaiad, sha256: %s}
  gaia@v7.0.0:
    executables:
      gaiad: {path: gaiad, sha256: %s}
`, good, bad)

	for name, content := range map[string]string{
		"config.yaml": fixtureConfig,
		"matrix.yaml": fixtureMatrix,
		"suite.yaml":  fixtureSuite,
		"index.yaml":  index,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}
