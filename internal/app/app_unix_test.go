//go:build !windows

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymatrix/internal/config"
	"relaymatrix/internal/quarantine"
	"relaymatrix/internal/scheduler"
	"relaymatrix/internal/suite"
)

const testMatrix = `
maxJobs: 16
families:
  - name: chains
    axes:
      - name: chain
        kind: environment
        variants: [gaia@v8.0.0, gaia@v7.0.0]
  - name: ordered
    environment: [gaia@v8.0.0]
    features: [ordered]
  - name: flaky
    environment: [gaia@v8.0.0]
    quarantine:
      reason: hangs on slow runners
`

const testSuite = `
cases:
  - name: version
    command: gaiad
    args: [version]
  - name: chain-id
    command: sh
    args: ["-c", "test \"$CHAIN_ID\" = {{ .Vars.CHAIN_ID | quote }}"]
  - name: ordered-close
    requires: [ordered]
    command: "true"
`

// writeFixture lays out a config directory with a one-binary store. The
// gaia@v7.0.0 entry carries a digest that does not match its file.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	script := "#!/bin/sh\necho gaia \"$@\"\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "store"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store", "gaiad"), []byte(script), 0755))
	sum := sha256.Sum256([]byte(script))

	index := fmt.Sprintf(`
storeRoot: store
packages:
  gaia@v8.0.0:
    executables:
      gaiad: {path: gaiad, sha256: %s}
    vars:
      CHAIN_ID: gaia-8
  gaia@v7.0.0:
    executables:
      gaiad: {path: gaiad, sha256: %s}
`, hex.EncodeToString(sum[:]), strings.Repeat("0", 64))

	for name, content := range map[string]string{
		"matrix.yaml": testMatrix,
		"suite.yaml":  testSuite,
		"index.yaml":  index,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func testSettings(dir string) config.Config {
	settings := config.GetDefaultConfig()
	settings.MatrixPath = "matrix.yaml"
	settings.Local.WorkDir = "work"
	settings.Acquire.RetryDelay = 10 * time.Millisecond
	settings.ResolvePaths(dir)
	return settings
}

func TestApplication_EndToEnd(t *testing.T) {
	dir := writeFixture(t)

	application, err := NewApplication(NewConfig(testSettings(dir)))
	require.NoError(t, err)

	jobs, err := application.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	report := application.Run(context.Background(), jobs, nil)
	require.NoError(t, application.Close())

	assert.False(t, report.Success)
	byID := map[string]*suite.JobResult{}
	for _, j := range report.Jobs {
		byID[j.JobID] = j
	}

	good := byID["chains/chain=gaia@v8.0.0"]
	require.NotNil(t, good)
	assert.Equal(t, suite.OutcomePass, good.Outcome, good.Diagnostic)
	require.Len(t, good.Cases, 3)
	assert.Equal(t, "chain-id", good.Cases[0].Name)
	assert.Equal(t, suite.OutcomePass, good.Cases[0].Outcome, good.Cases[0].Diagnostic)
	assert.Equal(t, suite.OutcomeSkip, good.Cases[1].Outcome, "ordered-close needs the ordered feature")
	assert.Equal(t, suite.OutcomePass, good.Cases[2].Outcome, good.Cases[2].Diagnostic)

	bad := byID["chains/chain=gaia@v7.0.0"]
	require.NotNil(t, bad)
	assert.Equal(t, suite.OutcomeFail, bad.Outcome)
	assert.Contains(t, bad.Diagnostic, "environment unavailable")
	assert.Equal(t, 1, bad.Attempts, "digest mismatches are not retried")

	ordered := byID["ordered"]
	require.NotNil(t, ordered)
	assert.Equal(t, suite.OutcomePass, ordered.Outcome, ordered.Diagnostic)
	pass, _, skip := ordered.Counts()
	assert.Equal(t, 3, pass)
	assert.Zero(t, skip)

	assert.Equal(t, suite.OutcomeQuarantined, byID["flaky"].Outcome)

	entries, err := os.ReadDir(filepath.Join(dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, entries, "environments are removed after the run")
}

func TestApplication_RunOverrides(t *testing.T) {
	dir := writeFixture(t)
	cfg := NewConfig(testSettings(dir))
	cfg.Filter = "version"
	cfg.CaseConcurrency = 3
	cfg.FailFast = true

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	defer application.Close()

	opts := application.SchedulerOptions(nil)
	assert.Equal(t, "version", opts.Filter)
	assert.Equal(t, 3, opts.CaseConcurrency)
	assert.True(t, opts.FailFast)
	assert.Equal(t, cfg.Settings.Parallel, opts.Parallel)
	assert.Equal(t, cfg.Settings.Acquire.Retries, opts.AcquireRetries)

	jobs, err := application.Jobs("chains")
	require.NoError(t, err)
	report := application.Run(context.Background(), jobs[1:], nil)
	require.Len(t, report.Jobs, 1)
	require.Len(t, report.Jobs[0].Cases, 1)
	assert.Equal(t, "version", report.Jobs[0].Cases[0].Name)
}

func TestApplication_CancelledRunReleasesEnvironments(t *testing.T) {
	dir := writeFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "suite.yaml"), []byte(`
cases:
  - name: sleep
    command: sleep
    args: ["30"]
`), 0644))

	application, err := NewApplication(NewConfig(testSettings(dir)))
	require.NoError(t, err)

	jobs, err := application.Jobs("chains")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	report := application.Run(ctx, jobs[1:], nil)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.True(t, report.Cancelled)
	assert.ErrorIs(t, report.Err(), scheduler.ErrRunCancelled)
	assert.Equal(t, suite.OutcomeCancelled, report.Jobs[0].Outcome)

	require.NoError(t, application.Close())
	entries, err := os.ReadDir(filepath.Join(dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadRegistry(t *testing.T) {
	dir := writeFixture(t)
	settings := testSettings(dir)
	settings.QuarantinePath = filepath.Join(dir, "quarantine.yaml")
	_, err := quarantine.AppendToFile(settings.QuarantinePath, quarantine.Entry{
		ID:     "chains/chain=gaia@v7.0.0",
		Reason: "upstream regression",
	})
	require.NoError(t, err)

	spec, err := LoadSpec(settings)
	require.NoError(t, err)
	registry, err := LoadRegistry(spec, settings.QuarantinePath)
	require.NoError(t, err)

	entries := registry.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "chains/chain=gaia@v7.0.0", entries[0].ID)
	assert.Equal(t, "flaky", entries[1].ID)
	assert.Equal(t, MatrixSource, entries[1].Source)
}

func TestLoadSpec_FillsBoundsFromSettings(t *testing.T) {
	settings := config.GetDefaultConfig()
	settings.MaxJobs = 7
	settings.CaseConcurrency = 5

	spec, err := LoadSpec(settings)
	require.NoError(t, err)
	assert.Equal(t, 64, spec.MaxJobs, "the built-in matrix sets its own bound")
	assert.Equal(t, 2, spec.DefaultConcurrency)

	dir := t.TempDir()
	path := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("families:\n  - name: one\n    environment: [a@1]\n"), 0644))
	settings.MatrixPath = path
	spec, err = LoadSpec(settings)
	require.NoError(t, err)
	assert.Equal(t, 7, spec.MaxJobs)
	assert.Equal(t, 5, spec.DefaultConcurrency)
}

func TestNewBackend_UnknownBackend(t *testing.T) {
	settings := config.GetDefaultConfig()
	settings.Backend = "k8s"
	_, err := NewBackend(settings, nil)
	assert.ErrorContains(t, err, "unknown backend")
}
