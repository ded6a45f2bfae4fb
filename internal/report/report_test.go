package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"relaymatrix/internal/matrix"
	"relaymatrix/internal/scheduler"
	"relaymatrix/internal/suite"
)

func sampleReport() *scheduler.RunReport {
	return &scheduler.RunReport{
		RunID:     "6f1c1c2e-0000-4000-8000-000000000001",
		StartedAt: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		Duration:  3 * time.Second,
		Success:   false,
		Jobs: []*suite.JobResult{
			{
				JobID:       "versioned-chain/chain=gaia@v8.0.0",
				Outcome:     suite.OutcomePass,
				Environment: "gaia@v8.0.0",
				Digest:      "sha256:abc",
				Attempts:    1,
				Cases: []suite.CaseResult{
					{Name: "transfer", Outcome: suite.OutcomePass},
					{Name: "ordered-close", Outcome: suite.OutcomeSkip, Reason: "requires feature ordered"},
				},
			},
			{
				JobID:       "versioned-chain/chain=gaia@v7.0.0",
				Outcome:     suite.OutcomeFail,
				Environment: "gaia@v7.0.0",
				Attempts:    2,
				Diagnostic:  "environment unavailable: gaia@v7.0.0: not in the store yet",
			},
			{
				JobID:      "model-based",
				Outcome:    suite.OutcomeQuarantined,
				Diagnostic: "quarantined: trace execution is nondeterministic",
			},
		},
		Totals: scheduler.Totals{Jobs: 3, Passed: 1, Failed: 1, Quarantined: 1},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "JSON": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport(), TableOptions{})
	out := buf.String()

	assert.Contains(t, out, "JOB")
	assert.Contains(t, out, "versioned-chain/chain=gaia@v8.0.0")
	assert.Contains(t, out, "1/0/1")
	assert.Contains(t, out, "QUARANTINED")
	assert.Contains(t, out, "FAILURE")
	assert.NotContains(t, out, "\x1b[", "no colors unless requested")

	// Rows follow the report order.
	assert.Less(t, strings.Index(out, "gaia@v8.0.0"), strings.Index(out, "gaia@v7.0.0"))
	assert.Less(t, strings.Index(out, "gaia@v7.0.0"), strings.Index(out, "model-based"))
}

func TestWriteSummary_TruncatesDiagnostics(t *testing.T) {
	r := sampleReport()
	r.Jobs[1].Diagnostic = strings.Repeat("x", 200) + "\nsecond line"

	var buf bytes.Buffer
	WriteSummary(&buf, r, TableOptions{})
	assert.NotContains(t, buf.String(), strings.Repeat("x", 100))
	assert.NotContains(t, buf.String(), "second line")
}

func TestMarshal(t *testing.T) {
	r := sampleReport()

	data, err := Marshal(r, FormatJSON)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.RunID, decoded["runId"])
	assert.Len(t, decoded["jobs"], 3)

	data, err = Marshal(r, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runId: "+r.RunID)
	var back scheduler.RunReport
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, r.Jobs[1].Diagnostic, back.Jobs[1].Diagnostic)

	_, err = Marshal(r, FormatTable)
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()

	path, err := Save(filepath.Join(dir, "nested", "report.yaml"), r)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runId: "+r.RunID)

	path, err = Save(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "relaymatrix-report-20261017-093000.json"), path)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	r := sampleReport()
	jobs := []matrix.Job{{ID: r.Jobs[0].JobID}, {ID: r.Jobs[1].JobID}}

	c.RunStarted(r.RunID, jobs)
	c.JobStateChanged(jobs[0], scheduler.StatePending, scheduler.StateAcquiring)
	c.JobFinished(jobs[0], r.Jobs[0])
	c.JobFinished(jobs[1], r.Jobs[1])
	c.RunFinished(r)

	out := buf.String()
	assert.Contains(t, out, "Starting run "+r.RunID+" with 2 job(s)")
	assert.NotContains(t, out, "→", "state changes are verbose only")
	assert.Contains(t, out, "✅ "+jobs[0].ID)
	assert.NotContains(t, out, "ordered-close", "passing jobs list no cases")
	assert.Contains(t, out, "❌ "+jobs[1].ID)
	assert.Contains(t, out, "not in the store yet")
	assert.Contains(t, out, "🚧 Quarantined: 1")
	assert.Contains(t, out, "Some jobs failed")
}

func TestConsole_Verbose(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	r := sampleReport()
	job := matrix.Job{ID: r.Jobs[0].JobID, EnvironmentRef: "gaia@v8.0.0"}

	c.RunStarted(r.RunID, []matrix.Job{job})
	c.JobStateChanged(job, scheduler.StatePending, scheduler.StateAcquiring)
	c.JobStateChanged(job, scheduler.StateRunning, scheduler.StatePassed)
	c.JobFinished(job, r.Jobs[0])

	out := buf.String()
	assert.Contains(t, out, "• "+job.ID+" (gaia@v8.0.0)")
	assert.Contains(t, out, "pending → acquiring")
	assert.NotContains(t, out, "running → passed")
	assert.Contains(t, out, "⏭️ ordered-close")
	assert.Contains(t, out, "requires feature ordered")
}

func TestConsole_RunOutcomes(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.RunFinished(&scheduler.RunReport{Success: true, Totals: scheduler.Totals{Jobs: 1, Passed: 1}})
	assert.Contains(t, buf.String(), "All jobs passed")

	buf.Reset()
	c.RunFinished(&scheduler.RunReport{Cancelled: true, Totals: scheduler.Totals{Jobs: 2, Cancelled: 2}})
	assert.Contains(t, buf.String(), "Run cancelled")
	assert.Contains(t, buf.String(), "⛔ Cancelled: 2")
}
