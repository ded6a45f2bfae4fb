package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"relaymatrix/internal/app"
	"relaymatrix/internal/matrix"
	"relaymatrix/internal/quarantine"
	"relaymatrix/internal/report"
)

var (
	listOutputFormat string
	listPattern      string
)

// listedJob is a job as the list command shows it: with its quarantine state
// resolved against the registry, not only the matrix.
type listedJob struct {
	matrix.Job
	QuarantineSource string `json:"quarantineSource,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list [family...]",
	Short: "List the jobs the matrix expands to",
	Long: `Expands the selected families (all of them when none is named) without
running anything and prints every job in dispatch order, together with its
environment, features and quarantine state.

Example usage:
  relaymatrix list
  relaymatrix list versioned-chain counterparty-implementation
  relaymatrix list --pattern='*wasmd*'
  relaymatrix list --output=yaml`,
	ValidArgsFunction: completeFamilies,
	RunE:              runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	listCmd.Flags().StringVar(&listPattern, "pattern", "", "Only show jobs whose id matches this wildcard pattern (* and ? supported)")
	listCmd.Flags().StringVar(&runMatrixPath, "matrix", "", "Matrix specification file (default: the built-in matrix)")
	listCmd.Flags().StringVar(&runQuarantinePath, "quarantine", "", "Quarantine file")
	_ = listCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(report.Formats, cobra.ShellCompDirectiveNoFileComp))
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(listOutputFormat)
	if err != nil {
		return err
	}
	applyInputFlags(cmd, &settings)

	spec, err := app.LoadSpec(settings)
	if err != nil {
		return err
	}
	jobs, err := matrix.Expand(spec, args...)
	if err != nil {
		return err
	}
	registry, err := app.LoadRegistry(spec, settings.QuarantinePath)
	if err != nil {
		return err
	}

	listed, err := resolveJobs(jobs, registry, listPattern)
	if err != nil {
		return err
	}
	return writeJobs(cmd.OutOrStdout(), listed, format)
}

// resolveJobs applies the registry to jobs and drops those not matching
// pattern.
func resolveJobs(jobs []matrix.Job, registry *quarantine.Registry, pattern string) ([]listedJob, error) {
	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	out := make([]listedJob, 0, len(jobs))
	for _, j := range jobs {
		if pattern != "" && !matchesPattern(pattern, j.ID) {
			continue
		}
		l := listedJob{Job: j}
		if j.Quarantined {
			l.QuarantineSource = app.MatrixSource
		} else if e, ok := registry.Lookup(j.ID); ok {
			l.Quarantined = true
			l.QuarantineReason = e.Reason
			l.QuarantineSource = e.Source
		}
		out = append(out, l)
	}
	return out, nil
}

// matchesPattern matches pattern against the whole id. Job ids contain '/',
// which path.Match treats as a separator, so '*' is widened to match it.
func matchesPattern(pattern, id string) bool {
	if ok, _ := path.Match(pattern, id); ok {
		return true
	}
	flat := strings.ReplaceAll(id, "/", "\x00")
	ok, _ := path.Match(pattern, flat)
	return ok
}

func writeJobs(w io.Writer, jobs []listedJob, format report.Format) error {
	switch format {
	case report.FormatJSON:
		data, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case report.FormatYAML:
		data, err := yaml.Marshal(jobs)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	color := isTerminal(w)
	if len(jobs) == 0 {
		fmt.Fprintln(w, colorize(color, text.FgYellow, "📋 No jobs found"))
		return nil
	}
	header := func(s string) interface{} {
		return colorize(color, text.FgHiCyan, s)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{header("#"), header("JOB"), header("ENVIRONMENT"), header("FEATURES"), header("FILTER"), header("CONCURRENCY"), header("QUARANTINE")})
	quarantined := 0
	for _, j := range jobs {
		q := ""
		if j.Quarantined {
			quarantined++
			q = "🚧 " + j.QuarantineReason
			if len(q) > 60 {
				q = q[:57] + "..."
			}
		}
		t.AppendRow(table.Row{j.Index, j.ID, j.EnvironmentRef, strings.Join(j.Features, ","), j.Filter, j.Concurrency, q})
	}
	t.Render()

	fmt.Fprintf(w, "\n%s %d job(s), %d quarantined\n", colorize(color, text.FgHiBlue, "Total:"), len(jobs), quarantined)
	return nil
}

func colorize(enabled bool, c text.Color, s string) string {
	if !enabled {
		return s
	}
	return c.Sprint(s)
}
