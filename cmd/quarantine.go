package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"relaymatrix/internal/app"
	"relaymatrix/internal/quarantine"
	pkgstrings "relaymatrix/pkg/strings"
)

// reasonMaxLen keeps the list table readable for long, multi-line reasons.
const reasonMaxLen = 60

var quarantineReason string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and extend the quarantine list",
	Long: `Quarantined jobs are reported as QUARANTINED without acquiring an
environment or running a case, and do not fail the run.

An entry names either a job id or a whole family. Entries come from families
the matrix declares quarantined and from the quarantine file.`,
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined jobs and families",
	Args:  cobra.NoArgs,
	RunE:  runQuarantineList,
}

var quarantineAddCmd = &cobra.Command{
	Use:   "add <job-or-family>",
	Short: "Append an entry to the quarantine file",
	Long: `Appends an entry to the quarantine file, creating the file if needed.
An id that is already listed keeps its original reason.

Example usage:
  relaymatrix quarantine add model-based --reason="trace replay is nondeterministic"
  relaymatrix quarantine add 'versioned-chain/chain=gaia@v5.0.8' --reason="upstream halts at height 12"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuarantineAdd,
}

func init() {
	rootCmd.AddCommand(quarantineCmd)
	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineAddCmd)

	quarantineCmd.PersistentFlags().StringVar(&runQuarantinePath, "quarantine", "", "Quarantine file")
	quarantineListCmd.Flags().StringVar(&runMatrixPath, "matrix", "", "Matrix specification file (default: the built-in matrix)")
	quarantineAddCmd.Flags().StringVar(&quarantineReason, "reason", "", "Why the job is quarantined")
	_ = quarantineAddCmd.MarkFlagRequired("reason")
}

func runQuarantineList(cmd *cobra.Command, args []string) error {
	applyInputFlags(cmd, &settings)
	spec, err := app.LoadSpec(settings)
	if err != nil {
		return err
	}
	registry, err := app.LoadRegistry(spec, settings.QuarantinePath)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	entries := registry.List()
	color := isTerminal(w)
	if len(entries) == 0 {
		fmt.Fprintln(w, colorize(color, text.FgYellow, "📋 Nothing is quarantined"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		colorize(color, text.FgHiCyan, "ID"),
		colorize(color, text.FgHiCyan, "REASON"),
		colorize(color, text.FgHiCyan, "SOURCE"),
		colorize(color, text.FgHiCyan, "SINCE"),
	})
	for _, e := range entries {
		since := ""
		if e.Source != app.MatrixSource && !e.Since.IsZero() {
			since = e.Since.Format(time.DateOnly)
		}
		t.AppendRow(table.Row{e.ID, pkgstrings.Truncate(e.Reason, reasonMaxLen), e.Source, since})
	}
	t.Render()
	return nil
}

func runQuarantineAdd(cmd *cobra.Command, args []string) error {
	applyInputFlags(cmd, &settings)
	if settings.QuarantinePath == "" {
		return fmt.Errorf("no quarantine file configured: set quarantinePath in config.yaml or pass --quarantine")
	}

	if strings.TrimSpace(quarantineReason) == "" {
		return fmt.Errorf("--reason must not be empty")
	}

	added, err := quarantine.AppendToFile(settings.QuarantinePath, quarantine.Entry{
		ID:     args[0],
		Reason: quarantineReason,
		Since:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if !added {
		fmt.Fprintf(w, "⚠️  %s is already quarantined in %s\n", args[0], settings.QuarantinePath)
		return nil
	}
	fmt.Fprintf(w, "🚧 Quarantined %s in %s\n", args[0], settings.QuarantinePath)
	return nil
}
