package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relaymatrix/internal/app"
	"relaymatrix/internal/config"
	"relaymatrix/internal/report"
	"relaymatrix/pkg/logging"
)

var (
	runParallel        int
	runConcurrency     int
	runFilter          string
	runFailFast        bool
	runRetries         int
	runCaseTimeout     time.Duration
	runTimeout         time.Duration
	runBackend         string
	runMatrixPath      string
	runSuitePath       string
	runIndexPath       string
	runQuarantinePath  string
	runReportPath      string
	runOutput          string
	runKeepEnv         bool
	runWatchQuarantine bool
)

// completeFamilies offers the family names of the configured matrix.
func completeFamilies(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if err := loadSettings(cmd, args); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	applyInputFlags(cmd, &settings)
	spec, err := app.LoadSpec(settings)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return spec.FamilyNames(), cobra.ShellCompDirectiveNoFileComp
}

var runCmd = &cobra.Command{
	Use:   "run [family...]",
	Short: "Run the integration matrix",
	Long: `Expands the selected job families (all of them when none is named),
acquires an isolated environment per job and runs the suite against it.

Up to --parallel jobs run at once; within a job up to --concurrency cases run
at once. A job whose environment cannot be acquired fails on its own and the
run continues. Quarantined jobs are reported without being started.

The per-job summary is always printed. The command exits 0 only if every job
that is not quarantined passed.

Example usage:
  relaymatrix run                                  # Every family
  relaymatrix run versioned-chain --parallel=8     # One family, 8 jobs at once
  relaymatrix run ordered-channel --filter=tag:ordered --fail-fast
  relaymatrix run --backend=docker --report=reports/
  relaymatrix run --output=json > report.json`,
	ValidArgsFunction: completeFamilies,
	RunE:              runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.IntVar(&runParallel, "parallel", config.DefaultParallel, "Maximum number of jobs running at once")
	f.IntVar(&runConcurrency, "concurrency", 0, "Maximum number of cases running at once per job (default: the family's hint)")
	f.StringVar(&runFilter, "filter", "", "Case filter replacing every family's filter (name substring, glob or tag:<feature>)")
	f.BoolVar(&runFailFast, "fail-fast", false, "Abort the remaining cases of a job after its first failure")
	f.IntVar(&runRetries, "retries", 0, "Extra acquisition attempts after a transient failure")
	f.DurationVar(&runCaseTimeout, "case-timeout", 0, "Default per-case timeout")
	f.DurationVar(&runTimeout, "timeout", 0, "Overall run timeout")
	f.StringVar(&runBackend, "backend", "", "Environment backend (local, docker)")
	f.StringVar(&runMatrixPath, "matrix", "", "Matrix specification file (default: the built-in matrix)")
	f.StringVar(&runSuitePath, "suite", "", "Suite catalog file")
	f.StringVar(&runIndexPath, "index", "", "Package index file")
	f.StringVar(&runQuarantinePath, "quarantine", "", "Quarantine file")
	f.StringVar(&runReportPath, "report", "", "Write the detailed report to this file or directory")
	f.StringVar(&runOutput, "output", "", "Summary format on stdout (table, json, yaml)")
	f.BoolVar(&runKeepEnv, "keep-env", false, "Keep environments after the run for debugging")
	f.BoolVar(&runWatchQuarantine, "watch-quarantine", false, "Pick up quarantine file changes during the run")

	_ = runCmd.RegisterFlagCompletionFunc("backend", cobra.FixedCompletions(
		[]string{config.BackendLocal, config.BackendDocker}, cobra.ShellCompDirectiveNoFileComp))
	_ = runCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(report.Formats, cobra.ShellCompDirectiveNoFileComp))

	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if runParallel < 1 || runParallel > 64 {
			return fmt.Errorf("parallel jobs must be between 1 and 64, got %d", runParallel)
		}
		if runConcurrency < 0 {
			return fmt.Errorf("concurrency must not be negative, got %d", runConcurrency)
		}
		if runRetries < 0 || runRetries > 10 {
			return fmt.Errorf("retries must be between 0 and 10, got %d", runRetries)
		}
		if _, err := report.ParseFormat(runOutput); err != nil {
			return err
		}
		return nil
	}
}

// applyInputFlags overrides the file references in settings with the flags
// that were set.
func applyInputFlags(cmd *cobra.Command, s *config.Config) {
	for flag, target := range map[string]*string{
		"matrix":     &s.MatrixPath,
		"suite":      &s.SuitePath,
		"index":      &s.IndexPath,
		"quarantine": &s.QuarantinePath,
		"backend":    &s.Backend,
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			*target = f.Value.String()
		}
	}
}

// applyRunFlags overrides settings with every run flag that was set.
func applyRunFlags(cmd *cobra.Command, s *config.Config) {
	applyInputFlags(cmd, s)
	changed := cmd.Flags().Changed
	if changed("parallel") {
		s.Parallel = runParallel
	}
	if changed("retries") {
		s.Acquire.Retries = runRetries
	}
	if changed("case-timeout") {
		s.CaseTimeout = runCaseTimeout
	}
	if changed("timeout") {
		s.RunTimeout = runTimeout
	}
	if changed("report") {
		s.Report.Path = runReportPath
	}
	if changed("output") {
		s.Report.Output = runOutput
	}
	if runKeepEnv {
		s.Local.Keep = true
		s.Docker.Keep = true
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, &settings)
	if errs := settings.Validate(); errs.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", errs)
	}
	format, err := report.ParseFormat(settings.Report.Output)
	if err != nil {
		return err
	}

	cfg := app.NewConfig(settings)
	cfg.Filter = runFilter
	cfg.CaseConcurrency = runConcurrency
	cfg.FailFast = runFailFast
	cfg.WatchQuarantine = runWatchQuarantine

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logging.Warn("Run", "Cleanup incomplete: %v", err)
		}
	}()

	// Matrix errors are fatal before any job starts.
	jobs, err := application.Jobs(args...)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, settings.RunTimeout)
	defer cancel()

	// Progress goes to the log stream so stdout carries only the summary.
	console := report.NewConsole(logging.Output(), verbose)
	result := application.Run(ctx, jobs, console)

	out := cmd.OutOrStdout()
	if err := report.Write(out, result, format, report.TableOptions{Color: isTerminal(out)}); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if settings.Report.Path != "" {
		path, err := report.Save(settings.Report.Path, result)
		if err != nil {
			logging.Error("Run", err, "Failed to save detailed report")
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "📄 Detailed report saved to: %s\n", path)
		}
	}

	if !result.Success {
		return &RunFailedError{
			Failed:    result.Totals.Failed,
			Cancelled: result.Totals.Cancelled,
		}
	}
	return nil
}
