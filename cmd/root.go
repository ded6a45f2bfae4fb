package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relaymatrix/internal/config"
	"relaymatrix/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates every non-quarantined job passed.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a failed run or any other error.
	ExitCodeError = 1
)

var (
	configPath string
	logLevel   string
	logFormat  string
	verbose    bool
	debug      bool

	// settings is loaded by the root PersistentPreRunE before any subcommand runs.
	settings config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "relaymatrix",
	Short: "Run relayer integration suites across chain versions and feature sets",
	Long: `relaymatrix expands a declarative test matrix of chain implementation
versions and protocol feature variants into independent jobs, acquires an
isolated environment for each job and runs the integration suite against it.

One job failing, or one environment being unavailable, never stops the
others. Known-flaky jobs are quarantined and reported without running.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// SetVersion sets the version for the root command.
// This function is called from the main package to inject the version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "relaymatrix version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error returned by a command to the process exit code.
// A *RunFailedError and a configuration error both exit 1; the distinction is
// in the printed message.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	return ExitCodeError
}

// RunFailedError is returned by run when at least one non-quarantined job did
// not pass. The report has already been printed.
type RunFailedError struct {
	Failed    int
	Cancelled int
}

func (e *RunFailedError) Error() string {
	if e.Cancelled > 0 {
		return fmt.Sprintf("run cancelled: %d job(s) failed, %d cancelled", e.Failed, e.Cancelled)
	}
	return fmt.Sprintf("%d job(s) failed", e.Failed)
}

// loadSettings reads config.yaml and initializes logging. Flags that map onto
// settings are applied by each command afterwards.
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	format := logging.Format(cfg.Logging.Format)
	if format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Logging.Format)
	}
	logging.Init(level, format, cmd.ErrOrStderr())

	settings = cfg
	return nil
}

// isTerminal reports whether w is an interactive terminal. Colors and
// spinners are only used on terminals.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.GetDefaultConfigPath(), "Configuration directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json); defaults to the configured format")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show per-case results and job state changes")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
