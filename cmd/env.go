package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"relaymatrix/internal/app"
	"relaymatrix/internal/environment"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Work with environments outside a run",
}

var envVerifyCmd = &cobra.Command{
	Use:   "verify <ref...>",
	Short: "Acquire and release environments to check they resolve",
	Long: `Resolves each environment reference against the package index, acquires
it with the configured backend (verifying every executable digest) and
releases it again. Nothing is executed inside the environment.

Example usage:
  relaymatrix env verify gaia@v8.0.0
  relaymatrix env verify gaia@v8.0.0+wasmd@v0.30.0 --backend=docker`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnvVerify,
}

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envVerifyCmd)

	envVerifyCmd.Flags().StringVar(&runIndexPath, "index", "", "Package index file")
	envVerifyCmd.Flags().StringVar(&runBackend, "backend", "", "Environment backend (local, docker)")
}

// verification is the outcome of one env verify target.
type verification struct {
	Ref    string
	Digest string
	Err    error
}

func runEnvVerify(cmd *cobra.Command, args []string) error {
	applyInputFlags(cmd, &settings)

	index, err := environment.LoadIndex(settings.IndexPath)
	if err != nil {
		return err
	}
	backend, err := app.NewBackend(settings, index)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, settings.Acquire.Timeout)
	defer cancel()

	w := cmd.OutOrStdout()
	results := verifyRefs(ctx, backend.Provider, args, w, isTerminal(w))

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "❌ %s: %v\n", r.Ref, r.Err)
			continue
		}
		fmt.Fprintf(w, "✅ %s (%s)\n", r.Ref, r.Digest)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d environment(s) could not be acquired", failed, len(results))
	}
	return nil
}

// verifyRefs acquires and releases each ref in turn. A spinner is shown on
// terminals.
func verifyRefs(ctx context.Context, p environment.Provider, refs []string, w io.Writer, interactive bool) []verification {
	var s *spinner.Spinner
	if interactive {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		s.Start()
		defer s.Stop()
	}

	results := make([]verification, 0, len(refs))
	for _, ref := range refs {
		if s != nil {
			s.Lock()
			s.Suffix = fmt.Sprintf(" Acquiring %s...", ref)
			s.Unlock()
		}
		v := verification{Ref: ref}
		v.Err = environment.With(ctx, p, ref, settings.ReleaseTimeout, func(env *environment.Environment) error {
			v.Digest = env.Digest
			return nil
		})
		results = append(results, v)
	}
	return results
}
