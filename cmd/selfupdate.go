package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// defaultUpdateRepository is the GitHub repository (owner/name) releases are
// fetched from. Distributions set it at build time with
// -ldflags "-X relaymatrix/cmd.defaultUpdateRepository=owner/name".
var defaultUpdateRepository = "relaymatrix/relaymatrix"

var selfUpdateRepository string

// newSelfUpdateCmd creates the Cobra command for the self-update functionality.
func newSelfUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "self-update",
		Short: "Update relaymatrix to the latest version",
		Long: `Checks for the latest release of relaymatrix on GitHub and
updates the current binary if a newer version is found.`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runSelfUpdate,
	}
	c.Flags().StringVar(&selfUpdateRepository, "repository", defaultUpdateRepository, "GitHub repository (owner/name) to fetch releases from")
	return c
}

// updateRepository validates an owner/name repository reference.
func updateRepository(s string) (selfupdate.RepositorySlug, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return selfupdate.RepositorySlug{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return selfupdate.ParseSlug(s), nil
}

// runSelfUpdate checks the current version against the latest GitHub release
// and replaces the running binary if a newer one exists.
func runSelfUpdate(cmd *cobra.Command, args []string) error {
	currentVersion := rootCmd.Version
	// Development builds do not follow semantic versioning.
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	repository := selfUpdateRepository
	if repository == "" {
		repository = defaultUpdateRepository
	}
	slug, err := updateRepository(repository)
	if err != nil {
		return err
	}

	ctx := context.Background()
	out := rootCmd.OutOrStdout()
	if cmd != nil {
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
		out = cmd.OutOrStdout()
	}

	fmt.Fprintf(out, "Current version: %s\n", currentVersion)
	fmt.Fprintln(out, "Checking for updates...")

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	latest, found, err := updater.DetectLatest(ctx, slug)
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", repository)
	}

	if !latest.GreaterThan(currentVersion) {
		fmt.Fprintln(out, "Current version is the latest.")
		return nil
	}

	fmt.Fprintf(out, "Found newer version: %s (published at %s)\n", latest.Version(), latest.PublishedAt)
	fmt.Fprintf(out, "Release notes:\n%s\n", latest.ReleaseNotes)

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating %s to version %s...\n", exe, latest.Version())
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
