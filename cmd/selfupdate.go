package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the GitHub repository (owner/repo) releases are published to.
const githubRepoSlug = "opentune/opentune-agent"

// checksumsAsset is published with every release and validated before the
// binary is replaced.
const checksumsAsset = "checksums.txt"

// release is a published agent build that can replace the running binary.
type release struct {
	Version     string
	PublishedAt time.Time
	Notes       string

	// Newer reports whether the release is newer than the running version.
	Newer bool

	install func(ctx context.Context, exe string) error
}

// releaseFinder looks up the latest release, or the release named by target
// when it is not empty. A nil release means nothing was found.
type releaseFinder func(ctx context.Context, current, target string) (*release, error)

var (
	findRelease    releaseFinder = findGitHubRelease
	executablePath               = selfupdate.ExecutablePath
)

var (
	selfUpdateCheck  bool
	selfUpdateTarget string
)

func newSelfUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update opentune-agent to the latest version",
		Long: `Checks for the latest release of opentune-agent on GitHub and replaces
the current binary when a newer version is found. Release archives are
verified against the published checksums first. The next scheduled run uses
the new binary.

With --check nothing is installed. With --to a specific release is
installed, also when it is older than the running one.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
	cmd.Flags().BoolVar(&selfUpdateCheck, "check", false, "Only report whether an update is available")
	cmd.Flags().StringVar(&selfUpdateTarget, "to", "", "Install this release version instead of the latest")
	return cmd
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	current := GetVersion()
	if current == "" || current == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := context.Background()
	var out io.Writer = io.Discard
	if cmd != nil {
		ctx = cmd.Context()
		out = cmd.OutOrStdout()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	target := strings.TrimPrefix(strings.TrimSpace(selfUpdateTarget), "v")

	fmt.Fprintf(out, "Current version: %s\n", current)
	rel, err := findRelease(ctx, current, target)
	if err != nil {
		return err
	}
	if rel == nil {
		if target != "" {
			return fmt.Errorf("release %s of %s could not be found", target, githubRepoSlug)
		}
		return fmt.Errorf("latest release for %s could not be found", githubRepoSlug)
	}

	if target == "" && !rel.Newer {
		fmt.Fprintf(out, "Already up to date (latest release is %s)\n", rel.Version)
		return nil
	}
	if target != "" && rel.Version == strings.TrimPrefix(current, "v") {
		fmt.Fprintf(out, "Already running %s\n", rel.Version)
		return nil
	}

	fmt.Fprintf(out, "Release %s published %s\n", rel.Version, rel.PublishedAt.Format(time.DateOnly))
	if notes := strings.TrimSpace(rel.Notes); notes != "" {
		fmt.Fprintf(out, "Release notes:\n%s\n", notes)
	}
	if selfUpdateCheck {
		fmt.Fprintln(out, "Run self-update without --check to install it.")
		return nil
	}

	exe, err := executablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	fmt.Fprintf(out, "Updating %s to %s...\n", exe, rel.Version)
	if err := rel.install(ctx, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Fprintf(out, "Updated to %s\n", rel.Version)
	return nil
}

func findGitHubRelease(ctx context.Context, current, target string) (*release, error) {
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: checksumsAsset},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	slug := selfupdate.ParseSlug(githubRepoSlug)
	var (
		latest *selfupdate.Release
		found  bool
	)
	if target != "" {
		latest, found, err = updater.DetectVersion(ctx, slug, target)
	} else {
		latest, found, err = updater.DetectLatest(ctx, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("error detecting release: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &release{
		Version:     latest.Version(),
		PublishedAt: latest.PublishedAt,
		Notes:       latest.ReleaseNotes,
		Newer:       latest.GreaterThan(current),
		install: func(ctx context.Context, exe string) error {
			return updater.UpdateTo(ctx, latest, exe)
		},
	}, nil
}
