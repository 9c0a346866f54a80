package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

// updateRepo is the GitHub repository releases are published to
const updateRepo = "harmonyvt/clipscribe"

var errDevBuild = errors.New("development builds cannot self-update; install a release build")

// runSelfUpdate replaces the running binary with the latest release
func runSelfUpdate(out io.Writer) error {
	if version == "dev" {
		return errDevBuild
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintln(out, infoStyle.Render("Checking for updates..."))
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(updateRepo))
	if err != nil {
		return fmt.Errorf("failed to detect latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", updateRepo)
	}

	if latest.LessOrEqual(version) {
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("clipscribe %s is up to date", version)))
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Updating %s -> %s...", version, latest.Version())))
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to install %s: %w", latest.Version(), err)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Updated to clipscribe %s", latest.Version())))
	return nil
}
