package git

import (
	"context"
	"fmt"

	"github.com/mbarlow/taskit/internal/vcs"
)

// HasRemote returns true if any remote is configured.
func (g *Git) HasRemote() bool {
	output, err := g.run(context.Background(), "remote")
	if err != nil {
		return false
	}
	return len(vcs.TrimOutput(output)) > 0
}

// RemoteURL returns the fetch URL of the named remote.
func (g *Git) RemoteURL(remote string) (string, error) {
	output, err := g.run(context.Background(), "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("%w: %s", vcs.ErrNoRemote, remote)
	}
	return vcs.TrimOutput(output), nil
}

// Fetch updates remote-tracking refs from the remote.
func (g *Git) Fetch(ctx context.Context, remote, ref string) error {
	if !g.HasRemote() {
		return vcs.ErrNoRemote
	}
	if remote == "" {
		remote = "origin"
	}

	args := []string{"fetch", "--quiet", remote}
	if ref != "" {
		args = append(args, ref)
	}

	if _, err := g.runRemote(ctx, args...); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// Push publishes the local branch to the remote.
func (g *Git) Push(ctx context.Context, remote, ref string) error {
	if !g.HasRemote() {
		return vcs.ErrNoRemote
	}
	if remote == "" {
		remote = "origin"
	}

	args := []string{"push", "--quiet", "-u", remote}
	if ref != "" {
		args = append(args, ref)
	}

	if _, err := g.runRemote(ctx, args...); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}
