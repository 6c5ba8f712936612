package git

import (
	"context"
	"fmt"

	"github.com/mbarlow/taskit/internal/vcs"
)

// Add stages files for the next commit. Paths are relative to the
// repository root; deleted paths are staged as removals via -A.
func (g *Git) Add(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "-A", "--"}, paths...)
	if _, err := g.run(context.Background(), args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// HasChanges returns true if there are uncommitted changes.
// If paths are specified, only checks those paths.
func (g *Git) HasChanges(paths ...string) (bool, error) {
	args := []string{"status", "--porcelain"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := g.run(context.Background(), args...)
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return len(vcs.TrimOutput(output)) > 0, nil
}

// Commit records the staged changes and returns the new commit id.
func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	args := append(identityArgs, "commit", "--quiet", "-m", message)
	if _, err := g.run(ctx, args...); err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}
	return g.head(ctx)
}

// head resolves the current HEAD commit id.
func (g *Git) head(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return vcs.TrimOutput(output), nil
}
