package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbarlow/taskit/internal/vcs"
)

// MergeFastForward advances the current branch to ref without creating a
// merge commit.
func (g *Git) MergeFastForward(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, "merge", "--ff-only", "--quiet", ref); err != nil {
		return fmt.Errorf("fast-forward to %s failed: %w", ref, err)
	}
	return nil
}

// MergeNoCommit merges ref into the current branch but stops before
// committing. Conflicted paths stay in the index at stages 1-3 for the
// conflict resolver to pick apart.
func (g *Git) MergeNoCommit(ctx context.Context, ref string) error {
	_, err := g.run(ctx, "merge", "--no-commit", "--no-ff", ref)
	if err != nil {
		// Conflict notices go to stdout, so inspect the index instead of
		// the error text.
		if conflicted, cErr := g.ConflictedFiles(); cErr == nil && len(conflicted) > 0 {
			return vcs.ErrConflicts
		}
		return fmt.Errorf("merge of %s failed: %w", ref, err)
	}
	return nil
}

// MergeInProgress reports whether a merge is waiting to be committed.
func (g *Git) MergeInProgress() bool {
	_, err := os.Stat(filepath.Join(g.gitDir, "MERGE_HEAD"))
	return err == nil
}

// AbortMerge discards an in-progress merge and restores the working tree.
func (g *Git) AbortMerge(ctx context.Context) error {
	if !g.MergeInProgress() {
		return vcs.ErrNoMergeInProgress
	}
	if _, err := g.run(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("merge abort failed: %w", err)
	}
	return nil
}

// CommitMerge concludes an in-progress merge and returns the merge
// commit id.
func (g *Git) CommitMerge(ctx context.Context, message string) (string, error) {
	if !g.MergeInProgress() {
		return "", vcs.ErrNoMergeInProgress
	}

	args := append(identityArgs, "commit", "--quiet", "--no-edit", "-m", message)
	if _, err := g.run(ctx, args...); err != nil {
		return "", fmt.Errorf("merge commit failed: %w", err)
	}
	return g.head(ctx)
}

// ConflictedFiles lists paths with unresolved conflicts, relative to the
// repository root.
func (g *Git) ConflictedFiles() ([]string, error) {
	output, err := g.run(context.Background(), "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	var conflicts []string
	for _, line := range vcs.ParseLines(output) {
		conflicts = append(conflicts, strings.TrimSpace(line))
	}
	return conflicts, nil
}
