package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mbarlow/taskit/internal/vcs"
)

// CurrentBranch returns the checked-out branch name.
// Returns empty string in detached HEAD state.
func (g *Git) CurrentBranch() (string, error) {
	output, err := g.run(context.Background(), "symbolic-ref", "--short", "HEAD")
	if err != nil {
		if strings.Contains(err.Error(), "not a symbolic ref") {
			return "", nil // detached HEAD
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return vcs.TrimOutput(output), nil
}

// Divergence compares a local ref against a remote-tracking ref.
func (g *Git) Divergence(local, remote string) (vcs.DivergenceInfo, error) {
	info := vcs.DivergenceInfo{}

	ahead, err := g.revListCount(remote + ".." + local)
	if err != nil {
		return info, err
	}
	behind, err := g.revListCount(local + ".." + remote)
	if err != nil {
		return info, err
	}

	info.LocalAhead = ahead
	info.RemoteAhead = behind
	info.Diverged = ahead > 0 && behind > 0
	return info, nil
}

func (g *Git) revListCount(revRange string) (int, error) {
	output, err := g.run(context.Background(), "rev-list", "--count", revRange)
	if err != nil {
		if strings.Contains(err.Error(), "unknown revision") {
			return 0, fmt.Errorf("%w: %s", vcs.ErrRemoteRefMissing, revRange)
		}
		return 0, fmt.Errorf("rev-list %s failed: %w", revRange, err)
	}

	n, err := strconv.Atoi(vcs.TrimOutput(output))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", vcs.TrimOutput(output), err)
	}
	return n, nil
}

// ShowAtRef returns the content of a path as of the given ref.
func (g *Git) ShowAtRef(ref, path string) ([]byte, error) {
	output, err := g.run(context.Background(), "show", ref+":"+path)
	if err != nil {
		if containsAny(err.Error(),
			"does not exist", "exists on disk, but not in", "invalid object name") {
			return nil, fmt.Errorf("%w: %s at %s", vcs.ErrPathAbsent, path, ref)
		}
		return nil, fmt.Errorf("failed to extract %s from %s: %w", path, ref, err)
	}
	return output, nil
}

// ShowStage returns the content of a conflicted path at the given merge
// stage (1 = ancestor, 2 = ours, 3 = theirs).
func (g *Git) ShowStage(stage vcs.MergeStage, path string) ([]byte, error) {
	spec := fmt.Sprintf(":%d:%s", stage, path)
	output, err := g.run(context.Background(), "show", spec)
	if err != nil {
		if containsAny(err.Error(),
			"does not exist", "is in the index, but not at stage", "invalid object name") {
			return nil, fmt.Errorf("%w: %s at stage %d", vcs.ErrPathAbsent, path, stage)
		}
		return nil, fmt.Errorf("failed to read merge stage %d of %s: %w", stage, path, err)
	}
	return output, nil
}
