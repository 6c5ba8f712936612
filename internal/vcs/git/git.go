// Package git provides the git implementation of the vcs.VCS interface.
//
// It shells out to the git binary rather than linking a library: the task
// store's history is plain git, so any git client can inspect it, and the
// binary handles transports and credential helpers we would otherwise have
// to reimplement. Command output is classified into the vcs sentinel
// errors so callers can branch on errors.Is instead of scraping text.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mbarlow/taskit/internal/vcs"
)

// identityArgs pins the committer identity for automatic commits so the
// store works on machines with no global git configuration.
var identityArgs = []string{"-c", "user.name=taskit", "-c", "user.email=taskit@auto.commit"}

// Git implements vcs.VCS for git repositories.
type Git struct {
	// repoRoot is the repository root directory.
	repoRoot string

	// gitDir is the .git directory path.
	gitDir string

	// authEnv holds extra environment variables for remote operations.
	authEnv []string
}

// New opens an existing git repository containing path.
func New(path string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, vcs.ErrBinaryNotFound
	}

	g := &Git{}
	if err := g.detect(path); err != nil {
		return nil, err
	}
	return g, nil
}

// Init opens the repository at path, running "git init" first when the
// directory is not yet under version control. Idempotent.
func Init(path string) (*Git, error) {
	g, err := New(path)
	if err == nil {
		return g, nil
	}
	if err != vcs.ErrNotARepo {
		return nil, err
	}

	if _, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, path, nil,
		"git", "init", "--quiet"); err != nil {
		return nil, fmt.Errorf("git init failed: %w", err)
	}
	return New(path)
}

// Clone clones url into dest. env carries resolved authentication for
// the transfer (see the syncer's credential chain).
func Clone(ctx context.Context, url, dest string, env []string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, vcs.ErrBinaryNotFound
	}

	_, err := vcs.ExecContext(ctx, 0, filepath.Dir(dest), env,
		"git", "clone", "--quiet", url, dest)
	if err != nil {
		return nil, classifyRemoteErr(err)
	}
	return New(dest)
}

// detect populates repository paths via a single rev-parse call.
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--git-dir", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		return vcs.ErrNotARepo
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := strings.TrimSpace(lines[0])
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}
	g.gitDir = gitDir
	g.repoRoot = normalizeRepoRoot(strings.TrimSpace(lines[1]))
	return nil
}

// normalizeRepoRoot resolves symlinks so staged paths computed against the
// root always match what git reports.
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path
}

// Root returns the repository root directory.
func (g *Git) Root() string {
	return g.repoRoot
}

// SetAuthEnv sets extra environment variables for remote operations.
func (g *Git) SetAuthEnv(env []string) {
	g.authEnv = env
}

// run executes a local git command in the repository.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, vcs.DefaultTimeout, g.repoRoot, nil, "git", args...)
}

// runRemote executes a git command that touches the network, with auth
// environment applied and no per-command timeout (the caller's context
// bounds it).
func (g *Git) runRemote(ctx context.Context, args ...string) ([]byte, error) {
	output, err := vcs.ExecContext(ctx, 0, g.repoRoot, g.authEnv, "git", args...)
	if err != nil {
		return output, classifyRemoteErr(err)
	}
	return output, nil
}

// classifyRemoteErr maps git's transport error text onto the vcs
// sentinels so callers can distinguish auth failures from transient
// network trouble.
func classifyRemoteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg,
		"Authentication failed",
		"could not read Username",
		"could not read Password",
		"Permission denied (publickey",
		"Invalid username or",
		"HTTP 401",
		"HTTP 403"):
		return fmt.Errorf("%w: %v", vcs.ErrAuth, err)
	case containsAny(msg,
		"Could not resolve host",
		"unable to access",
		"Connection refused",
		"Connection timed out",
		"Connection reset",
		"early EOF",
		"remote end hung up",
		"Operation timed out"):
		return fmt.Errorf("%w: %v", vcs.ErrNetwork, err)
	case containsAny(msg, "[rejected]", "non-fast-forward", "fetch first"):
		return fmt.Errorf("%w: %v", vcs.ErrPushRejected, err)
	case containsAny(msg, "couldn't find remote ref", "Remote branch", "not found in upstream"):
		return fmt.Errorf("%w: %v", vcs.ErrRemoteRefMissing, err)
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
