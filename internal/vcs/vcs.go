// Package vcs defines the adapter interface over the version-control
// repository that stores task records.
//
// The adapter exclusively owns the commit history: the file store stages
// paths through it, the state machine commits through it, and the sync
// orchestrator drives fetch/merge/push through it. Callers never invoke
// the underlying binary directly.
//
// Implementations register themselves with Register; the git backend in
// internal/vcs/git is the default:
//
//	import _ "github.com/mbarlow/taskit/internal/vcs/git" // registers via init()
//
//	repo, err := vcs.Init(dir)
package vcs

import "context"

// MergeStage identifies one side of a three-way merge in the index.
type MergeStage int

const (
	// StageAncestor is the common ancestor version of a conflicted path.
	StageAncestor MergeStage = 1
	// StageLocal is the local (ours) version of a conflicted path.
	StageLocal MergeStage = 2
	// StageRemote is the remote (theirs) version of a conflicted path.
	StageRemote MergeStage = 3
)

// DivergenceInfo describes how local and remote history relate.
type DivergenceInfo struct {
	// LocalAhead is the number of commits local has that remote lacks.
	LocalAhead int

	// RemoteAhead is the number of commits remote has that local lacks.
	RemoteAhead int

	// Diverged is true if both sides carry commits the other lacks while
	// sharing a common ancestor.
	Diverged bool
}

// VCS wraps the repository operations the task store needs.
//
// Remote operations take a context because they touch the network and
// must stay bounded; local operations are fast and do not.
type VCS interface {
	// Root returns the repository root directory.
	Root() string

	// Add stages the given paths (relative to the repository root) for
	// the next commit. Deleted paths are staged as removals.
	Add(paths []string) error

	// HasChanges reports whether there are uncommitted changes, limited
	// to the given paths when any are specified.
	HasChanges(paths ...string) (bool, error)

	// Commit records the staged changes and returns the new commit id.
	Commit(ctx context.Context, message string) (string, error)

	// CurrentBranch returns the checked-out branch name, or "" when HEAD
	// is detached.
	CurrentBranch() (string, error)

	// HasRemote reports whether any remote is configured.
	HasRemote() bool

	// RemoteURL returns the fetch URL of the named remote.
	RemoteURL(remote string) (string, error)

	// SetAuthEnv sets extra environment variables applied to remote
	// operations. The sync orchestrator installs resolved credentials
	// here before fetch and push.
	SetAuthEnv(env []string)

	// Fetch updates remote-tracking refs. An empty ref fetches the
	// remote's default refs.
	Fetch(ctx context.Context, remote, ref string) error

	// Push publishes the local branch to the remote.
	Push(ctx context.Context, remote, ref string) error

	// Divergence compares a local ref against a remote-tracking ref.
	Divergence(local, remote string) (DivergenceInfo, error)

	// MergeFastForward advances the current branch to ref without
	// creating a merge commit. Fails when histories have diverged.
	MergeFastForward(ctx context.Context, ref string) error

	// MergeNoCommit merges ref into the current branch but stops before
	// committing, leaving conflicts in the index. Returns ErrConflicts
	// when the textual merge could not auto-resolve every path.
	MergeNoCommit(ctx context.Context, ref string) error

	// MergeInProgress reports whether a merge is waiting to be committed.
	MergeInProgress() bool

	// AbortMerge discards an in-progress merge and restores the working
	// tree.
	AbortMerge(ctx context.Context) error

	// CommitMerge concludes an in-progress merge with the given message
	// and returns the merge commit id.
	CommitMerge(ctx context.Context, message string) (string, error)

	// ConflictedFiles lists paths with unresolved conflicts, relative to
	// the repository root.
	ConflictedFiles() ([]string, error)

	// ShowStage returns the content of a conflicted path at the given
	// merge stage. Returns ErrPathAbsent when that side has no version
	// of the path (e.g. deleted on one side).
	ShowStage(stage MergeStage, path string) ([]byte, error)

	// ShowAtRef returns the content of a path as of the given ref.
	// Returns ErrPathAbsent when the path does not exist at that ref.
	ShowAtRef(ref, path string) ([]byte, error)
}
