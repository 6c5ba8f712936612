// Package syncer orchestrates synchronization between the local task
// repository and its remote.
//
// A sync is fetch, reconcile, push. Reconciliation prefers a
// fast-forward; diverged histories get a merge in which conflicted task
// records are resolved three-ways at the field level. When the
// configured strategy cannot decide a field, the merge is suspended:
// the repository keeps the merge in progress, the open questions are
// written to a state file, and a later Resume call with the user's
// choices concludes it. The orchestrator itself never prompts.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mbarlow/taskit/internal/commitmsg"
	"github.com/mbarlow/taskit/internal/merge"
	"github.com/mbarlow/taskit/internal/storage"
	"github.com/mbarlow/taskit/internal/task"
	"github.com/mbarlow/taskit/internal/vcs"
)

var (
	// ErrAuthFailed is returned when the remote rejects the resolved
	// credentials. Never retried.
	ErrAuthFailed = errors.New("sync authentication failed")

	// ErrMergePending is returned by Sync while a suspended merge is
	// waiting for Resume or Abort.
	ErrMergePending = errors.New("a suspended merge is pending; resume or abort it first")

	// ErrUnmergeablePath is returned when a conflict involves a file that
	// is not a task record. The merge is aborted and the repository left
	// clean.
	ErrUnmergeablePath = errors.New("conflict on non-task file")
)

// Outcome describes what a completed sync did.
type Outcome int

const (
	// UpToDate means local and remote were already identical.
	UpToDate Outcome = iota
	// Pushed means local commits were published; nothing came in.
	Pushed
	// FastForwarded means local advanced to the remote state.
	FastForwarded
	// Merged means diverged histories were reconciled and pushed.
	Merged
	// ConflictsPending means the merge is suspended on conflicts that
	// need choices; see Result.Pending.
	ConflictsPending
)

func (o Outcome) String() string {
	switch o {
	case UpToDate:
		return "up to date"
	case Pushed:
		return "pushed"
	case FastForwarded:
		return "fast-forwarded"
	case Merged:
		return "merged"
	case ConflictsPending:
		return "conflicts pending"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the outcome of one Sync or Resume call.
type Result struct {
	Outcome Outcome

	// Commit is the merge commit id when Outcome is Merged.
	Commit string

	// Pending lists the unresolved conflicts when Outcome is
	// ConflictsPending.
	Pending *Pending
}

// Choices supplies the user's decisions to Resume, keyed by task id and
// then by conflict field name.
type Choices map[string]map[string]merge.Choice

// Syncer drives fetch, merge, and push for one repository.
type Syncer struct {
	repo     vcs.VCS
	store    *storage.Store
	creds    Credentials
	prompter Prompter
	strategy merge.Strategy
	remote   string
	retries  int
	backoff  time.Duration
	log      *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCredentials sets the configured authentication material.
func WithCredentials(c Credentials) Option {
	return func(s *Syncer) { s.creds = c }
}

// WithPrompter sets the interactive credential fallback.
func WithPrompter(p Prompter) Option {
	return func(s *Syncer) { s.prompter = p }
}

// WithStrategy sets the conflict resolution strategy.
func WithStrategy(st merge.Strategy) Option {
	return func(s *Syncer) { s.strategy = st }
}

// WithRemote overrides the remote name. Defaults to origin.
func WithRemote(remote string) Option {
	return func(s *Syncer) { s.remote = remote }
}

// WithRetry sets how many times transient failures are retried and the
// initial backoff, which doubles per attempt.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(s *Syncer) { s.retries, s.backoff = retries, backoff }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a syncer over the given repository and record store.
func New(repo vcs.VCS, store *storage.Store, opts ...Option) *Syncer {
	s := &Syncer{
		repo:     repo,
		store:    store,
		strategy: merge.FieldLevel,
		remote:   "origin",
		retries:  3,
		backoff:  time.Second,
		log:      slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clone fetches url into dest with the same credential resolution Sync
// uses and returns the opened repository.
func Clone(ctx context.Context, url, dest string, creds Credentials, prompter Prompter) (vcs.VCS, error) {
	env, cleanup, err := authEnv(url, creds, prompter)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	repo, err := vcs.Clone(ctx, url, dest, env)
	if err != nil {
		if vcs.IsAuthFailure(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return nil, err
	}
	return repo, nil
}

// Sync reconciles the local repository with its remote.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if s.repo.MergeInProgress() {
		return Result{}, ErrMergePending
	}
	if !s.repo.HasRemote() {
		return Result{}, vcs.ErrNoRemote
	}

	cleanup, err := s.installAuth()
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	branch, err := s.repo.CurrentBranch()
	if err != nil {
		return Result{}, err
	}
	if branch == "" {
		return Result{}, errors.New("cannot sync a detached HEAD")
	}

	err = s.retry(ctx, "fetch", func() error {
		return s.repo.Fetch(ctx, s.remote, branch)
	})
	if err != nil {
		if errors.Is(err, vcs.ErrRemoteRefMissing) {
			// Empty remote: publishing local history is the whole sync.
			return s.push(ctx, branch, Result{Outcome: Pushed})
		}
		return Result{}, err
	}

	remoteRef := s.remote + "/" + branch
	div, err := s.repo.Divergence(branch, remoteRef)
	if err != nil {
		if errors.Is(err, vcs.ErrRemoteRefMissing) {
			return s.push(ctx, branch, Result{Outcome: Pushed})
		}
		return Result{}, err
	}

	switch {
	case div.LocalAhead == 0 && div.RemoteAhead == 0:
		s.log.Debug("sync: already up to date", "branch", branch)
		return Result{Outcome: UpToDate}, nil

	case div.RemoteAhead == 0:
		return s.push(ctx, branch, Result{Outcome: Pushed})

	case div.LocalAhead == 0:
		if err := s.repo.MergeFastForward(ctx, remoteRef); err != nil {
			return Result{}, err
		}
		s.log.Info("sync: fast-forwarded", "branch", branch, "commits", div.RemoteAhead)
		return Result{Outcome: FastForwarded}, nil
	}

	return s.mergeDiverged(ctx, branch, remoteRef)
}

// mergeDiverged reconciles histories that both moved since the common
// ancestor.
func (s *Syncer) mergeDiverged(ctx context.Context, branch, remoteRef string) (Result, error) {
	s.log.Info("sync: merging diverged histories", "branch", branch, "remote", remoteRef)

	err := s.repo.MergeNoCommit(ctx, remoteRef)
	if err == nil {
		return s.concludeMerge(ctx, branch)
	}
	if !errors.Is(err, vcs.ErrConflicts) {
		return Result{}, err
	}
	return s.resolveConflicts(ctx, branch)
}

// resolveConflicts reconciles every conflicted task record three-ways.
// Records the strategy cannot settle suspend the merge.
func (s *Syncer) resolveConflicts(ctx context.Context, branch string) (Result, error) {
	paths, err := s.repo.ConflictedFiles()
	if err != nil {
		return Result{}, s.abortWith(ctx, err)
	}

	var open []TaskPending
	for _, path := range paths {
		if !s.isTaskPath(path) {
			return Result{}, s.abortWith(ctx, fmt.Errorf("%w: %s", ErrUnmergeablePath, path))
		}

		res, err := s.resolvePath(path)
		if err != nil {
			return Result{}, s.abortWith(ctx, err)
		}
		if res.Manual {
			open = append(open, TaskPending{
				ID:        res.ID,
				Path:      path,
				Conflicts: pendingConflicts(res.Conflicts),
			})
			continue
		}
		if err := s.applyResolution(path, res.Record); err != nil {
			return Result{}, s.abortWith(ctx, err)
		}
	}

	if len(open) > 0 {
		pending := Pending{
			Remote:   s.remote,
			Branch:   branch,
			Strategy: s.strategy.String(),
			Tasks:    open,
		}
		if err := savePending(s.repo.Root(), pending); err != nil {
			return Result{}, s.abortWith(ctx, err)
		}
		s.log.Info("sync: suspended on conflicts", "tasks", len(open))
		return Result{Outcome: ConflictsPending, Pending: &pending}, nil
	}

	return s.concludeMerge(ctx, branch)
}

// Resume concludes a suspended merge using the supplied choices. Every
// conflict recorded in the pending state needs a choice.
func (s *Syncer) Resume(ctx context.Context, choices Choices) (Result, error) {
	pending, err := loadPending(s.repo.Root())
	if err != nil {
		return Result{}, err
	}
	if !s.repo.MergeInProgress() {
		// The merge was concluded or aborted outside of us; the state
		// file is stale.
		clearPending(s.repo.Root())
		return Result{}, fmt.Errorf("%w: repository has no merge in progress", ErrNoPending)
	}

	cleanup, err := s.installAuth()
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	for _, tp := range pending.Tasks {
		if tp.Kind == PendingKindActive {
			if err := s.applyActiveChoice(tp, choices[tp.ID]); err != nil {
				return Result{}, err
			}
			continue
		}
		res, err := s.resolvePath(tp.Path)
		if err != nil {
			return Result{}, err
		}
		record, err := merge.Apply(res, choices[tp.ID])
		if err != nil {
			return Result{}, err
		}
		if err := s.applyResolution(tp.Path, record); err != nil {
			return Result{}, err
		}
	}

	if err := clearPending(s.repo.Root()); err != nil {
		return Result{}, err
	}
	return s.concludeMerge(ctx, pending.Branch)
}

// Abort discards a suspended merge and its state file.
func (s *Syncer) Abort(ctx context.Context) error {
	if err := s.repo.AbortMerge(ctx); err != nil && !errors.Is(err, vcs.ErrNoMergeInProgress) {
		return err
	}
	return clearPending(s.repo.Root())
}

// concludeMerge checks collection invariants, commits the merge, and
// pushes. A collection with competing active records suspends instead
// of committing.
func (s *Syncer) concludeMerge(ctx context.Context, branch string) (Result, error) {
	tasks, err := s.store.List()
	if err != nil {
		return Result{}, err
	}

	// Merging can bring in work started on another machine while a task
	// was active here too. Which one stays active is not ours to guess:
	// the merge suspends with one status conflict per competing record,
	// and Resume settles them like any other conflict.
	if actives := merge.ActiveConflicts(tasks); len(actives) > 0 {
		pending := Pending{
			Remote:   s.remote,
			Branch:   branch,
			Strategy: s.strategy.String(),
			Tasks:    s.activePendingTasks(actives),
		}
		if err := savePending(s.repo.Root(), pending); err != nil {
			return Result{}, err
		}
		s.log.Info("sync: suspended on competing active tasks", "tasks", len(actives))
		return Result{Outcome: ConflictsPending, Pending: &pending}, nil
	}

	commit, err := s.repo.CommitMerge(ctx, commitmsg.MergeMessage(s.remote, branch))
	if err != nil {
		return Result{}, err
	}
	s.log.Info("sync: merged", "branch", branch, "commit", commit)

	return s.push(ctx, branch, Result{Outcome: Merged, Commit: commit})
}

// push publishes the branch with retry and returns the given result.
func (s *Syncer) push(ctx context.Context, branch string, result Result) (Result, error) {
	err := s.retry(ctx, "push", func() error {
		return s.repo.Push(ctx, s.remote, branch)
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Info("sync: pushed", "branch", branch)
	return result, nil
}

// resolvePath loads the three index stages of a conflicted record and
// resolves them with the configured strategy.
func (s *Syncer) resolvePath(path string) (merge.Resolution, error) {
	ancestor, err := s.stageRecord(vcs.StageAncestor, path)
	if err != nil {
		return merge.Resolution{}, err
	}
	local, err := s.stageRecord(vcs.StageLocal, path)
	if err != nil {
		return merge.Resolution{}, err
	}
	remote, err := s.stageRecord(vcs.StageRemote, path)
	if err != nil {
		return merge.Resolution{}, err
	}
	return merge.Resolve(ancestor, local, remote, s.strategy), nil
}

// stageRecord reads one side of a conflicted record. A side with no
// version of the path decodes to nil.
func (s *Syncer) stageRecord(stage vcs.MergeStage, path string) (*task.Task, error) {
	data, err := s.repo.ShowStage(stage, path)
	if err != nil {
		if errors.Is(err, vcs.ErrPathAbsent) {
			return nil, nil
		}
		return nil, err
	}
	t, err := task.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("conflicted record %s: %w", path, err)
	}
	return &t, nil
}

// applyResolution writes the resolved record, or records its deletion,
// and stages the path either way.
func (s *Syncer) applyResolution(path string, record *task.Task) error {
	if record != nil {
		return s.store.Put(*record)
	}

	id := strings.TrimSuffix(filepath.Base(path), storage.Extension)
	err := s.store.Delete(id)
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		// Already absent from the working tree; stage the index entry so
		// the deletion side wins.
		return s.repo.Add([]string{path})
	}
	return err
}

// activePendingTasks renders competing active records as status
// conflicts: choosing local keeps a record active, choosing remote
// stops it back to pending.
func (s *Syncer) activePendingTasks(actives []task.Task) []TaskPending {
	out := make([]TaskPending, len(actives))
	for i, t := range actives {
		out[i] = TaskPending{
			ID:   t.ID,
			Path: s.relRecordPath(t.ID),
			Kind: PendingKindActive,
			Conflicts: []PendingConflict{{
				Field:  "status",
				Local:  string(task.StatusActive),
				Remote: string(task.StatusPending),
			}},
		}
	}
	return out
}

// applyActiveChoice settles one competing-active record per the user's
// status choice.
func (s *Syncer) applyActiveChoice(tp TaskPending, fields map[string]merge.Choice) error {
	choice, ok := fields["status"]
	if !ok {
		return fmt.Errorf("%w: status (task %s)", merge.ErrUnresolved, tp.ID)
	}
	switch choice {
	case merge.ChooseLocal:
		return nil
	case merge.ChooseRemote:
		t, err := s.store.Get(tp.ID)
		if err != nil {
			return err
		}
		merge.Demote(&t, s.now().UTC())
		s.log.Info("sync: stopped competing active task", "id", t.ID)
		return s.store.Put(t)
	}
	return fmt.Errorf("%w: %d for status (task %s)", merge.ErrUnknownChoice, choice, tp.ID)
}

// relRecordPath returns the repository-relative path of a record file.
func (s *Syncer) relRecordPath(id string) string {
	rel, err := filepath.Rel(s.repo.Root(), s.store.Path(id))
	if err != nil {
		return s.store.Path(id)
	}
	return filepath.ToSlash(rel)
}

// isTaskPath reports whether a repository-relative path is a task
// record file.
func (s *Syncer) isTaskPath(path string) bool {
	if !strings.HasSuffix(path, storage.Extension) {
		return false
	}
	rel, err := filepath.Rel(s.repo.Root(), s.store.Dir())
	if err != nil {
		return false
	}
	if rel == "." {
		return !strings.ContainsRune(path, '/')
	}
	return strings.HasPrefix(filepath.ToSlash(path), filepath.ToSlash(rel)+"/")
}

// abortWith abandons an in-progress merge, keeping err as the cause.
func (s *Syncer) abortWith(ctx context.Context, err error) error {
	if abortErr := s.repo.AbortMerge(ctx); abortErr != nil &&
		!errors.Is(abortErr, vcs.ErrNoMergeInProgress) {
		s.log.Error("sync: abort after failure also failed", "error", abortErr)
	}
	return err
}

// installAuth resolves credentials for the configured remote and
// installs them on the repository for the duration of the operation.
func (s *Syncer) installAuth() (func(), error) {
	url, err := s.repo.RemoteURL(s.remote)
	if err != nil {
		return nil, err
	}
	env, cleanup, err := authEnv(url, s.creds, s.prompter)
	if err != nil {
		return nil, err
	}
	s.repo.SetAuthEnv(env)
	return func() {
		s.repo.SetAuthEnv(nil)
		cleanup()
	}, nil
}

// retry runs fn, retrying transient failures with doubling backoff.
// Authentication failures are terminal immediately.
func (s *Syncer) retry(ctx context.Context, op string, fn func() error) error {
	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if vcs.IsAuthFailure(err) {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		if !vcs.IsRetryable(err) || attempt >= s.retries {
			return fmt.Errorf("%s: %w", op, err)
		}

		s.log.Warn("sync: retrying after transient failure",
			"op", op, "attempt", attempt+1, "backoff", backoff, "error", err)
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
