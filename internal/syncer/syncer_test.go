package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarlow/taskit/internal/merge"
	"github.com/mbarlow/taskit/internal/storage"
	"github.com/mbarlow/taskit/internal/task"
	"github.com/mbarlow/taskit/internal/vcs"
)

var syncNow = time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)

// fakeVCS scripts the repository behavior one sync exercises.
type fakeVCS struct {
	root      string
	branch    string
	hasRemote bool
	url       string

	div    vcs.DivergenceInfo
	divErr error

	fetchErrs []error // consumed one per call, nil slice means success
	pushErrs  []error
	mergeErr  error

	conflicted []string
	stages     map[vcs.MergeStage]map[string][]byte

	merging bool
	aborted bool

	staged       []string
	mergeCommits []string
	fetchCalls   int
	pushCalls    int
	authEnv      []string
}

func (f *fakeVCS) Root() string { return f.root }

func (f *fakeVCS) Add(paths []string) error {
	f.staged = append(f.staged, paths...)
	return nil
}

func (f *fakeVCS) HasChanges(...string) (bool, error) { return false, nil }

func (f *fakeVCS) Commit(context.Context, string) (string, error) { return "c0ffee", nil }

func (f *fakeVCS) CurrentBranch() (string, error) { return f.branch, nil }

func (f *fakeVCS) HasRemote() bool { return f.hasRemote }

func (f *fakeVCS) RemoteURL(string) (string, error) {
	if !f.hasRemote {
		return "", vcs.ErrNoRemote
	}
	return f.url, nil
}

func (f *fakeVCS) SetAuthEnv(env []string) { f.authEnv = env }

func (f *fakeVCS) Fetch(context.Context, string, string) error {
	err := takeErr(&f.fetchErrs)
	f.fetchCalls++
	return err
}

func (f *fakeVCS) Push(context.Context, string, string) error {
	err := takeErr(&f.pushErrs)
	f.pushCalls++
	return err
}

func (f *fakeVCS) Divergence(string, string) (vcs.DivergenceInfo, error) {
	return f.div, f.divErr
}

func (f *fakeVCS) MergeFastForward(context.Context, string) error { return nil }

func (f *fakeVCS) MergeNoCommit(context.Context, string) error {
	if f.mergeErr != nil {
		f.merging = true
		return f.mergeErr
	}
	f.merging = true
	return nil
}

func (f *fakeVCS) MergeInProgress() bool { return f.merging }

func (f *fakeVCS) AbortMerge(context.Context) error {
	if !f.merging {
		return vcs.ErrNoMergeInProgress
	}
	f.merging = false
	f.aborted = true
	return nil
}

func (f *fakeVCS) CommitMerge(_ context.Context, message string) (string, error) {
	if !f.merging {
		return "", vcs.ErrNoMergeInProgress
	}
	f.merging = false
	f.mergeCommits = append(f.mergeCommits, message)
	return "mer6ed", nil
}

func (f *fakeVCS) ConflictedFiles() ([]string, error) { return f.conflicted, nil }

func (f *fakeVCS) ShowStage(stage vcs.MergeStage, path string) ([]byte, error) {
	data, ok := f.stages[stage][path]
	if !ok {
		return nil, vcs.ErrPathAbsent
	}
	return data, nil
}

func (f *fakeVCS) ShowAtRef(string, string) ([]byte, error) { return nil, vcs.ErrPathAbsent }

func takeErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type syncFixture struct {
	repo  *fakeVCS
	store *storage.Store
	sync  *Syncer
}

func newSyncFixture(t *testing.T, opts ...Option) *syncFixture {
	t.Helper()
	root := t.TempDir()
	repo := &fakeVCS{
		root:      root,
		branch:    "main",
		hasRemote: true,
		url:       "https://example.com/tasks.git",
	}
	store := storage.New(filepath.Join(root, "tasks"), repo)

	opts = append([]Option{
		WithRetry(2, time.Millisecond),
		WithClock(func() time.Time { return syncNow }),
	}, opts...)
	return &syncFixture{
		repo:  repo,
		store: store,
		sync:  New(repo, store, opts...),
	}
}

func mkTask(t *testing.T, id, description string) task.Task {
	t.Helper()
	created := syncNow.Add(-24 * time.Hour)
	return task.Task{
		ID:          id,
		Description: description,
		Priority:    task.PriorityNormal,
		Status:      task.StatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func encode(t *testing.T, tsk task.Task) []byte {
	t.Helper()
	data, err := task.Encode(tsk)
	require.NoError(t, err)
	return data
}

func TestSyncUpToDate(t *testing.T) {
	f := newSyncFixture(t)

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UpToDate, result.Outcome)
	assert.Zero(t, f.repo.pushCalls)
}

func TestSyncPushOnly(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.div = vcs.DivergenceInfo{LocalAhead: 2}

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pushed, result.Outcome)
	assert.Equal(t, 1, f.repo.pushCalls)
}

func TestSyncFastForward(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.div = vcs.DivergenceInfo{RemoteAhead: 3}

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FastForwarded, result.Outcome)
	assert.Zero(t, f.repo.pushCalls)
}

func TestSyncEmptyRemotePushes(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.fetchErrs = []error{vcs.ErrRemoteRefMissing}

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pushed, result.Outcome)
}

func TestSyncNoRemote(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.hasRemote = false

	_, err := f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, vcs.ErrNoRemote)
}

func TestSyncMergeWithoutConflicts(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.div = vcs.DivergenceInfo{LocalAhead: 1, RemoteAhead: 1, Diverged: true}

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, result.Outcome)
	assert.Equal(t, "mer6ed", result.Commit)
	require.Len(t, f.repo.mergeCommits, 1)
	assert.Contains(t, f.repo.mergeCommits[0], "merge: reconcile origin/main into main")
	assert.Equal(t, 1, f.repo.pushCalls)
}

// scriptConflict sets up a diverged sync whose one conflicted record
// differs in description on both sides.
func scriptConflict(t *testing.T, f *syncFixture) (path string, local task.Task) {
	t.Helper()
	ancestor := mkTask(t, "aa11", "original")
	local = mkTask(t, "aa11", "local wording")
	remote := mkTask(t, "aa11", "remote wording")

	require.NoError(t, f.store.Put(local))
	path = "tasks/aa11.toml"

	f.repo.div = vcs.DivergenceInfo{LocalAhead: 1, RemoteAhead: 1, Diverged: true}
	f.repo.mergeErr = vcs.ErrConflicts
	f.repo.conflicted = []string{path}
	f.repo.stages = map[vcs.MergeStage]map[string][]byte{
		vcs.StageAncestor: {path: encode(t, ancestor)},
		vcs.StageLocal:    {path: encode(t, local)},
		vcs.StageRemote:   {path: encode(t, remote)},
	}
	return path, local
}

func TestSyncSuspendsOnConflict(t *testing.T) {
	f := newSyncFixture(t)
	scriptConflict(t, f)

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ConflictsPending, result.Outcome)

	require.NotNil(t, result.Pending)
	require.Len(t, result.Pending.Tasks, 1)
	tp := result.Pending.Tasks[0]
	assert.Equal(t, "aa11", tp.ID)
	require.Len(t, tp.Conflicts, 1)
	assert.Equal(t, "description", tp.Conflicts[0].Field)

	// The merge stays in progress and the state survives on disk.
	assert.True(t, f.repo.merging)
	saved, err := LoadPending(f.repo.root)
	require.NoError(t, err)
	assert.Equal(t, result.Pending.Tasks, saved.Tasks)

	// A second sync refuses to run over the suspended merge.
	_, err = f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, ErrMergePending)
}

func TestResumeConcludesSuspendedMerge(t *testing.T) {
	f := newSyncFixture(t)
	scriptConflict(t, f)

	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)

	result, err := f.sync.Resume(context.Background(), Choices{
		"aa11": {"description": merge.ChooseRemote},
	})
	require.NoError(t, err)
	assert.Equal(t, Merged, result.Outcome)

	got, err := f.store.Get("aa11")
	require.NoError(t, err)
	assert.Equal(t, "remote wording", got.Description)

	_, err = LoadPending(f.repo.root)
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Equal(t, 1, f.repo.pushCalls)
}

func TestResumeMissingChoice(t *testing.T) {
	f := newSyncFixture(t)
	scriptConflict(t, f)

	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)

	_, err = f.sync.Resume(context.Background(), nil)
	assert.ErrorIs(t, err, merge.ErrUnresolved)
}

func TestResumeWithoutPending(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.sync.Resume(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestSyncPreferRemoteAutoResolves(t *testing.T) {
	f := newSyncFixture(t, WithStrategy(merge.PreferRemote))
	scriptConflict(t, f)

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, result.Outcome)

	got, err := f.store.Get("aa11")
	require.NoError(t, err)
	assert.Equal(t, "remote wording", got.Description)
}

func TestSyncAbortsOnForeignConflict(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.div = vcs.DivergenceInfo{LocalAhead: 1, RemoteAhead: 1, Diverged: true}
	f.repo.mergeErr = vcs.ErrConflicts
	f.repo.conflicted = []string{"config.toml"}

	_, err := f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, ErrUnmergeablePath)
	assert.True(t, f.repo.aborted, "the merge is abandoned, leaving the repo clean")
}

func TestSyncRetriesTransientFetch(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.fetchErrs = []error{vcs.ErrNetwork, vcs.ErrTimeout, nil}

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UpToDate, result.Outcome)
	assert.Equal(t, 3, f.repo.fetchCalls)
}

func TestSyncRetriesExhausted(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.fetchErrs = []error{vcs.ErrNetwork, vcs.ErrNetwork, vcs.ErrNetwork, vcs.ErrNetwork}

	_, err := f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, vcs.ErrNetwork)
	// Initial attempt plus the two configured retries.
	assert.Equal(t, 3, f.repo.fetchCalls)
}

func TestSyncNeverRetriesRejectedPush(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.div = vcs.DivergenceInfo{LocalAhead: 1}
	f.repo.pushErrs = []error{vcs.ErrPushRejected, nil}

	// A non-fast-forward rejection cannot succeed without another
	// fetch, so it surfaces immediately instead of burning retries.
	_, err := f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, vcs.ErrPushRejected)
	assert.Equal(t, 1, f.repo.pushCalls)
}

func TestSyncNeverRetriesAuthFailure(t *testing.T) {
	f := newSyncFixture(t)
	f.repo.fetchErrs = []error{vcs.ErrAuth}

	_, err := f.sync.Sync(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, 1, f.repo.fetchCalls)
}

// scriptCompetingActive sets up a cleanly merging divergence that leaves
// two active records in the collection, as if each machine started its
// own task.
func scriptCompetingActive(t *testing.T, f *syncFixture) {
	t.Helper()
	f.repo.div = vcs.DivergenceInfo{LocalAhead: 1, RemoteAhead: 1, Diverged: true}

	early := syncNow.Add(-2 * time.Hour)
	late := syncNow.Add(-time.Hour)
	a := mkTask(t, "aaaa", "started here")
	a.Status = task.StatusActive
	a.StartedAt = &early
	b := mkTask(t, "bbbb", "started elsewhere")
	b.Status = task.StatusActive
	b.StartedAt = &late
	require.NoError(t, f.store.Put(a))
	require.NoError(t, f.store.Put(b))
}

func TestSyncSuspendsOnCompetingActive(t *testing.T) {
	f := newSyncFixture(t)
	scriptCompetingActive(t, f)

	result, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ConflictsPending, result.Outcome)

	require.NotNil(t, result.Pending)
	require.Len(t, result.Pending.Tasks, 2)
	assert.Equal(t, "bbbb", result.Pending.Tasks[0].ID, "most recently started listed first")
	for _, tp := range result.Pending.Tasks {
		assert.Equal(t, PendingKindActive, tp.Kind)
		require.Len(t, tp.Conflicts, 1)
		assert.Equal(t, "status", tp.Conflicts[0].Field)
	}

	// Neither record was demoted behind the user's back, and the merge
	// stays open for Resume.
	gotA, err := f.store.Get("aaaa")
	require.NoError(t, err)
	assert.Equal(t, task.StatusActive, gotA.Status)
	assert.True(t, f.repo.merging)
	assert.Empty(t, f.repo.mergeCommits)
}

func TestResumeSettlesCompetingActive(t *testing.T) {
	f := newSyncFixture(t)
	scriptCompetingActive(t, f)
	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)

	result, err := f.sync.Resume(context.Background(), Choices{
		"aaaa": {"status": merge.ChooseRemote},
		"bbbb": {"status": merge.ChooseLocal},
	})
	require.NoError(t, err)
	assert.Equal(t, Merged, result.Outcome)

	gotA, err := f.store.Get("aaaa")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, gotA.Status)
	assert.Nil(t, gotA.StartedAt)
	assert.Equal(t, int64(7200), gotA.TimeSpent)

	gotB, err := f.store.Get("bbbb")
	require.NoError(t, err)
	assert.Equal(t, task.StatusActive, gotB.Status)
	assert.Equal(t, 1, f.repo.pushCalls)
}

func TestResumeKeepingBothActiveSuspendsAgain(t *testing.T) {
	f := newSyncFixture(t)
	scriptCompetingActive(t, f)
	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)

	result, err := f.sync.Resume(context.Background(), Choices{
		"aaaa": {"status": merge.ChooseLocal},
		"bbbb": {"status": merge.ChooseLocal},
	})
	require.NoError(t, err)
	assert.Equal(t, ConflictsPending, result.Outcome)
	assert.True(t, f.repo.merging, "keeping both active leaves the conflict open")
}

func TestResumeCompetingActiveMissingChoice(t *testing.T) {
	f := newSyncFixture(t)
	scriptCompetingActive(t, f)
	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)

	_, err = f.sync.Resume(context.Background(), Choices{
		"aaaa": {"status": merge.ChooseRemote},
	})
	assert.ErrorIs(t, err, merge.ErrUnresolved)
}

func TestAuthEnvSSH(t *testing.T) {
	env, cleanup, err := authEnv("git@example.com:me/tasks.git", Credentials{}, nil)
	require.NoError(t, err)
	defer cleanup()
	assert.Contains(t, env, "GIT_TERMINAL_PROMPT=0")
	assert.Contains(t, env, "GIT_SSH_COMMAND=ssh -o BatchMode=yes")
}

func TestAuthEnvSSHKey(t *testing.T) {
	key := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(key, []byte("key material"), 0o600))

	env, cleanup, err := authEnv("ssh://example.com/tasks.git", Credentials{SSHKeyPath: key}, nil)
	require.NoError(t, err)
	defer cleanup()

	var found bool
	for _, e := range env {
		if e == "GIT_SSH_COMMAND=ssh -i "+key+" -o IdentitiesOnly=yes -o BatchMode=yes" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAuthEnvToken(t *testing.T) {
	creds := Credentials{Username: "me", Token: "s3cret"}
	env, cleanup, err := authEnv("https://example.com/tasks.git", creds, nil)
	require.NoError(t, err)
	defer cleanup()

	assert.Contains(t, env, "TASKIT_SYNC_USERNAME=me")
	assert.Contains(t, env, "TASKIT_SYNC_PASSWORD=s3cret")

	var helper string
	for _, e := range env {
		if rest, ok := cutPrefix(e, "GIT_ASKPASS="); ok {
			helper = rest
		}
	}
	require.NotEmpty(t, helper)
	info, err := os.Stat(helper)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "helper must be executable")

	cleanup()
	_, err = os.Stat(helper)
	assert.True(t, os.IsNotExist(err), "cleanup removes the helper")
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

// promptCreds satisfies Prompter with fixed values.
type promptCreds struct{ user, pass string }

func (p promptCreds) Credentials(string) (string, string, error) {
	return p.user, p.pass, nil
}

func TestAuthEnvPrompterFallback(t *testing.T) {
	env, cleanup, err := authEnv("https://example.com/tasks.git", Credentials{}, promptCreds{"asked", "answer"})
	require.NoError(t, err)
	defer cleanup()
	assert.Contains(t, env, "TASKIT_SYNC_USERNAME=asked")
	assert.Contains(t, env, "TASKIT_SYNC_PASSWORD=answer")
}

func TestIsSSHURL(t *testing.T) {
	assert.True(t, isSSHURL("git@github.com:me/repo.git"))
	assert.True(t, isSSHURL("ssh://git@host/repo.git"))
	assert.True(t, isSSHURL("me@host.example:path/repo"))
	assert.False(t, isSSHURL("https://github.com/me/repo.git"))
	assert.False(t, isSSHURL("file:///tmp/repo"))
}
