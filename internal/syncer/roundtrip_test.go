package syncer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarlow/taskit/internal/storage"
	"github.com/mbarlow/taskit/internal/task"
	"github.com/mbarlow/taskit/internal/tracker"
	"github.com/mbarlow/taskit/internal/vcs"
	_ "github.com/mbarlow/taskit/internal/vcs/git"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// TestSyncRoundTripAcrossClones drives the real git backend end to end:
// a collection built in one working copy is published, cloned fresh,
// and both copies hold identical records; a change made in the clone
// flows back the same way.
func TestSyncRoundTripAcrossClones(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	ctx := context.Background()

	base := t.TempDir()
	bare := filepath.Join(base, "origin.git")
	runGit(t, base, "init", "--bare", "--quiet", "-b", "main", bare)

	rootA := filepath.Join(base, "a")
	require.NoError(t, os.MkdirAll(rootA, 0o755))
	repoA, err := vcs.Init(rootA)
	require.NoError(t, err)
	runGit(t, rootA, "checkout", "-q", "-B", "main")
	runGit(t, rootA, "remote", "add", "origin", bare)

	storeA := storage.New(filepath.Join(rootA, "tasks"), repoA)
	trackerA := tracker.New(storeA, repoA)

	first, err := trackerA.Add(ctx, "write the report", task.PriorityHigh, "docs", "feat")
	require.NoError(t, err)
	_, err = trackerA.Add(ctx, "fix login timeout", "", "auth", "fix")
	require.NoError(t, err)
	_, err = trackerA.Add(ctx, "rotate the backups", task.PriorityLow, "", "chore")
	require.NoError(t, err)
	_, err = trackerA.Start(ctx, first.ID)
	require.NoError(t, err)
	_, err = trackerA.Done(ctx, first.ID)
	require.NoError(t, err)

	syncA := New(repoA, storeA, WithRetry(1, time.Millisecond))
	result, err := syncA.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pushed, result.Outcome, "an empty remote receives the whole history")

	// A fresh clone sees the identical collection.
	rootB := filepath.Join(base, "b")
	repoB, err := Clone(ctx, bare, rootB, Credentials{}, nil)
	require.NoError(t, err)
	storeB := storage.New(filepath.Join(rootB, "tasks"), repoB)
	requireSameCollection(t, storeA, storeB)

	// And work done in the clone flows back.
	trackerB := tracker.New(storeB, repoB)
	_, err = trackerB.Add(ctx, "added on the second machine", "", "", "")
	require.NoError(t, err)

	syncB := New(repoB, storeB, WithRetry(1, time.Millisecond))
	result, err = syncB.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pushed, result.Outcome)

	result, err = syncA.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, FastForwarded, result.Outcome)
	requireSameCollection(t, storeA, storeB)
}

func requireSameCollection(t *testing.T, a, b *storage.Store) {
	t.Helper()
	want, err := a.List()
	require.NoError(t, err)
	got, err := b.List()
	require.NoError(t, err)
	require.Len(t, got, len(want))

	sort.Slice(want, func(i, j int) bool { return want[i].ID < want[j].ID })
	sort.Slice(got, func(i, j int) bool { return got[i].ID < got[j].ID })
	for i := range want {
		assert.True(t, task.Equal(want[i], got[i]), "record %s differs", want[i].ID)
	}
}
