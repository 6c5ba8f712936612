package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbarlow/taskit/internal/task"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func sample() []task.Task {
	done := base.Add(72 * time.Hour)
	return []task.Task{
		{
			ID: "a", Description: "fix login timeout", Priority: task.PriorityHigh,
			Scope: "auth", Type: "fix", Status: task.StatusPending,
			CreatedAt: base, UpdatedAt: base,
		},
		{
			ID: "b", Description: "write deployment docs", Priority: task.PriorityLow,
			Scope: "docs", Type: "chore", Status: task.StatusActive,
			CreatedAt: base.Add(24 * time.Hour), UpdatedAt: base.Add(48 * time.Hour),
		},
		{
			ID: "c", Description: "upgrade database driver", Priority: task.PriorityUrgent,
			Scope: "infra", Type: "chore", Status: task.StatusDone,
			CreatedAt: base.Add(-240 * time.Hour), UpdatedAt: done, CompletedAt: &done,
			TimeSpent: 3600,
		},
	}
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestFilterEmptyMatchesAll(t *testing.T) {
	got := Apply(sample(), Filter{})
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestFilterByStatus(t *testing.T) {
	got := Apply(sample(), Filter{Statuses: []task.Status{task.StatusActive, task.StatusDone}})
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestFilterByPriorityAndScope(t *testing.T) {
	// Categories AND together.
	f := Filter{
		Priorities: []task.Priority{task.PriorityHigh, task.PriorityUrgent},
		Scopes:     []string{"auth"},
	}
	got := Apply(sample(), f)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestFilterByType(t *testing.T) {
	got := Apply(sample(), Filter{Types: []string{"chore"}})
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestFilterCreatedRangeInclusive(t *testing.T) {
	from := base
	to := base.Add(24 * time.Hour)
	got := Apply(sample(), Filter{Created: DateRange{From: &from, To: &to}})
	// Both boundary instants match.
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestFilterCompletedRequiresCompletion(t *testing.T) {
	from := base.Add(-1000 * time.Hour)
	got := Apply(sample(), Filter{Completed: DateRange{From: &from}})
	assert.Equal(t, []string{"c"}, ids(got))
}

func TestFilterOpenEndedRange(t *testing.T) {
	to := base.Add(time.Hour)
	got := Apply(sample(), Filter{Created: DateRange{To: &to}})
	assert.Equal(t, []string{"a", "c"}, ids(got))
}

func TestFilterFuzzy(t *testing.T) {
	got := Apply(sample(), Filter{Fuzzy: "dep docs"})
	assert.Equal(t, []string{"b"}, ids(got))

	got = Apply(sample(), Filter{Fuzzy: "LOGIN"})
	assert.Equal(t, []string{"a"}, ids(got), "fuzzy match is case-insensitive")

	got = Apply(sample(), Filter{Fuzzy: "zzzz"})
	assert.Empty(t, got)
}

func TestFilterFuzzyThreshold(t *testing.T) {
	// The zero threshold accepts any non-negative score; an
	// unreachable one rejects everything that still fuzzy-matches.
	got := Apply(sample(), Filter{Fuzzy: "LOGIN"})
	assert.Equal(t, []string{"a"}, ids(got))

	got = Apply(sample(), Filter{Fuzzy: "LOGIN", FuzzyThreshold: 100000})
	assert.Empty(t, got)
}

func TestDateRangeContains(t *testing.T) {
	from := base
	to := base.Add(time.Hour)
	r := DateRange{From: &from, To: &to}

	assert.True(t, r.Contains(base))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(base.Add(-time.Nanosecond)))
	assert.False(t, r.Contains(to.Add(time.Nanosecond)))

	assert.True(t, DateRange{}.IsZero())
	assert.False(t, r.IsZero())
}

func TestCollectStats(t *testing.T) {
	stats := Collect(sample())
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[task.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[task.StatusActive])
	assert.Equal(t, 1, stats.ByStatus[task.StatusDone])
	assert.Equal(t, time.Hour, stats.TimeSpent)

	empty := Collect(nil)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.ByStatus)
}
