package merge

import (
	"sort"
	"time"

	"github.com/mbarlow/taskit/internal/task"
)

// ActiveConflicts returns the active records when a merge left more than
// one, ordered most recently started first (an unset start sorts last).
// A collection with at most one active record yields nil. Which record
// stays active is the caller's decision; nothing is demoted here.
func ActiveConflicts(tasks []task.Task) []task.Task {
	var active []task.Task
	for _, t := range tasks {
		if t.Status == task.StatusActive {
			active = append(active, t)
		}
	}
	if len(active) <= 1 {
		return nil
	}

	sort.SliceStable(active, func(a, b int) bool {
		ta, tb := active[a].StartedAt, active[b].StartedAt
		switch {
		case ta == nil:
			return false
		case tb == nil:
			return true
		}
		return ta.After(*tb)
	})
	return active
}

// Demote stops an active record back to pending, banking the time it
// ran, exactly like an ordinary stop.
func Demote(t *task.Task, now time.Time) {
	if t.StartedAt != nil {
		if elapsed := now.Sub(*t.StartedAt); elapsed > 0 {
			t.TimeSpent += int64(elapsed / time.Second)
		}
	}
	t.Status = task.StatusPending
	t.StartedAt = nil
	t.UpdatedAt = now
}
