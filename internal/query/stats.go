package query

import (
	"time"

	"github.com/mbarlow/taskit/internal/task"
)

// Stats aggregates a (typically already filtered) set of records.
type Stats struct {
	// Total is the number of records in the set.
	Total int

	// ByStatus counts records per lifecycle state.
	ByStatus map[task.Status]int

	// TimeSpent is the summed working time across the set.
	TimeSpent time.Duration
}

// Collect computes statistics over the given records.
func Collect(tasks []task.Task) Stats {
	s := Stats{ByStatus: make(map[task.Status]int)}
	for _, t := range tasks {
		s.Total++
		s.ByStatus[t.Status]++
		s.TimeSpent += t.SpentDuration()
	}
	return s
}
