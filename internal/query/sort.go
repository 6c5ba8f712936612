package query

import (
	"slices"
	"strings"
	"time"

	"github.com/mbarlow/taskit/internal/task"
)

// Field names a sortable task attribute.
type Field string

const (
	FieldPriority    Field = "priority"
	FieldScope       Field = "scope"
	FieldType        Field = "type"
	FieldStatus      Field = "status"
	FieldCreated     Field = "created"
	FieldUpdated     Field = "updated"
	FieldCompleted   Field = "completed"
	FieldTimeSpent   Field = "spent"
	FieldDescription Field = "description"
)

// SortKey is one (field, direction) pair of a multi-key sort.
type SortKey struct {
	Field Field
	Desc  bool
}

// DefaultSort orders the collection the way the listing shows it:
// open work first, most urgent first, oldest first.
func DefaultSort() []SortKey {
	return []SortKey{
		{Field: FieldStatus},
		{Field: FieldPriority, Desc: true},
		{Field: FieldCreated},
	}
}

// statusOrder ranks statuses for sorting: work in flight sorts before
// terminal records.
var statusOrder = map[task.Status]int{
	task.StatusActive:  1,
	task.StatusPending: 2,
	task.StatusDone:    3,
	task.StatusAborted: 4,
}

// Sort orders tasks in place by the given keys, applied as a stable
// multi-key sort. Ties across all keys break on identifier so the result
// is deterministic.
func Sort(tasks []task.Task, keys []SortKey) {
	if len(keys) == 0 {
		keys = DefaultSort()
	}

	slices.SortStableFunc(tasks, func(a, b task.Task) int {
		for _, key := range keys {
			c := compareField(a, b, key.Field)
			if key.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func compareField(a, b task.Task, field Field) int {
	switch field {
	case FieldPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case FieldScope:
		return strings.Compare(a.Scope, b.Scope)
	case FieldType:
		return strings.Compare(a.Type, b.Type)
	case FieldStatus:
		return statusOrder[a.Status] - statusOrder[b.Status]
	case FieldCreated:
		return a.CreatedAt.Compare(b.CreatedAt)
	case FieldUpdated:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case FieldCompleted:
		return compareTimePtr(a.CompletedAt, b.CompletedAt)
	case FieldTimeSpent:
		switch {
		case a.TimeSpent < b.TimeSpent:
			return -1
		case a.TimeSpent > b.TimeSpent:
			return 1
		}
		return 0
	case FieldDescription:
		return strings.Compare(a.Description, b.Description)
	}
	return 0
}

// compareTimePtr orders unset timestamps after set ones.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
