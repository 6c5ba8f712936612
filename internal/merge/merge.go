// Package merge reconciles divergent copies of a task record using the
// common ancestor from the merge base.
//
// Resolution never touches a terminal: when a strategy cannot decide a
// field on its own, the resolver returns a manual Resolution listing the
// contested fields, and the caller supplies choices to Apply later. This
// keeps the resolver usable from any frontend and makes an interrupted
// merge resumable.
package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/mbarlow/taskit/internal/task"
)

// Strategy selects how divergent records are reconciled.
type Strategy int

const (
	// PreferLocal keeps the local side of every divergence.
	PreferLocal Strategy = iota

	// PreferRemote keeps the remote side of every divergence.
	PreferRemote

	// FieldLevel merges field by field against the ancestor and reports
	// fields both sides changed differently as conflicts.
	FieldLevel
)

func (s Strategy) String() string {
	switch s {
	case PreferLocal:
		return "local"
	case PreferRemote:
		return "remote"
	case FieldLevel:
		return "field"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "local":
		return PreferLocal, nil
	case "remote":
		return PreferRemote, nil
	case "field", "":
		return FieldLevel, nil
	}
	return FieldLevel, fmt.Errorf("unknown merge strategy %q", s)
}

// Choice picks a side of a conflict during Apply.
type Choice int

const (
	ChooseLocal Choice = iota + 1
	ChooseRemote
)

// FieldRecord is the conflict field name used when the two sides
// disagree about whether the record exists at all.
const FieldRecord = "record"

var (
	// ErrUnresolved is returned by Apply when a conflict has no choice.
	ErrUnresolved = errors.New("unresolved merge conflict")

	// ErrUnknownChoice is returned by Apply for a choice value that is
	// neither local nor remote.
	ErrUnknownChoice = errors.New("unknown conflict choice")
)

// FieldConflict is one field both sides changed in different ways. The
// values are rendered for display; Apply pulls the typed value from the
// side the choice names.
type FieldConflict struct {
	Field    string
	Ancestor string
	Local    string
	Remote   string
}

// Resolution is the outcome of reconciling one record. When Manual is
// false, Record is the merged result (nil means the record is deleted).
// When Manual is true, Conflicts lists the contested fields and Record
// holds the partial merge with local values in the contested slots;
// Apply finalizes it once choices exist.
type Resolution struct {
	ID        string
	Record    *task.Task
	Manual    bool
	Conflicts []FieldConflict

	local  *task.Task
	remote *task.Task
}

// Resolve reconciles the three versions of one record. Any of ancestor,
// local, and remote may be nil, meaning the record does not exist in
// that version.
func Resolve(ancestor, local, remote *task.Task, strategy Strategy) Resolution {
	res := Resolution{local: cloneTask(local), remote: cloneTask(remote)}
	switch {
	case local != nil:
		res.ID = local.ID
	case remote != nil:
		res.ID = remote.ID
	case ancestor != nil:
		res.ID = ancestor.ID
	}

	// Existence first: a side that deleted the record conflicts with a
	// side that kept editing it.
	switch {
	case local == nil && remote == nil:
		return res // deleted on both sides
	case local == nil:
		if ancestor != nil && task.Equal(*ancestor, *remote) {
			return res // remote unchanged, deletion wins
		}
		return resolveExistence(res, ancestor, strategy)
	case remote == nil:
		if ancestor != nil && task.Equal(*ancestor, *local) {
			return res // local unchanged, deletion wins
		}
		return resolveExistence(res, ancestor, strategy)
	}

	switch strategy {
	case PreferLocal:
		res.Record = cloneTask(local)
	case PreferRemote:
		res.Record = cloneTask(remote)
	default:
		merged, conflicts := mergeFields(ancestor, *local, *remote)
		res.Record = &merged
		res.Conflicts = conflicts
		res.Manual = len(conflicts) > 0
	}
	return res
}

// resolveExistence decides a delete-versus-edit divergence.
func resolveExistence(res Resolution, ancestor *task.Task, strategy Strategy) Resolution {
	switch strategy {
	case PreferLocal:
		res.Record = cloneTask(res.local)
	case PreferRemote:
		res.Record = cloneTask(res.remote)
	default:
		res.Manual = true
		res.Record = cloneTask(res.local)
		res.Conflicts = []FieldConflict{{
			Field:    FieldRecord,
			Ancestor: renderExistence(ancestor),
			Local:    renderExistence(res.local),
			Remote:   renderExistence(res.remote),
		}}
	}
	return res
}

// Apply finalizes a manual resolution with the caller's choices, keyed
// by conflict field name. Every conflict needs a choice.
func Apply(res Resolution, choices map[string]Choice) (*task.Task, error) {
	if !res.Manual {
		return cloneTask(res.Record), nil
	}

	out := cloneTask(res.Record)
	for _, c := range res.Conflicts {
		choice, ok := choices[c.Field]
		if !ok {
			return nil, fmt.Errorf("%w: %s (task %s)", ErrUnresolved, c.Field, res.ID)
		}

		var side *task.Task
		switch choice {
		case ChooseLocal:
			side = res.local
		case ChooseRemote:
			side = res.remote
		default:
			return nil, fmt.Errorf("%w: %d for %s", ErrUnknownChoice, choice, c.Field)
		}

		if c.Field == FieldRecord {
			out = cloneTask(side)
			continue
		}
		if out == nil || side == nil {
			return nil, fmt.Errorf("%w: %s chosen from deleted side", ErrUnresolved, c.Field)
		}
		copyField(out, *side, c.Field)
	}

	if out != nil {
		normalize(out)
	}
	return out, nil
}

// mergeFields performs the classic three-way merge per field: a side
// that left the field at its ancestor value yields to the side that
// changed it, identical changes collapse, and diverging changes become
// conflicts. The returned record carries local values in conflicted
// fields until Apply settles them.
func mergeFields(ancestor *task.Task, local, remote task.Task) (task.Task, []FieldConflict) {
	merged := local
	var conflicts []FieldConflict

	base := task.Task{}
	if ancestor != nil {
		base = *ancestor
	}

	pick := func(field string, baseV, localV, remoteV string, takeRemote func()) {
		localChanged := localV != baseV
		remoteChanged := remoteV != baseV
		switch {
		case !remoteChanged:
			// keep local
		case !localChanged:
			takeRemote()
		case localV == remoteV:
			// same change on both sides
		default:
			conflicts = append(conflicts, FieldConflict{
				Field: field, Ancestor: baseV, Local: localV, Remote: remoteV,
			})
		}
	}

	pick("description", base.Description, local.Description, remote.Description,
		func() { merged.Description = remote.Description })
	pick("priority", string(base.Priority), string(local.Priority), string(remote.Priority),
		func() { merged.Priority = remote.Priority })
	pick("scope", base.Scope, local.Scope, remote.Scope,
		func() { merged.Scope = remote.Scope })
	pick("type", base.Type, local.Type, remote.Type,
		func() { merged.Type = remote.Type })
	pick("status", string(base.Status), string(local.Status), string(remote.Status),
		func() {
			merged.Status = remote.Status
			merged.CompletedAt = cloneTime(remote.CompletedAt)
			merged.StartedAt = cloneTime(remote.StartedAt)
		})
	pick("started_at", renderTime(base.StartedAt), renderTime(local.StartedAt), renderTime(remote.StartedAt),
		func() { merged.StartedAt = cloneTime(remote.StartedAt) })
	pick("completed_at", renderTime(base.CompletedAt), renderTime(local.CompletedAt), renderTime(remote.CompletedAt),
		func() { merged.CompletedAt = cloneTime(remote.CompletedAt) })

	// Working time accumulates, so both sides adding time is not a
	// divergence: combine the deltas instead of asking.
	merged.TimeSpent = mergeTimeSpent(base.TimeSpent, local.TimeSpent, remote.TimeSpent)

	if remote.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}
	normalize(&merged)
	return merged, conflicts
}

func mergeTimeSpent(base, local, remote int64) int64 {
	localDelta := local - base
	remoteDelta := remote - base
	if localDelta < 0 {
		localDelta = 0
	}
	if remoteDelta < 0 {
		remoteDelta = 0
	}
	return base + localDelta + remoteDelta
}

// copyField transfers the named field from src onto dst.
func copyField(dst *task.Task, src task.Task, field string) {
	switch field {
	case "description":
		dst.Description = src.Description
	case "priority":
		dst.Priority = src.Priority
	case "scope":
		dst.Scope = src.Scope
	case "type":
		dst.Type = src.Type
	case "status":
		dst.Status = src.Status
		dst.CompletedAt = cloneTime(src.CompletedAt)
		dst.StartedAt = cloneTime(src.StartedAt)
	case "started_at":
		dst.StartedAt = cloneTime(src.StartedAt)
	case "completed_at":
		dst.CompletedAt = cloneTime(src.CompletedAt)
	}
}

// normalize repairs cross-field invariants after values from different
// sides are combined: a merged record must never claim to have finished
// before its last update, or carry a start anchor outside the active
// state.
func normalize(t *task.Task) {
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	if t.CompletedAt != nil && t.CompletedAt.Before(t.UpdatedAt) {
		at := t.UpdatedAt
		t.CompletedAt = &at
	}
	if t.StartedAt != nil && t.Status != task.StatusActive {
		t.StartedAt = nil
	}
}

func cloneTask(t *task.Task) *task.Task {
	if t == nil {
		return nil
	}
	c := *t
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func renderTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func renderExistence(t *task.Task) string {
	if t == nil {
		return "deleted"
	}
	return "exists: " + t.Description
}
