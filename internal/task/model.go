// Package task defines the task record, its lifecycle enums, and the
// TOML codec used for the on-disk representation.
//
// A task is one to-do item with lifecycle metadata. Records are persisted
// one file per task so the version-control layer can diff and merge them
// textually; everything in this package is storage-agnostic.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrValidation is returned when a task fails field-level validation,
// e.g. an empty description or out-of-order timestamps.
var ErrValidation = errors.New("task validation failed")

// Priority orders tasks by urgency: low < normal < high < urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// priorityRank maps priorities to their ordering. Unknown values rank
// below low so they sort last rather than panicking.
var priorityRank = map[Priority]int{
	PriorityLow:    1,
	PriorityNormal: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// Priorities returns all valid priority values in ascending order.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// IsValid returns true if the priority is a known value.
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank returns the ordering value of the priority (higher = more urgent).
func (p Priority) Rank() int {
	return priorityRank[p]
}

func (p Priority) String() string { return string(p) }

// MarshalText implements encoding.TextMarshaler for the TOML codec.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("unknown priority %q", string(p))
	}
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML codec.
func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown priority %q", string(text))
	}
	*p = v
	return nil
}

// Status is the lifecycle state of a task.
//
// pending is the initial state. active marks the single task currently
// being worked on. done and aborted are terminal; records in terminal
// states stay on disk until explicitly purged.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
)

// Statuses returns all valid status values.
func Statuses() []Status {
	return []Status{StatusPending, StatusActive, StatusDone, StatusAborted}
}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDone, StatusAborted:
		return true
	}
	return false
}

// IsTerminal returns true for states that permit no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusAborted
}

func (s Status) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler for the TOML codec.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML codec.
func (s *Status) UnmarshalText(text []byte) error {
	v := Status(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown status %q", string(text))
	}
	*s = v
	return nil
}

// Task is a single task record.
//
// ID and CreatedAt are set once at creation and never mutated. Every other
// field is replaced wholesale on edit, and UpdatedAt is refreshed on every
// mutation. StartedAt is set only while the task is active; it is the
// anchor for wall-clock time accounting when the task is stopped.
type Task struct {
	ID          string     `toml:"id"`
	Description string     `toml:"description"`
	Priority    Priority   `toml:"priority"`
	Scope       string     `toml:"scope,omitempty"`
	Type        string     `toml:"type,omitempty"`
	Status      Status     `toml:"status"`
	CreatedAt   time.Time  `toml:"created_at"`
	UpdatedAt   time.Time  `toml:"updated_at"`
	CompletedAt *time.Time `toml:"completed_at,omitempty"`
	StartedAt   *time.Time `toml:"started_at,omitempty"`

	// TimeSpent is the accumulated working time in whole seconds.
	// Stored as an integer so the on-disk format stays diff-friendly.
	TimeSpent int64 `toml:"time_spent,omitempty"`
}

// New creates a pending task with a fresh random identifier.
// The description must be non-empty; priority defaults to normal when
// the zero value is passed.
func New(description string, priority Priority, scope, taskType string, now time.Time) (Task, error) {
	if priority == "" {
		priority = PriorityNormal
	}
	t := Task{
		ID:          uuid.NewString(),
		Description: description,
		Priority:    priority,
		Scope:       scope,
		Type:        taskType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks the field-level invariants of a task record.
func (t Task) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: id is required", ErrValidation)
	case t.Description == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case !t.Priority.IsValid():
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	case !t.Status.IsValid():
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	case t.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at is required", ErrValidation)
	case t.UpdatedAt.IsZero():
		return fmt.Errorf("%w: updated_at is required", ErrValidation)
	case t.UpdatedAt.Before(t.CreatedAt):
		return fmt.Errorf("%w: updated_at precedes created_at", ErrValidation)
	case t.TimeSpent < 0:
		return fmt.Errorf("%w: negative time_spent", ErrValidation)
	}
	if t.CompletedAt != nil && t.CompletedAt.Before(t.UpdatedAt) {
		return fmt.Errorf("%w: completed_at precedes updated_at", ErrValidation)
	}
	if t.StartedAt != nil && t.Status != StatusActive {
		return fmt.Errorf("%w: started_at set on non-active task", ErrValidation)
	}
	return nil
}

// SpentDuration returns the accumulated time spent as a time.Duration.
func (t Task) SpentDuration() time.Duration {
	return time.Duration(t.TimeSpent) * time.Second
}

// Filename returns the canonical file name for this record: <id>.toml.
func (t Task) Filename() string {
	return t.ID + ".toml"
}

// Equal reports semantic equality of two records. Timestamps compare with
// time.Equal so records survive round-trips across timezone encodings.
func Equal(a, b Task) bool {
	return a.ID == b.ID &&
		a.Description == b.Description &&
		a.Priority == b.Priority &&
		a.Scope == b.Scope &&
		a.Type == b.Type &&
		a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt) &&
		timePtrEqual(a.CompletedAt, b.CompletedAt) &&
		timePtrEqual(a.StartedAt, b.StartedAt) &&
		a.TimeSpent == b.TimeSpent
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
