// Package tracker implements the task lifecycle state machine on top of
// the file store and the version-control adapter.
//
// Every mutation follows the same shape: load, validate the transition,
// write the record through the store (which stages it), then commit with
// a message derived from the action. The state machine enforces the
// single-active rule by scanning the collection rather than tracking the
// active task in a side file, so the collection itself stays the only
// source of truth.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbarlow/taskit/internal/commitmsg"
	"github.com/mbarlow/taskit/internal/query"
	"github.com/mbarlow/taskit/internal/storage"
	"github.com/mbarlow/taskit/internal/task"
	"github.com/mbarlow/taskit/internal/vcs"
)

var (
	// ErrInvalidTransition is returned when an operation is not legal in
	// the record's current state, e.g. starting a finished task.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrActiveConflict is returned when starting a task while another is
	// already active. The collection is left untouched.
	ErrActiveConflict = errors.New("another task is already active")

	// ErrNoActiveTask is returned by operations that target the active
	// task implicitly when nothing is active.
	ErrNoActiveTask = errors.New("no active task")

	// ErrCommitFailed is returned when the record mutation succeeded but
	// recording it in history did not. The working tree keeps the change;
	// the next commit picks it up.
	ErrCommitFailed = errors.New("failed to commit task change")
)

// Tracker mutates the task collection and records every mutation as one
// commit.
type Tracker struct {
	store *storage.Store
	repo  vcs.VCS
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(tr *Tracker) { tr.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(tr *Tracker) { tr.log = log }
}

// New creates a tracker over the given store and repository.
func New(store *storage.Store, repo vcs.VCS, opts ...Option) *Tracker {
	tr := &Tracker{
		store: store,
		repo:  repo,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Store exposes the underlying record store, e.g. for the sync
// orchestrator.
func (tr *Tracker) Store() *storage.Store { return tr.store }

// Add creates a new pending task and commits it.
func (tr *Tracker) Add(ctx context.Context, description string, priority task.Priority, scope, taskType string) (task.Task, error) {
	t, err := task.New(description, priority, scope, taskType, tr.now().UTC())
	if err != nil {
		return task.Task{}, err
	}
	if err := tr.store.Put(t); err != nil {
		return task.Task{}, err
	}
	tr.log.Info("task created", "id", t.ID, "priority", t.Priority)
	return t, tr.commit(ctx, commitmsg.ActionCreate, t)
}

// Get loads a task by full identifier or unique prefix.
func (tr *Tracker) Get(idOrPrefix string) (task.Task, error) {
	id, err := tr.store.Resolve(idOrPrefix)
	if err != nil {
		return task.Task{}, err
	}
	return tr.store.Get(id)
}

// List returns every record in the collection, unordered.
func (tr *Tracker) List() ([]task.Task, error) {
	return tr.store.List()
}

// Active returns the currently active task, or nil when nothing is
// in progress.
func (tr *Tracker) Active() (*task.Task, error) {
	tasks, err := tr.store.List()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].Status == task.StatusActive {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// Start marks a pending task active. Only one task may be active at a
// time; starting while another is active fails with ErrActiveConflict
// and changes nothing.
func (tr *Tracker) Start(ctx context.Context, idOrPrefix string) (task.Task, error) {
	t, err := tr.Get(idOrPrefix)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status != task.StatusPending {
		return task.Task{}, fmt.Errorf("%w: cannot start %s task %s", ErrInvalidTransition, t.Status, t.ID)
	}

	active, err := tr.Active()
	if err != nil {
		return task.Task{}, err
	}
	if active != nil {
		return task.Task{}, fmt.Errorf("%w: %s", ErrActiveConflict, active.ID)
	}

	now := tr.now().UTC()
	t.Status = task.StatusActive
	t.StartedAt = &now
	t.UpdatedAt = now
	if err := tr.store.Put(t); err != nil {
		return task.Task{}, err
	}
	tr.log.Info("task started", "id", t.ID)
	return t, tr.commit(ctx, commitmsg.ActionStart, t)
}

// Stop returns the active task to pending, banking the time it ran.
// An empty identifier targets whichever task is active.
func (tr *Tracker) Stop(ctx context.Context, idOrPrefix string) (task.Task, error) {
	t, err := tr.target(idOrPrefix)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status != task.StatusActive {
		return task.Task{}, fmt.Errorf("%w: cannot stop %s task %s", ErrInvalidTransition, t.Status, t.ID)
	}

	now := tr.now().UTC()
	tr.bankTime(&t, now)
	t.Status = task.StatusPending
	t.StartedAt = nil
	t.UpdatedAt = now
	if err := tr.store.Put(t); err != nil {
		return task.Task{}, err
	}
	tr.log.Info("task stopped", "id", t.ID, "spent", t.SpentDuration())
	return t, tr.commit(ctx, commitmsg.ActionStop, t)
}

// Done finishes a pending or active task. Finishing the active task
// stops it first so its running time is banked. An empty identifier
// targets the active task.
func (tr *Tracker) Done(ctx context.Context, idOrPrefix string) (task.Task, error) {
	return tr.finish(ctx, idOrPrefix, task.StatusDone, commitmsg.ActionFinish)
}

// Abort cancels a pending or active task. An empty identifier targets
// the active task.
func (tr *Tracker) Abort(ctx context.Context, idOrPrefix string) (task.Task, error) {
	return tr.finish(ctx, idOrPrefix, task.StatusAborted, commitmsg.ActionCancel)
}

func (tr *Tracker) finish(ctx context.Context, idOrPrefix string, terminal task.Status, action commitmsg.Action) (task.Task, error) {
	t, err := tr.target(idOrPrefix)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status.IsTerminal() {
		return task.Task{}, fmt.Errorf("%w: task %s is already %s", ErrInvalidTransition, t.ID, t.Status)
	}

	now := tr.now().UTC()
	if t.Status == task.StatusActive {
		tr.bankTime(&t, now)
		t.StartedAt = nil
	}
	t.Status = terminal
	t.UpdatedAt = now
	t.CompletedAt = &now
	if err := tr.store.Put(t); err != nil {
		return task.Task{}, err
	}
	tr.log.Info("task closed", "id", t.ID, "status", t.Status)
	return t, tr.commit(ctx, action, t)
}

// EditDescription replaces the description of a non-terminal task.
func (tr *Tracker) EditDescription(ctx context.Context, idOrPrefix, description string) (task.Task, error) {
	if description == "" {
		return task.Task{}, fmt.Errorf("%w: description is required", task.ErrValidation)
	}
	t, err := tr.Get(idOrPrefix)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status.IsTerminal() {
		return task.Task{}, fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}

	t.Description = description
	t.UpdatedAt = tr.now().UTC()
	if err := tr.store.Put(t); err != nil {
		return task.Task{}, err
	}
	return t, tr.commit(ctx, commitmsg.ActionUpdate, t)
}

// Delete removes a record regardless of state and commits the removal.
func (tr *Tracker) Delete(ctx context.Context, idOrPrefix string) error {
	t, err := tr.Get(idOrPrefix)
	if err != nil {
		return err
	}
	if err := tr.store.Delete(t.ID); err != nil {
		return err
	}
	tr.log.Info("task deleted", "id", t.ID)
	return tr.commit(ctx, commitmsg.ActionDelete, t)
}

// Clean removes the finished (done or aborted) records matching the
// filter in one commit and returns the removed identifiers. The zero
// filter removes every finished record; non-terminal records never
// match regardless of the filter.
func (tr *Tracker) Clean(ctx context.Context, filter query.Filter) ([]string, error) {
	tasks, err := tr.store.List()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, t := range query.Apply(tasks, filter) {
		if !t.Status.IsTerminal() {
			continue
		}
		if err := tr.store.Delete(t.ID); err != nil {
			return removed, err
		}
		removed = append(removed, t.ID)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	tr.log.Info("cleaned finished tasks", "count", len(removed))
	if _, err := tr.repo.Commit(ctx, commitmsg.CleanMessage(removed)); err != nil {
		return removed, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return removed, nil
}

// target resolves an optional identifier: empty means the active task.
func (tr *Tracker) target(idOrPrefix string) (task.Task, error) {
	if idOrPrefix != "" {
		return tr.Get(idOrPrefix)
	}
	active, err := tr.Active()
	if err != nil {
		return task.Task{}, err
	}
	if active == nil {
		return task.Task{}, ErrNoActiveTask
	}
	return *active, nil
}

// bankTime folds the running interval since StartedAt into TimeSpent.
func (tr *Tracker) bankTime(t *task.Task, now time.Time) {
	if t.StartedAt == nil {
		return
	}
	if elapsed := now.Sub(*t.StartedAt); elapsed > 0 {
		t.TimeSpent += int64(elapsed / time.Second)
	}
}

// commit records the mutation. The record change is already on disk and
// staged, so a commit failure is reported but not rolled back.
func (tr *Tracker) commit(ctx context.Context, action commitmsg.Action, t task.Task) error {
	msg := commitmsg.Message(action, t.Scope, t.Type, t.ID)
	if _, err := tr.repo.Commit(ctx, msg); err != nil {
		tr.log.Error("commit failed", "id", t.ID, "action", action, "error", err)
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}
