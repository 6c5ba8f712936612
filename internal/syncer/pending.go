package syncer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mbarlow/taskit/internal/merge"
)

// PendingFile is the name of the state file that survives an interrupted
// merge. It lives at the repository root, next to the task directory,
// and is never committed.
const PendingFile = "pending_merge.yaml"

// ErrNoPending is returned when a resume is requested but no suspended
// merge exists.
var ErrNoPending = errors.New("no suspended merge to resume")

// PendingKindActive marks a conflict raised after the textual merge:
// more than one record ended up active, and each needs a keep-or-stop
// choice. An empty kind is an ordinary three-way record conflict.
const PendingKindActive = "active"

// Pending captures a merge suspended on conflicts that need the user's
// decision. It is written to PendingFile so the process can exit and a
// later invocation can resume exactly where the merge stopped; the
// underlying repository merge stays in progress meanwhile.
type Pending struct {
	Remote   string        `yaml:"remote"`
	Branch   string        `yaml:"branch"`
	Strategy string        `yaml:"strategy"`
	Tasks    []TaskPending `yaml:"tasks"`
}

// TaskPending lists the contested fields of one record.
type TaskPending struct {
	ID        string            `yaml:"id"`
	Path      string            `yaml:"path"`
	Kind      string            `yaml:"kind,omitempty"`
	Conflicts []PendingConflict `yaml:"conflicts"`
}

// PendingConflict mirrors merge.FieldConflict in a serializable shape.
type PendingConflict struct {
	Field    string `yaml:"field"`
	Ancestor string `yaml:"ancestor,omitempty"`
	Local    string `yaml:"local"`
	Remote   string `yaml:"remote"`
}

func pendingConflicts(conflicts []merge.FieldConflict) []PendingConflict {
	out := make([]PendingConflict, len(conflicts))
	for i, c := range conflicts {
		out[i] = PendingConflict{Field: c.Field, Ancestor: c.Ancestor, Local: c.Local, Remote: c.Remote}
	}
	return out
}

// LoadPending reads the suspended merge state at the repository root.
// Frontends use it to show the open conflicts before resuming.
func LoadPending(root string) (Pending, error) {
	return loadPending(root)
}

func pendingPath(root string) string {
	return filepath.Join(root, PendingFile)
}

func savePending(root string, p Pending) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending merge state: %w", err)
	}
	if err := os.WriteFile(pendingPath(root), data, 0o644); err != nil {
		return fmt.Errorf("write pending merge state: %w", err)
	}
	return nil
}

func loadPending(root string) (Pending, error) {
	data, err := os.ReadFile(pendingPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Pending{}, ErrNoPending
		}
		return Pending{}, fmt.Errorf("read pending merge state: %w", err)
	}
	var p Pending
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pending{}, fmt.Errorf("decode pending merge state: %w", err)
	}
	return p, nil
}

func clearPending(root string) error {
	if err := os.Remove(pendingPath(root)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pending merge state: %w", err)
	}
	return nil
}
