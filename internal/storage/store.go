// Package storage maps a collection of task records onto a directory of
// TOML files, one file per identifier.
//
// Every successful mutation stages the affected path with the version
// control adapter but never commits; committing is the caller's job so
// one logical action maps to exactly one commit. Writes go through a
// temp-file-and-rename so a crash mid-write never corrupts an existing
// record.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbarlow/taskit/internal/task"
)

// Extension is the file extension of persisted records.
const Extension = ".toml"

var (
	// ErrNotFound is returned when no record exists for the identifier.
	ErrNotFound = errors.New("task not found")

	// ErrAmbiguousID is returned when an identifier prefix matches more
	// than one record.
	ErrAmbiguousID = errors.New("ambiguous task id prefix")

	// ErrIO wraps filesystem failures. The underlying error stays in the
	// chain for diagnostics.
	ErrIO = errors.New("storage I/O failure")
)

// Stager is the slice of the VCS adapter the store needs: staging
// changed paths relative to the repository root.
type Stager interface {
	Root() string
	Add(paths []string) error
}

// Store persists task records under dir, staging every mutation with the
// given stager.
type Store struct {
	dir    string
	stager Stager
}

// New creates a store rooted at dir. The directory is created lazily on
// the first write.
func New(dir string, stager Stager) *Store {
	return &Store{dir: dir, stager: stager}
}

// Dir returns the directory holding the record files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for the given identifier.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+Extension)
}

// Put creates or overwrites the record for t.ID and stages the file.
func (s *Store) Put(t task.Task) error {
	data, err := task.Encode(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, s.dir, err)
	}

	path := s.Path(t.ID)
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	return s.stage(path)
}

// Get loads the record with the given full identifier.
func (s *Store) Get(id string) (task.Task, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return task.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return task.Task{}, fmt.Errorf("%w: read %s: %w", ErrIO, id, err)
	}
	return task.Decode(data)
}

// Delete removes the record and stages the removal.
func (s *Store) Delete(id string) error {
	path := s.Path(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: remove %s: %w", ErrIO, id, err)
	}
	return s.stage(path)
}

// List loads every record in the store, unordered.
//
// A record that fails to decode aborts the listing with ErrMalformed;
// storage never silently drops data.
func (s *Store) List() ([]task.Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // empty store
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.dir, err)
	}

	var tasks []task.Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrIO, entry.Name(), err)
		}
		t, err := task.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Resolve expands a full identifier or unique prefix to the full
// identifier. A prefix matching several records is ErrAmbiguousID.
func (s *Store) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}

	// Exact match first: a full id is never ambiguous.
	if _, err := os.Stat(s.Path(prefix)); err == nil {
		return prefix, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
		}
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, s.dir, err)
	}

	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, Extension) {
			continue
		}
		id := strings.TrimSuffix(name, Extension)
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d tasks", ErrAmbiguousID, prefix, len(matches))
	}
}

// stage records the path with the VCS adapter, relative to the
// repository root.
func (s *Store) stage(path string) error {
	rel, err := filepath.Rel(s.stager.Root(), path)
	if err != nil {
		return fmt.Errorf("%w: path %s outside repository: %w", ErrIO, path, err)
	}
	return s.stager.Add([]string{rel})
}

// atomicWrite writes data to a temp file in the target directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp in %s: %w", ErrIO, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", ErrIO, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", ErrIO, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename to %s: %w", ErrIO, path, err)
	}
	return nil
}
