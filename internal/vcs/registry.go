package vcs

import (
	"context"
	"fmt"
	"sync"
)

// Backend bundles the entry points of one VCS implementation.
// Implementations register a Backend in their init function.
type Backend struct {
	// Open opens an existing repository at path.
	Open func(path string) (VCS, error)

	// Init opens the repository at path, creating one if none exists.
	// Must be idempotent.
	Init func(path string) (VCS, error)

	// Clone clones a remote repository into dest. env carries resolved
	// authentication for the transfer.
	Clone func(ctx context.Context, url, dest string, env []string) (VCS, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}

	// DefaultBackend names the backend used by the package-level
	// convenience functions.
	DefaultBackend = "git"
)

// Register makes a backend available under the given name. Implementations
// call this from init; registering the same name twice panics.
func Register(name string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("vcs: backend %q registered twice", name))
	}
	registry[name] = b
}

func backend() (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[DefaultBackend]
	if !ok {
		return Backend{}, fmt.Errorf("vcs: no backend registered as %q", DefaultBackend)
	}
	return b, nil
}

// Open opens an existing repository at path using the default backend.
func Open(path string) (VCS, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Open(path)
}

// Init opens the repository at path with the default backend, creating a
// fresh one when the directory is not yet under version control.
func Init(path string) (VCS, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Init(path)
}

// Clone clones url into dest using the default backend.
func Clone(ctx context.Context, url, dest string, env []string) (VCS, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Clone(ctx, url, dest, env)
}
