// Package git registers itself as the default VCS backend on import.
package git

import (
	"context"

	"github.com/mbarlow/taskit/internal/vcs"
)

// init registers the git backend with the vcs registry.
func init() {
	vcs.Register("git", vcs.Backend{
		Open: func(path string) (vcs.VCS, error) {
			return New(path)
		},
		Init: func(path string) (vcs.VCS, error) {
			return Init(path)
		},
		Clone: func(ctx context.Context, url, dest string, env []string) (vcs.VCS, error) {
			return Clone(ctx, url, dest, env)
		},
	})
}
