package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mbarlow/taskit/internal/config"
	"github.com/mbarlow/taskit/internal/logging"
	"github.com/mbarlow/taskit/internal/merge"
	"github.com/mbarlow/taskit/internal/storage"
	"github.com/mbarlow/taskit/internal/syncer"
	"github.com/mbarlow/taskit/internal/tracker"
	"github.com/mbarlow/taskit/internal/vcs"
)

// app carries the wired-up components across subcommands. The
// repository opens lazily so commands like clone can run before a local
// collection exists.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	logCloser io.Closer

	rootFlag string

	repo    vcs.VCS
	store   *storage.Store
	tracker *tracker.Tracker
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "taskit",
		Short:         "Track tasks in a version-controlled TOML collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.rootFlag != "" {
				cfg.RootDir = a.rootFlag
			}
			a.cfg = cfg
			a.log, a.logCloser = logging.Setup(cfg.Log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.rootFlag, "root", "", "data directory (default ~/.taskit)")

	cmd.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newStartCmd(a),
		newStopCmd(a),
		newDoneCmd(a),
		newAbortCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newCleanCmd(a),
		newStatsCmd(a),
		newCloneCmd(a),
		newSyncCmd(a),
		newResumeCmd(a),
	)
	return cmd
}

// ensureRepo opens (or initializes) the repository at the data root and
// wires the store and tracker over it.
func (a *app) ensureRepo() error {
	if a.repo != nil {
		return nil
	}
	repo, err := vcs.Init(a.cfg.RootDir)
	if err != nil {
		return err
	}
	a.repo = repo
	a.store = storage.New(a.cfg.TasksPath(), repo)
	a.tracker = tracker.New(a.store, repo, tracker.WithLogger(a.log))
	return nil
}

// newSyncer builds the sync orchestrator from configuration.
func (a *app) newSyncer() (*syncer.Syncer, error) {
	if err := a.ensureRepo(); err != nil {
		return nil, err
	}
	strategy, err := merge.ParseStrategy(a.cfg.Sync.Strategy)
	if err != nil {
		return nil, err
	}
	return syncer.New(a.repo, a.store,
		syncer.WithCredentials(a.credentials()),
		syncer.WithPrompter(stdinPrompter{}),
		syncer.WithStrategy(strategy),
		syncer.WithRemote(a.cfg.Sync.Remote),
		syncer.WithRetry(a.cfg.Sync.Retries, a.cfg.Sync.Backoff),
		syncer.WithLogger(a.log),
	), nil
}

// pendingState loads the suspended merge state for the resume command.
func (a *app) pendingState() (syncer.Pending, error) {
	if err := a.ensureRepo(); err != nil {
		return syncer.Pending{}, err
	}
	return syncer.LoadPending(a.repo.Root())
}

func (a *app) credentials() syncer.Credentials {
	return syncer.Credentials{
		Username:   a.cfg.Sync.Username,
		Token:      a.cfg.Sync.Token,
		SSHKeyPath: a.cfg.Sync.SSHKey,
	}
}
