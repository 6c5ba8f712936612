package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbarlow/taskit/internal/merge"
	"github.com/mbarlow/taskit/internal/syncer"
)

func newCloneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url>",
		Short: "Clone an existing task repository into the data root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfg.RootDir); err == nil {
				return fmt.Errorf("%s already exists", a.cfg.RootDir)
			}
			repo, err := syncer.Clone(cmd.Context(), args[0], a.cfg.RootDir, a.credentials(), stdinPrompter{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cloned into %s\n", repo.Root())
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the collection with its remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSyncer()
			if err != nil {
				return err
			}
			result, err := s.Sync(cmd.Context())
			if err != nil {
				return err
			}
			reportSync(cmd, result)
			return nil
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	var take string
	var choose []string
	var abort bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Conclude a sync suspended on conflicts",
		Long: `Conclude a sync that stopped on conflicts needing a decision.

Choices are given per conflict with --choose <id>:<field>=<local|remote>,
or --take <local|remote> picks that side for every remaining conflict.
When a merge brings in a second active task, each competing record gets
a status conflict: local keeps it active, remote stops it back to
pending. --abort discards the suspended merge instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSyncer()
			if err != nil {
				return err
			}
			if abort {
				if err := s.Abort(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "merge aborted")
				return nil
			}

			choices, err := buildChoices(a, take, choose)
			if err != nil {
				return err
			}
			result, err := s.Resume(cmd.Context(), choices)
			if err != nil {
				return err
			}
			reportSync(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringVar(&take, "take", "", "side for every conflict: local or remote")
	cmd.Flags().StringArrayVar(&choose, "choose", nil, "per-conflict choice: <id>:<field>=<local|remote>")
	cmd.Flags().BoolVar(&abort, "abort", false, "abort the suspended merge")
	return cmd
}

// buildChoices turns the resume flags into per-task, per-field choices
// against the recorded pending state.
func buildChoices(a *app, take string, choose []string) (syncer.Choices, error) {
	pending, err := a.pendingState()
	if err != nil {
		return nil, err
	}

	choices := syncer.Choices{}
	if take != "" {
		def, err := parseChoice(take)
		if err != nil {
			return nil, err
		}
		for _, tp := range pending.Tasks {
			fields := map[string]merge.Choice{}
			for _, c := range tp.Conflicts {
				fields[c.Field] = def
			}
			choices[tp.ID] = fields
		}
	}

	for _, spec := range choose {
		id, rest, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid choice %q, want <id>:<field>=<local|remote>", spec)
		}
		field, side, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("invalid choice %q, want <id>:<field>=<local|remote>", spec)
		}
		choice, err := parseChoice(side)
		if err != nil {
			return nil, err
		}
		id, err = resolvePendingID(pending, id)
		if err != nil {
			return nil, err
		}
		if choices[id] == nil {
			choices[id] = map[string]merge.Choice{}
		}
		choices[id][field] = choice
	}
	return choices, nil
}

func parseChoice(side string) (merge.Choice, error) {
	switch side {
	case "local":
		return merge.ChooseLocal, nil
	case "remote":
		return merge.ChooseRemote, nil
	}
	return 0, fmt.Errorf("unknown side %q, want local or remote", side)
}

// resolvePendingID expands an id prefix against the tasks recorded in
// the pending state.
func resolvePendingID(p syncer.Pending, prefix string) (string, error) {
	var match string
	for _, tp := range p.Tasks {
		if strings.HasPrefix(tp.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", prefix)
			}
			match = tp.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no pending conflict for id %q", prefix)
	}
	return match, nil
}

func reportSync(cmd *cobra.Command, result syncer.Result) {
	out := cmd.OutOrStdout()
	switch result.Outcome {
	case syncer.ConflictsPending:
		fmt.Fprintln(out, "sync suspended on conflicts:")
		for _, tp := range result.Pending.Tasks {
			for _, c := range tp.Conflicts {
				fmt.Fprintf(out, "  %s %s: local=%q remote=%q\n", shortID(tp.ID), c.Field, c.Local, c.Remote)
			}
		}
		fmt.Fprintln(out, "resolve with: taskit resume --choose <id>:<field>=<local|remote>")
	case syncer.Merged:
		fmt.Fprintf(out, "merged (%s)\n", shortID(result.Commit))
	default:
		fmt.Fprintln(out, result.Outcome)
	}
}

// stdinPrompter asks for credentials on the controlling terminal. Used
// only when an http(s) remote has no configured token.
type stdinPrompter struct{}

func (stdinPrompter) Credentials(url string) (string, string, error) {
	r := bufio.NewReader(os.Stdin)

	fmt.Fprintf(os.Stderr, "username for %s: ", url)
	username, err := r.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	fmt.Fprint(os.Stderr, "password or token: ")
	secret, err := r.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(username), strings.TrimSpace(secret), nil
}
