package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbarlow/taskit/internal/query"
	"github.com/mbarlow/taskit/internal/task"
)

func newAddCmd(a *app) *cobra.Command {
	var priority, scope, taskType string

	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Create a new pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Add(cmd.Context(), args[0], task.Priority(priority), scope, taskType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, normal, high, or urgent")
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "scope label, e.g. a project area")
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "type label, e.g. feat or fix")
	return cmd
}

// filterFlags collects the listing filter options shared by list and
// stats.
type filterFlags struct {
	statuses   []string
	priorities []string
	scopes     []string
	types      []string
	created    string
	updated    string
	completed  string
	search     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceVar(&f.priorities, "priority", nil, "filter by priority (repeatable)")
	cmd.Flags().StringSliceVar(&f.scopes, "scope", nil, "filter by scope (repeatable)")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "filter by type (repeatable)")
	cmd.Flags().StringVar(&f.created, "created", "", "filter by creation date range, e.g. 2026/08 or 1w")
	cmd.Flags().StringVar(&f.updated, "updated", "", "filter by update date range")
	cmd.Flags().StringVar(&f.completed, "completed", "", "filter by completion date range")
	cmd.Flags().StringVar(&f.search, "search", "", "fuzzy match on descriptions")
}

func (f *filterFlags) build(now time.Time, threshold int) (query.Filter, error) {
	filter := query.Filter{
		Fuzzy:          f.search,
		FuzzyThreshold: threshold,
	}
	for _, s := range f.statuses {
		status := task.Status(s)
		if !status.IsValid() {
			return query.Filter{}, fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, p := range f.priorities {
		priority := task.Priority(p)
		if !priority.IsValid() {
			return query.Filter{}, fmt.Errorf("unknown priority %q", p)
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	filter.Scopes = f.scopes
	filter.Types = f.types

	var err error
	if filter.Created, err = parseRange(f.created, now); err != nil {
		return query.Filter{}, err
	}
	if filter.Updated, err = parseRange(f.updated, now); err != nil {
		return query.Filter{}, err
	}
	if filter.Completed, err = parseRange(f.completed, now); err != nil {
		return query.Filter{}, err
	}
	return filter, nil
}

func parseRange(s string, now time.Time) (query.DateRange, error) {
	if s == "" {
		return query.DateRange{}, nil
	}
	return query.ParseDateRange(s, now)
}

func newListCmd(a *app) *cobra.Command {
	var flags filterFlags
	var sortSpec string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			filter, err := flags.build(time.Now(), a.cfg.Query.FuzzyThreshold)
			if err != nil {
				return err
			}
			// Finished tasks stay out of the default listing.
			if len(filter.Statuses) == 0 && !all {
				filter.Statuses = []task.Status{task.StatusActive, task.StatusPending}
			}
			keys, err := parseSortSpec(sortSpec)
			if err != nil {
				return err
			}

			tasks, err := a.tracker.List()
			if err != nil {
				return err
			}
			tasks = query.Apply(tasks, filter)
			query.Sort(tasks, keys)
			renderTable(cmd, tasks)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&sortSpec, "sort", "", "sort keys, e.g. priority:desc,created")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include done and aborted tasks")
	return cmd
}

func parseSortSpec(spec string) ([]query.SortKey, error) {
	if spec == "" {
		return nil, nil
	}
	var keys []query.SortKey
	for _, part := range strings.Split(spec, ",") {
		name, dir, hasDir := strings.Cut(strings.TrimSpace(part), ":")
		key := query.SortKey{Field: query.Field(name)}
		if hasDir {
			switch dir {
			case "desc":
				key.Desc = true
			case "asc":
			default:
				return nil, fmt.Errorf("unknown sort direction %q", dir)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func renderTable(cmd *cobra.Command, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRI\tSCOPE\tSPENT\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Status, t.Priority, t.Scope,
			formatSpent(t.SpentDuration()), t.Description)
	}
	w.Flush()
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Get(args[0])
			if err != nil {
				return err
			}
			renderTask(cmd, t)
			return nil
		},
	}
}

func renderTask(cmd *cobra.Command, t task.Task) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", t.ID)
	fmt.Fprintf(w, "description\t%s\n", t.Description)
	fmt.Fprintf(w, "status\t%s\n", t.Status)
	fmt.Fprintf(w, "priority\t%s\n", t.Priority)
	if t.Scope != "" {
		fmt.Fprintf(w, "scope\t%s\n", t.Scope)
	}
	if t.Type != "" {
		fmt.Fprintf(w, "type\t%s\n", t.Type)
	}
	fmt.Fprintf(w, "created\t%s\n", formatTime(t.CreatedAt))
	fmt.Fprintf(w, "updated\t%s\n", formatTime(t.UpdatedAt))
	if t.StartedAt != nil {
		fmt.Fprintf(w, "started\t%s\n", formatTime(*t.StartedAt))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "completed\t%s\n", formatTime(*t.CompletedAt))
	}
	if t.TimeSpent > 0 {
		fmt.Fprintf(w, "time spent\t%s\n", formatSpent(t.SpentDuration()))
	}
	w.Flush()
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start working on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s: %s\n", shortID(t.ID), t.Description)
			return nil
		},
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [id]",
		Short: "Stop the active task, banking its running time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Stop(cmd.Context(), optionalArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s (%s spent)\n", shortID(t.ID), formatSpent(t.SpentDuration()))
			return nil
		},
	}
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done [id]",
		Short: "Mark a task as done (defaults to the active task)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Done(cmd.Context(), optionalArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done %s: %s\n", shortID(t.ID), t.Description)
			return nil
		},
	}
}

func newAbortCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "abort [id]",
		Short: "Abort a task (defaults to the active task)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.Abort(cmd.Context(), optionalArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aborted %s: %s\n", shortID(t.ID), t.Description)
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <description>",
		Short: "Replace a task's description",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			t, err := a.tracker.EditDescription(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", shortID(t.ID))
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			return a.tracker.Delete(cmd.Context(), args[0])
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove done and aborted tasks, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			filter, err := flags.build(time.Now(), a.cfg.Query.FuzzyThreshold)
			if err != nil {
				return err
			}
			removed, err := a.tracker.Clean(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d tasks\n", len(removed))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			filter, err := flags.build(time.Now(), a.cfg.Query.FuzzyThreshold)
			if err != nil {
				return err
			}
			tasks, err := a.tracker.List()
			if err != nil {
				return err
			}
			stats := query.Collect(query.Apply(tasks, filter))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintf(w, "total\t%d\n", stats.Total)
			for _, status := range task.Statuses() {
				if n := stats.ByStatus[status]; n > 0 {
					fmt.Fprintf(w, "%s\t%d\n", status, n)
				}
			}
			fmt.Fprintf(w, "time spent\t%s\n", formatSpent(stats.TimeSpent))
			w.Flush()
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func formatSpent(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
