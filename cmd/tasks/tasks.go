package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/steveyegge/tasksync/internal/dates"
	"github.com/steveyegge/tasksync/internal/repository"
	"github.com/steveyegge/tasksync/internal/store"
	"github.com/steveyegge/tasksync/internal/types"
	"github.com/steveyegge/tasksync/internal/ui"
)

// resolve expands arg against the cached collection, syncing once when the
// cache has no match.
func (a *app) resolve(ctx context.Context, arg string) string {
	id, err := resolveID(a.store.Snapshot(), arg)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}
	if id == arg && len(arg) < 36 {
		if err := a.store.Sync(ctx); err == nil {
			if id, err = resolveID(a.store.Snapshot(), arg); err != nil {
				a.Close()
				fatalf("%v", err)
			}
		}
	}
	return id
}

// failed exits with the store's message plus the underlying reason.
func (a *app) failed(err error) {
	msg := err.Error()
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrOwnerMismatch) {
		msg = "task not found"
	} else if errors.Is(err, repository.ErrConflict) {
		msg = "task changed since it was read; re-run 'tasks show' and try again"
	} else if st := a.store.Snapshot(); st.Error != "" && verbose {
		msg = st.Error + " (" + err.Error() + ")"
	} else if st.Error != "" {
		msg = st.Error
	}
	a.Close()
	fatalf("%s", msg)
}

type taskFilter int

const (
	filterAll taskFilter = iota
	filterPending
	filterDone
)

func filterTasks(tasks []types.Task, filter taskFilter) []types.Task {
	out := make([]types.Task, 0, len(tasks))
	for _, t := range tasks {
		if (filter == filterPending && t.Completed) || (filter == filterDone && !t.Completed) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// loadCollection returns the collection to render. Offline reads the cache
// entry without opening the remote or a store; otherwise the store syncs
// first.
func loadCollection(ctx context.Context, offline bool) (*app, *types.Identity, store.State) {
	if !offline {
		a := mustApp(ctx)
		id := a.mustSignedIn()
		if err := a.store.Sync(ctx); err != nil {
			a.failed(err)
		}
		return a, id, a.store.Snapshot()
	}

	a, err := openAuth(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	id := a.mustSignedIn()
	if a.cache, err = openCache(ctx, cfg); err != nil {
		a.Close()
		fatalf("%v", err)
	}

	entry, ok, err := a.cache.ReadCollection(ctx, id.UserID)
	if err != nil {
		a.Close()
		fatalf("failed to read cache: %v", err)
	}
	st := store.State{Tasks: []types.Task{}}
	if ok {
		st.Tasks = entry.Tasks
		st.Source = store.SourceCache
		st.LastSynced = entry.WrittenAt
	}
	return a, id, st
}

// syncWarning describes a fallback to cached data, or "".
func syncWarning(st store.State) string {
	if st.Source != store.SourceStale {
		return st.Error
	}
	if st.LastSynced.IsZero() {
		return st.Error + " Showing cached tasks."
	}
	return fmt.Sprintf("%s Showing cached tasks from %s.", st.Error, st.LastSynced.Local().Format(time.DateTime))
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "List tasks",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		pending, _ := cmd.Flags().GetBool("pending")
		done, _ := cmd.Flags().GetBool("done")
		offline, _ := cmd.Flags().GetBool("offline")

		filter := filterAll
		switch {
		case all:
		case pending:
			filter = filterPending
		case done:
			filter = filterDone
		}

		a, _, st := loadCollection(cmd.Context(), offline)
		defer a.Close()

		if w := syncWarning(st); w != "" {
			fmt.Printf("%s %s\n\n", ui.RenderWarn("⚠"), w)
		}
		fmt.Println(ui.TaskList(filterTasks(st.Tasks, filter), time.Now()))
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tasks",
	Short:   "Show one task in detail",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		t, err := a.store.Select(ctx, a.resolve(ctx, args[0]))
		if err != nil {
			a.failed(err)
		}
		fmt.Println(ui.TaskDetail(t, time.Now()))
	},
}

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Add a task",
	Long: `Add a task. The title is every argument joined by spaces.

--due accepts dates (2026-01-31, 01/31/2026) and phrases ("tomorrow",
"next friday 5pm", "in 3 days").`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.TrimSpace(strings.Join(args, " "))
		if title == "" {
			fatalf("title cannot be empty")
		}
		description, _ := cmd.Flags().GetString("description")

		var due *time.Time
		if s, _ := cmd.Flags().GetString("due"); s != "" {
			d, err := dates.Parse(s, time.Now())
			if err != nil {
				fatalf("invalid --due %q: %v", s, err)
			}
			due = d
		}

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		t, err := a.store.Create(ctx, types.Draft{
			Title:       title,
			Description: strings.TrimSpace(description),
			DueDate:     due,
		})
		if err != nil {
			a.failed(err)
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(t.ID)), t.Title)
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "tasks",
	Short:   "Change a task's title, description or due date",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch types.Patch
		flags := cmd.Flags()

		if flags.Changed("title") {
			title, _ := flags.GetString("title")
			title = strings.TrimSpace(title)
			if title == "" {
				fatalf("title cannot be empty")
			}
			patch.Title = &title
		}
		if flags.Changed("description") {
			description, _ := flags.GetString("description")
			patch.Description = types.Ptr(strings.TrimSpace(description))
		}
		if noDue, _ := flags.GetBool("no-due"); noDue {
			patch.ClearDueDate = true
		} else if flags.Changed("due") {
			s, _ := flags.GetString("due")
			d, err := dates.Parse(s, time.Now())
			if err != nil {
				fatalf("invalid --due %q: %v", s, err)
			}
			patch.DueDate = d
		}
		if flags.Changed("if-version") {
			ver, _ := flags.GetInt64("if-version")
			patch.IfVersion = &ver
		}
		if patch.IsEmpty() {
			fatalf("nothing to change (use --title, --description, --due or --no-due)")
		}

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		t, err := a.store.Update(ctx, a.resolve(ctx, args[0]), patch)
		if err != nil {
			a.failed(err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(t.ID)))
		fmt.Println(ui.TaskDetail(t, time.Now()))
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	Aliases: []string{"toggle"},
	GroupID: "tasks",
	Short:   "Toggle a task between done and not done",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		t, err := a.store.ToggleCompletion(ctx, a.resolve(ctx, args[0]))
		if err != nil {
			a.failed(err)
		}
		state := "not done"
		if t.Completed {
			state = "done"
		}
		fmt.Printf("%s Marked %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(t.ID)), state)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		id := a.resolve(ctx, args[0])
		if !force && isInteractive() {
			title := ui.ShortID(id)
			if t, ok := a.store.Snapshot().Task(id); ok {
				title = t.Title
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q?", title)).
				Value(&confirmed).
				Run()
			if err != nil || !confirmed {
				fmt.Println("Cancelled")
				return
			}
		}

		if _, err := a.store.Delete(ctx, id); err != nil {
			a.failed(err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(id)))
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "tasks",
	Short:   "Fetch tasks from the remote repository and refresh the cache",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()
		a.mustSignedIn()

		if err := a.store.Sync(ctx); err != nil {
			a.failed(err)
		}
		st := a.store.Snapshot()
		if st.Error != "" {
			a.Close()
			fatalf("%s", syncWarning(st))
		}
		fmt.Printf("%s Synced %d task(s)\n", ui.RenderPass("✓"), len(st.Tasks))
	},
}

func init() {
	listCmd.Flags().Bool("all", false, "Show every task (the default)")
	listCmd.Flags().Bool("pending", false, "Show only tasks not done")
	listCmd.Flags().Bool("done", false, "Show only completed tasks")
	listCmd.MarkFlagsMutuallyExclusive("all", "pending", "done")
	listCmd.Flags().Bool("offline", false, "Show the cached list without contacting the remote")

	addCmd.Flags().StringP("description", "d", "", "Task description")
	addCmd.Flags().String("due", "", "Due date or phrase")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("description", "d", "", "New description (empty clears it)")
	editCmd.Flags().String("due", "", "New due date or phrase")
	editCmd.Flags().Bool("no-due", false, "Remove the due date")
	editCmd.Flags().Int64("if-version", 0, "Only update if the task is still at this version")
	editCmd.MarkFlagsMutuallyExclusive("due", "no-due")

	rmCmd.Flags().BoolP("force", "f", false, "Delete without confirmation")

	rootCmd.AddCommand(listCmd, showCmd, addCmd, editCmd, doneCmd, rmCmd, syncCmd)
}
