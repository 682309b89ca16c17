package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskboard/internal/db"
	"github.com/randalmurphal/taskboard/internal/lifecycle"
	"github.com/randalmurphal/taskboard/internal/task"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"t"},
		Short:   "Create, inspect, and change tasks",
		Long: `Create, inspect, and change tasks.

Tasks are referenced by number ("12" or "#12") or by id.`,
	}
	cmd.AddCommand(newTaskNewCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskEditCmd())
	cmd.AddCommand(newTaskMoveCmd())
	cmd.AddCommand(newTaskNoteCmd())
	cmd.AddCommand(newTaskNotesCmd())
	cmd.AddCommand(newTaskDeleteCmd())
	cmd.AddCommand(newTaskDepsCmd())
	return cmd
}

func newTaskNewCmd() *cobra.Command {
	var (
		notes     string
		tags      []string
		priority  string
		project   string
		blockedBy string
		status    string
	)
	cmd := &cobra.Command{
		Use:   "new <text>",
		Short: "Create a task",
		Long: `Create a task. New tasks land in the backlog unless --status says otherwise.

Examples:
  taskboard task new "Fix login redirect"
  taskboard task new "Ship release" --blocked-by 3,4 --priority high
  taskboard task new "Rotate keys" --project infra --tags security,ops`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk := &task.Task{
				Text:  strings.Join(args, " "),
				Notes: notes,
				Tags:  tags,
			}
			if priority != "" {
				if tk.Priority, err = task.ParsePriority(priority); err != nil {
					return err
				}
			}
			if status != "" {
				if tk.Status, err = a.machine.Workflow().ParseStatus(status); err != nil {
					return err
				}
			}
			if blockedBy != "" {
				if tk.BlockedBy, err = task.ParseBlockedBy(blockedBy); err != nil {
					return err
				}
			}
			if project != "" {
				p, err := a.store.ResolveProject(ctx, project)
				if err != nil {
					return err
				}
				tk.ProjectID = p.ID
			}
			if err := a.store.CreateTask(ctx, tk); err != nil {
				return fmt.Errorf("create task: %w", err)
			}

			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(tk)
			}
			out.Printf("Created %s in %s: %s\n", tk.Ref(), out.status(tk.Status), tk.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "urgent, high, medium, or low")
	cmd.Flags().StringVar(&project, "project", "", "project name or id (default: inbox)")
	cmd.Flags().StringVar(&blockedBy, "blocked-by", "", "task numbers that must complete first, e.g. 3,4")
	cmd.Flags().StringVarP(&status, "status", "s", "", "initial status (default: backlog)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		statuses []string
		project  string
		inbox    bool
		tag      string
		all      bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `List tasks. Completed tasks are hidden unless --all or --status is given.

Examples:
  taskboard task list
  taskboard task list --status ready,in-progress
  taskboard task list --project api --tag bug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			filter := db.TaskFilter{InboxOnly: inbox, SkipNotes: true}
			for _, s := range statuses {
				st, err := a.machine.Workflow().ParseStatus(s)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, st)
			}
			if project != "" {
				p, err := a.store.ResolveProject(ctx, project)
				if err != nil {
					return err
				}
				filter.ProjectID = p.ID
			}
			showAll := all || len(filter.Statuses) > 0

			tasks, err := a.store.ListTasks(ctx, filter)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			visible := tasks[:0]
			for _, t := range tasks {
				if !showAll && t.Status == task.StatusCompleted {
					continue
				}
				if tag != "" && !t.HasTag(tag) {
					continue
				}
				visible = append(visible, t)
			}

			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(visible)
			}
			if len(visible) == 0 {
				out.Println("No tasks found. Create one with: taskboard task new \"Your task\"")
				return nil
			}
			printTaskTable(out, visible)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "filter by status (comma-separated)")
	cmd.Flags().StringVar(&project, "project", "", "filter by project name or id")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "only tasks without a project")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	return cmd
}

func printTaskTable(out *output, tasks []*task.Task) {
	w := out.table()
	fmt.Fprintln(w, "#\tPRI\tTITLE\tWAITS ON\tSTATUS")
	width := out.titleWidth(45)
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			t.Number, orDash(string(t.Priority)), truncate(t.Text, width), refs(t.BlockedBy), out.status(t.Status))
	}
	_ = w.Flush()
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task>",
		Short: "Show a task with its work notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			tk, err := a.store.ResolveTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(tk)
			}
			printTask(out, tk)
			return nil
		},
	}
}

func printTask(out *output, tk *task.Task) {
	out.Printf("%s %s\n", out.style(boldStyle, tk.Ref()), tk.Text)
	out.Printf("  status:     %s\n", out.status(tk.Status))
	out.Printf("  priority:   %s\n", orDash(string(tk.Priority)))
	out.Printf("  tags:       %s\n", orDash(strings.Join(tk.Tags, ", ")))
	out.Printf("  blocked by: %s\n", refs(tk.BlockedBy))
	if tk.IsExternal() {
		out.Printf("  issue:      %s#%d\n", orDash(tk.ExternalIssueRepo), tk.ExternalIssueID)
	}
	out.Printf("  updated:    %s\n", tk.UpdatedAt.Local().Format("2006-01-02 15:04"))
	if tk.Notes != "" {
		out.Printf("\n%s\n", tk.Notes)
	}
	if len(tk.WorkNotes) == 0 {
		out.Println(out.style(dimStyle, "\nNo work notes yet."))
		return
	}
	out.Println("\nWork notes:")
	for _, n := range tk.WorkNotes {
		stamp := out.style(dimStyle, n.Timestamp.Local().Format("01-02 15:04"))
		out.Printf("  %s [%s] %s\n", stamp, n.Author, n.Content)
	}
}

func newTaskEditCmd() *cobra.Command {
	var (
		text      string
		notes     string
		tags      []string
		priority  string
		blockedBy string
		project   string
		inbox     bool
	)
	cmd := &cobra.Command{
		Use:   "edit <task>",
		Short: "Change a task's fields",
		Long: `Change a task's fields. Only the flags given are written.

Use "task move" to change status and "task note" to add to the ledger.

Examples:
  taskboard task edit 12 --priority urgent
  taskboard task edit 12 --blocked-by ""     # clear dependencies
  taskboard task edit 12 --inbox`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk, err := a.store.ResolveTask(ctx, args[0])
			if err != nil {
				return err
			}

			var u db.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("text") {
				u.Text = &text
			}
			if flags.Changed("notes") {
				u.Notes = &notes
			}
			if flags.Changed("tags") {
				u.Tags = &tags
			}
			if flags.Changed("priority") {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return err
				}
				u.Priority = &p
			}
			if flags.Changed("blocked-by") {
				nums, err := task.ParseBlockedBy(blockedBy)
				if err != nil {
					return err
				}
				u.BlockedBy = &nums
			}
			switch {
			case inbox:
				empty := ""
				u.ProjectID = &empty
			case flags.Changed("project"):
				p, err := a.store.ResolveProject(ctx, project)
				if err != nil {
					return err
				}
				u.ProjectID = &p.ID
			}
			if u.IsEmpty() {
				return fmt.Errorf("nothing to change: pass at least one field flag")
			}

			updated, err := a.store.UpdateTask(ctx, tk.ID, u)
			if err != nil {
				return fmt.Errorf("update %s: %w", tk.Ref(), err)
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(updated)
			}
			out.Printf("Updated %s\n", updated.Ref())
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new title")
	cmd.Flags().StringVar(&notes, "notes", "", "new description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "replace tags (comma-separated)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "urgent, high, medium, low, or \"\" to clear")
	cmd.Flags().StringVar(&blockedBy, "blocked-by", "", "replace blockers, e.g. 3,4")
	cmd.Flags().StringVar(&project, "project", "", "move to a project")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "move to the inbox")
	return cmd
}

func newTaskMoveCmd() *cobra.Command {
	var note, from string
	cmd := &cobra.Command{
		Use:   "move <task> <status>",
		Short: "Change a task's status",
		Long: `Change a task's status.

Moving to completed requires at least one work note; pass --note to add one
in the same step. Completing a task unblocks every task that was only
waiting on it.

With --from the move only happens if the task is still in that status,
which keeps two people or agents from overwriting each other's change.

Examples:
  taskboard task move 12 ready
  taskboard task move 12 completed --note "merged in #481"
  taskboard task move 12 ready --from blocked`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk, err := a.store.ResolveTask(ctx, args[0])
			if err != nil {
				return err
			}
			opts := lifecycle.TransitionOptions{}
			if strings.TrimSpace(note) != "" {
				opts.Note = &task.WorkNote{Content: note, Author: task.AuthorHuman}
			}
			if from != "" {
				if opts.From, err = a.machine.Workflow().ParseStatus(from); err != nil {
					return err
				}
			}
			res, err := a.machine.Transition(ctx, tk.ID, task.Status(args[1]), opts)
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(res)
			}
			printTransition(out, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "work note to record with the change")
	cmd.Flags().StringVar(&from, "from", "", "only move if the task is currently in this status")
	return cmd
}

func printTransition(out *output, res *lifecycle.TransitionResult) {
	if !res.Changed {
		out.Printf("%s already %s\n", res.Task.Ref(), out.status(res.Task.Status))
		return
	}
	out.Printf("%s: %s -> %s\n", res.Task.Ref(), res.From, out.status(res.Task.Status))
	if res.Cascade != nil && len(res.Cascade.Unblocked) > 0 {
		out.Printf("Unblocked: %s\n", refs(res.Cascade.Unblocked))
	}
}

func newTaskNoteCmd() *cobra.Command {
	var author, batch string
	cmd := &cobra.Command{
		Use:   "note <task> <content>",
		Short: "Append a work note",
		Long: `Append a work note to a task's ledger.

With --batch, notes are read from a file (or - for stdin) instead. The
input may be a JSON array of notes or strings, a single note, or plain
text, which becomes one note. Notes whose id is already in the ledger are
skipped and unreadable entries are dropped with a warning.

Examples:
  taskboard task note 12 "root cause is the retry loop"
  taskboard task note 12 --batch notes.json
  taskboard task notes export 7 | taskboard task note 12 --batch -`,
		Args: func(cmd *cobra.Command, args []string) error {
			if batch != "" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk, err := a.store.ResolveTask(ctx, args[0])
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if batch != "" {
				raw, err := readLedgerInput(cmd, batch)
				if err != nil {
					return err
				}
				res, err := a.store.ImportWorkNotes(ctx, tk.ID, raw)
				if err != nil {
					return err
				}
				if jsonOut {
					return out.JSON(res)
				}
				out.Printf("Imported %d note(s) on %s", len(res.Added), tk.Ref())
				if res.Skipped > 0 {
					out.Printf(", %d already present", res.Skipped)
				}
				out.Println()
				if !res.Clean {
					out.Println(out.style(warnStyle, "Some entries could not be read as notes and were dropped."))
				}
				return nil
			}

			n, err := a.store.AppendWorkNote(ctx, tk.ID, task.WorkNote{
				Content: strings.Join(args[1:], " "),
				Author:  task.ParseAuthor(author),
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return out.JSON(n)
			}
			out.Printf("Noted on %s\n", tk.Ref())
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", string(task.AuthorHuman), "agent, human, or system")
	cmd.Flags().StringVar(&batch, "batch", "", "read notes from a file, or - for stdin")
	return cmd
}

func newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <task>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long: `Delete a task and remove it from other tasks' blocked_by lists.

Dependents keep their status; a blocked dependent stays blocked until it is
moved explicitly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk, err := a.store.ResolveTask(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := a.machine.DeleteTask(ctx, tk.ID)
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(res)
			}
			out.Printf("Deleted %s\n", tk.Ref())
			if len(res.Cleared) > 0 {
				out.Printf("Removed from blocked_by of: %s\n", refs(res.Cleared))
			}
			return nil
		},
	}
}
