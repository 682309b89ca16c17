package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskboard/internal/scheduler"
	"github.com/randalmurphal/taskboard/internal/task"
)

// scopeFlags are shared by the commands that act for a worker.
type scopeFlags struct {
	project string
	inbox   bool
}

func (s *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.project, "project", "", "limit to one project (name or id)")
	cmd.Flags().BoolVar(&s.inbox, "inbox", false, "limit to tasks without a project")
}

func (s *scopeFlags) worker(cmd *cobra.Command, a *app) (*scheduler.Worker, error) {
	scope, err := a.resolveScope(cmd.Context(), s.project, s.inbox)
	if err != nil {
		return nil, err
	}
	return a.newWorker(scope), nil
}

func newNextCmd() *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show which task to work on",
		Long: `Show which task to work on.

A task already in progress is resumed first; if it has gone without a
progress note for too long, a diagnostic note is recorded and guidance is
printed. Otherwise the first ready task whose blockers are all completed
is suggested. Nothing is claimed; use "taskboard start" for that.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			pick, err := w.PickNextTask(cmd.Context())
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(pick)
			}
			printPick(out, pick)
			return nil
		},
	}
	scope.register(cmd)
	return cmd
}

func printPick(out *output, pick *scheduler.Pick) {
	d := pick.Decision
	switch d.Kind {
	case scheduler.DecisionResume:
		out.Printf("Resume %s %s\n", out.style(boldStyle, d.Task.Ref()), d.Task.Text)
	case scheduler.DecisionStart:
		out.Printf("Start %s %s\n", out.style(boldStyle, d.Task.Ref()), d.Task.Text)
		out.Println(out.style(dimStyle, fmt.Sprintf("claim it with: taskboard start %d", d.Task.Number)))
	default:
		out.Println(d.Explain())
	}
	if pick.Stuck != nil && pick.Stuck.Stuck {
		out.Println(out.style(warnStyle, "\nThis task looks stuck."))
		for _, line := range pick.Stuck.Guidance {
			out.Printf("  - %s\n", line)
		}
	}
}

func newStartCmd() *cobra.Command {
	var (
		scope scopeFlags
		note  string
	)
	cmd := &cobra.Command{
		Use:   "start <task>",
		Short: "Claim a ready task and move it to in-progress",
		Long: `Claim a ready task and move it to in-progress.

Only one task per scope may be in progress, and the task's blockers must
all be completed. When several workers race for the same task exactly one
wins.`,
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
			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			started, err := w.MarkInProgress(ctx, tk.ID, note)
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(started)
			}
			out.Printf("Started %s %s\n", started.Ref(), started.Text)
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().StringVarP(&note, "note", "n", "", "work note to record with the claim")
	return cmd
}

func newCompleteCmd() *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "complete <task> [summary]",
		Short: "Complete a task",
		Long: `Complete a task, recording the summary as a work note.

A task with no work notes cannot be completed; give a summary or add a
note first. Tasks waiting only on this one become ready.`,
		Args: cobra.MinimumNArgs(1),
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
			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			res, err := w.CompleteWithSummary(ctx, tk.ID, strings.Join(args[1:], " "))
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
	scope.register(cmd)
	return cmd
}

func newBlockCmd() *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "block <task> <reason>",
		Short: "Mark a task blocked with a reason",
		Args:  cobra.MinimumNArgs(2),
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
			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			res, err := w.BlockTask(ctx, tk.ID, strings.Join(args[1:], " "))
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
	scope.register(cmd)
	return cmd
}

func newReviewCmd() *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List tasks awaiting review",
		Long: `List tasks in the review column that are due for a look: not yet
approved, and not reviewed within the cooldown. Requires review.enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			w, err := scope.worker(cmd, a)
			if err != nil {
				return err
			}
			queue, err := w.ReviewQueue(cmd.Context())
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if jsonOut {
				if queue == nil {
					queue = []*task.Task{}
				}
				return out.JSON(queue)
			}
			if !a.cfg.Review.Enabled {
				out.Println("Review is disabled. Set review.enabled: true to use the review column.")
				return nil
			}
			if len(queue) == 0 {
				out.Println("Nothing awaiting review.")
				return nil
			}
			printTaskTable(out, queue)
			return nil
		},
	}
	scope.register(cmd)
	return cmd
}
