package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskboard/internal/db"
	"github.com/randalmurphal/taskboard/internal/task"
)

// DepsOutput represents the JSON output structure for dependencies.
type DepsOutput struct {
	Number    int            `json:"task_number"`
	Text      string         `json:"text"`
	Status    task.Status    `json:"status"`
	BlockedBy []DepsTaskInfo `json:"blocked_by"`
	// Dangling lists blocker numbers that match no task. They count as
	// satisfied.
	Dangling []int          `json:"dangling,omitempty"`
	Blocks   []DepsTaskInfo `json:"blocks"`
	Summary  DepsSummary    `json:"summary"`
}

// DepsTaskInfo contains information about a related task.
type DepsTaskInfo struct {
	Number int         `json:"task_number"`
	Text   string      `json:"text"`
	Status task.Status `json:"status"`
}

// DepsSummary provides a status summary.
type DepsSummary struct {
	IsBlocked     bool `json:"is_blocked"`
	UnmetBlockers int  `json:"unmet_blockers"`
	TotalBlockers int  `json:"total_blockers"`
	TasksBlocking int  `json:"tasks_blocking"`
}

func buildDeps(tk *task.Task, graph *task.Graph) DepsOutput {
	out := DepsOutput{
		Number:    tk.Number,
		Text:      tk.Text,
		Status:    tk.Status,
		BlockedBy: []DepsTaskInfo{},
		Blocks:    []DepsTaskInfo{},
		Dangling:  graph.DanglingBlockers(tk),
	}
	for _, n := range tk.BlockedBy {
		if b, ok := graph.Lookup(n); ok {
			out.BlockedBy = append(out.BlockedBy, DepsTaskInfo{Number: b.Number, Text: b.Text, Status: b.Status})
		}
	}
	for _, d := range graph.Dependents(tk.Number) {
		out.Blocks = append(out.Blocks, DepsTaskInfo{Number: d.Number, Text: d.Text, Status: d.Status})
	}
	unmet := graph.UnmetBlockers(tk)
	out.Summary = DepsSummary{
		IsBlocked:     len(unmet) > 0,
		UnmetBlockers: len(unmet),
		TotalBlockers: len(tk.BlockedBy),
		TasksBlocking: len(out.Blocks),
	}
	return out
}

func newTaskDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <task>",
		Short: "Show what a task waits on and what waits on it",
		Long: `Show dependencies for a task.

Understanding the output:
  ● (filled)     Blocker is completed
  ○ (empty)      Blocker is not yet completed
  ?              Blocker number matches no task; treated as satisfied
  BLOCKED        Task has unmet blockers
  READY          All blockers completed`,
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
			all, err := a.store.ListTasks(ctx, db.TaskFilter{SkipNotes: true})
			if err != nil {
				return fmt.Errorf("load tasks: %w", err)
			}
			deps := buildDeps(tk, task.NewGraph(all, a.logger))

			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(deps)
			}
			printDeps(out, deps)
			return nil
		},
	}
}

func printDeps(out *output, deps DepsOutput) {
	state := out.style(boldStyle, "READY")
	if deps.Summary.IsBlocked {
		state = out.style(warnStyle, "BLOCKED")
	}
	out.Printf("#%d %s  %s\n", deps.Number, deps.Text, state)

	out.Printf("\nWaits on (%d/%d unmet):\n", deps.Summary.UnmetBlockers, deps.Summary.TotalBlockers)
	if len(deps.BlockedBy) == 0 && len(deps.Dangling) == 0 {
		out.Println("  nothing")
	}
	for _, b := range deps.BlockedBy {
		mark := "○"
		if task.IsDone(b.Status) {
			mark = "●"
		}
		out.Printf("  %s #%d %s (%s)\n", mark, b.Number, b.Text, out.status(b.Status))
	}
	for _, n := range deps.Dangling {
		out.Printf("  ? #%d %s\n", n, out.style(dimStyle, "(no such task)"))
	}

	out.Printf("\nBlocks (%d):\n", len(deps.Blocks))
	if len(deps.Blocks) == 0 {
		out.Println("  nothing")
	}
	for _, d := range deps.Blocks {
		out.Printf("  #%d %s (%s)\n", d.Number, d.Text, out.status(d.Status))
	}
}
