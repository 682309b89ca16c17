// Package scheduler decides what a worker should do next.
//
// Selection, stuck detection, and the review queue are pure functions over
// a task snapshot. Worker wraps them with the store and the lifecycle
// machine to provide the four worker entry points and the polling loop.
package scheduler

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/taskboard/internal/task"
)

// blockedReportLimit is how many blocked ready tasks are reported when
// nothing can be started.
const blockedReportLimit = 5

// DecisionKind classifies a next-task decision.
type DecisionKind string

const (
	// DecisionResume means a task is already in progress and must be
	// finished before anything new is started.
	DecisionResume DecisionKind = "resume"
	// DecisionStart means a ready task with satisfied dependencies was found.
	DecisionStart DecisionKind = "start"
	// DecisionAllBlocked means ready tasks exist but each waits on a blocker.
	DecisionAllBlocked DecisionKind = "all_blocked"
	// DecisionIdle means there are no ready tasks.
	DecisionIdle DecisionKind = "idle"
)

// BlockedTask is a ready task that cannot start yet.
type BlockedTask struct {
	Task  *task.Task `json:"task"`
	Unmet []int      `json:"unmet_blockers"`
}

// Decision is the outcome of next-task selection. It always carries enough
// detail to explain why no work was started.
type Decision struct {
	Kind         DecisionKind  `json:"kind"`
	Task         *task.Task    `json:"task,omitempty"`
	Blocked      []BlockedTask `json:"blocked,omitempty"`
	ReadyCount   int           `json:"ready_count"`
	BacklogCount int           `json:"backlog_count"`
}

// Explain renders the decision for logs and CLI output.
func (d Decision) Explain() string {
	switch d.Kind {
	case DecisionResume:
		return fmt.Sprintf("%s is in progress; finish or block it before starting new work", d.Task.Ref())
	case DecisionStart:
		return fmt.Sprintf("next task: %s %s", d.Task.Ref(), d.Task.Text)
	case DecisionAllBlocked:
		var b strings.Builder
		fmt.Fprintf(&b, "all %d ready task(s) are blocked", d.ReadyCount)
		for _, bt := range d.Blocked {
			refs := make([]string, len(bt.Unmet))
			for i, n := range bt.Unmet {
				refs[i] = fmt.Sprintf("#%d", n)
			}
			fmt.Fprintf(&b, "\n  %s waits on %s", bt.Task.Ref(), strings.Join(refs, ", "))
		}
		return b.String()
	default:
		if d.BacklogCount > 0 {
			return fmt.Sprintf("idle: no ready tasks (%d in backlog awaiting triage)", d.BacklogCount)
		}
		return "idle: no ready tasks"
	}
}

// compareQueue orders tasks by sort_order, then id. Ids are UUIDv7, so
// ties fall back to creation order.
func compareQueue(a, b *task.Task) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SelectNext picks what a worker should do from a task snapshot that has
// already been narrowed to the worker's scope. The graph must cover every
// task that may appear in a blocked_by list, not just the scope.
func SelectNext(tasks []*task.Task, graph *task.Graph) Decision {
	var inProgress, ready []*task.Task
	backlog := 0
	for _, t := range tasks {
		switch t.Status {
		case task.StatusInProgress:
			inProgress = append(inProgress, t)
		case task.StatusReady:
			ready = append(ready, t)
		case task.StatusBacklog:
			backlog++
		}
	}

	d := Decision{ReadyCount: len(ready), BacklogCount: backlog}

	if len(inProgress) > 0 {
		slices.SortFunc(inProgress, compareQueue)
		d.Kind = DecisionResume
		d.Task = inProgress[0]
		return d
	}

	if len(ready) == 0 {
		d.Kind = DecisionIdle
		return d
	}

	slices.SortFunc(ready, compareQueue)
	for _, t := range ready {
		if graph.IsSatisfied(t) {
			d.Kind = DecisionStart
			d.Task = t
			return d
		}
	}

	d.Kind = DecisionAllBlocked
	for _, t := range ready[:min(len(ready), blockedReportLimit)] {
		d.Blocked = append(d.Blocked, BlockedTask{Task: t, Unmet: graph.UnmetBlockers(t)})
	}
	return d
}
