// Package lifecycle applies status transitions to tasks.
//
// It owns the completion gate (a task cannot enter completed with an empty
// work-note ledger), the automatic "status: X → Y" system notes, the atomic
// claim used by workers, and dependency cleanup when a task completes or is
// deleted.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/taskboard/internal/db"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

// Machine validates and applies status transitions.
type Machine struct {
	store    *db.Store
	workflow task.Workflow
	logger   *slog.Logger
}

// New creates a Machine. A nil logger uses slog.Default().
func New(store *db.Store, workflow task.Workflow, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, workflow: workflow, logger: logger}
}

// Workflow returns the workflow the machine validates against.
func (m *Machine) Workflow() task.Workflow {
	return m.workflow
}

// TransitionOptions controls a single transition.
type TransitionOptions struct {
	// Note is appended in the same transaction as the status change. It
	// counts toward the completion gate.
	Note *task.WorkNote
	// From, when set, makes the transition conditional on the task still
	// being in this status.
	From task.Status
}

// TransitionResult describes an applied transition.
type TransitionResult struct {
	Task    *task.Task
	From    task.Status
	Changed bool
	// Cascade is set when the task entered completed.
	Cascade *CascadeResult
}

// Transition moves a task to status. The status is validated against the
// workflow before anything is read or written. Entering completed requires
// at least one work note, either already in the ledger or supplied through
// opts.Note. Cascade unblock runs after the transition has committed.
func (m *Machine) Transition(ctx context.Context, taskID string, status task.Status, opts TransitionOptions) (*TransitionResult, error) {
	to, err := m.workflow.ParseStatus(string(status))
	if err != nil {
		return nil, err
	}

	res := &TransitionResult{}
	err = m.store.RunInTx(ctx, func(tx *db.TxOps) error {
		cur, err := tx.GetTaskForUpdate(taskID)
		if err != nil {
			return err
		}
		res.From = cur.Status
		if opts.From != "" && cur.Status != opts.From {
			return boarderrors.ErrConcurrentUpdate(cur.Number, string(opts.From), string(cur.Status))
		}

		var callerNote string
		if opts.Note != nil {
			n, err := tx.AppendWorkNote(taskID, *opts.Note)
			if err != nil {
				return err
			}
			callerNote = n.Content
		}

		if cur.Status == to {
			return nil
		}

		if to == task.StatusCompleted {
			count, err := tx.CountWorkNotes(taskID)
			if err != nil {
				return err
			}
			if count == 0 {
				return boarderrors.ErrWorkNotesRequired(cur.Number)
			}
		}

		if err := tx.SetStatus(taskID, to); err != nil {
			return err
		}
		if !DocumentsChange(callerNote, cur.Status, to) {
			if _, err := tx.AppendWorkNote(taskID, StatusNote(cur.Status, to, "")); err != nil {
				return err
			}
		}
		res.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		m.logger.Info("task status changed", "task_id", taskID, "from", res.From, "to", to)
	}

	if res.Changed && to == task.StatusCompleted {
		tk, err := m.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		cascade, err := m.CascadeUnblock(ctx, tk.Number)
		res.Cascade = cascade
		if err != nil {
			// The completion is durable; the scan is safe to re-run.
			m.logger.Warn("cascade unblock incomplete", "task", tk.Number, "error", err)
		}
	}

	res.Task, err = m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Claim atomically moves a ready task to in-progress. Exactly one of any
// number of concurrent callers wins; the others get CLAIM_CONFLICT. Tasks
// with unmet blockers are rejected.
func (m *Machine) Claim(ctx context.Context, taskID string, note *task.WorkNote) (*task.Task, error) {
	tk, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	all, err := m.store.ListTasks(ctx, db.TaskFilter{SkipNotes: true})
	if err != nil {
		return nil, err
	}
	if unmet := task.NewGraph(all, m.logger).UnmetBlockers(tk); len(unmet) > 0 {
		return nil, boarderrors.ErrValidation("blocked_by",
			fmt.Sprintf("task %s is waiting on %s", tk.Ref(), FormatRefs(unmet)))
	}

	err = m.store.RunInTx(ctx, func(tx *db.TxOps) error {
		won, err := tx.CompareAndSetStatus(taskID, task.StatusReady, task.StatusInProgress)
		if err != nil {
			return err
		}
		if !won {
			cur, err := tx.GetTaskForUpdate(taskID)
			if err != nil {
				return err
			}
			return boarderrors.ErrClaimConflict(cur.Number, string(cur.Status))
		}
		var callerNote string
		if note != nil {
			n, err := tx.AppendWorkNote(taskID, *note)
			if err != nil {
				return err
			}
			callerNote = n.Content
		}
		if !DocumentsChange(callerNote, task.StatusReady, task.StatusInProgress) {
			if _, err := tx.AppendWorkNote(taskID, StatusNote(task.StatusReady, task.StatusInProgress, "")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("task claimed", "task", tk.Number)
	return m.store.GetTask(ctx, taskID)
}

// StatusNote is the system note recorded for a status change.
func StatusNote(from, to task.Status, detail string) task.WorkNote {
	content := fmt.Sprintf("status: %s → %s", from, to)
	if detail != "" {
		content += " (" + detail + ")"
	}
	return task.WorkNote{Content: content, Author: task.AuthorSystem}
}

// DocumentsChange reports whether note already records the from → to
// change, in which case no separate system note is written.
func DocumentsChange(note string, from, to task.Status) bool {
	if note == "" {
		return false
	}
	lower := strings.ToLower(note)
	for _, arrow := range []string{"→", "->"} {
		if strings.Contains(lower, fmt.Sprintf("status: %s %s %s", from, arrow, to)) {
			return true
		}
	}
	return false
}

// FormatRefs renders task numbers as "#3, #5".
func FormatRefs(numbers []int) string {
	refs := make([]string, len(numbers))
	for i, n := range numbers {
		refs[i] = fmt.Sprintf("#%d", n)
	}
	return strings.Join(refs, ", ")
}
