package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/taskboard/internal/db"
	"github.com/randalmurphal/taskboard/internal/task"
)

// CascadeResult reports what a cascade changed.
type CascadeResult struct {
	// Cleared lists tasks that had the reference removed.
	Cleared []int
	// Unblocked lists tasks that moved from blocked to ready.
	Unblocked []int
}

// CascadeUnblock removes number from every task's blocked_by list. A task
// whose list becomes empty while it is blocked moves to ready. Each
// affected task is updated in its own transaction; the scan is idempotent,
// so a partial run is completed by running it again.
func (m *Machine) CascadeUnblock(ctx context.Context, number int) (*CascadeResult, error) {
	return m.removeReferences(ctx, number, true)
}

// DeleteResult reports a deletion and its dependency cleanup.
type DeleteResult struct {
	Task    *task.Task
	Cleared []int
}

// DeleteTask removes a task and strips its number from other tasks'
// blocked_by lists. Statuses of the dependents are left alone.
func (m *Machine) DeleteTask(ctx context.Context, taskID string) (*DeleteResult, error) {
	tk, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := m.store.DeleteTask(ctx, taskID); err != nil {
		return nil, err
	}
	m.logger.Info("task deleted", "task", tk.Number)

	res := &DeleteResult{Task: tk}
	cascade, err := m.removeReferences(ctx, tk.Number, false)
	if cascade != nil {
		res.Cleared = cascade.Cleared
	}
	if err != nil {
		return res, fmt.Errorf("clean up references to %s: %w", tk.Ref(), err)
	}
	return res, nil
}

func (m *Machine) removeReferences(ctx context.Context, number int, unblock bool) (*CascadeResult, error) {
	dependents, err := m.store.TasksBlockedBy(ctx, number)
	if err != nil {
		return nil, err
	}

	res := &CascadeResult{}
	var errs []error
	for _, dep := range dependents {
		cleared, flipped, err := m.clearReference(ctx, dep.ID, number, unblock)
		if err != nil {
			m.logger.Warn("remove blocker reference failed", "task", dep.Number, "blocker", number, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", dep.Ref(), err))
			continue
		}
		if cleared {
			res.Cleared = append(res.Cleared, dep.Number)
		}
		if flipped {
			res.Unblocked = append(res.Unblocked, dep.Number)
			m.logger.Info("task unblocked", "task", dep.Number, "completed", number)
		}
	}
	return res, errors.Join(errs...)
}

// clearReference re-reads the task under the transaction so a concurrent
// edit to blocked_by is never overwritten with a stale list.
func (m *Machine) clearReference(ctx context.Context, taskID string, number int, unblock bool) (cleared, flipped bool, err error) {
	err = m.store.RunInTx(ctx, func(tx *db.TxOps) error {
		cur, err := tx.GetTaskForUpdate(taskID)
		if err != nil {
			return err
		}
		remaining, removed := task.RemoveBlocker(cur.BlockedBy, number)
		if !removed {
			return nil
		}
		if err := tx.SetBlockedBy(taskID, remaining); err != nil {
			return err
		}
		cleared = true

		if !unblock || len(remaining) > 0 || cur.Status != task.StatusBlocked {
			return nil
		}
		if err := tx.SetStatus(taskID, task.StatusReady); err != nil {
			return err
		}
		note := StatusNote(task.StatusBlocked, task.StatusReady, fmt.Sprintf("#%d completed", number))
		if _, err := tx.AppendWorkNote(taskID, note); err != nil {
			return err
		}
		flipped = true
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return cleared, flipped, nil
}
