package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskboard/internal/task"
)

func mk(id string, number, sortOrder int, status task.Status, blockedBy ...int) *task.Task {
	return &task.Task{ID: id, Number: number, SortOrder: sortOrder, Status: status, Text: "task " + id, BlockedBy: blockedBy}
}

func TestSelectNextPrefersInProgress(t *testing.T) {
	tasks := []*task.Task{
		mk("a", 1, 0, task.StatusReady),
		mk("b", 2, 5, task.StatusInProgress),
	}
	d := SelectNext(tasks, task.NewGraph(tasks, nil))
	assert.Equal(t, DecisionResume, d.Kind)
	assert.Equal(t, 2, d.Task.Number)
}

func TestSelectNextSkipsBlockedHead(t *testing.T) {
	// A sorts first but waits on X; B is next in line and free.
	tasks := []*task.Task{
		mk("x", 1, 0, task.StatusBacklog),
		mk("a", 2, 1, task.StatusReady, 1),
		mk("b", 3, 2, task.StatusReady),
	}
	d := SelectNext(tasks, task.NewGraph(tasks, nil))
	require.Equal(t, DecisionStart, d.Kind)
	assert.Equal(t, "b", d.Task.ID)
	assert.Equal(t, 2, d.ReadyCount)
	assert.Equal(t, 1, d.BacklogCount)
}

func TestSelectNextTieBreaksOnID(t *testing.T) {
	tasks := []*task.Task{
		mk("02", 2, 3, task.StatusReady),
		mk("01", 1, 3, task.StatusReady),
	}
	d := SelectNext(tasks, task.NewGraph(tasks, nil))
	assert.Equal(t, "01", d.Task.ID)
}

func TestSelectNextAllBlockedReportsFirstFive(t *testing.T) {
	tasks := []*task.Task{mk("blocker", 1, 0, task.StatusInProgress)}
	graphTasks := append([]*task.Task{}, tasks...)
	var ready []*task.Task
	for i := 0; i < 7; i++ {
		ready = append(ready, mk(string(rune('a'+i)), 10+i, i, task.StatusReady, 1))
	}
	graphTasks = append(graphTasks, ready...)

	// The in-progress blocker lives outside the worker's scope.
	d := SelectNext(ready, task.NewGraph(graphTasks, nil))
	require.Equal(t, DecisionAllBlocked, d.Kind)
	assert.Equal(t, 7, d.ReadyCount)
	require.Len(t, d.Blocked, 5)
	assert.Equal(t, 10, d.Blocked[0].Task.Number)
	assert.Equal(t, []int{1}, d.Blocked[0].Unmet)
	assert.Contains(t, d.Explain(), "#10 waits on #1")
}

func TestSelectNextIdle(t *testing.T) {
	tasks := []*task.Task{
		mk("a", 1, 0, task.StatusBacklog),
		mk("b", 2, 0, task.StatusCompleted),
		mk("c", 3, 0, task.StatusBlocked),
	}
	d := SelectNext(tasks, task.NewGraph(tasks, nil))
	assert.Equal(t, DecisionIdle, d.Kind)
	assert.Nil(t, d.Task)
	assert.Equal(t, 1, d.BacklogCount)
	assert.Contains(t, d.Explain(), "1 in backlog")

	empty := SelectNext(nil, task.NewGraph(nil, nil))
	assert.Equal(t, "idle: no ready tasks", empty.Explain())
}

func TestSelectNextDanglingBlockerDoesNotHold(t *testing.T) {
	tasks := []*task.Task{mk("a", 4, 0, task.StatusReady, 99)}
	d := SelectNext(tasks, task.NewGraph(tasks, nil))
	assert.Equal(t, DecisionStart, d.Kind)
}
