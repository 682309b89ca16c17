package task

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mk(number int, status Status, blockedBy ...int) *Task {
	return &Task{ID: NewID(), Number: number, Status: status, Text: "task", BlockedBy: blockedBy}
}

func TestGraphIsSatisfied(t *testing.T) {
	done := mk(1, StatusCompleted)
	open := mk(2, StatusReady)
	tasks := []*Task{
		done,
		open,
		mk(3, StatusReady),
		mk(4, StatusReady, 1),
		mk(5, StatusReady, 1, 2),
		mk(6, StatusReady, 99),
	}
	g := NewGraph(tasks, nil)

	assert.True(t, g.IsSatisfied(tasks[2]), "no blockers")
	assert.True(t, g.IsSatisfied(tasks[3]), "completed blocker")
	assert.False(t, g.IsSatisfied(tasks[4]), "open blocker")
	assert.Equal(t, []int{2}, g.UnmetBlockers(tasks[4]))
	assert.True(t, g.IsSatisfied(tasks[5]), "dangling blocker is treated as satisfied")
	assert.Equal(t, []int{99}, g.DanglingBlockers(tasks[5]))
}

func TestGraphExactNumberMatching(t *testing.T) {
	// #1 is open, #12 is completed; a blocker list of [12] must not be held
	// up by #1.
	tasks := []*Task{mk(1, StatusReady), mk(12, StatusCompleted), mk(20, StatusReady, 12)}
	g := NewGraph(tasks, nil)

	assert.True(t, g.IsSatisfied(tasks[2]))
	assert.Empty(t, g.Dependents(1))
	require.Len(t, g.Dependents(12), 1)
	assert.Equal(t, 20, g.Dependents(12)[0].Number)
}

func TestGraphWarnsOnceForDanglingReference(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	orphan := mk(4, StatusReady, 77)
	g := NewGraph([]*Task{orphan}, logger)

	g.IsSatisfied(orphan)
	g.IsSatisfied(orphan)

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("missing_blocker=77")))
}

func TestRemoveBlocker(t *testing.T) {
	in := []int{3, 5, 3}
	out, removed := RemoveBlocker(in, 3)
	assert.True(t, removed)
	assert.Equal(t, []int{5}, out)
	assert.Equal(t, []int{3, 5, 3}, in, "input must not be modified")

	out, removed = RemoveBlocker([]int{5}, 3)
	assert.False(t, removed)
	assert.Equal(t, []int{5}, out)
}

func TestValidateBlockedBy(t *testing.T) {
	assert.NoError(t, ValidateBlockedBy(4, []int{1, 2}))
	assert.Error(t, ValidateBlockedBy(4, []int{4}))
	assert.Error(t, ValidateBlockedBy(4, []int{0}))
	assert.Error(t, ValidateBlockedBy(0, []int{-3}))
}

func TestParseBlockedBy(t *testing.T) {
	got, err := ParseBlockedBy("3, #5 7,3")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 7}, got)

	got, err = ParseBlockedBy("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseBlockedBy("3,abc")
	assert.Error(t, err)
}

// IsSatisfied holds iff every blocker maps to a completed task or to no task.
func TestIsSatisfiedProperty(t *testing.T) {
	statuses := []Status{StatusBacklog, StatusReady, StatusInProgress, StatusBlocked, StatusCompleted}

	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 12).Draw(rt, "count")
		tasks := make([]*Task, 0, count)
		for i := 1; i <= count; i++ {
			tasks = append(tasks, mk(i, rapid.SampledFrom(statuses).Draw(rt, "status")))
		}
		subject := tasks[rapid.IntRange(0, count-1).Draw(rt, "subject")]
		subject.BlockedBy = rapid.SliceOfN(rapid.IntRange(1, count+5), 0, 6).Draw(rt, "blocked_by")

		want := true
		for _, n := range subject.BlockedBy {
			if n <= count && tasks[n-1].Status != StatusCompleted {
				want = false
			}
		}

		if got := IsSatisfied(subject, tasks); got != want {
			rt.Fatalf("IsSatisfied = %v, want %v (blocked_by=%v)", got, want, subject.BlockedBy)
		}
	})
}
