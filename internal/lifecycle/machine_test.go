package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskboard/internal/db"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

func setup(t *testing.T, wf task.Workflow) (*db.Store, *Machine) {
	t.Helper()
	store := db.NewTestStore(t)
	return store, New(store, wf, nil)
}

func create(t *testing.T, store *db.Store, text string, status task.Status, blockedBy ...int) *task.Task {
	t.Helper()
	tk := &task.Task{Text: text, Status: status, BlockedBy: blockedBy}
	require.NoError(t, store.CreateTask(context.Background(), tk))
	return tk
}

func contents(notes []task.WorkNote) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Content
	}
	return out
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	tk := create(t, store, "x", task.StatusBacklog)

	_, err := m.Transition(context.Background(), tk.ID, "done", TransitionOptions{})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeInvalidStatus))

	_, err = m.Transition(context.Background(), tk.ID, task.StatusReview, TransitionOptions{})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeInvalidStatus), "review is off by default")
}

func TestTransitionWritesSystemNote(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	tk := create(t, store, "x", task.StatusBacklog)

	res, err := m.Transition(context.Background(), tk.ID, task.StatusReady, TransitionOptions{})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, task.StatusBacklog, res.From)
	assert.Equal(t, task.StatusReady, res.Task.Status)
	require.Len(t, res.Task.WorkNotes, 1)
	assert.Equal(t, "status: backlog → ready", res.Task.WorkNotes[0].Content)
	assert.Equal(t, task.AuthorSystem, res.Task.WorkNotes[0].Author)
}

func TestTransitionDoesNotDuplicateDocumentedChange(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	tk := create(t, store, "x", task.StatusBacklog)

	res, err := m.Transition(context.Background(), tk.ID, task.StatusReady, TransitionOptions{
		Note: &task.WorkNote{Content: "triaged; status: backlog -> ready", Author: task.AuthorHuman},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"triaged; status: backlog -> ready"}, contents(res.Task.WorkNotes))
}

func TestTransitionToSameStatusIsNoop(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	tk := create(t, store, "x", task.StatusReady)

	res, err := m.Transition(context.Background(), tk.ID, task.StatusReady, TransitionOptions{})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Task.WorkNotes)
}

func TestCompletionRequiresWorkNotes(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	ctx := context.Background()
	tk := create(t, store, "x", task.StatusInProgress)

	_, err := m.Transition(ctx, tk.ID, task.StatusCompleted, TransitionOptions{})
	require.Error(t, err)
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeWorkNotesRequired))

	got, err := store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status, "failed gate leaves the task untouched")
	assert.Empty(t, got.WorkNotes)

	res, err := m.Transition(ctx, tk.ID, task.StatusCompleted, TransitionOptions{
		Note: &task.WorkNote{Content: "implemented and tested", Author: task.AuthorAgent},
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Task.Status)
	assert.Equal(t, []string{"implemented and tested", "status: in-progress → completed"}, contents(res.Task.WorkNotes))
}

func TestCompletionWithExistingNotes(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	ctx := context.Background()
	tk := create(t, store, "x", task.StatusInProgress)
	_, err := store.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "did the thing"})
	require.NoError(t, err)

	res, err := m.Transition(ctx, tk.ID, task.StatusCompleted, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Task.Status)
}

func TestTransitionFromMismatch(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	tk := create(t, store, "x", task.StatusBlocked)

	_, err := m.Transition(context.Background(), tk.ID, task.StatusInProgress, TransitionOptions{From: task.StatusReady})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeConcurrentUpdate))
}

func TestReviewStatusWhenEnabled(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{ReviewEnabled: true})
	tk := create(t, store, "x", task.StatusInProgress)

	res, err := m.Transition(context.Background(), tk.ID, task.StatusReview, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, task.StatusReview, res.Task.Status)
}

func TestClaim(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	ctx := context.Background()
	tk := create(t, store, "x", task.StatusReady)

	got, err := m.Claim(ctx, tk.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	assert.Equal(t, []string{"status: ready → in-progress"}, contents(got.WorkNotes))

	_, err = m.Claim(ctx, tk.ID, nil)
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeClaimConflict))
}

func TestClaimRejectsUnmetBlockers(t *testing.T) {
	t.Parallel()
	store, m := setup(t, task.Workflow{})
	create(t, store, "dep", task.StatusBacklog)
	tk := create(t, store, "x", task.StatusReady, 1)

	_, err := m.Claim(context.Background(), tk.ID, nil)
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))
}

func TestClaimHasSingleWinner(t *testing.T) {
	t.Parallel()
	store, err := db.OpenStore(context.Background(), filepath.Join(t.TempDir(), "board.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	m := New(store, task.Workflow{}, nil)
	tk := create(t, store, "contested", task.StatusReady)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Claim(context.Background(), tk.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case boarderrors.HasCode(err, boarderrors.CodeClaimConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}
