package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

func ptr[T any](v T) *T { return &v }

func newTask(t *testing.T, s *Store, text string, mutate ...func(*task.Task)) *task.Task {
	t.Helper()
	tk := &task.Task{Text: text}
	for _, m := range mutate {
		m(tk)
	}
	require.NoError(t, s.CreateTask(context.Background(), tk))
	return tk
}

func TestCreateTaskAssignsIdentity(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	a := newTask(t, s, "first")
	b := newTask(t, s, "second")
	c := newTask(t, s, "third", func(tk *task.Task) { tk.Status = task.StatusReady })

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 1, a.Number)
	assert.Equal(t, 2, b.Number)
	assert.Equal(t, 3, c.Number)
	assert.Equal(t, task.StatusBacklog, a.Status, "new tasks start in the intake status")

	// sort_order is allocated per status column.
	assert.Equal(t, 0, a.SortOrder)
	assert.Equal(t, 1, b.SortOrder)
	assert.Equal(t, 0, c.SortOrder)

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text)
	assert.Equal(t, []int{}, got.BlockedBy)
	assert.Empty(t, got.WorkNotes)
}

func TestTaskNumbersAreNeverReused(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	newTask(t, s, "one")
	two := newTask(t, s, "two")
	require.NoError(t, s.DeleteTask(ctx, two.ID))

	three := newTask(t, s, "three")
	assert.Equal(t, 3, three.Number)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	err := s.CreateTask(ctx, &task.Task{Text: "  "})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	err = s.CreateTask(ctx, &task.Task{Text: "x", BlockedBy: []int{0}})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	err = s.CreateTask(ctx, &task.Task{Text: "x", ProjectID: "missing"})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeProjectNotFound))

	// A rejected create leaves no row and does not burn a number.
	tasks, err := s.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	ok := newTask(t, s, "valid")
	assert.Equal(t, 1, ok.Number)
}

func TestCreateTaskWithInitialNotes(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)

	tk := newTask(t, s, "with notes", func(tk *task.Task) {
		tk.WorkNotes = []task.WorkNote{{Content: "context from triage", Author: task.AuthorHuman}}
	})

	got, err := s.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, got.WorkNotes, 1)
	assert.Equal(t, "context from triage", got.WorkNotes[0].Content)
	assert.Equal(t, task.AuthorHuman, got.WorkNotes[0].Author)
}

func TestUpdateTaskIsPartial(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	tk := newTask(t, s, "title", func(tk *task.Task) {
		tk.Notes = "body"
		tk.Tags = []string{"ui"}
		tk.Priority = task.PriorityHigh
	})
	clock.Advance(time.Minute)

	got, err := s.UpdateTask(ctx, tk.ID, TaskUpdate{Text: ptr("new title")})
	require.NoError(t, err)

	assert.Equal(t, "new title", got.Text)
	assert.Equal(t, "body", got.Notes)
	assert.Equal(t, []string{"ui"}, got.Tags)
	assert.Equal(t, task.PriorityHigh, got.Priority)
	assert.Equal(t, tk.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(tk.UpdatedAt), "updated_at is bumped")
}

func TestUpdateTaskBlockedByValidation(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()
	tk := newTask(t, s, "x")

	_, err := s.UpdateTask(ctx, tk.ID, TaskUpdate{BlockedBy: ptr([]int{tk.Number})})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	got, err := s.UpdateTask(ctx, tk.ID, TaskUpdate{BlockedBy: ptr([]int{7, 7, 3})})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3}, got.BlockedBy)

	_, err = s.UpdateTask(ctx, "nope", TaskUpdate{Text: ptr("y")})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeTaskNotFound))
}

func TestResolveTask(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()
	tk := newTask(t, s, "x")

	for _, ref := range []string{"#1", "1", tk.ID} {
		got, err := s.ResolveTask(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, tk.ID, got.ID)
	}
	_, err := s.ResolveTask(ctx, "#99")
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeTaskNotFound))
}

func TestListTasksFilters(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	p := &task.Project{Name: "api"}
	require.NoError(t, s.CreateProject(ctx, p))

	newTask(t, s, "inbox")
	newTask(t, s, "api backlog", func(tk *task.Task) { tk.ProjectID = p.ID })
	newTask(t, s, "api ready", func(tk *task.Task) { tk.ProjectID = p.ID; tk.Status = task.StatusReady })

	all, err := s.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inbox, err := s.ListTasks(ctx, TaskFilter{InboxOnly: true})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "inbox", inbox[0].Text)

	ready, err := s.ListTasks(ctx, TaskFilter{ProjectID: p.ID, Statuses: []task.Status{task.StatusReady}})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "api ready", ready[0].Text)
}

func TestTasksBlockedByUsesExactMembership(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	newTask(t, s, "t1", func(tk *task.Task) { tk.BlockedBy = []int{12} })
	newTask(t, s, "t2", func(tk *task.Task) { tk.BlockedBy = []int{1, 5} })
	newTask(t, s, "t3", func(tk *task.Task) { tk.BlockedBy = []int{21} })

	got, err := s.TasksBlockedBy(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].Text)
}

func TestWorkNoteLedger(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewTestStore(t, WithClock(clock.Now))
	ctx := context.Background()
	tk := newTask(t, s, "x")

	clock.Advance(time.Minute)
	first, err := s.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "one", Author: task.AuthorAgent})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "two"})
	require.NoError(t, err)

	_, err = s.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: " "})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	_, err = s.AppendWorkNote(ctx, "missing", task.WorkNote{Content: "x"})
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeTaskNotFound))

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.WorkNotes, 2)
	assert.Equal(t, first, got.WorkNotes[0])
	assert.Equal(t, "two", got.WorkNotes[1].Content)
	assert.Equal(t, task.AuthorSystem, got.WorkNotes[1].Author)
	assert.Equal(t, clock.Now(), got.UpdatedAt, "appending bumps updated_at")
}

func TestReplaceWorkNotes(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()
	tk := newTask(t, s, "x")
	_, err := s.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "old"})
	require.NoError(t, err)

	_, err = s.ReplaceWorkNotes(ctx, tk.ID, []task.WorkNote{{Content: "ok"}, {Content: ""}})
	require.Error(t, err, "invalid replacement must fail before deleting history")
	notes, err := s.ListWorkNotes(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "old", notes[0].Content)

	replaced, err := s.ReplaceWorkNotes(ctx, tk.ID, []task.WorkNote{{Content: "a"}, {Content: "b"}})
	require.NoError(t, err)
	require.Len(t, replaced, 2)
	notes, err = s.ListWorkNotes(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, replaced, notes)
}

func TestImportWorkNotes(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewTestStore(t, WithClock(clock.Now))
	ctx := context.Background()
	tk := newTask(t, s, "x")
	existing, err := s.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "kept"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	raw := `[
		{"id": "` + existing.ID + `", "content": "kept again"},
		{"id": "n-1", "text": "from tracker", "author": "agent", "timestamp": "2026-02-01T10:00:00Z"},
		"plain string note",
		42,
		{"content": ""}
	]`
	res, err := s.ImportWorkNotes(ctx, tk.ID, raw)
	require.NoError(t, err)
	assert.False(t, res.Clean, "number and empty note are unreadable")
	require.Len(t, res.Added, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "n-1", res.Added[0].ID)
	assert.Equal(t, task.AuthorAgent, res.Added[0].Author)
	assert.Equal(t, "plain string note", res.Added[1].Content)
	assert.Equal(t, task.AuthorSystem, res.Added[1].Author)

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.WorkNotes, 3)
	assert.Equal(t, "kept", got.WorkNotes[0].Content)
	assert.Equal(t, res.Task.WorkNotes, got.WorkNotes)
	assert.Equal(t, clock.Now(), got.UpdatedAt)

	// Re-importing the same ids adds nothing and leaves updated_at alone.
	clock.Advance(time.Minute)
	again, err := s.ImportWorkNotes(ctx, tk.ID, `[{"id": "n-1", "content": "from tracker"}]`)
	require.NoError(t, err)
	assert.Empty(t, again.Added)
	assert.Equal(t, 1, again.Skipped)
	assert.True(t, again.Clean)
	got, err = s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(-time.Minute), got.UpdatedAt)

	legacy, err := s.ImportWorkNotes(ctx, tk.ID, "checked the migration by hand")
	require.NoError(t, err)
	require.Len(t, legacy.Added, 1)
	assert.Equal(t, "checked the migration by hand", legacy.Added[0].Content)

	_, err = s.ImportWorkNotes(ctx, "missing", "x")
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeTaskNotFound))
}

func TestCompareAndSetStatus(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()
	tk := newTask(t, s, "x", func(tk *task.Task) { tk.Status = task.StatusReady })

	var first, second bool
	require.NoError(t, s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		first, err = tx.CompareAndSetStatus(tk.ID, task.StatusReady, task.StatusInProgress)
		return err
	}))
	require.NoError(t, s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		second, err = tx.CompareAndSetStatus(tk.ID, task.StatusReady, task.StatusInProgress)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestExternalIssueRepoIsWriteOnce(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()
	p := &task.Project{Name: "api"}
	require.NoError(t, s.CreateProject(ctx, p))

	legacy := newTask(t, s, "legacy", func(tk *task.Task) {
		tk.ProjectID = p.ID
		tk.ExternalIssueID = 4
	})

	found, err := s.FindTaskByExternalIssue(ctx, p.ID, 4, "acme/api")
	require.NoError(t, err)
	require.NotNil(t, found, "rows without a repo still match")
	assert.Equal(t, legacy.ID, found.ID)

	var wrote bool
	require.NoError(t, s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		wrote, err = tx.SetExternalIssueRepoIfUnset(legacy.ID, "acme/api")
		return err
	}))
	assert.True(t, wrote)
	require.NoError(t, s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		wrote, err = tx.SetExternalIssueRepoIfUnset(legacy.ID, "acme/fork")
		return err
	}))
	assert.False(t, wrote)

	got, err := s.GetTask(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/api", got.ExternalIssueRepo)

	other, err := s.FindTaskByExternalIssue(ctx, p.ID, 4, "acme/fork")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRunInTxRollsBack(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx *TxOps) error {
		if err := tx.CreateTask(&task.Task{Text: "doomed"}); err != nil {
			return err
		}
		return boarderrors.ErrValidation("x", "forced")
	})
	require.Error(t, err)

	tasks, err := s.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	t.Parallel()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "board.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.CreateTask(context.Background(), &task.Task{Text: "t", Tags: []string{string(rune('a' + i))}})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(context.Background(), TaskFilter{SkipNotes: true})
	require.NoError(t, err)
	require.Len(t, tasks, n)
	seenNumber := map[int]bool{}
	seenSort := map[int]bool{}
	for _, tk := range tasks {
		assert.False(t, seenNumber[tk.Number], "duplicate task number %d", tk.Number)
		assert.False(t, seenSort[tk.SortOrder], "duplicate sort order %d", tk.SortOrder)
		seenNumber[tk.Number] = true
		seenSort[tk.SortOrder] = true
	}
}
