package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskboard/internal/db"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/git"
	"github.com/randalmurphal/taskboard/internal/lifecycle"
	"github.com/randalmurphal/taskboard/internal/task"
)

type fakeInspector struct {
	mu    sync.Mutex
	state git.RepoState
	paths []string
}

func (f *fakeInspector) RepoState(_ context.Context, path string) git.RepoState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.state
}

type harness struct {
	store     *db.Store
	clock     *db.ManualClock
	inspector *fakeInspector
	worker    *Worker
}

func newHarness(t *testing.T, wf task.Workflow, cfg Config) *harness {
	t.Helper()
	clock := db.NewManualClock(base)
	store := db.NewTestStore(t, db.WithClock(clock.Now))
	inspector := &fakeInspector{state: git.RepoState{Known: true, CommitsBehindUpstream: -1}}
	machine := lifecycle.New(store, wf, nil)
	return &harness{
		store:     store,
		clock:     clock,
		inspector: inspector,
		worker:    NewWorker(store, machine, inspector, cfg),
	}
}

func (h *harness) create(t *testing.T, text string, status task.Status, blockedBy ...int) *task.Task {
	t.Helper()
	tk := &task.Task{Text: text, Status: status, BlockedBy: blockedBy}
	require.NoError(t, h.store.CreateTask(context.Background(), tk))
	return tk
}

func TestPickNextTaskSkipsBlockedTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{})
	ctx := context.Background()

	x := h.create(t, "X", task.StatusBacklog)
	a := h.create(t, "A", task.StatusReady, x.Number)
	b := h.create(t, "B", task.StatusReady)
	require.Less(t, a.SortOrder, b.SortOrder)

	pick, err := h.worker.PickNextTask(ctx)
	require.NoError(t, err)
	require.Equal(t, DecisionStart, pick.Decision.Kind)
	assert.Equal(t, b.ID, pick.Decision.Task.ID)
	assert.Nil(t, pick.Stuck)
}

func TestPickNextTaskFlagsStuckTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{RepoPath: "/work/repo"})
	h.inspector.state = git.RepoState{Known: true, HasUncommittedChanges: true, ChangedFiles: 1, CommitsBehindUpstream: 0}
	ctx := context.Background()

	tk := h.create(t, "T", task.StatusInProgress)
	_, err := h.store.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "started", Author: task.AuthorAgent})
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)

	pick, err := h.worker.PickNextTask(ctx)
	require.NoError(t, err)
	require.Equal(t, DecisionResume, pick.Decision.Kind)
	require.NotNil(t, pick.Stuck)
	assert.True(t, pick.Stuck.Stuck)
	assert.NotEmpty(t, pick.Stuck.Guidance)
	assert.Equal(t, []string{"/work/repo"}, h.inspector.paths)

	got, err := h.store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status, "stuck detection never changes status")
	last := got.WorkNotes[len(got.WorkNotes)-1]
	assert.Equal(t, task.AuthorSystem, last.Author)
	assert.Contains(t, last.Content, "stuck check")
	assert.Contains(t, last.Content, "1 uncommitted change(s)")
}

func TestPickNextTaskNotStuckWithProgress(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{})
	ctx := context.Background()

	tk := h.create(t, "T", task.StatusInProgress)
	_, err := h.store.AppendWorkNote(ctx, tk.ID, task.WorkNote{Content: "reproduced the failure", Author: task.AuthorAgent})
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	pick, err := h.worker.PickNextTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, pick.Stuck)
	assert.False(t, pick.Stuck.Stuck)
	assert.Empty(t, h.inspector.paths)
}

func TestPickNextTaskInspectsProjectPath(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{RepoPath: "/default"})
	ctx := context.Background()

	p := &task.Project{Name: "api", LocalPath: "/src/api"}
	require.NoError(t, h.store.CreateProject(ctx, p))
	tk := &task.Task{Text: "T", Status: task.StatusInProgress, ProjectID: p.ID}
	require.NoError(t, h.store.CreateTask(ctx, tk))
	h.clock.Advance(11 * time.Minute)

	_, err := h.worker.PickNextTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/api"}, h.inspector.paths)
}

func TestPickNextTaskRespectsScope(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{Scope: Scope{InboxOnly: true}})
	ctx := context.Background()

	p := &task.Project{Name: "api"}
	require.NoError(t, h.store.CreateProject(ctx, p))
	require.NoError(t, h.store.CreateTask(ctx, &task.Task{Text: "in project", Status: task.StatusInProgress, ProjectID: p.ID}))
	inbox := h.create(t, "inbox", task.StatusReady)

	pick, err := h.worker.PickNextTask(ctx)
	require.NoError(t, err)
	require.Equal(t, DecisionStart, pick.Decision.Kind)
	assert.Equal(t, inbox.ID, pick.Decision.Task.ID)
}

func TestMarkInProgress(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{})
	ctx := context.Background()

	first := h.create(t, "first", task.StatusReady)
	second := h.create(t, "second", task.StatusReady)

	got, err := h.worker.MarkInProgress(ctx, first.ID, "picking this up to fix the login bug")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	require.Len(t, got.WorkNotes, 2)
	assert.Equal(t, task.AuthorAgent, got.WorkNotes[0].Author)

	_, err = h.worker.MarkInProgress(ctx, second.ID, "")
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	_, err = h.worker.MarkInProgress(ctx, first.ID, "")
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeClaimConflict), "already claimed")
}

func TestCompleteWithSummary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{})
	ctx := context.Background()

	tk := h.create(t, "T", task.StatusInProgress)
	dependent := h.create(t, "D", task.StatusBlocked, tk.Number)

	_, err := h.worker.CompleteWithSummary(ctx, tk.ID, "  ")
	require.Error(t, err)
	be := boarderrors.AsBoardError(err)
	require.NotNil(t, be)
	assert.Equal(t, boarderrors.CodeWorkNotesRequired, be.Code)
	assert.NotEmpty(t, be.Fix)

	res, err := h.worker.CompleteWithSummary(ctx, tk.ID, "fixed the token refresh and added tests")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Task.Status)
	assert.Equal(t, "fixed the token refresh and added tests", res.Task.WorkNotes[0].Content)
	require.NotNil(t, res.Cascade)
	assert.Equal(t, []int{dependent.Number}, res.Cascade.Unblocked)

	got, err := h.store.GetTask(ctx, dependent.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, got.Status)
	assert.Empty(t, got.BlockedBy)
}

func TestBlockTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{})
	ctx := context.Background()
	tk := h.create(t, "T", task.StatusInProgress)

	_, err := h.worker.BlockTask(ctx, tk.ID, " ")
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeValidationFailed))

	res, err := h.worker.BlockTask(ctx, tk.ID, "waiting on API credentials")
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, res.Task.Status)
	assert.Equal(t, "blocked: waiting on API credentials", res.Task.WorkNotes[0].Content)
}

func TestWorkerReviewQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	off := newHarness(t, task.Workflow{}, Config{})
	due, err := off.worker.ReviewQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	h := newHarness(t, task.Workflow{ReviewEnabled: true}, Config{})
	fresh := h.create(t, "fresh", task.StatusReview)
	reviewed := h.create(t, "reviewed", task.StatusReview)
	_, err = h.store.AppendWorkNote(ctx, reviewed.ID, task.WorkNote{Content: "review: missing tests", Author: task.AuthorAgent})
	require.NoError(t, err)

	due, err = h.worker.ReviewQueue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, fresh.ID, due[0].ID)

	h.clock.Advance(61 * time.Minute)
	due, err = h.worker.ReviewQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{Interval: 10 * time.Millisecond})
	h.create(t, "T", task.StatusReady)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStartStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, task.Workflow{}, Config{Interval: 10 * time.Millisecond})

	h.worker.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	h.worker.Stop()
	h.worker.Stop()
}
