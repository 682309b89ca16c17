package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/taskboard/internal/db"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/git"
	"github.com/randalmurphal/taskboard/internal/lifecycle"
	"github.com/randalmurphal/taskboard/internal/task"
)

// DefaultInterval is how often a running worker re-evaluates the board.
const DefaultInterval = 30 * time.Second

// RepoInspector reports working directory state for stuck diagnostics.
type RepoInspector interface {
	RepoState(ctx context.Context, path string) git.RepoState
}

// Scope narrows the tasks a worker considers. The zero value is the whole
// board.
type Scope struct {
	ProjectID string
	InboxOnly bool
}

func (s Scope) contains(t *task.Task) bool {
	switch {
	case s.InboxOnly:
		return t.ProjectID == ""
	case s.ProjectID != "":
		return t.ProjectID == s.ProjectID
	default:
		return true
	}
}

// Config holds worker configuration.
type Config struct {
	Scope          Scope
	Interval       time.Duration
	StuckThreshold time.Duration
	ReviewCooldown time.Duration
	// RepoPath is inspected for tasks whose project has no local path.
	RepoPath string
	Logger   *slog.Logger
}

// Pick is the result of PickNextTask.
type Pick struct {
	Decision Decision `json:"decision"`
	// Stuck is set when the decision is to resume a task.
	Stuck *StuckReport `json:"stuck,omitempty"`
}

// Worker exposes the worker entry points over a store and runs the polling
// loop.
type Worker struct {
	store     *db.Store
	machine   *lifecycle.Machine
	inspector RepoInspector
	cfg       Config
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a worker. A nil inspector uses git with the default
// timeout.
func NewWorker(store *db.Store, machine *lifecycle.Machine, inspector RepoInspector, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = DefaultStuckThreshold
	}
	if cfg.ReviewCooldown <= 0 {
		cfg.ReviewCooldown = DefaultReviewCooldown
	}
	if cfg.RepoPath == "" {
		cfg.RepoPath = "."
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if inspector == nil {
		inspector = git.NewInspector(nil)
	}
	return &Worker{
		store:     store,
		machine:   machine,
		inspector: inspector,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// snapshot loads every task so blockers outside the scope resolve, and
// returns the in-scope subset alongside the graph.
func (w *Worker) snapshot(ctx context.Context) ([]*task.Task, *task.Graph, error) {
	all, err := w.store.ListTasks(ctx, db.TaskFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list tasks: %w", err)
	}
	scoped := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if w.cfg.Scope.contains(t) {
			scoped = append(scoped, t)
		}
	}
	return scoped, task.NewGraph(all, w.logger), nil
}

// PickNextTask decides what to work on. When a task is already in
// progress it is checked for being stuck; a stuck task gets a diagnostic
// system note but keeps its status.
func (w *Worker) PickNextTask(ctx context.Context) (*Pick, error) {
	tasks, graph, err := w.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	pick := &Pick{Decision: SelectNext(tasks, graph)}
	if pick.Decision.Kind != DecisionResume {
		return pick, nil
	}

	cur := pick.Decision.Task
	report := CheckStuck(cur, w.store.Now(), w.cfg.StuckThreshold)
	if report.Stuck {
		state := w.inspector.RepoState(ctx, w.repoPath(ctx, cur))
		note := diagnose(cur, &report, state)
		if _, err := w.store.AppendWorkNote(ctx, cur.ID, note); err != nil {
			return nil, fmt.Errorf("record stuck diagnostic for %s: %w", cur.Ref(), err)
		}
		w.logger.Warn("task appears stuck",
			"task", cur.Number,
			"in_progress_for", report.InProgressFor.Round(time.Second),
			"repo_state", state.String())
	}
	pick.Stuck = &report
	return pick, nil
}

func (w *Worker) repoPath(ctx context.Context, t *task.Task) string {
	if t.ProjectID == "" {
		return w.cfg.RepoPath
	}
	p, err := w.store.GetProject(ctx, t.ProjectID)
	if err != nil || p.LocalPath == "" {
		return w.cfg.RepoPath
	}
	return p.LocalPath
}

// MarkInProgress claims a ready task. Only one concurrent caller wins; a
// worker that already has a task in progress in its scope is refused.
func (w *Worker) MarkInProgress(ctx context.Context, taskID, note string) (*task.Task, error) {
	active, err := w.store.ListTasks(ctx, db.TaskFilter{
		ProjectID: w.cfg.Scope.ProjectID,
		InboxOnly: w.cfg.Scope.InboxOnly,
		Statuses:  []task.Status{task.StatusInProgress},
		SkipNotes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list in-progress tasks: %w", err)
	}
	for _, t := range active {
		if t.ID != taskID {
			return nil, boarderrors.ErrValidation("status",
				fmt.Sprintf("task %s is already in progress; finish or block it first", t.Ref()))
		}
	}

	var n *task.WorkNote
	if strings.TrimSpace(note) != "" {
		n = &task.WorkNote{Content: note, Author: task.AuthorAgent}
	}
	return w.machine.Claim(ctx, taskID, n)
}

// CompleteWithSummary records the summary and completes the task in one
// transition. Without a summary the task's existing notes must satisfy the
// completion gate.
func (w *Worker) CompleteWithSummary(ctx context.Context, taskID, summary string) (*lifecycle.TransitionResult, error) {
	opts := lifecycle.TransitionOptions{}
	if strings.TrimSpace(summary) != "" {
		opts.Note = &task.WorkNote{Content: summary, Author: task.AuthorAgent}
	}
	res, err := w.machine.Transition(ctx, taskID, task.StatusCompleted, opts)
	if err != nil {
		if boarderrors.HasCode(err, boarderrors.CodeWorkNotesRequired) {
			w.logger.Info("completion refused: no work notes", "task_id", taskID)
		}
		return nil, err
	}
	return res, nil
}

// BlockTask moves a task to blocked, recording the reason.
func (w *Worker) BlockTask(ctx context.Context, taskID, reason string) (*lifecycle.TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, boarderrors.ErrValidation("reason", "a reason is required to block a task")
	}
	return w.machine.Transition(ctx, taskID, task.StatusBlocked, lifecycle.TransitionOptions{
		Note: &task.WorkNote{Content: "blocked: " + reason, Author: task.AuthorAgent},
	})
}

// ReviewQueue returns the review tasks in scope that are due for a review
// pass. It is empty when the workflow has no review status.
func (w *Worker) ReviewQueue(ctx context.Context) ([]*task.Task, error) {
	if !w.machine.Workflow().ReviewEnabled {
		return nil, nil
	}
	tasks, err := w.store.ListTasks(ctx, db.TaskFilter{
		ProjectID: w.cfg.Scope.ProjectID,
		InboxOnly: w.cfg.Scope.InboxOnly,
		Statuses:  []task.Status{task.StatusReview},
	})
	if err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	return ReviewQueue(tasks, w.store.Now(), w.cfg.ReviewCooldown), nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	w.logger.Info("worker started", "interval", w.cfg.Interval)
}

// Stop stops polling and waits for the loop to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// Run polls until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	w.run(ctx)
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll evaluates the board once and logs the outcome.
func (w *Worker) poll(ctx context.Context) {
	pick, err := w.PickNextTask(ctx)
	if err != nil {
		w.logger.Error("pick next task failed", "error", err)
		return
	}
	d := pick.Decision
	switch d.Kind {
	case DecisionStart, DecisionResume:
		w.logger.Info(d.Explain(), "decision", d.Kind, "task", d.Task.Number)
	default:
		w.logger.Info("no action taken", "decision", d.Kind, "reason", d.Explain(),
			"ready", d.ReadyCount, "backlog", d.BacklogCount)
	}

	due, err := w.ReviewQueue(ctx)
	if err != nil {
		w.logger.Error("review queue failed", "error", err)
		return
	}
	if len(due) > 0 {
		w.logger.Info("tasks awaiting review", "count", len(due), "next", due[0].Number)
	}
}
