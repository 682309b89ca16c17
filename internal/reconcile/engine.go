// Package reconcile materializes external tracker issues as tasks.
//
// An Engine walks projects one at a time, lists each project's open issues,
// and creates or updates the matching tasks. All tracker calls share one
// RateLimiter, so a limit hit in one project suspends the rest of the cycle.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/taskboard/internal/db"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/hosting"
	"github.com/randalmurphal/taskboard/internal/task"
)

// TrackerFactory returns the tracker serving a project.
type TrackerFactory func(p *task.Project) (hosting.Tracker, error)

// Options configures an Engine.
type Options struct {
	// Limiter is shared by every tracker call. Nil creates a fresh one.
	Limiter *RateLimiter
	// Trackers resolves a project's tracker. Nil uses hosting.NewTracker
	// with the settings from Hosting.
	Trackers TrackerFactory
	// Hosting returns the tracker settings for a repository URL. Nil uses
	// the zero Config, which reads tokens from the default env vars.
	Hosting func(repoURL string) hosting.Config
	// IgnoreLabels are doublestar globs; matching issues are not imported.
	IgnoreLabels []string
	Logger       *slog.Logger
}

// Engine reconciles projects against their external trackers.
type Engine struct {
	store        *db.Store
	limiter      *RateLimiter
	trackers     TrackerFactory
	ignoreLabels []string
	logger       *slog.Logger

	cycles singleflight.Group
}

// NewEngine creates an Engine.
func NewEngine(store *db.Store, opts Options) (*Engine, error) {
	for _, pattern := range opts.IgnoreLabels {
		if !doublestar.ValidatePattern(strings.ToLower(pattern)) {
			return nil, boarderrors.ErrConfigInvalid("sync.ignore_labels", fmt.Sprintf("invalid glob %q", pattern))
		}
	}
	e := &Engine{
		store:        store,
		limiter:      opts.Limiter,
		trackers:     opts.Trackers,
		ignoreLabels: opts.IgnoreLabels,
		logger:       opts.Logger,
	}
	if e.limiter == nil {
		e.limiter = NewRateLimiter()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.trackers == nil {
		e.trackers = cachedTrackers(opts.Hosting)
	}
	return e, nil
}

// Limiter returns the engine's rate limiter.
func (e *Engine) Limiter() *RateLimiter {
	return e.limiter
}

// cachedTrackers builds one tracker per repository URL and reuses it, so
// client-side rate bookkeeping survives across cycles.
func cachedTrackers(settings func(string) hosting.Config) TrackerFactory {
	var mu sync.Mutex
	cache := map[string]hosting.Tracker{}
	return func(p *task.Project) (hosting.Tracker, error) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := cache[p.ExternalRepoURL]; ok {
			return t, nil
		}
		var cfg hosting.Config
		if settings != nil {
			cfg = settings(p.ExternalRepoURL)
		}
		t, err := hosting.NewTracker(p.ExternalRepoURL, cfg)
		if err != nil {
			return nil, err
		}
		cache[p.ExternalRepoURL] = t
		return t, nil
	}
}

// ProjectResult summarizes one project's reconciliation.
type ProjectResult struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	SkippedPRs  int    `json:"skipped_pull_requests"`
	Ignored     int    `json:"ignored"`

	RateLimited bool      `json:"rate_limited"`
	RetryAfter  time.Time `json:"retry_after,omitempty"`

	// Errors are transient failures; the project is retried next cycle.
	Errors []string `json:"errors,omitempty"`
	// Synced is true when the listing succeeded and last_sync_at was bumped.
	Synced bool `json:"synced"`
}

// Reconcile syncs one project. Rate limits and tracker failures are
// reported in the result; the error return is reserved for problems with
// the project itself.
func (e *Engine) Reconcile(ctx context.Context, p *task.Project) (*ProjectResult, error) {
	if p.ExternalRepoURL == "" {
		return nil, boarderrors.ErrValidation("external_repo_url",
			fmt.Sprintf("project %s has no external repository", p.Name))
	}
	res := &ProjectResult{ProjectID: p.ID, ProjectName: p.Name}
	logger := e.logger.With("project", p.Name)

	if blocked, until := e.limiter.Blocked(); blocked {
		res.RateLimited = true
		res.RetryAfter = until
		return res, nil
	}

	tracker, err := e.trackers(p)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("tracker: %v", err))
		return res, nil
	}

	owner, repo := hosting.ParseOwnerRepo(p.ExternalRepoURL)
	list, err := tracker.ListOpenIssues(ctx, owner, repo)
	if list != nil {
		e.limiter.Observe(list.Rate)
	}
	if err != nil {
		if rl, ok := hosting.AsRateLimit(err); ok {
			res.RateLimited = true
			res.RetryAfter = e.limiter.Trip(rl.ResetAt)
			logger.Warn("tracker rate limit hit", "status", rl.StatusCode, "retry_after", res.RetryAfter)
			return res, nil
		}
		res.Errors = append(res.Errors, boarderrors.ErrTrackerUnavailable(string(tracker.Name()), err).Error())
		logger.Warn("list issues failed", "error", err)
		return res, nil
	}

	for _, issue := range list.Issues {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if issue.IsPullRequest {
			res.SkippedPRs++
			continue
		}
		if e.ignored(issue.Labels) {
			res.Ignored++
			continue
		}
		if issue.Repo == "" {
			issue.Repo = strings.TrimPrefix(owner+"/"+repo, "/")
		}
		outcome, err := e.apply(ctx, p, issue)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("issue #%d: %v", issue.Number, err))
			logger.Warn("apply issue failed", "issue", issue.Number, "error", err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			res.Created++
		case outcomeUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	if err := e.store.UpdateProjectSyncTime(ctx, p.ID, e.store.Now()); err != nil {
		return res, fmt.Errorf("update last sync time: %w", err)
	}
	res.Synced = true
	logger.Info("project reconciled",
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged,
		"skipped_prs", res.SkippedPRs, "ignored", res.Ignored, "errors", len(res.Errors))
	return res, nil
}

func (e *Engine) ignored(labels []string) bool {
	for _, label := range labels {
		l := strings.ToLower(label)
		for _, pattern := range e.ignoreLabels {
			if ok, _ := doublestar.Match(strings.ToLower(pattern), l); ok {
				return true
			}
		}
	}
	return false
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

func issueTitle(issue hosting.Issue) string {
	if title := strings.TrimSpace(issue.Title); title != "" {
		return title
	}
	return fmt.Sprintf("Issue #%d", issue.Number)
}

// apply creates or updates the task for one issue.
func (e *Engine) apply(ctx context.Context, p *task.Project, issue hosting.Issue) (outcome, error) {
	priority, labels := issuePriority(issue.Labels, issue.PriorityHint)
	tags := task.NormalizeTags(labels)

	existing, err := e.store.FindTaskByExternalIssue(ctx, p.ID, issue.Number, issue.Repo)
	if err != nil {
		return outcomeUnchanged, err
	}

	if existing == nil {
		source := fmt.Sprintf("%s#%d", issue.Repo, issue.Number)
		if issue.URL != "" {
			source = issue.URL
		}
		tk := &task.Task{
			Text:              issueTitle(issue),
			Notes:             issue.Body,
			Tags:              tags,
			Priority:          priority,
			Status:            task.IntakeStatus,
			ProjectID:         p.ID,
			ExternalIssueID:   issue.Number,
			ExternalIssueRepo: issue.Repo,
			WorkNotes: []task.WorkNote{{
				Content: "imported from " + source,
				Author:  task.AuthorSystem,
			}},
		}
		if err := e.store.CreateTask(ctx, tk); err != nil {
			return outcomeUnchanged, fmt.Errorf("create task: %w", err)
		}
		return outcomeCreated, nil
	}

	update := diff(existing, issueTitle(issue), issue.Body, tags, priority)
	changed := false
	err = e.store.RunInTx(ctx, func(tx *db.TxOps) error {
		if !update.IsEmpty() {
			if err := tx.UpdateTask(existing.ID, update); err != nil {
				return err
			}
			changed = true
		}
		if existing.ExternalIssueRepo == "" {
			wrote, err := tx.SetExternalIssueRepoIfUnset(existing.ID, issue.Repo)
			if err != nil {
				return err
			}
			changed = changed || wrote
		}
		return nil
	})
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("update task %s: %w", existing.Ref(), err)
	}
	if changed {
		return outcomeUpdated, nil
	}
	return outcomeUnchanged, nil
}

// diff returns the partial update that brings t in line with the issue.
// Tags are merged, never removed, and priority only ever goes up.
func diff(t *task.Task, title, body string, tags []string, priority task.Priority) db.TaskUpdate {
	var u db.TaskUpdate
	if t.Text != title {
		u.Text = &title
	}
	if t.Notes != body {
		u.Notes = &body
	}
	merged := task.NormalizeTags(append(slices.Clone(t.Tags), tags...))
	if len(merged) != len(t.Tags) {
		u.Tags = &merged
	}
	if priority.Rank() > t.Priority.Rank() {
		u.Priority = &priority
	}
	return u
}

// CycleResult summarizes a multi-project sync cycle.
type CycleResult struct {
	Projects []*ProjectResult `json:"projects"`
	// SkippedProjects counts projects not attempted because the cycle hit
	// a rate limit.
	SkippedProjects int       `json:"skipped_projects"`
	RateLimited     bool      `json:"rate_limited"`
	RetryAfter      time.Time `json:"retry_after,omitempty"`
}

// Explain renders the cycle outcome for logs and CLI output.
func (c *CycleResult) Explain() string {
	var created, updated int
	for _, p := range c.Projects {
		created += p.Created
		updated += p.Updated
	}
	msg := fmt.Sprintf("synced %d project(s): %d created, %d updated", len(c.Projects), created, updated)
	if c.RateLimited {
		msg += fmt.Sprintf("; rate limited until %s, %d project(s) skipped",
			c.RetryAfter.UTC().Format(time.RFC3339), c.SkippedProjects)
	}
	return msg
}

// RunCycle reconciles projects in order. A rate-limit hit stops the cycle;
// the projects not yet attempted are counted as skipped. Concurrent calls
// for the same project set share one run.
func (e *Engine) RunCycle(ctx context.Context, projects []*task.Project) (*CycleResult, error) {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	v, err, _ := e.cycles.Do(strings.Join(ids, ","), func() (any, error) {
		return e.runCycle(ctx, projects)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CycleResult), nil
}

func (e *Engine) runCycle(ctx context.Context, projects []*task.Project) (*CycleResult, error) {
	out := &CycleResult{}
	for i, p := range projects {
		if blocked, until := e.limiter.Blocked(); blocked {
			out.RateLimited = true
			out.RetryAfter = until
			out.SkippedProjects = len(projects) - i
			break
		}
		res, err := e.Reconcile(ctx, p)
		if err != nil {
			return out, fmt.Errorf("reconcile %s: %w", p.Name, err)
		}
		out.Projects = append(out.Projects, res)
		if res.RateLimited {
			out.RateLimited = true
			out.RetryAfter = res.RetryAfter
			out.SkippedProjects = len(projects) - i - 1
			break
		}
	}
	if out.RateLimited {
		e.logger.Warn("sync cycle stopped by rate limit",
			"retry_after", out.RetryAfter, "skipped_projects", out.SkippedProjects)
	}
	return out, nil
}

// SyncAll reconciles every project that has an external repository.
func (e *Engine) SyncAll(ctx context.Context) (*CycleResult, error) {
	all, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	linked := make([]*task.Project, 0, len(all))
	for _, p := range all {
		if p.ExternalRepoURL != "" {
			linked = append(linked, p)
		}
	}
	return e.RunCycle(ctx, linked)
}
