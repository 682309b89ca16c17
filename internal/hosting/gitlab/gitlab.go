// Package gitlab reads issues from GitLab and self-hosted GitLab instances.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Tracker = (*Tracker)(nil)

func init() {
	hosting.RegisterTracker(hosting.ProviderGitLab, newTracker)
}

const (
	headerRateRemaining = "RateLimit-Remaining"
	headerRateReset     = "RateLimit-Reset"
)

// Tracker implements hosting.Tracker using the GitLab client-go library.
// Projects are addressed by their full path ("group/subgroup/repo").
type Tracker struct {
	client  *gogitlab.Client
	timeout time.Duration
	now     func() time.Time
}

// newTracker creates a Tracker for a repository URL.
func newTracker(repoURL string, cfg hosting.Config) (hosting.Tracker, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = hosting.HostBaseURL(repoURL)
	}
	return New(token, baseURL, cfg.RequestTimeout())
}

// New creates a Tracker against baseURL ("" for gitlab.com). The client's
// own retries are disabled; rate limits are left to the caller.
func New(token, baseURL string, timeout time.Duration) (*Tracker, error) {
	opts := []gogitlab.ClientOptionFunc{gogitlab.WithCustomRetryMax(0)}
	if baseURL != "" {
		opts = append(opts, gogitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"))
	}
	client, err := gogitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}
	if timeout <= 0 {
		timeout = hosting.DefaultTimeout
	}
	return &Tracker{client: client, timeout: timeout, now: time.Now}, nil
}

// Name returns the provider type.
func (g *Tracker) Name() hosting.ProviderType {
	return hosting.ProviderGitLab
}

func projectPath(owner, repo string) string {
	return owner + "/" + repo
}

// ListOpenIssues lists every opened issue, following pagination. Merge
// requests live on a separate endpoint, so nothing here is a pull request.
func (g *Tracker) ListOpenIssues(ctx context.Context, owner, repo string) (*hosting.IssueList, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pid := projectPath(owner, repo)
	out := &hosting.IssueList{Rate: hosting.UnknownRate}
	opts := &gogitlab.ListProjectIssuesOptions{
		State:       gogitlab.Ptr("opened"),
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := g.client.Issues.ListProjectIssues(pid, opts, gogitlab.WithContext(ctx))
		if resp != nil {
			out.Rate = g.rateInfo(resp)
		}
		if err != nil {
			return out, g.classify(err, "list issues")
		}
		for _, issue := range issues {
			out.Issues = append(out.Issues, mapIssue(issue, pid))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetIssue fetches one issue by its project-scoped IID.
func (g *Tracker) GetIssue(ctx context.Context, owner, repo string, number int) (*hosting.Issue, hosting.RateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pid := projectPath(owner, repo)
	issue, resp, err := g.client.Issues.GetIssue(pid, int64(number), gogitlab.WithContext(ctx))
	rate := hosting.UnknownRate
	if resp != nil {
		rate = g.rateInfo(resp)
	}
	if err != nil {
		return nil, rate, g.classify(err, fmt.Sprintf("get issue #%d", number))
	}
	mapped := mapIssue(issue, pid)
	return &mapped, rate, nil
}

func (g *Tracker) rateInfo(resp *gogitlab.Response) hosting.RateInfo {
	if resp.Response == nil {
		return hosting.UnknownRate
	}
	return hosting.RateInfo{
		Remaining: hosting.RemainingFromHeader(resp.Header, headerRateRemaining),
		ResetAt:   hosting.ResetFromHeaders(resp.Header, headerRateReset, g.now()),
	}
}

// classify maps client-go errors onto hosting errors. 403 and 429 always
// become rate-limit errors.
func (g *Tracker) classify(err error, op string) error {
	var er *gogitlab.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		code := er.Response.StatusCode
		switch {
		case hosting.IsRateLimitStatus(code):
			return &hosting.RateLimitError{
				Provider:   hosting.ProviderGitLab,
				StatusCode: code,
				ResetAt:    hosting.ResetFromHeaders(er.Response.Header, headerRateReset, g.now()),
				Err:        err,
			}
		case code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, hosting.ErrNotFound)
		case code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, hosting.ErrAuthFailed)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mapIssue(issue *gogitlab.Issue, pid string) hosting.Issue {
	return hosting.Issue{
		Number: int(issue.IID),
		Title:  issue.Title,
		Body:   issue.Description,
		Repo:   pid,
		Labels: []string(issue.Labels),
		URL:    issue.WebURL,
	}
}
