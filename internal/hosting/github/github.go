// Package github reads issues from GitHub and GitHub Enterprise.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Tracker = (*Tracker)(nil)

func init() {
	hosting.RegisterTracker(hosting.ProviderGitHub, newTracker)
}

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
)

// Tracker implements hosting.Tracker using the go-github library.
type Tracker struct {
	client  *gogithub.Client
	timeout time.Duration
	now     func() time.Time
}

// newTracker creates a Tracker for a repository URL.
func newTracker(repoURL string, cfg hosting.Config) (hosting.Tracker, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &oauth2Transport{token: token},
	}
	client := gogithub.NewClient(httpClient)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = hosting.HostBaseURL(repoURL)
	}
	// GitHub Enterprise: override base URL.
	if baseURL != "" {
		baseURL = strings.TrimSuffix(baseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", baseURL, parseErr)
		}
	}

	return New(client, cfg.RequestTimeout()), nil
}

// New wraps an existing go-github client.
func New(client *gogithub.Client, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = hosting.DefaultTimeout
	}
	return &Tracker{client: client, timeout: timeout, now: time.Now}
}

// oauth2Transport adds an Authorization header to every request.
type oauth2Transport struct {
	token string
	base  http.RoundTripper
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// Name returns the provider type.
func (g *Tracker) Name() hosting.ProviderType {
	return hosting.ProviderGitHub
}

// ListOpenIssues lists every open issue, following pagination. GitHub's
// issues endpoint also returns pull requests; they are flagged, not dropped.
func (g *Tracker) ListOpenIssues(ctx context.Context, owner, repo string) (*hosting.IssueList, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out := &hosting.IssueList{Rate: hosting.UnknownRate}
	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if resp != nil {
			out.Rate = rateInfo(resp)
		}
		if err != nil {
			return out, g.classify(err, "list issues")
		}
		for _, issue := range issues {
			out.Issues = append(out.Issues, mapIssue(issue, owner+"/"+repo))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

// GetIssue fetches one issue by number.
func (g *Tracker) GetIssue(ctx context.Context, owner, repo string, number int) (*hosting.Issue, hosting.RateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	issue, resp, err := g.client.Issues.Get(ctx, owner, repo, number)
	rate := hosting.UnknownRate
	if resp != nil {
		rate = rateInfo(resp)
	}
	if err != nil {
		return nil, rate, g.classify(err, fmt.Sprintf("get issue #%d", number))
	}
	mapped := mapIssue(issue, owner+"/"+repo)
	return &mapped, rate, nil
}

func rateInfo(resp *gogithub.Response) hosting.RateInfo {
	if resp.Response == nil || resp.Header.Get(headerRateRemaining) == "" {
		return hosting.UnknownRate
	}
	info := hosting.RateInfo{Remaining: resp.Rate.Remaining}
	if !resp.Rate.Reset.IsZero() {
		info.ResetAt = resp.Rate.Reset.UTC()
	}
	return info
}

// classify maps go-github errors onto hosting errors. 403 and 429 always
// become rate-limit errors.
func (g *Tracker) classify(err error, op string) error {
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return &hosting.RateLimitError{
			Provider:   hosting.ProviderGitHub,
			StatusCode: statusOf(rle.Response, http.StatusForbidden),
			ResetAt:    rle.Rate.Reset.UTC(),
			Err:        err,
		}
	}

	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &abuse) {
		var reset time.Time
		if abuse.RetryAfter != nil {
			reset = g.now().Add(*abuse.RetryAfter).UTC()
		}
		return &hosting.RateLimitError{
			Provider:   hosting.ProviderGitHub,
			StatusCode: statusOf(abuse.Response, http.StatusForbidden),
			ResetAt:    reset,
			Err:        err,
		}
	}

	var er *gogithub.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		code := er.Response.StatusCode
		switch {
		case hosting.IsRateLimitStatus(code):
			return &hosting.RateLimitError{
				Provider:   hosting.ProviderGitHub,
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

func statusOf(resp *http.Response, fallback int) int {
	if resp == nil {
		return fallback
	}
	return resp.StatusCode
}

func mapIssue(issue *gogithub.Issue, repo string) hosting.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if name := l.GetName(); name != "" {
			labels = append(labels, name)
		}
	}
	return hosting.Issue{
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		Repo:          repo,
		Labels:        labels,
		IsPullRequest: issue.IsPullRequest(),
		URL:           issue.GetHTMLURL(),
	}
}
