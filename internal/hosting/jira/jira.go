// Package jira reads open issues from a Jira Cloud project.
//
// A project is addressed by its key ("PROJ"); issue numbers are the numeric
// part of the issue key, so PROJ-42 maps to issue 42 in repo "PROJ".
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Tracker = (*Tracker)(nil)

func init() {
	hosting.RegisterTracker(hosting.ProviderJira, newTracker)
}

const pageSize = 50

// searchFields are the Jira fields requested in search results.
var searchFields = []string{"summary", "description", "labels", "priority", "issuetype"}

// Tracker implements hosting.Tracker using the go-atlassian Jira v3 client.
type Tracker struct {
	jira    *v3.Client
	site    string
	timeout time.Duration
	now     func() time.Time
}

func newTracker(repoURL string, cfg hosting.Config) (hosting.Tracker, error) {
	email, token, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}
	site := cfg.BaseURL
	if site == "" {
		site = hosting.JiraBaseURL(repoURL)
	}
	return New(site, email, token, cfg.RequestTimeout())
}

// New creates a Tracker for a Jira Cloud site ("https://acme.atlassian.net").
func New(site, email, token string, timeout time.Duration) (*Tracker, error) {
	if site == "" {
		return nil, fmt.Errorf("jira base URL is required (hosting.base_url or an atlassian.net project URL)")
	}
	if timeout <= 0 {
		timeout = hosting.DefaultTimeout
	}
	site = strings.TrimRight(site, "/")

	client, err := v3.New(&http.Client{Timeout: timeout}, site)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	client.Auth.SetBasicAuth(email, token)
	client.Auth.SetUserAgent("taskboard-sync/1.0")

	return &Tracker{jira: client, site: site, timeout: timeout, now: time.Now}, nil
}

// Name returns the provider type.
func (t *Tracker) Name() hosting.ProviderType {
	return hosting.ProviderJira
}

// ListOpenIssues lists every issue in the project whose status category is
// not done. owner is ignored; repo is the project key.
func (t *Tracker) ListOpenIssues(ctx context.Context, _, repo string) (*hosting.IssueList, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	key := strings.ToUpper(repo)
	jql := fmt.Sprintf(`project = "%s" AND statusCategory != Done ORDER BY created ASC`, key)
	out := &hosting.IssueList{Rate: hosting.UnknownRate}
	nextPageToken := ""

	for {
		result, resp, err := t.jira.Issue.Search.SearchJQL(ctx, jql, searchFields, nil, pageSize, nextPageToken)
		if err != nil {
			return out, t.classify(resp, err, "jira search")
		}
		for _, issue := range result.Issues {
			if mapped, ok := mapIssue(issue, key, t.site); ok {
				out.Issues = append(out.Issues, mapped)
			}
		}
		if result.NextPageToken == "" || len(result.Issues) == 0 {
			break
		}
		nextPageToken = result.NextPageToken
	}
	return out, nil
}

// GetIssue fetches PROJ-number.
func (t *Tracker) GetIssue(ctx context.Context, _, repo string, number int) (*hosting.Issue, hosting.RateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	key := strings.ToUpper(repo)
	issueKey := fmt.Sprintf("%s-%d", key, number)
	issue, resp, err := t.jira.Issue.Get(ctx, issueKey, searchFields, nil)
	if err != nil {
		return nil, hosting.UnknownRate, t.classify(resp, err, "get issue "+issueKey)
	}
	mapped, ok := mapIssue(issue, key, t.site)
	if !ok {
		return nil, hosting.UnknownRate, fmt.Errorf("get issue %s: unexpected key %q", issueKey, issue.Key)
	}
	return &mapped, hosting.UnknownRate, nil
}

func (t *Tracker) classify(resp *models.ResponseScheme, err error, op string) error {
	if resp == nil || resp.Response == nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: timed out: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	code := resp.StatusCode
	switch {
	case hosting.IsRateLimitStatus(code):
		return &hosting.RateLimitError{
			Provider:   hosting.ProviderJira,
			StatusCode: code,
			ResetAt:    hosting.ResetFromHeaders(resp.Header, "X-RateLimit-Reset", t.now()),
			Err:        err,
		}
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, hosting.ErrNotFound)
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, hosting.ErrAuthFailed)
	default:
		return fmt.Errorf("%s (status %d): %w", op, code, err)
	}
}

// issueNumber extracts 42 from "PROJ-42" when the prefix matches key.
func issueNumber(issueKey, key string) (int, bool) {
	prefix, num, ok := strings.Cut(issueKey, "-")
	if !ok || !strings.EqualFold(prefix, key) {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func mapIssue(issue *models.IssueScheme, key, site string) (hosting.Issue, bool) {
	if issue == nil {
		return hosting.Issue{}, false
	}
	number, ok := issueNumber(issue.Key, key)
	if !ok {
		return hosting.Issue{}, false
	}
	out := hosting.Issue{
		Number: number,
		Repo:   key,
		URL:    site + "/browse/" + issue.Key,
	}
	if f := issue.Fields; f != nil {
		out.Title = f.Summary
		out.Body = flattenADF(f.Description)
		out.Labels = f.Labels
		if f.Priority != nil {
			out.PriorityHint = f.Priority.Name
		}
	}
	return out, true
}
