// Package hosting provides a unified interface for external issue trackers
// (GitHub, GitLab, Jira).
package hosting

import (
	"context"
	"time"
)

// ProviderType identifies which tracker backs a project.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderJira    ProviderType = "jira"
	ProviderUnknown ProviderType = "unknown"
)

// Tracker reads issues from an external tracker. Implementations exist for
// GitHub (go-github), GitLab (client-go) and Jira Cloud (go-atlassian).
//
// Every call runs under the tracker's request timeout. HTTP 403 and 429
// surface as *RateLimitError so callers can back off.
type Tracker interface {
	ListOpenIssues(ctx context.Context, owner, repo string) (*IssueList, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, RateInfo, error)
	Name() ProviderType
}

// Issue is an open issue on the tracker.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	// Repo identifies where the issue lives ("owner/repo", or the Jira
	// project key).
	Repo   string   `json:"repo"`
	Labels []string `json:"labels,omitempty"`
	// PriorityHint carries a tracker-native priority (Jira's priority
	// field); empty when the tracker only has labels.
	PriorityHint  string `json:"priority_hint,omitempty"`
	IsPullRequest bool   `json:"is_pull_request,omitempty"`
	URL           string `json:"url,omitempty"`
}

// RateInfo is the rate-limit metadata observed on a response.
type RateInfo struct {
	// Remaining is -1 when the response carried no hint.
	Remaining int
	// ResetAt is zero when the response carried no hint.
	ResetAt time.Time
}

// UnknownRate is the RateInfo for responses without rate headers.
var UnknownRate = RateInfo{Remaining: -1}

// Known reports whether the response carried a remaining-count hint.
func (r RateInfo) Known() bool {
	return r.Remaining >= 0
}

// IssueList is one full listing of a repository's open issues. Rate is the
// hint from the last page fetched.
type IssueList struct {
	Issues []Issue
	Rate   RateInfo
}
