package hosting

import (
	"net/url"
	"regexp"
	"strings"
)

// DetectProvider determines the tracker from a project's repository URL.
//
// Supported URL formats:
//   - git@github.com:owner/repo.git
//   - https://github.com/owner/repo
//   - https://gitlab.com/group/subgroup/repo.git
//   - git@gitlab.company.com:org/repo.git (self-hosted GitLab)
//   - https://github.company.com/org/repo.git (GitHub Enterprise)
//   - https://acme.atlassian.net/browse/PROJ (Jira Cloud project)
func DetectProvider(repoURL string) ProviderType {
	u := strings.ToLower(strings.TrimSpace(repoURL))

	switch {
	case matchesAny(jiraPatterns, u):
		return ProviderJira
	case matchesAny(githubPatterns, u):
		return ProviderGitHub
	case matchesAny(gitlabPatterns, u):
		return ProviderGitLab
	default:
		return ProviderUnknown
	}
}

var githubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]`),
	regexp.MustCompile(`github\.[a-z0-9-]+\.[a-z]+[:/]`), // GitHub Enterprise
}

var gitlabPatterns = []*regexp.Regexp{
	regexp.MustCompile(`gitlab\.com[:/]`),
	regexp.MustCompile(`gitlab\.[a-z0-9-]+\.[a-z]+[:/]`), // self-hosted
}

var jiraPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.atlassian\.net(/|$)`),
	regexp.MustCompile(`^jira:`),
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ParseOwnerRepo extracts owner and repo from a repository URL.
//
// Handles:
//   - git@github.com:owner/repo.git → (owner, repo)
//   - https://github.com/owner/repo.git → (owner, repo)
//   - ssh://git@github.com:22/owner/repo.git → (owner, repo)
//   - git@gitlab.com:group/subgroup/repo.git → (group/subgroup, repo)
//   - https://acme.atlassian.net/browse/PROJ → ("", PROJ)
//   - jira:PROJ → ("", PROJ)
func ParseOwnerRepo(repoURL string) (owner, repo string) {
	raw := strings.TrimSpace(repoURL)
	if DetectProvider(raw) == ProviderJira {
		return "", ParseJiraProject(raw)
	}
	raw = strings.TrimSuffix(strings.TrimSuffix(raw, "/"), ".git")

	switch {
	case strings.HasPrefix(raw, "ssh://"):
		raw = strings.TrimPrefix(raw, "ssh://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = strings.TrimLeft(raw[idx+1:], "/")
		}
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = raw[idx+1:]
		}
	default:
		if idx := strings.Index(raw, ":"); idx != -1 {
			raw = raw[idx+1:]
		}
	}

	// GitLab owners may be "group/subgroup"; the repo is the last segment.
	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return raw, ""
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}

// ParseJiraProject extracts the project key from a Jira URL
// (".../browse/PROJ", ".../browse/PROJ-12", ".../projects/PROJ/...") or
// from the "jira:PROJ" shorthand. The key is upper-cased.
func ParseJiraProject(repoURL string) string {
	raw := strings.TrimSpace(repoURL)
	if key, ok := strings.CutPrefix(strings.ToLower(raw), "jira:"); ok {
		return strings.ToUpper(strings.TrimSpace(key))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "browse" || segments[i] == "projects" {
			key, _, _ := strings.Cut(segments[i+1], "-")
			return strings.ToUpper(key)
		}
	}
	return ""
}

// JiraBaseURL returns the scheme and host of a Jira Cloud URL, or "" for
// the "jira:" shorthand.
func JiraBaseURL(repoURL string) string {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// HostBaseURL returns "scheme://host" for an https repository URL on a
// self-hosted instance, and "" for the public hosts and non-https URLs.
func HostBaseURL(repoURL string) string {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if host == "github.com" || host == "gitlab.com" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
