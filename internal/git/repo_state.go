package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RepoState describes a working directory for stuck-task diagnostics.
// Known is false when the state could not be determined; the other fields
// are then meaningless.
type RepoState struct {
	Known                 bool
	HasUncommittedChanges bool
	ChangedFiles          int
	// CommitsBehindUpstream is -1 when the branch has no upstream.
	CommitsBehindUpstream int
	Reason                string
}

// String renders the state for work notes.
func (s RepoState) String() string {
	if !s.Known {
		if s.Reason != "" {
			return "repo state unknown (" + s.Reason + ")"
		}
		return "repo state unknown"
	}
	var parts []string
	if s.HasUncommittedChanges {
		parts = append(parts, fmt.Sprintf("%d uncommitted change(s)", s.ChangedFiles))
	} else {
		parts = append(parts, "working tree clean")
	}
	switch {
	case s.CommitsBehindUpstream < 0:
		parts = append(parts, "no upstream")
	case s.CommitsBehindUpstream == 0:
		parts = append(parts, "up to date with upstream")
	default:
		parts = append(parts, fmt.Sprintf("%d commit(s) behind upstream", s.CommitsBehindUpstream))
	}
	return strings.Join(parts, ", ")
}

// Inspector reports repo state for a working directory.
type Inspector struct {
	runner CommandRunner
}

// NewInspector creates an Inspector. A nil runner uses an ExecRunner with
// DefaultTimeout.
func NewInspector(runner CommandRunner) *Inspector {
	if runner == nil {
		runner = NewExecRunner(DefaultTimeout)
	}
	return &Inspector{runner: runner}
}

// RepoState never fails: any problem yields an unknown state with a reason.
func (i *Inspector) RepoState(ctx context.Context, path string) RepoState {
	if strings.TrimSpace(path) == "" {
		return RepoState{Reason: "no working directory configured"}
	}

	status, err := i.runner.Run(ctx, path, "git", "status", "--porcelain")
	if err != nil {
		return RepoState{Reason: describe(err)}
	}
	state := RepoState{Known: true, CommitsBehindUpstream: -1}
	if status != "" {
		state.HasUncommittedChanges = true
		state.ChangedFiles = len(strings.Split(status, "\n"))
	}

	behind, err := i.runner.Run(ctx, path, "git", "rev-list", "--count", "HEAD..@{upstream}")
	if err != nil {
		// No upstream configured is common and not a failure.
		return state
	}
	if n, err := strconv.Atoi(behind); err == nil {
		state.CommitsBehindUpstream = n
	}
	return state
}

// RemoteURL returns the fetch URL of a remote, or "" when it is not set.
func (i *Inspector) RemoteURL(ctx context.Context, path, remote string) string {
	if remote == "" {
		remote = "origin"
	}
	url, err := i.runner.Run(ctx, path, "git", "remote", "get-url", remote)
	if err != nil {
		return ""
	}
	return url
}

func describe(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.TimedOut() {
		return "git timed out"
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
