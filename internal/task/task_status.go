package task

import (
	"strings"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review" // Only valid when the workflow enables review
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
)

// IntakeStatus is where newly created and imported tasks land.
const IntakeStatus = StatusBacklog

// Workflow describes which statuses are in play for a board.
type Workflow struct {
	// ReviewEnabled adds the review column between in-progress and completed.
	ReviewEnabled bool
}

// Statuses returns the workflow's statuses in board order.
func (w Workflow) Statuses() []Status {
	if w.ReviewEnabled {
		return []Status{StatusBacklog, StatusReady, StatusInProgress, StatusReview, StatusBlocked, StatusCompleted}
	}
	return []Status{StatusBacklog, StatusReady, StatusInProgress, StatusBlocked, StatusCompleted}
}

// IsValid reports whether s belongs to the workflow.
func (w Workflow) IsValid(s Status) bool {
	for _, candidate := range w.Statuses() {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStatus parses a status, accepting "in_progress" and mixed case.
// Unknown values and review on a workflow without review fail with INVALID_STATUS.
func (w Workflow) ParseStatus(s string) (Status, error) {
	normalized := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if w.IsValid(normalized) {
		return normalized, nil
	}
	valid := make([]string, 0, 6)
	for _, st := range w.Statuses() {
		valid = append(valid, string(st))
	}
	return "", boarderrors.ErrInvalidStatus(s, valid)
}

// IsDone reports whether a blocker in this status no longer blocks anything.
func IsDone(s Status) bool {
	return s == StatusCompleted
}
