// Package task defines the task, project, and work-note model for taskboard,
// along with the pure dependency and ledger logic that operates on it.
package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// Priority represents the urgency of a task. The zero value means unset.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = ""
)

// ValidPriorities returns all settable priority values, most urgent first.
func ValidPriorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
}

// Rank orders priorities; higher is more urgent and unset ranks lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority parses a priority string. An empty string yields PriorityNone.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return p, nil
	default:
		return PriorityNone, boarderrors.ErrValidation("priority",
			fmt.Sprintf("%q is not one of urgent, high, medium, low", s))
	}
}

// Task is a unit of work tracked on the board.
type Task struct {
	ID        string   `json:"id"`
	Number    int      `json:"task_number"`
	Status    Status   `json:"status"`
	Text      string   `json:"text"`
	Notes     string   `json:"notes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	SortOrder int      `json:"sort_order"`

	// BlockedBy lists task numbers that must be completed before this task
	// can be worked.
	BlockedBy []int `json:"blocked_by"`

	// ProjectID is empty for inbox tasks.
	ProjectID string `json:"project_id,omitempty"`

	WorkNotes []WorkNote `json:"work_notes"`

	// ExternalIssueID is zero when the task did not come from a tracker.
	ExternalIssueID int `json:"external_issue_id,omitempty"`
	// ExternalIssueRepo is write-once: the first repo recorded is kept.
	ExternalIssueRepo string `json:"external_issue_repo,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the user-facing reference for the task ("#12").
func (t *Task) Ref() string {
	return fmt.Sprintf("#%d", t.Number)
}

// HasTag reports whether the task carries the tag (case-insensitive).
func (t *Task) HasTag(tag string) bool {
	return slices.ContainsFunc(t.Tags, func(s string) bool {
		return strings.EqualFold(s, tag)
	})
}

// IsExternal reports whether the task was materialized from an external issue.
func (t *Task) IsExternal() bool {
	return t.ExternalIssueID > 0
}

// Project groups tasks and optionally links them to an external repository.
type Project struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	ExternalRepoURL string     `json:"external_repo_url,omitempty"`
	LocalPath       string     `json:"local_path,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewID returns a fresh store identifier. UUIDv7 values sort by creation
// time, which the scheduler relies on as its final tie-breaker.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NormalizeTags trims, drops empties, and de-duplicates tags case-insensitively
// while keeping the first spelling seen.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// ValidateText rejects empty task titles.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return boarderrors.ErrValidation("text", "task text must not be empty")
	}
	return nil
}
