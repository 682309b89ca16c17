package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/taskboard/internal/git"
	"github.com/randalmurphal/taskboard/internal/task"
)

// DefaultStuckThreshold is how long a task may sit in progress without a
// meaningful note before it is reported as stuck.
const DefaultStuckThreshold = 10 * time.Minute

// boilerplateNotes are start markers that say nothing about progress.
var boilerplateNotes = map[string]bool{
	"started":          true,
	"starting":         true,
	"start":            true,
	"starting work":    true,
	"started work":     true,
	"picked up":        true,
	"claimed":          true,
	"working on it":    true,
	"in progress":      true,
	"work in progress": true,
}

// IsMeaningful reports whether a note records actual progress. System
// notes and bare start markers do not.
func IsMeaningful(n task.WorkNote) bool {
	if n.Author == task.AuthorSystem {
		return false
	}
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(n.Content), ".!…"))
	return normalized != "" && !boilerplateNotes[normalized]
}

// StuckReport is the outcome of a stuck check.
type StuckReport struct {
	Stuck         bool          `json:"stuck"`
	InProgressFor time.Duration `json:"in_progress_for"`
	// RepoState is only populated for stuck tasks.
	RepoState *git.RepoState `json:"repo_state,omitempty"`
	Guidance  []string       `json:"guidance,omitempty"`
}

// CheckStuck reports whether an in-progress task has gone longer than
// threshold since its last update without a meaningful note. It never
// changes the task.
func CheckStuck(t *task.Task, now time.Time, threshold time.Duration) StuckReport {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	report := StuckReport{InProgressFor: now.Sub(t.UpdatedAt)}
	if t.Status != task.StatusInProgress || report.InProgressFor <= threshold {
		return report
	}
	for _, n := range t.WorkNotes {
		if IsMeaningful(n) {
			return report
		}
	}
	report.Stuck = true
	return report
}

// diagnose fills in repo state and guidance for a stuck report and returns
// the system note that records what was checked.
func diagnose(t *task.Task, report *StuckReport, state git.RepoState) task.WorkNote {
	report.RepoState = &state

	minutes := int(report.InProgressFor.Round(time.Minute) / time.Minute)
	guidance := []string{
		fmt.Sprintf("add a work note describing progress on %s", t.Ref()),
	}
	switch {
	case !state.Known:
		guidance = append(guidance, "check the working directory by hand; its state could not be read")
	case state.HasUncommittedChanges:
		guidance = append(guidance, "uncommitted changes exist; commit them or record why they are pending")
	case state.CommitsBehindUpstream > 0:
		guidance = append(guidance, "the branch is behind upstream; pull before continuing")
	default:
		guidance = append(guidance, "no local changes were found; the task may not have been started")
	}
	guidance = append(guidance,
		fmt.Sprintf("if the task cannot proceed, block it: taskboard block %d \"reason\"", t.Number))
	report.Guidance = guidance

	return task.WorkNote{
		Author: task.AuthorSystem,
		Content: fmt.Sprintf("stuck check: in progress %dm with no progress notes; %s",
			minutes, state.String()),
	}
}
