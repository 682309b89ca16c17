package scheduler

import (
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/taskboard/internal/task"
)

// DefaultReviewCooldown is how long a reviewed task stays out of the
// review queue.
const DefaultReviewCooldown = 60 * time.Minute

const reviewMarker = "review:"

var completedReviewMarkers = []string{"review: approved", "review: complete", "review: done"}

// ReviewQueue returns the tasks in review that an automated reviewer should
// look at, in queue order. A task is skipped when any note carries a
// completed-review marker, or when a "review:" note was written within the
// cooldown.
func ReviewQueue(tasks []*task.Task, now time.Time, cooldown time.Duration) []*task.Task {
	if cooldown <= 0 {
		cooldown = DefaultReviewCooldown
	}
	var out []*task.Task
	for _, t := range tasks {
		if t.Status == task.StatusReview && reviewable(t, now, cooldown) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareQueue)
	return out
}

func reviewable(t *task.Task, now time.Time, cooldown time.Duration) bool {
	for _, n := range t.WorkNotes {
		content := strings.ToLower(n.Content)
		for _, marker := range completedReviewMarkers {
			if strings.Contains(content, marker) {
				return false
			}
		}
		if strings.Contains(content, reviewMarker) && now.Sub(n.Timestamp) < cooldown {
			return false
		}
	}
	return true
}
