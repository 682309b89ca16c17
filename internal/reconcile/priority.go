package reconcile

import (
	"strings"

	"github.com/randalmurphal/taskboard/internal/task"
)

var priorityPrefixes = []string{"priority::", "priority:", "priority/", "priority-", "prio:", "prio/"}

var priorityWords = map[string]task.Priority{
	"urgent":   task.PriorityUrgent,
	"critical": task.PriorityUrgent,
	"blocker":  task.PriorityUrgent,
	"highest":  task.PriorityUrgent,
	"high":     task.PriorityHigh,
	"medium":   task.PriorityMedium,
	"normal":   task.PriorityMedium,
	"low":      task.PriorityLow,
	"lowest":   task.PriorityLow,
	"minor":    task.PriorityLow,
	"trivial":  task.PriorityLow,
}

var priorityCodes = map[string]task.Priority{
	"p0": task.PriorityUrgent,
	"p1": task.PriorityHigh,
	"p2": task.PriorityMedium,
	"p3": task.PriorityLow,
	"p4": task.PriorityLow,
}

// labelPriority maps one label to a priority. Prefixed labels
// ("priority: high", "priority::low") accept any priority word; bare labels
// only count when unambiguous ("urgent", "critical", "P1").
func labelPriority(label string) (task.Priority, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, prefix := range priorityPrefixes {
		if rest, ok := strings.CutPrefix(l, prefix); ok {
			rest = strings.TrimSpace(rest)
			if p, ok := priorityWords[rest]; ok {
				return p, true
			}
			p, ok := priorityCodes[rest]
			return p, ok
		}
	}
	if p, ok := priorityCodes[l]; ok {
		return p, true
	}
	if l == "urgent" || l == "critical" {
		return task.PriorityUrgent, true
	}
	return task.PriorityNone, false
}

// issuePriority returns the highest priority signalled by an issue's
// labels and native priority hint, and the labels that are not priority
// markers.
func issuePriority(labels []string, hint string) (task.Priority, []string) {
	best := task.PriorityNone
	if p, ok := priorityWords[strings.ToLower(strings.TrimSpace(hint))]; ok {
		best = p
	}
	rest := make([]string, 0, len(labels))
	for _, label := range labels {
		if p, ok := labelPriority(label); ok {
			if p.Rank() > best.Rank() {
				best = p
			}
			continue
		}
		rest = append(rest, label)
	}
	return best, rest
}
