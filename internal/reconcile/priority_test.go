package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/taskboard/internal/task"
)

func TestLabelPriority(t *testing.T) {
	tests := []struct {
		label string
		want  task.Priority
		ok    bool
	}{
		{"priority: high", task.PriorityHigh, true},
		{"Priority::Low", task.PriorityLow, true},
		{"priority/critical", task.PriorityUrgent, true},
		{"prio:p2", task.PriorityMedium, true},
		{"P1", task.PriorityHigh, true},
		{"p0", task.PriorityUrgent, true},
		{"urgent", task.PriorityUrgent, true},
		{"high", task.PriorityNone, false},
		{"priority: someday", task.PriorityNone, false},
		{"bug", task.PriorityNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := labelPriority(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssuePriority(t *testing.T) {
	p, rest := issuePriority([]string{"bug", "P3", "priority: high", "ui"}, "")
	assert.Equal(t, task.PriorityHigh, p)
	assert.Equal(t, []string{"bug", "ui"}, rest)

	p, rest = issuePriority([]string{"P3"}, "Highest")
	assert.Equal(t, task.PriorityUrgent, p)
	assert.Empty(t, rest)

	p, _ = issuePriority(nil, "")
	assert.Equal(t, task.PriorityNone, p)
}
