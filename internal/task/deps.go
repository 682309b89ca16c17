package task

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// Graph answers dependency questions over a snapshot of tasks.
// Blockers are matched by exact task number.
type Graph struct {
	byNumber map[int]*Task
	logger   *slog.Logger

	mu       sync.Mutex
	reported map[[2]int]bool
}

// NewGraph indexes the snapshot. A nil logger disables dangling-reference
// warnings.
func NewGraph(tasks []*Task, logger *slog.Logger) *Graph {
	g := &Graph{
		byNumber: make(map[int]*Task, len(tasks)),
		logger:   logger,
		reported: make(map[[2]int]bool),
	}
	for _, t := range tasks {
		g.byNumber[t.Number] = t
	}
	return g
}

// Lookup returns the task with the given number, if it is in the snapshot.
func (g *Graph) Lookup(number int) (*Task, bool) {
	t, ok := g.byNumber[number]
	return t, ok
}

// IsSatisfied reports whether every blocker of t is completed. A blocker
// number that matches no task counts as satisfied; the reference is logged
// as a data-quality warning but left in place.
func (g *Graph) IsSatisfied(t *Task) bool {
	return len(g.UnmetBlockers(t)) == 0
}

// UnmetBlockers returns the blockers of t that exist and are not completed,
// in blocked_by order.
func (g *Graph) UnmetBlockers(t *Task) []int {
	var unmet []int
	for _, n := range t.BlockedBy {
		blocker, ok := g.byNumber[n]
		if !ok {
			g.reportDangling(t, n)
			continue
		}
		if !IsDone(blocker.Status) {
			unmet = append(unmet, n)
		}
	}
	return unmet
}

// DanglingBlockers returns blocker numbers of t that match no task.
func (g *Graph) DanglingBlockers(t *Task) []int {
	var dangling []int
	for _, n := range t.BlockedBy {
		if _, ok := g.byNumber[n]; !ok {
			dangling = append(dangling, n)
		}
	}
	return dangling
}

// Dependents returns the tasks whose blocked_by contains number, ordered by
// task number.
func (g *Graph) Dependents(number int) []*Task {
	var out []*Task
	for _, t := range g.byNumber {
		if slices.Contains(t.BlockedBy, number) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *Task) int { return a.Number - b.Number })
	return out
}

func (g *Graph) reportDangling(t *Task, ref int) {
	if g.logger == nil {
		return
	}
	key := [2]int{t.Number, ref}
	g.mu.Lock()
	seen := g.reported[key]
	g.reported[key] = true
	g.mu.Unlock()
	if !seen {
		g.logger.Warn("blocked_by references a task that does not exist; treating as satisfied",
			"task", t.Number, "missing_blocker", ref)
	}
}

// IsSatisfied is a convenience wrapper for one-off checks.
func IsSatisfied(t *Task, all []*Task) bool {
	return NewGraph(all, nil).IsSatisfied(t)
}

// RemoveBlocker returns blockedBy without number and whether it was present.
// The input slice is not modified.
func RemoveBlocker(blockedBy []int, number int) ([]int, bool) {
	if !slices.Contains(blockedBy, number) {
		return blockedBy, false
	}
	out := make([]int, 0, len(blockedBy)-1)
	for _, n := range blockedBy {
		if n != number {
			out = append(out, n)
		}
	}
	return out, true
}

// NormalizeBlockedBy de-duplicates blocker numbers, keeping first occurrence.
func NormalizeBlockedBy(blockedBy []int) []int {
	out := make([]int, 0, len(blockedBy))
	for _, n := range blockedBy {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// ValidateBlockedBy rejects non-positive numbers and self references.
func ValidateBlockedBy(number int, blockedBy []int) error {
	for _, n := range blockedBy {
		if n <= 0 {
			return boarderrors.ErrValidation("blocked_by", fmt.Sprintf("%d is not a task number", n))
		}
		if number > 0 && n == number {
			return boarderrors.ErrValidation("blocked_by", fmt.Sprintf("task #%d cannot block itself", n))
		}
	}
	return nil
}

// ParseBlockedBy parses a comma or space separated list such as "3, #5 7".
func ParseBlockedBy(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimPrefix(f, "#"))
		if err != nil {
			return nil, boarderrors.ErrValidation("blocked_by", fmt.Sprintf("%q is not a task number", f))
		}
		out = append(out, n)
	}
	return NormalizeBlockedBy(out), nil
}
