package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/taskboard/internal/lifecycle"
	"github.com/randalmurphal/taskboard/internal/task"
)

const defaultWidth = 100

var statusColors = map[task.Status]lipgloss.Color{
	task.StatusBacklog:    lipgloss.Color("241"),
	task.StatusReady:      lipgloss.Color("39"),
	task.StatusInProgress: lipgloss.Color("214"),
	task.StatusReview:     lipgloss.Color("170"),
	task.StatusBlocked:    lipgloss.Color("196"),
	task.StatusCompleted:  lipgloss.Color("42"),
}

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boldStyle = lipgloss.NewStyle().Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// output writes command results. Color is only used when the destination is
// a terminal.
type output struct {
	w     io.Writer
	color bool
	width int
}

func newOutput(cmd *cobra.Command) *output {
	o := &output{w: cmd.OutOrStdout(), width: defaultWidth}
	if f, ok := o.w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		o.color = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			o.width = width
		}
	}
	return o
}

func (o *output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) Printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *output) Println(args ...any) {
	fmt.Fprintln(o.w, args...)
}

func (o *output) style(s lipgloss.Style, text string) string {
	if !o.color {
		return text
	}
	return s.Render(text)
}

// status renders a status label. Colored labels contain escape codes, so
// tables put the status in their last column.
func (o *output) status(s task.Status) string {
	c, ok := statusColors[s]
	if !o.color || !ok {
		return string(s)
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(s))
}

func (o *output) table() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

// titleWidth is the room left for a title after fixed columns.
func (o *output) titleWidth(fixed int) int {
	if w := o.width - fixed; w > 20 {
		return w
	}
	return 20
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}

func refs(numbers []int) string {
	if len(numbers) == 0 {
		return "-"
	}
	return lifecycle.FormatRefs(numbers)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
