package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var tableHeader = []string{"TASK", "TOTAL", "COMPL", "CORR", "ROBUST", "EFFIC", "QUALITY", "OBSERV", "STATUS"}

// TableOptions controls table rendering.
type TableOptions struct {
	// Color enables ANSI colors; callers usually set it from term.IsTerminal.
	Color bool
	// Errors prints each entry's scoring errors under its row.
	Errors bool
}

// WriteTable renders one row per entry followed by the summary lines.
func WriteTable(w io.Writer, s Summary, opts TableOptions) error {
	rows := [][]string{tableHeader}
	for _, e := range s.Entries {
		rows = append(rows, row(e))
	}

	widths := make([]int, len(tableHeader))
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for i, r := range rows {
		cells := make([]string, len(r))
		for j, cell := range r {
			cells[j] = PadRight(cell, widths[j])
		}
		line := strings.TrimRight(strings.Join(cells, "  "), " ")
		if i == 0 {
			line = paint(opts.Color, color.New(color.Bold), line)
		} else {
			line = paint(opts.Color, statusColor(s.Entries[i-1]), line)
		}
		b.WriteString(line + "\n")

		if opts.Errors && i > 0 {
			for _, msg := range entryErrors(s.Entries[i-1]) {
				b.WriteString("    - " + msg + "\n")
			}
		}
	}

	fmt.Fprintf(&b, "\nMean score: %.2f (%s)\n", s.Mean, InterpretScore(s.Mean))
	fmt.Fprintf(&b, "Tasks:      %d passed, %d failed, %d errors; %s\n",
		s.Passed, s.Failed, s.Errors, InterpretPassRate(s.Passed, len(s.Entries)))

	_, err := io.WriteString(w, b.String())
	return err
}

func row(e Entry) []string {
	if e.Err != nil || e.Result == nil {
		return []string{e.TaskID, "-", "-", "-", "-", "-", "-", "-", "ERROR"}
	}
	b := e.Result.Breakdown
	status := "PASS"
	if !e.Passed() {
		status = "FAIL"
	}
	return []string{
		e.TaskID,
		fmt.Sprintf("%.2f", e.Result.Total),
		fmt.Sprintf("%.1f", b.Completeness),
		fmt.Sprintf("%.1f", b.Correctness),
		fmt.Sprintf("%.1f", b.Robustness),
		fmt.Sprintf("%.1f", b.Efficiency),
		fmt.Sprintf("%.1f", b.DataQuality),
		fmt.Sprintf("%.1f", b.Observability),
		status,
	}
}

func entryErrors(e Entry) []string {
	if e.Err != nil {
		return []string{e.Err.Error()}
	}
	if e.Result == nil {
		return nil
	}
	return e.Result.Errors
}

func statusColor(e Entry) *color.Color {
	switch {
	case e.Err != nil || e.Result == nil:
		return color.New(color.FgRed)
	case e.Result.Total >= 100:
		return color.New(color.FgGreen)
	case e.Passed():
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// paint colors s when enabled. EnableColor overrides the global NoColor
// detection so callers decide.
func paint(enabled bool, c *color.Color, s string) string {
	if !enabled {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// PadRight pads s with spaces so its terminal display width reaches width.
func PadRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
