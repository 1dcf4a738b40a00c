// Package reporting renders scored task runs as terminal tables and JUnit XML.
package reporting

import (
	"fmt"
	"time"

	"github.com/comtradebench/greenbench/internal/scoring"
)

// PassScore is the total at or above which a task counts as passed.
const PassScore = 70.0

// Entry is the outcome of scoring one task.
type Entry struct {
	TaskID   string
	Result   *scoring.Result
	Duration time.Duration
	// Err is set when scoring could not run at all.
	Err error
}

// Passed reports whether the entry scored at least PassScore.
func (e Entry) Passed() bool {
	return e.Err == nil && e.Result != nil && e.Result.Total >= PassScore
}

// Summary aggregates a set of entries.
type Summary struct {
	Name      string
	Timestamp time.Time
	Entries   []Entry
	Passed    int
	Failed    int
	Errors    int
	Mean      float64
	Duration  time.Duration
}

// Summarize counts passes, failures and errors and averages the totals of
// the entries that were scored.
func Summarize(name string, started time.Time, entries []Entry) Summary {
	s := Summary{Name: name, Timestamp: started, Entries: entries}
	scored := 0
	for _, e := range entries {
		s.Duration += e.Duration
		switch {
		case e.Err != nil || e.Result == nil:
			s.Errors++
			continue
		case e.Passed():
			s.Passed++
		default:
			s.Failed++
		}
		s.Mean += e.Result.Total
		scored++
	}
	if scored > 0 {
		s.Mean /= float64(scored)
	}
	return s
}

// OK reports whether every entry passed.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}

// InterpretScore returns a plain-language label for a 0-100 total.
func InterpretScore(total float64) string {
	switch {
	case total > 90:
		return "Excellent (>90)"
	case total >= PassScore:
		return "Good (70-90)"
	case total >= 50:
		return "Needs Work (50-70)"
	default:
		return "Poor (<50)"
	}
}

// InterpretPassRate explains the share of passed tasks.
func InterpretPassRate(passed, total int) string {
	if total == 0 {
		return "No tasks scored"
	}
	pct := 100 * float64(passed) / float64(total)
	switch {
	case passed == total:
		return fmt.Sprintf("All tasks passed (%.0f%%)", pct)
	case pct >= 80:
		return fmt.Sprintf("Most tasks passed (%.0f%%)", pct)
	case pct >= 50:
		return fmt.Sprintf("About half the tasks passed (%.0f%%)", pct)
	default:
		return fmt.Sprintf("Few tasks passed (%.0f%%)", pct)
	}
}
