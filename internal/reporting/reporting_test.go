package reporting

import (
	"bytes"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comtradebench/greenbench/internal/scoring"
)

func newSummary() Summary {
	full := scoring.Breakdown{Completeness: 15, Correctness: 30, Robustness: 15, Efficiency: 15, DataQuality: 15, Observability: 10}
	weak := scoring.Breakdown{Completeness: 9, Correctness: 20, Robustness: 0, Efficiency: 0, DataQuality: 15, Observability: 5}
	return Summarize("greenbench", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), []Entry{
		{TaskID: "T1_single_page", Result: &scoring.Result{Total: 100, Breakdown: full}, Duration: time.Second},
		{TaskID: "T4_rate_limit_429", Result: &scoring.Result{Total: 49, Breakdown: weak, Errors: []string{"no evidence of rate_limit handling in run.log"}}, Duration: 2 * time.Second},
		{TaskID: "T9_broken", Err: errors.New("loading ground truth: boom"), Duration: 500 * time.Millisecond},
	})
}

func TestSummarize(t *testing.T) {
	s := newSummary()
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Errors)
	assert.InDelta(t, 74.5, s.Mean, 0.001)
	assert.Equal(t, 3500*time.Millisecond, s.Duration)
	assert.False(t, s.OK())

	ok := Summarize("x", time.Now(), []Entry{{TaskID: "T1", Result: &scoring.Result{Total: 70}}})
	assert.True(t, ok.OK())
}

func TestInterpretScore(t *testing.T) {
	tests := []struct {
		total float64
		want  string
	}{
		{100, "Excellent (>90)"},
		{90, "Good (70-90)"},
		{70, "Good (70-90)"},
		{69.9, "Needs Work (50-70)"},
		{50, "Needs Work (50-70)"},
		{0, "Poor (<50)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InterpretScore(tt.total), "total %v", tt.total)
	}
}

func TestInterpretPassRate(t *testing.T) {
	assert.Equal(t, "All tasks passed (100%)", InterpretPassRate(7, 7))
	assert.Equal(t, "Most tasks passed (86%)", InterpretPassRate(6, 7))
	assert.Equal(t, "About half the tasks passed (57%)", InterpretPassRate(4, 7))
	assert.Equal(t, "Few tasks passed (14%)", InterpretPassRate(1, 7))
	assert.Equal(t, "No tasks scored", InterpretPassRate(0, 0))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, newSummary(), TableOptions{Errors: true}))
	out := buf.String()

	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "TASK"))
	assert.Contains(t, lines[1], "T1_single_page")
	assert.Contains(t, lines[1], "100.00")
	assert.Contains(t, lines[1], "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "    - no evidence of rate_limit handling in run.log")
	assert.Contains(t, out, "Mean score: 74.50")
	assert.NotContains(t, out, "\x1b[")

	// columns line up: TOTAL starts at the same offset in every row
	col := strings.Index(lines[0], "TOTAL")
	assert.Equal(t, "100.00", lines[1][col:col+6])
}

func TestWriteTable_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, newSummary(), TableOptions{Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestPadRight_WideRunes(t *testing.T) {
	assert.Equal(t, "日本  ", PadRight("日本", 6))
	assert.Equal(t, "abcdef", PadRight("abcdef", 3))
}

func TestConvertToJUnit(t *testing.T) {
	suites := ConvertToJUnit(newSummary())
	assert.Equal(t, 3, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	assert.InDelta(t, 3.5, suites.Time, 0.01)

	require.Len(t, suites.TestSuites, 1)
	suite := suites.TestSuites[0]
	assert.Equal(t, "2026-03-01T12:00:00Z", suite.Timestamp)
	require.Len(t, suite.TestCases, 3)

	assert.Nil(t, suite.TestCases[0].Failure)
	assert.Nil(t, suite.TestCases[0].Error)

	fail := suite.TestCases[1].Failure
	require.NotNil(t, fail)
	assert.Contains(t, fail.Message, "score=49.00")
	assert.Contains(t, fail.Body, "robustness=0.0")
	assert.Contains(t, fail.Body, "[ERR] no evidence")

	require.NotNil(t, suite.TestCases[2].Error)
	assert.Equal(t, "ScoringError", suite.TestCases[2].Error.Type)
}

func TestWriteJUnitXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	require.NoError(t, WriteJUnitXML(newSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xml.Header))

	var parsed JUnitTestSuites
	require.NoError(t, xml.Unmarshal(data, &parsed))
	assert.Equal(t, 3, parsed.Tests)
	assert.Equal(t, "T4_rate_limit_429", parsed.TestSuites[0].TestCases[1].Name)
}
