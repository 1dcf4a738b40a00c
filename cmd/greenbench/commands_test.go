package main

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/mockapi"
	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/purple"
	"github.com/comtradebench/greenbench/internal/reporting"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	err := root.Execute()
	return out.String(), err
}

// baselineOutputs runs the baseline agent for every task against an
// in-process mock API and returns the output root.
func baselineOutputs(t *testing.T) string {
	t.Helper()
	pager := paging.New(faults.NewEngine(), fixtures.Generator{})
	srv := httptest.NewServer(mockapi.NewHandler(pager, nil))
	defer srv.Close()

	root := t.TempDir()
	agent := purple.New(purple.Config{
		MockURL:    srv.URL,
		OutputRoot: root,
		RetryBase:  time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	})
	for _, def := range tasks.All() {
		_, err := agent.Run(context.Background(), def)
		require.NoError(t, err)
	}
	return root
}

func TestTasksCommand_Formats(t *testing.T) {
	out, err := runCLI(t, "tasks", "--format", "json")
	require.NoError(t, err)
	var defs []tasks.Definition
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	assert.Len(t, defs, 7)

	out, err = runCLI(t, "tasks", "--format", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &defs))
	assert.Equal(t, "T1_single_page", defs[0].ID)
	assert.Equal(t, tasks.PagingOffset, defs[4].Constraints.PagingMode)

	out, err = runCLI(t, "tasks")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "TASK"))

	_, err = runCLI(t, "tasks", "--format", "xml")
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	root := baselineOutputs(t)

	out, err := runCLI(t, "validate", filepath.Join(root, "T3_duplicates"))
	require.NoError(t, err)
	assert.Contains(t, out, "OK:")

	broken := filepath.Join(t.TempDir(), "T1_single_page")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "metadata.json"), []byte("{not json"), 0o644))

	out, err = runCLI(t, "validate", broken, "--json")
	var failed *ValidationFailedError
	require.ErrorAs(t, err, &failed)

	var doc struct {
		OK     bool `json:"ok"`
		Issues []struct {
			Code string `json:"code"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.False(t, doc.OK)
	codes := make([]string, 0, len(doc.Issues))
	for _, is := range doc.Issues {
		codes = append(codes, is.Code)
	}
	assert.Contains(t, codes, "E002")
	assert.Contains(t, codes, "E003")
}

func TestValidateCommand_QueryOverride(t *testing.T) {
	root := baselineOutputs(t)
	dir := filepath.Join(root, "T2_multi_page")

	_, err := runCLI(t, "validate", dir, "--task-query", `{"reporter":"DEU","partner":"FRA","flow":"X","hs":"8703","year":2021}`)
	require.NoError(t, err)

	out, err := runCLI(t, "validate", dir, "--task-query", `{"reporter":"DEU","partner":"FRA","flow":"X","hs":"8703","year":"2021"}`)
	var failed *ValidationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, out, "E006")
}

func TestScoreCommand_All(t *testing.T) {
	root := baselineOutputs(t)
	junit := filepath.Join(t.TempDir(), "junit.xml")

	out, err := runCLI(t, "score", root, "--all", "--junit", junit)
	require.NoError(t, err)
	assert.Contains(t, out, "Mean score: 100.00")
	assert.Contains(t, out, "All tasks passed")

	data, err := os.ReadFile(junit)
	require.NoError(t, err)
	var suites reporting.JUnitTestSuites
	require.NoError(t, xml.Unmarshal(data, &suites))
	assert.Equal(t, 7, suites.Tests)
	assert.Zero(t, suites.Failures)
}

func TestScoreCommand_SingleJSON(t *testing.T) {
	root := baselineOutputs(t)

	out, err := runCLI(t, "score", filepath.Join(root, "T7_totals_trap"), "--json")
	require.NoError(t, err)
	var doc struct {
		Mean    float64 `json:"mean_score"`
		Results []struct {
			TaskID string  `json:"task_id"`
			Total  float64 `json:"score_total"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Results, 1)
	assert.Equal(t, "T7_totals_trap", doc.Results[0].TaskID)
	assert.Equal(t, 100.0, doc.Results[0].Total)
}

func TestScoreCommand_EmptyRootFails(t *testing.T) {
	_, err := runCLI(t, "score", t.TempDir(), "--all")
	var failed *ValidationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, err.Error(), "7 of 7")
}

func TestScoreCommand_UnknownTask(t *testing.T) {
	_, err := runCLI(t, "score", t.TempDir(), "--task-id", "T9_nope")
	require.ErrorIs(t, err, tasks.ErrUnknownTask)
	var failed *ValidationFailedError
	assert.False(t, errors.As(err, &failed))
}

func TestFixturesExport(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "fixtures", "export", "--dir", dir, "--compress", "gzip", "--task-id", "T7_totals_trap")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "T7_totals_trap.jsonl.gz"), strings.TrimSpace(out))

	def, err := tasks.Get("T7_totals_trap")
	require.NoError(t, err)
	set, err := fixtures.DirStore{Dir: dir}.Load(def)
	require.NoError(t, err)
	want := fixtures.Generate(def)
	assert.Equal(t, want.Records, set.Records)
	assert.Equal(t, want.Totals, set.Totals)

	_, err = runCLI(t, "fixtures", "export", "--dir", dir, "--compress", "brotli")
	require.Error(t, err)
}

func TestBaselineCommand(t *testing.T) {
	pager := paging.New(faults.NewEngine(), fixtures.Generator{})
	srv := httptest.NewServer(mockapi.NewHandler(pager, nil))
	defer srv.Close()

	root := t.TempDir()
	out, err := runCLI(t, "baseline", "--task-id", "T2_multi_page", "--mock-url", srv.URL, "--output-dir", root)
	require.NoError(t, err)

	var rep purple.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1200, rep.Rows)
	assert.FileExists(t, filepath.Join(root, "T2_multi_page", "data.jsonl"))

	_, err = runCLI(t, "baseline", "--mock-url", srv.URL)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "task_id", "T1_single_page")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"task_id":"T1_single_page"`)

	_, err = newLogger(&buf, "loud", "text")
	require.Error(t, err)
	_, err = newLogger(&buf, "INFO", "xml")
	require.Error(t, err)
}

func TestResolveTCPAddr(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	tests := []struct {
		addr        string
		allowRemote bool
		want        string
	}{
		{":9000", false, "127.0.0.1:9000"},
		{"9000", false, "127.0.0.1:9000"},
		{"0.0.0.0:9000", false, "127.0.0.1:9000"},
		{"0.0.0.0:9000", true, "0.0.0.0:9000"},
		{"10.0.0.5:9000", false, "10.0.0.5:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveTCPAddr(tt.addr, tt.allowRemote, logger), tt.addr)
	}
}
