package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/comtradebench/greenbench/internal/assess"
	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/jsonrpc"
	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/scoring"
	"github.com/comtradebench/greenbench/internal/staging"
	"github.com/comtradebench/greenbench/internal/tasks"
	"github.com/comtradebench/greenbench/internal/validation"
)

type assessFunc func(ctx context.Context, req assess.Request) (*assess.Assessment, error)

func (f assessFunc) Assess(ctx context.Context, req assess.Request) (*assess.Assessment, error) {
	return f(ctx, req)
}

// mockStore implements AssessmentStore for testing.
type mockStore struct {
	*FileStore
	listErr error
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{FileStore: NewFileStore("")}
}

func (m *mockStore) List(sortField, order string) ([]AssessmentSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.FileStore.List(sortField, order)
}

func (m *mockStore) Get(id string) (*assess.Assessment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.FileStore.Get(id)
}

func newTestHandler(a Assessor, store AssessmentStore) http.Handler {
	return NewHandler(Config{Assessor: a, Store: store, Card: NewAgentCard("http://green-agent:9009/a2a/rpc")})
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(nil, nil)
	for _, path := range []string{"/health", "/healthz"} {
		rec := do(h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		var resp HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != "ok" {
			t.Errorf("%s: expected status ok, got %q", path, resp.Status)
		}
	}
}

func TestAgentCardEndpoints(t *testing.T) {
	h := newTestHandler(nil, nil)
	cases := []struct{ method, path string }{
		{http.MethodGet, "/.well-known/agent.json"},
		{http.MethodGet, "/.well-known/agent-card.json"},
		{http.MethodPost, "/.well-known/agent-card.json"},
	}
	for _, c := range cases {
		rec := do(h, c.method, c.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", c.method, c.path, rec.Code)
		}
		var card AgentCard
		if err := json.NewDecoder(rec.Body).Decode(&card); err != nil {
			t.Fatal(err)
		}
		if card.Name != AgentName || card.Version != "0.1.0" {
			t.Errorf("unexpected card identity %s %s", card.Name, card.Version)
		}
		if card.Endpoints["rpc"] != "/a2a/rpc" || card.URL != "http://green-agent:9009/a2a/rpc" {
			t.Errorf("unexpected rpc endpoint %v %s", card.Endpoints, card.URL)
		}
		if card.Capabilities.Streaming {
			t.Error("streaming must not be advertised")
		}
	}
}

func TestLegacyAgentCard(t *testing.T) {
	rec := do(newTestHandler(nil, nil), http.MethodGet, "/agent-card", "")
	var card LegacyCard
	if err := json.NewDecoder(rec.Body).Decode(&card); err != nil {
		t.Fatal(err)
	}
	if card.Endpoints["assess"] != "/assess" {
		t.Errorf("expected assess endpoint, got %v", card.Endpoints)
	}
}

func TestAssess_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown task", fmt.Errorf("%w: T9", tasks.ErrUnknownTask), http.StatusNotFound},
		{"configure", fmt.Errorf("%w: refused", assess.ErrConfigureFailed), http.StatusInternalServerError},
		{"stage", fmt.Errorf("%w: EDEADLK", assess.ErrStageFailed), http.StatusInternalServerError},
		{"timeout", fmt.Errorf("%w after 8s", assess.ErrScoreTimeout), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assessFunc(func(context.Context, assess.Request) (*assess.Assessment, error) { return nil, tt.err })
			rec := do(newTestHandler(a, nil), http.MethodPost, "/assess", `{"task_id":"T1_single_page"}`)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
				t.Fatal(err)
			}
			if errResp.Detail != tt.err.Error() {
				t.Errorf("expected detail %q, got %q", tt.err.Error(), errResp.Detail)
			}
		})
	}
}

func TestAssess_BadRequests(t *testing.T) {
	h := newTestHandler(nil, nil)
	for _, body := range []string{"", "{", `{"purple_output_subdir":"x"}`} {
		rec := do(h, http.MethodPost, "/assess", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestAssessments_StoreErrors(t *testing.T) {
	store := newMockStore()
	store.listErr = errors.New("list failed")
	store.getErr = errors.New("disk gone")
	h := newTestHandler(nil, store)

	rec := do(h, http.MethodGet, "/api/assessments", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "list failed") {
		t.Errorf("expected list failed in body, got %s", rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/api/assessments/abc", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAssessmentDetail_NotFound(t *testing.T) {
	rec := do(newTestHandler(nil, newMockStore()), http.MethodGet, "/api/assessments/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := NewHandler(Config{Card: NewAgentCard("")}, "http://dashboard.local")

	r := httptest.NewRequest(http.MethodOptions, "/assess", nil)
	r.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("unexpected allow origin %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin for foreign origin %q", got)
	}
}

// greenAgent wires the real assessment pipeline over an in-process paginator.
func greenAgent(t *testing.T) (http.Handler, string, *FileStore) {
	t.Helper()
	outputRoot := t.TempDir()
	store := NewFileStore(t.TempDir())
	svc := assess.NewService(
		assess.Config{OutputRoot: outputRoot, ScoreTimeout: 5 * time.Second},
		assess.LocalConfigurer{Pager: paging.New(faults.NewEngine(), fixtures.Generator{})},
		staging.New(staging.Config{Root: t.TempDir()}),
		scoring.NewJudge(fixtures.NewCached(fixtures.Generator{}), nil),
		store,
	)
	registry := jsonrpc.NewMethodRegistry()
	jsonrpc.RegisterHandlers(registry, jsonrpc.NewHandlerContext(svc, nil))

	h := NewHandler(Config{
		Assessor: svc,
		Store:    store,
		RPC:      jsonrpc.NewServer(registry, nil),
		Card:     NewAgentCard("http://localhost:9009/a2a/rpc"),
	})
	return h, outputRoot, store
}

func writePerfectOutput(t *testing.T, dir string, def tasks.Definition) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	recs := fixtures.Generate(def).Records
	var buf bytes.Buffer
	if err := records.WriteJSONL(&buf, recs); err != nil {
		t.Fatal(err)
	}
	md, _ := json.Marshal(map[string]any{
		"task_id":         def.ID,
		"query":           def.Query.Map(),
		"row_count":       len(recs),
		"schema":          records.Fields,
		"dedup_key":       records.DedupFields,
		"totals_handling": "dropped",
		"request_stats":   map[string]any{"requests_total": def.Constraints.BaselineRequests},
	})
	var log strings.Builder
	for i := range def.Constraints.BaselineRequests {
		fmt.Fprintf(&log, "task_id=%s page=%d request=%d status=200\n", def.ID, i+1, i+1)
	}
	fmt.Fprintf(&log, "task_id=%s complete rows=%d has_more=false\n", def.ID, len(recs))

	files := map[string][]byte{
		validation.DataFile:     buf.Bytes(),
		validation.MetadataFile: md,
		validation.LogFile:      []byte(log.String()),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGreenAgent_AssessEndToEnd(t *testing.T) {
	h, root, store := greenAgent(t)
	def, err := tasks.Get("T2_multi_page")
	if err != nil {
		t.Fatal(err)
	}
	writePerfectOutput(t, filepath.Join(root, def.ID), def)

	rec := do(h, http.MethodPost, "/assess", `{"task_id":"T2_multi_page"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AssessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ScoreTotal != 100 {
		t.Errorf("expected 100, got %v (errors %v)", resp.ScoreTotal, resp.Errors)
	}
	if resp.ScoreBreakdown.Correctness != scoring.MaxCorrectness {
		t.Errorf("expected full correctness, got %v", resp.ScoreBreakdown.Correctness)
	}

	rec = do(h, http.MethodGet, "/api/assessments/"+resp.AssessmentID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stored assessment, got %d", rec.Code)
	}
	items, err := store.List("", "")
	if err != nil || len(items) != 1 || items[0].TaskID != def.ID {
		t.Fatalf("unexpected store contents %v %v", items, err)
	}

	rec = do(h, http.MethodPost, "/assess", `{"task_id":"T9_nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown task, got %d", rec.Code)
	}
}

func TestGreenAgent_A2ATasksSend(t *testing.T) {
	h, root, _ := greenAgent(t)
	def, err := tasks.Get("T1_single_page")
	if err != nil {
		t.Fatal(err)
	}
	writePerfectOutput(t, filepath.Join(root, "custom"), def)

	body := `{"jsonrpc":"2.0","id":"r1","method":"tasks/send","params":{"task":{"input":{"content":"{\"task_id\":\"T1_single_page\",\"purple_output_subdir\":\"custom\"}"}}}}`
	rec := do(h, http.MethodPost, "/a2a/rpc", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		ID     string `json:"id"`
		Result struct {
			Task struct {
				Status string `json:"status"`
				Output struct {
					Content struct {
						Total float64 `json:"score_total"`
					} `json:"content"`
				} `json:"output"`
			} `json:"task"`
		} `json:"result"`
		Error *jsonrpc.Error `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error %v", resp.Error)
	}
	if resp.ID != "r1" || resp.Result.Task.Status != "completed" || resp.Result.Task.Output.Content.Total != 100 {
		t.Errorf("unexpected response %+v", resp)
	}
}
