// Package mockapi serves the simulated trade-data API that purple agents are
// evaluated against.
package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzhttp"

	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// RetryAfterSeconds is sent with every injected 429.
const RetryAfterSeconds = 1

// Handlers holds the HTTP handler methods for the mock API.
type Handlers struct {
	pager  *paging.Paginator
	logger *slog.Logger

	mu     sync.Mutex
	active string
}

// NewHandlers creates handlers over the given paginator.
func NewHandlers(pager *paging.Paginator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{pager: pager, logger: logger}
}

// RegisterRoutes registers all mock API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("POST /configure", h.HandleConfigure)
	mux.HandleFunc("GET /records", h.HandleRecords)
	mux.HandleFunc("GET /stats", h.HandleStats)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

// NewHandler returns the complete mock API handler with gzip negotiation.
func NewHandler(pager *paging.Paginator, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(pager, logger))
	return gzhttp.GzipHandler(mux)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Tasks: len(tasks.IDs())})
}

// HandleConfigure resets the fault state and pagination session of a task.
// Calling it twice in a row is equivalent to calling it once.
func (h *Handlers) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid configure body: %v", err))
			return
		}
	}
	if req.TaskID == "" {
		req.TaskID = r.URL.Query().Get("task_id")
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	def, err := tasks.Get(req.TaskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := h.pager.Configure(def); err != nil {
		h.logger.Error("configure failed", "task_id", def.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.mu.Lock()
	h.active = def.ID
	h.mu.Unlock()

	h.logger.Info("task configured", "task_id", def.ID, "mode", def.Fault.Mode)
	writeJSON(w, http.StatusOK, ConfigureResponse{
		Status:     "configured",
		TaskID:     def.ID,
		Query:      def.Query,
		Mode:       def.Fault.Mode,
		Constraint: def.Constraints,
	})
}

// HandleRecords serves one page of records, or an injected fault.
func (h *Handlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	def, ok := h.resolveTask(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if err := checkQuery(def.Query, q.Get); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cursor, err := cursorFrom(q.Get, def.Constraints.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, decision, err := h.pager.FetchPage(r.Context(), def, cursor)
	if err != nil {
		h.logger.Error("fetch page failed", "task_id", def.ID, "cursor", cursor, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if decision.IsError() {
		index := page.RequestIndex
		h.logger.Debug("injected fault", "task_id", def.ID, "decision", decision, "request_index", index)
		if decision == faults.HTTP429 {
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		}
		writeJSON(w, decision.StatusCode(), ErrorResponse{
			Error:        http.StatusText(decision.StatusCode()),
			Code:         decision.StatusCode(),
			TaskID:       def.ID,
			RequestIndex: &index,
		})
		return
	}

	h.logger.Debug("served page",
		"task_id", def.ID,
		"page", page.Page,
		"records", len(page.Records),
		"decision", decision,
		"request_index", page.RequestIndex,
	)
	writeJSON(w, http.StatusOK, page)
}

// HandleStats returns the session counters of a task.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	def, ok := h.resolveTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.pager.Stats(def))
}

// resolveTask picks the task from the task_id parameter, falling back to the
// most recently configured one.
func (h *Handlers) resolveTask(w http.ResponseWriter, r *http.Request) (tasks.Definition, bool) {
	id := r.URL.Query().Get("task_id")
	if id == "" {
		h.mu.Lock()
		id = h.active
		h.mu.Unlock()
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "task_id is required (no task configured)")
		return tasks.Definition{}, false
	}
	def, err := tasks.Get(id)
	if err != nil {
		if errors.Is(err, tasks.ErrUnknownTask) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return tasks.Definition{}, false
	}
	return def, true
}

// checkQuery rejects requests whose declared query parameters disagree with
// the task. Absent parameters are allowed.
func checkQuery(want tasks.Query, get func(string) string) error {
	expected := map[string]string{
		"reporter": want.Reporter,
		"partner":  want.Partner,
		"flow":     want.Flow,
		"hs":       want.HS,
		"year":     strconv.Itoa(want.Year),
	}
	for _, key := range tasks.QueryKeys {
		got := get(key)
		if got != "" && got != expected[key] {
			return fmt.Errorf("query parameter %s=%q does not match task (%q)", key, got, expected[key])
		}
	}
	return nil
}

// cursorFrom derives the 0-based record offset from offset or 1-based page
// parameters. Client page sizes are ignored; the task's page size applies.
func cursorFrom(get func(string) string, pageSize int) (int, error) {
	if v := get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid offset %q", v)
		}
		return n, nil
	}
	if v := get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid page %q", v)
		}
		return (n - 1) * pageSize, nil
	}
	return 0, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
