// Package webapi serves the green agent over HTTP: the /assess endpoint,
// A2A discovery and JSON-RPC, and the stored assessment results.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/comtradebench/greenbench/internal/assess"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Assessor runs one assessment.
type Assessor interface {
	Assess(ctx context.Context, req assess.Request) (*assess.Assessment, error)
}

// Config wires the handlers to their collaborators.
type Config struct {
	Assessor Assessor
	Store    AssessmentStore
	// RPC serves POST /a2a/rpc.
	RPC http.Handler
	// Card is the A2A discovery document.
	Card   AgentCard
	Logger *slog.Logger
}

// Handlers holds the HTTP handler methods for the green agent.
type Handlers struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = NewFileStore("")
	}
	return &Handlers{cfg: cfg, logger: cfg.Logger}
}

// RegisterRoutes registers all green agent routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("POST /assess", h.HandleAssess)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /agent-card", h.HandleLegacyCard)
	mux.HandleFunc("GET /.well-known/agent.json", h.HandleAgentCard)
	mux.HandleFunc("GET /.well-known/agent-card.json", h.HandleAgentCard)
	mux.HandleFunc("POST /.well-known/agent-card.json", h.HandleAgentCard)
	if h.cfg.RPC != nil {
		mux.Handle("POST /a2a/rpc", h.cfg.RPC)
	}
	mux.HandleFunc("GET /api/assessments", h.HandleAssessments)
	mux.HandleFunc("GET /api/assessments/{id}", h.HandleAssessmentDetail)
}

// NewHandler returns the complete green agent handler. When allowedOrigins
// is non-empty, matching browser origins receive CORS headers.
func NewHandler(cfg Config, allowedOrigins ...string) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(cfg))
	return CORSMiddleware(mux, allowedOrigins...)
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleAgentCard serves the A2A discovery document.
func (h *Handlers) HandleAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Card)
}

// HandleLegacyCard serves the pre-A2A card.
func (h *Handlers) HandleLegacyCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LegacyCard{
		Name:      h.cfg.Card.Name,
		Version:   h.cfg.Card.Version,
		Endpoints: map[string]string{"assess": "/assess"},
	})
}

// HandleAssess configures the mock API, stages the purple output and scores it.
func (h *Handlers) HandleAssess(w http.ResponseWriter, r *http.Request) {
	var req assess.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	a, err := h.cfg.Assessor.Assess(r.Context(), req)
	if err != nil {
		status := StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("assessment failed", "task_id", req.TaskID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	res := a.Result
	writeJSON(w, http.StatusOK, AssessResponse{
		TaskID:         res.TaskID,
		ScoreTotal:     res.Total,
		ScoreBreakdown: res.Breakdown,
		Errors:         res.Errors,
		Details:        res.Details,
		AssessmentID:   a.ID,
	})
}

// StatusForError maps assessment errors to HTTP statuses.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, tasks.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, assess.ErrScoreTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleAssessments lists stored assessments, with optional sort/order query params.
func (h *Handlers) HandleAssessments(w http.ResponseWriter, r *http.Request) {
	items, err := h.cfg.Store.List(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleAssessmentDetail returns one stored assessment with its full result.
func (h *Handlers) HandleAssessmentDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "assessment id is required")
		return
	}

	a, err := h.cfg.Store.Get(id)
	if err != nil {
		if errors.Is(err, ErrAssessmentNotFound) {
			writeError(w, http.StatusNotFound, "assessment not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Detail: msg, Code: code})
}
