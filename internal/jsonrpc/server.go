package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// maxBodyBytes bounds one HTTP request body.
const maxBodyBytes = 1 << 20

var nullID = json.RawMessage("null")

// Server dispatches JSON-RPC 2.0 requests to registered methods. It serves
// newline-delimited streams (stdio, TCP) and implements http.Handler.
type Server struct {
	registry *MethodRegistry
	logger   *slog.Logger
}

// NewServer creates a JSON-RPC server with the given method registry.
func NewServer(registry *MethodRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, logger: logger}
}

// Handle processes one raw request. The second return value is false for
// notifications, which must not receive a response on stream transports.
func (s *Server) Handle(ctx context.Context, raw []byte) (*Response, bool) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return &Response{JSONRPC: "2.0", Error: ErrParseError(err.Error()), ID: nullID}, true
	}

	// Notifications are requests where the "id" key is absent from JSON.
	isNotification := !hasIDField(raw)
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if req.JSONRPC != "2.0" {
		return &Response{JSONRPC: "2.0", Error: ErrInvalidRequest(`jsonrpc must be "2.0"`), ID: id}, !isNotification
	}

	handler := s.registry.Lookup(req.Method)
	if handler == nil {
		return &Response{JSONRPC: "2.0", Error: ErrMethodNotFound(req.Method), ID: id}, !isNotification
	}

	s.logger.Debug("rpc call", "method", req.Method)
	result, rpcErr := handler(ctx, req.Params)

	resp := &Response{JSONRPC: "2.0", ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp, !isNotification
}

// ServeTransport reads requests from the transport and writes responses.
// It runs until the reader returns io.EOF, a read error, or ctx is done.
func (s *Server) ServeTransport(ctx context.Context, t *Transport) {
	for ctx.Err() == nil {
		raw, err := t.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("read error", "error", err)
			}
			return
		}

		resp, respond := s.Handle(ctx, raw)
		if !respond {
			continue
		}
		if err := t.WriteResponse(resp); err != nil {
			s.logger.Debug("write error", "error", err)
			return
		}
	}
}

// ServeStdio runs the server on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) {
	s.ServeTransport(ctx, NewTransport(stdin, stdout))
}

// ServeHTTP answers a single JSON-RPC request posted as the body. Over HTTP
// every request gets a response; a missing id is echoed as null.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, &Response{
			JSONRPC: "2.0",
			Error:   ErrInvalidRequest("use POST"),
			ID:      nullID,
		})
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &Response{JSONRPC: "2.0", Error: ErrParseError(err.Error()), ID: nullID})
		return
	}
	resp, _ := s.Handle(r.Context(), raw)
	writeJSON(w, http.StatusOK, resp)
}

// hasIDField checks whether the raw JSON contains an "id" key at the top level.
func hasIDField(raw []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, exists := obj["id"]
	return exists
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
