package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/comtradebench/greenbench/internal/assess"
)

// TaskStatus is the lifecycle state of an A2A task.
type TaskStatus string

const (
	StatusWorking   TaskStatus = "working"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCanceled  TaskStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Task is an A2A task as returned by tasks/send, tasks/get and tasks/cancel.
type Task struct {
	ID     string      `json:"id"`
	Status TaskStatus  `json:"status"`
	Output *TaskOutput `json:"output,omitempty"`
	Error  *TaskError  `json:"error,omitempty"`
}

// TaskOutput carries the assessment result.
type TaskOutput struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// TaskError describes why a task failed.
type TaskError struct {
	Message string `json:"message"`
}

// TaskResult wraps a task the way A2A clients expect it.
type TaskResult struct {
	Task Task `json:"task"`
}

// Assessor runs one assessment.
type Assessor interface {
	Assess(ctx context.Context, req assess.Request) (*assess.Assessment, error)
}

// HandlerContext provides shared state for the A2A method handlers.
type HandlerContext struct {
	assessor Assessor
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	// cancelFuncs tracks cancel functions for running assessments.
	cancelFuncs map[string]context.CancelFunc
}

// NewHandlerContext creates a handler context backed by assessor.
func NewHandlerContext(assessor Assessor, logger *slog.Logger) *HandlerContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerContext{
		assessor:    assessor,
		logger:      logger,
		tasks:       make(map[string]*Task),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// RegisterHandlers registers the A2A methods.
func RegisterHandlers(registry *MethodRegistry, hctx *HandlerContext) {
	registry.Register("tasks/send", hctx.handleTasksSend)
	registry.Register("tasks/get", hctx.handleTasksGet)
	registry.Register("tasks/cancel", hctx.handleTasksCancel)
	registry.Register("tasks/sendSubscribe", hctx.handleTasksSendSubscribe)
	registry.Register("message/send", hctx.handleMessageSend)
}

// decodeParams decodes the params object into out through mapstructure so
// loosely shaped client payloads map onto the json tags of out.
func decodeParams(params json.RawMessage, out any) *Error {
	raw := map[string]any{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &raw); err != nil {
			return ErrInvalidParams("params must be an object")
		}
	}
	return decodeMap(raw, out)
}

func decodeMap(in map[string]any, out any) *Error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return ErrInternalError(err.Error())
	}
	if err := dec.Decode(in); err != nil {
		return ErrInvalidParams(err.Error())
	}
	return nil
}

// assessRequest decodes task content given either as an object or as a
// JSON string holding one.
func assessRequest(content any) (assess.Request, *Error) {
	var req assess.Request
	switch c := content.(type) {
	case nil:
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err != nil || obj == nil {
			return req, ErrInvalidParams("content must be valid JSON object")
		}
		if rpcErr := decodeMap(obj, &req); rpcErr != nil {
			return req, rpcErr
		}
	case map[string]any:
		if rpcErr := decodeMap(c, &req); rpcErr != nil {
			return req, rpcErr
		}
	default:
		return req, ErrInvalidParams("content must be valid JSON object")
	}
	if req.TaskID == "" {
		return req, ErrInvalidParams("task_id is required in content")
	}
	return req, nil
}

// --- tasks/send ---

type sendParams struct {
	ID   string `json:"id"`
	Task struct {
		Input struct {
			Content any `json:"content"`
		} `json:"input"`
	} `json:"task"`
}

func (h *HandlerContext) handleTasksSend(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p sendParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	req, rpcErr := assessRequest(p.Task.Input.Content)
	if rpcErr != nil {
		return nil, rpcErr
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, rpcErr = h.begin(ctx, id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	a, err := h.assessor.Assess(ctx, req)
	task := h.finish(id, a, err)
	if err != nil {
		h.logger.Warn("assessment failed", "a2a_task_id", id, "task_id", req.TaskID, "error", err)
		return nil, ErrAssessmentFailed(err.Error())
	}
	return &TaskResult{Task: task}, nil
}

func (h *HandlerContext) begin(ctx context.Context, id string) (context.Context, *Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.tasks[id]; exists {
		return nil, ErrInvalidParams(fmt.Sprintf("task %s already exists", id))
	}
	ctx, cancel := context.WithCancel(ctx)
	h.tasks[id] = &Task{ID: id, Status: StatusWorking}
	h.cancelFuncs[id] = cancel
	return ctx, nil
}

// finish records the outcome unless the task was canceled meanwhile, and
// returns a snapshot safe to encode outside the lock.
func (h *HandlerContext) finish(id string, a *assess.Assessment, err error) Task {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, ok := h.cancelFuncs[id]; ok {
		cancel()
		delete(h.cancelFuncs, id)
	}
	t := h.tasks[id]
	if t.Status == StatusWorking {
		if err != nil {
			t.Status = StatusFailed
			t.Error = &TaskError{Message: err.Error()}
		} else {
			t.Status = StatusCompleted
			t.Output = &TaskOutput{Type: "object", Content: a.Result}
		}
	}
	return *t
}

// --- tasks/get ---

type taskIDParams struct {
	TaskID string `json:"task_id"`
	ID     string `json:"id"`
}

func (p taskIDParams) id() string {
	if p.TaskID != "" {
		return p.TaskID
	}
	return p.ID
}

func (h *HandlerContext) handleTasksGet(_ context.Context, params json.RawMessage) (any, *Error) {
	var p taskIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id := p.id()
	if id == "" {
		return nil, ErrInvalidParams("task_id is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound(id)
	}
	return &TaskResult{Task: *t}, nil
}

// --- tasks/cancel ---

func (h *HandlerContext) handleTasksCancel(_ context.Context, params json.RawMessage) (any, *Error) {
	var p taskIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id := p.id()
	if id == "" {
		return nil, ErrInvalidParams("task_id is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound(id)
	}
	if !t.Status.Terminal() {
		t.Status = StatusCanceled
		if cancel, ok := h.cancelFuncs[id]; ok {
			cancel()
			delete(h.cancelFuncs, id)
		}
		h.logger.Info("task cancelled", "a2a_task_id", id)
	}
	return &TaskResult{Task: *t}, nil
}

// --- tasks/sendSubscribe ---

func (h *HandlerContext) handleTasksSendSubscribe(context.Context, json.RawMessage) (any, *Error) {
	return nil, ErrStreamingUnsupported()
}

// --- message/send ---

type messageParams struct {
	Message struct {
		ContextID string `json:"contextId"`
		Parts     []Part `json:"parts"`
	} `json:"message"`
}

// Part is one piece of an A2A message.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Message is an A2A agent message.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

// SendMessageResult acknowledges an evaluation request.
type SendMessageResult struct {
	Message   Message `json:"message"`
	MessageID string  `json:"messageId"`
	ContextID string  `json:"contextId"`
}

// MessageAssessResult carries an assessment run through message/send.
type MessageAssessResult struct {
	Result TaskOutput `json:"result"`
}

func (h *HandlerContext) handleMessageSend(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p messageParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p.Message.Parts) == 0 {
		return nil, ErrInvalidParams("message must have parts")
	}

	content := map[string]any{}
	if text := p.Message.Parts[0].Text; text != "" {
		if err := json.Unmarshal([]byte(text), &content); err != nil {
			return nil, ErrInvalidParams(fmt.Sprintf("content must be valid JSON: %v", err))
		}
	}

	participants, hasParticipants := content["participants"]
	cfg, hasConfig := content["config"]
	if hasParticipants && hasConfig {
		return h.acknowledge(p.Message.ContextID, participants, cfg)
	}

	if _, ok := content["task_id"]; !ok {
		return nil, ErrInvalidParams("Either (participants+config) or task_id is required in content")
	}
	req, rpcErr := assessRequest(content)
	if rpcErr != nil {
		return nil, rpcErr
	}
	a, err := h.assessor.Assess(ctx, req)
	if err != nil {
		return nil, ErrAssessmentFailed(err.Error())
	}
	return &MessageAssessResult{Result: TaskOutput{Type: "object", Content: a.Result}}, nil
}

// acknowledge answers an evaluation request listing participants and tasks.
func (h *HandlerContext) acknowledge(contextID string, participants, cfg any) (any, *Error) {
	names := []string{}
	if m, ok := participants.(map[string]any); ok {
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	taskList := []any{}
	if m, ok := cfg.(map[string]any); ok {
		if ts, ok := m["tasks"].([]any); ok {
			taskList = ts
		}
	}

	text, err := json.Marshal(map[string]any{
		"status":       "acknowledged",
		"message":      "Green agent received evaluation request",
		"participants": names,
		"tasks_count":  len(taskList),
		"tasks":        taskList,
	})
	if err != nil {
		return nil, ErrInternalError(err.Error())
	}

	messageID := uuid.NewString()
	if contextID == "" {
		contextID = uuid.NewString()
	}
	h.logger.Info("evaluation request acknowledged", "participants", len(names), "tasks", len(taskList))
	return &SendMessageResult{
		Message: Message{
			Kind:      "message",
			MessageID: messageID,
			ContextID: contextID,
			Role:      "agent",
			Parts:     []Part{{Kind: "text", Text: string(text)}},
		},
		MessageID: messageID,
		ContextID: contextID,
	}, nil
}
