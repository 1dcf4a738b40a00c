package mockapi

import "github.com/comtradebench/greenbench/internal/tasks"

// ConfigureRequest is the body of POST /configure. Only task_id is required;
// the other fields are accepted for compatibility with agents that echo the
// full task definition back.
type ConfigureRequest struct {
	TaskID string         `json:"task_id"`
	Query  map[string]any `json:"query,omitempty"`
	Mode   string         `json:"mode,omitempty"`
}

// ConfigureResponse acknowledges a configure call.
type ConfigureResponse struct {
	Status     string            `json:"status"`
	TaskID     string            `json:"task_id"`
	Query      tasks.Query       `json:"query"`
	Mode       tasks.FaultMode   `json:"mode"`
	Constraint tasks.Constraints `json:"constraints"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
}

// ErrorResponse is returned for every non-200 status, including injected faults.
type ErrorResponse struct {
	Error        string `json:"error"`
	Code         int    `json:"code"`
	TaskID       string `json:"task_id,omitempty"`
	RequestIndex *int   `json:"request_index,omitempty"`
}
