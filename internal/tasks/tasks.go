// Package tasks holds the static registry of benchmark task definitions.
package tasks

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownTask is returned when a task id is not in the registry.
var ErrUnknownTask = errors.New("unknown task")

// FaultMode identifies the adverse behavior a task's mock endpoint simulates.
type FaultMode string

const (
	ModeNone        FaultMode = "none"
	ModeDuplicates  FaultMode = "duplicates"
	ModeRateLimit   FaultMode = "rate_limit"
	ModeServerError FaultMode = "server_error"
	ModePageDrift   FaultMode = "page_drift"
	ModeTotalsTrap  FaultMode = "totals_trap"
)

// Modes lists every fault mode in a stable order.
var Modes = []FaultMode{ModeNone, ModeDuplicates, ModeRateLimit, ModeServerError, ModePageDrift, ModeTotalsTrap}

// ParseFaultMode converts a flag or config value to a FaultMode.
func ParseFaultMode(s string) (FaultMode, error) {
	m := FaultMode(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Modes, m) {
		return m, nil
	}
	// the original pagination task used its own mode name; it behaves like none
	if m == "pagination" {
		return ModeNone, nil
	}
	return "", fmt.Errorf("invalid fault mode %q", s)
}

// IsTransportFault reports whether the mode injects HTTP error statuses.
func (m FaultMode) IsTransportFault() bool {
	return m == ModeRateLimit || m == ModeServerError
}

// PagingMode selects how clients address pages.
type PagingMode string

const (
	PagingPage   PagingMode = "page"
	PagingOffset PagingMode = "offset"
)

// Query holds the query parameters every client must send and echo in metadata.json.
type Query struct {
	Reporter string `json:"reporter" yaml:"reporter"`
	Partner  string `json:"partner" yaml:"partner"`
	Flow     string `json:"flow" yaml:"flow"`
	HS       string `json:"hs" yaml:"hs"`
	Year     int    `json:"year" yaml:"year"`
}

// QueryKeys are the declared query keys, in canonical order.
var QueryKeys = []string{"reporter", "partner", "flow", "hs", "year"}

// Map returns the query as a JSON-shaped map. Year stays numeric.
func (q Query) Map() map[string]any {
	return map[string]any{
		"reporter": q.Reporter,
		"partner":  q.Partner,
		"flow":     q.Flow,
		"hs":       q.HS,
		"year":     q.Year,
	}
}

// FaultInjection configures the fault engine for one task.
type FaultInjection struct {
	Mode FaultMode `json:"mode" yaml:"mode"`
	// Schedule lists the 0-based request indices (since /configure) that
	// receive the mode's fault. Unused by none and totals_trap.
	Schedule []int `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	// DuplicateCount is how many previous-page records a duplicate page re-emits.
	DuplicateCount int `json:"duplicate_count,omitempty" yaml:"duplicate_count,omitempty"`
	// DriftShift is how far a drifted page's window slides forward.
	DriftShift int `json:"drift_shift,omitempty" yaml:"drift_shift,omitempty"`
}

// Constraints describe the expected row and page shape of a task.
type Constraints struct {
	TotalRows        int        `json:"total_rows" yaml:"total_rows"`
	PageSize         int        `json:"page_size" yaml:"page_size"`
	PagingMode       PagingMode `json:"paging_mode" yaml:"paging_mode"`
	MaxRequests      int        `json:"max_requests" yaml:"max_requests"`
	BaselineRequests int        `json:"baseline_requests" yaml:"baseline_requests"`
	TotalsRows       int        `json:"totals_rows,omitempty" yaml:"totals_rows,omitempty"`
}

// Definition is one immutable benchmark task.
type Definition struct {
	ID          string         `json:"task_id" yaml:"task_id"`
	Description string         `json:"description" yaml:"description"`
	Query       Query          `json:"query" yaml:"query"`
	Fault       FaultInjection `json:"fault_injection" yaml:"fault_injection"`
	Constraints Constraints    `json:"constraints" yaml:"constraints"`
}

// Pages returns how many pages a canonical drain of the task takes.
func (d Definition) Pages() int {
	if d.Constraints.PageSize <= 0 || d.Constraints.TotalRows <= 0 {
		return 1
	}
	return (d.Constraints.TotalRows + d.Constraints.PageSize - 1) / d.Constraints.PageSize
}

func (d Definition) clone() Definition {
	d.Fault.Schedule = slices.Clone(d.Fault.Schedule)
	return d
}
