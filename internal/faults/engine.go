// Package faults decides, per task and request index, which adverse behavior
// the mock API applies to the next /records call.
package faults

import (
	"slices"
	"sync"

	"github.com/comtradebench/greenbench/internal/tasks"
)

// Decision is the outcome of the fault engine for one request.
type Decision int

const (
	Pass Decision = iota
	HTTP429
	HTTP500
	DuplicatePage
	DriftedPage
	TotalsInjected
)

var decisionNames = [...]string{
	Pass:           "pass",
	HTTP429:        "http_429",
	HTTP500:        "http_500",
	DuplicatePage:  "duplicate_page",
	DriftedPage:    "drifted_page",
	TotalsInjected: "totals_injected",
}

func (d Decision) String() string {
	if int(d) < len(decisionNames) {
		return decisionNames[d]
	}
	return "unknown"
}

// IsError reports whether the decision produces an HTTP error instead of a page.
func (d Decision) IsError() bool {
	return d == HTTP429 || d == HTTP500
}

// StatusCode returns the HTTP status the decision maps to.
func (d Decision) StatusCode() int {
	switch d {
	case HTTP429:
		return 429
	case HTTP500:
		return 500
	default:
		return 200
	}
}

// Decide is the pure decision function: it depends only on the task's fault
// configuration and the request index since the last configure.
func Decide(def tasks.Definition, index int) Decision {
	f := def.Fault
	switch f.Mode {
	case tasks.ModeNone:
		return Pass
	case tasks.ModeRateLimit:
		return onSchedule(f.Schedule, index, HTTP429)
	case tasks.ModeServerError:
		return onSchedule(f.Schedule, index, HTTP500)
	case tasks.ModeDuplicates:
		return onSchedule(f.Schedule, index, DuplicatePage)
	case tasks.ModePageDrift:
		return onSchedule(f.Schedule, index, DriftedPage)
	case tasks.ModeTotalsTrap:
		return TotalsInjected
	default:
		return Pass
	}
}

func onSchedule(schedule []int, index int, d Decision) Decision {
	if slices.Contains(schedule, index) {
		return d
	}
	return Pass
}

// FaultState is the per-task mutable counter of requests served since the
// last configure.
type FaultState struct {
	Requests int `json:"requests"`
	Injected int `json:"injected"`
}

// Engine owns the FaultState of every task, keyed by task id.
type Engine struct {
	mu     sync.Mutex
	states map[string]*FaultState
}

// NewEngine creates an engine with no sessions.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*FaultState)}
}

// Reset discards any prior state for the task. A prior session may have been
// drained or abandoned; either way the next sequence starts at index 0.
func (e *Engine) Reset(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[taskID] = &FaultState{}
}

// Next advances the task's counter and returns the decision for the request
// along with its index.
func (e *Engine) Next(def tasks.Definition) (Decision, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[def.ID]
	if !ok {
		st = &FaultState{}
		e.states[def.ID] = st
	}
	index := st.Requests
	st.Requests++

	d := Decide(def, index)
	if d != Pass {
		st.Injected++
	}
	return d, index
}

// Snapshot returns a copy of the task's state.
func (e *Engine) Snapshot(taskID string) FaultState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[taskID]; ok {
		return *st
	}
	return FaultState{}
}
