package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler processes a JSON-RPC request and returns a result or error.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

type method struct {
	handler Handler
	calls   atomic.Int64
}

// MethodRegistry maps A2A method names to handlers and counts dispatches.
// It is safe for concurrent use.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]*method
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]*method)}
}

// Register binds name to handler. Registering a name twice is a
// programming error and panics.
func (r *MethodRegistry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[name]; ok {
		panic(fmt.Sprintf("jsonrpc: method %q registered twice", name))
	}
	r.methods[name] = &method{handler: handler}
}

// Lookup returns the handler for name, or nil when none is registered.
// Each successful lookup counts as one call.
func (r *MethodRegistry) Lookup(name string) Handler {
	r.mu.RLock()
	m, ok := r.methods[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	m.calls.Add(1)
	return m.handler
}

// Calls reports how many times name has been dispatched.
func (r *MethodRegistry) Calls(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.methods[name]; ok {
		return m.calls.Load()
	}
	return 0
}

// Methods returns the registered method names in lexical order.
func (r *MethodRegistry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
