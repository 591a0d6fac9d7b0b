// Package tools implements the Function Call Dispatcher (C6): a
// registry of locally implemented tools the AI peer may invoke, and a
// Dispatcher that accumulates streamed JSON argument deltas keyed by
// call_id, parses them once complete, and invokes the matching Tool.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/birddigital/voicebridge/pkg/call"
)

// ErrUnknownTool is returned when the AI peer invokes a tool name that
// is not present in the Registry.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Tool is one locally registered function the AI peer can call.
type Tool interface {
	// Name must match the name advertised in the SessionConfig.Tools
	// sent to the AI peer.
	Name() string
	// Schema returns the JSON Schema describing this tool's parameters,
	// used to advertise the tool to the AI peer. Incoming arguments are
	// not validated against it before Invoke is called.
	Schema() map[string]any
	// Invoke runs the tool with the given raw JSON arguments and
	// returns a JSON-serializable result, or an error. Long-running
	// tools should respect ctx cancellation.
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry is a concurrency-safe name -> Tool map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a Tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Lookup returns the Tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the ToolDefinition list to advertise to the AI
// peer in SessionConfig.Tools, in no particular order.
func (r *Registry) Definitions() []call.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]call.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, call.ToolDefinition{
			Name:       t.Name(),
			Parameters: t.Schema(),
		})
	}
	return defs
}

// Dispatcher accumulates streamed function-call argument deltas for one
// Call and invokes the matching Tool once a call_id's arguments are
// complete.
type Dispatcher struct {
	registry *Registry
	pending  map[string]*call.PendingToolCall
}

// NewDispatcher returns a Dispatcher bound to registry for the life of
// one Call.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, pending: make(map[string]*call.PendingToolCall)}
}

// BeginCall registers a new in-flight tool call identified by callID,
// recording the tool name as soon as it is known (from
// response.output_item.added). Multiple concurrent call_ids are
// tracked independently, supporting more than one function call within
// a single response.
func (d *Dispatcher) BeginCall(callID, itemID, name string) {
	d.pending[callID] = &call.PendingToolCall{CallID: callID, ItemID: itemID, Name: name}
}

// AppendArgs appends one argument-delta chunk to the in-flight call
// identified by callID. If BeginCall was never called for this id (the
// name arrived in the same delta's done event instead), an entry is
// created lazily.
func (d *Dispatcher) AppendArgs(callID, delta string) {
	p, ok := d.pending[callID]
	if !ok {
		p = &call.PendingToolCall{CallID: callID}
		d.pending[callID] = p
	}
	p.Arguments += delta
}

// Complete marks callID's arguments as fully accumulated. If name was
// not already known it is set here (the done event always carries it).
// Returns the finalized PendingToolCall.
func (d *Dispatcher) Complete(callID, name, fullArguments string) *call.PendingToolCall {
	p, ok := d.pending[callID]
	if !ok {
		p = &call.PendingToolCall{CallID: callID}
		d.pending[callID] = p
	}
	if name != "" {
		p.Name = name
	}
	if fullArguments != "" {
		p.Arguments = fullArguments
	}
	p.Done = true
	return p
}

// Invoke looks up and runs the tool for a completed PendingToolCall,
// returning its JSON-serializable result. pkg/bridge runs it via
// pkg/tasks under the key "<callID>:<toolCallID>", so ending the Call
// cancels it by the Call's id prefix.
func (d *Dispatcher) Invoke(ctx context.Context, p *call.PendingToolCall) (any, error) {
	tool, ok := d.registry.Lookup(p.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, p.Name)
	}
	return tool.Invoke(ctx, json.RawMessage(p.Arguments))
}

// Forget drops bookkeeping for callID, called once its result has been
// sent back to the AI peer.
func (d *Dispatcher) Forget(callID string) {
	delete(d.pending, callID)
}

// Pending returns the in-flight call for callID, if any.
func (d *Dispatcher) Pending(callID string) (*call.PendingToolCall, bool) {
	p, ok := d.pending[callID]
	return p, ok
}
