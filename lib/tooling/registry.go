// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package tooling routes model-issued tool calls to their
// implementations and normalizes what comes back. Tool failure is
// mission data, not loop failure: errors, panics, and malformed
// arguments all become "ERROR: ..." strings fed back to the model,
// never escapes from the dispatcher.
package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/flightdeck-ai/flightdeck/lib/llm"
)

// Func implements one tool. Arguments arrive as the raw JSON the
// model produced. The result may be a string or any JSON-serializable
// value; the dispatcher flattens it to text.
type Func func(ctx context.Context, arguments json.RawMessage) (any, error)

// Registry is a fixed mapping from tool name to implementation plus
// the definitions offered to the model. The automation collaborator
// supplies the browser tools; the pilot adds its ground-control
// built-ins. The registry must include "get_dom" because the turn
// loop injects DOM-refresh calls automatically.
type Registry struct {
	tools       map[string]Func
	definitions map[string]llm.ToolDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:       make(map[string]Func),
		definitions: make(map[string]llm.ToolDefinition),
	}
}

// Register adds a tool. Registering a name twice replaces the
// earlier implementation.
func (registry *Registry) Register(definition llm.ToolDefinition, fn Func) {
	registry.tools[definition.Name] = fn
	registry.definitions[definition.Name] = definition
}

// Has reports whether a tool with the given name is registered.
func (registry *Registry) Has(name string) bool {
	_, ok := registry.tools[name]
	return ok
}

// Definitions returns the tool definitions in name order, for the
// provider request.
func (registry *Registry) Definitions() []llm.ToolDefinition {
	names := make([]string, 0, len(registry.definitions))
	for name := range registry.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		definitions = append(definitions, registry.definitions[name])
	}
	return definitions
}

// Dispatch invokes the named tool and returns its result as text.
// Every failure mode (unknown tool, implementation error, panic,
// unserializable result) is returned as an "ERROR: ..." string with
// a nil error, so the caller can feed it straight back to the model.
func (registry *Registry) Dispatch(ctx context.Context, name string, arguments json.RawMessage) (result string) {
	fn, ok := registry.tools[name]
	if !ok {
		return fmt.Sprintf("ERROR: unknown tool %q", name)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = fmt.Sprintf("ERROR: tool %s panicked: %v", name, recovered)
		}
	}()

	value, err := fn(ctx, arguments)
	if err != nil {
		return "ERROR: " + err.Error()
	}

	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		serialized, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("ERROR: serializing %s result: %v", name, err)
		}
		return string(serialized)
	}
}
