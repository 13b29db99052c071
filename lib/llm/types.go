// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"net/http"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem carries standing instructions. System messages are
	// never pruned by the context compactor.
	RoleSystem Role = "system"

	// RoleUser carries mission prompts and injected nudges.
	RoleUser Role = "user"

	// RoleAssistant carries model output: verdict text or tool calls.
	RoleAssistant Role = "assistant"

	// RoleTool carries the result of a single tool call, referencing
	// the declaring call via ToolCallID.
	RoleTool Role = "tool"
)

// ToolCall is a structured action requested by the model. The ID is
// assigned by the provider, or synthesized by the turn loop for
// injected DOM refreshes. A ToolCall is owned by the assistant
// message that declares it; the answering tool message references it
// by ID without owning it.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry in a conversation. Exactly one of the
// role-specific shapes applies:
//
//   - system/user: Content only
//   - assistant: Content (verdict or commentary) and/or ToolCalls
//   - tool: Content plus ToolCallID and Name of the answered call
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message carrying plain text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// AssistantToolCalls builds an assistant message declaring tool calls.
func AssistantToolCalls(calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// ToolResultMessage builds a tool-role message answering the call
// with the given ID.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool name (e.g., "click_text", "get_dom").
	Name string

	// Description is the human-readable tool description.
	Description string

	// Parameters is the JSON Schema for the tool's arguments,
	// serialized as JSON.
	Parameters json.RawMessage
}

// Request is a single chat completion call.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition

	// MaxTokens caps the response length. Zero lets the provider
	// apply its default.
	MaxTokens int

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
}

// StopReason describes why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// TotalTokens is the provider-reported total. The token budget
	// feeds this into its rolling window.
	TotalTokens int64 `json:"total_tokens"`
}

// Response is the provider's reply to a [Request].
type Response struct {
	// Message is the assistant message: verdict text, tool calls, or
	// both.
	Message Message

	StopReason StopReason
	Usage      Usage
	Model      string

	// Headers are the raw HTTP response headers when the provider
	// surfaces them. Used to learn rate-limit ceilings.
	Headers http.Header
}
