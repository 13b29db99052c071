// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompatible implements [Chat] for the OpenAI Chat Completions
// API. Compatible with any server implementing the same wire format
// (OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama, llama.cpp, etc.).
//
// Authentication is the caller's concern: pass an http.Client whose
// transport injects credentials, or a bearer token via WithToken.
type OpenAICompatible struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewOpenAICompatible creates a chat-completions client for the given
// base URL (e.g., "https://api.openai.com" or "http://localhost:11434").
// The /v1/chat/completions path is appended. A nil httpClient uses
// http.DefaultClient.
func NewOpenAICompatible(httpClient *http.Client, baseURL string) *OpenAICompatible {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAICompatible{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithToken sets a bearer token sent in the Authorization header.
func (provider *OpenAICompatible) WithToken(token string) *OpenAICompatible {
	provider.token = token
	return provider
}

// Complete sends a non-streaming request and returns the full
// response, with the raw HTTP headers attached for rate-limit
// learning.
func (provider *OpenAICompatible) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := buildChatRequest(request)

	httpClient := provider.httpClient
	if provider.token != "" {
		httpClient = provider.authorizedClient()
	}

	httpResponse, err := doProviderRequest(ctx, httpClient,
		provider.endpoint(), wireRequest, "llm/openai")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResp chatResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("llm/openai: decoding response: %w", err)
	}

	response := wireResp.toResponse()
	response.Headers = httpResponse.Header
	return response, nil
}

// endpoint returns the chat completions URL.
func (provider *OpenAICompatible) endpoint() string {
	return provider.baseURL + "/v1/chat/completions"
}

// authorizedClient wraps the configured client with a transport that
// adds the bearer token to each request.
func (provider *OpenAICompatible) authorizedClient() *http.Client {
	inner := provider.httpClient.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	wrapped := *provider.httpClient
	wrapped.Transport = &bearerTransport{inner: inner, token: provider.token}
	return &wrapped
}

type bearerTransport struct {
	inner http.RoundTripper
	token string
}

func (transport *bearerTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	clone := request.Clone(request.Context())
	clone.Header.Set("Authorization", "Bearer "+transport.token)
	return transport.inner.RoundTrip(clone)
}

// buildChatRequest converts the canonical request to the wire format.
// The canonical Message shape already matches chat completions, so
// the conversion is field renaming, not restructuring.
func buildChatRequest(request Request) chatRequest {
	wireRequest := chatRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}
	if request.Temperature != nil {
		wireRequest.Temperature = request.Temperature
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toWireMessage(message))
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, chatTool{
			Type: "function",
			Function: chatToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	return wireRequest
}

func toWireMessage(message Message) chatMessage {
	wire := chatMessage{
		Role:       string(message.Role),
		Content:    message.Content,
		ToolCallID: message.ToolCallID,
	}
	// The wire format carries the answered tool's name only on
	// tool-role messages.
	if message.Role == RoleTool {
		wire.Name = message.Name
	}
	for _, call := range message.ToolCalls {
		wire.ToolCalls = append(wire.ToolCalls, chatToolCall{
			ID:   call.ID,
			Type: "function",
			Function: chatToolFunction{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return wire
}

// --- Wire types ---
//
// These map directly to the OpenAI Chat Completions JSON format. They
// are separate from the canonical types because the wire format nests
// tool calls under a "function" object and carries arguments as a
// JSON-encoded string rather than raw JSON.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string             `json:"type"`
	Function chatToolDefinition `json:"function"`
}

type chatToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (wireResp *chatResponse) toResponse() *Response {
	response := &Response{
		Model: wireResp.Model,
		Usage: Usage{
			InputTokens:  wireResp.Usage.PromptTokens,
			OutputTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:  wireResp.Usage.TotalTokens,
		},
	}
	// Some compatible servers omit total_tokens; derive it so the
	// token budget always sees a usable number.
	if response.Usage.TotalTokens == 0 {
		response.Usage.TotalTokens = response.Usage.InputTokens + response.Usage.OutputTokens
	}

	if len(wireResp.Choices) == 0 {
		return response
	}

	choice := wireResp.Choices[0]
	response.StopReason = mapFinishReason(choice.FinishReason)

	message := Message{
		Role:    RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, call := range choice.Message.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	response.Message = message

	return response
}

func mapFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "tool_calls":
		return StopReasonToolUse
	case "length":
		return StopReasonMaxTokens
	default:
		// Preserve unknown reasons (e.g., "content_filter") as-is
		// rather than silently mapping to a default.
		return StopReason(reason)
	}
}
