// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// chatTestServer creates a test HTTP server and returns a client
// connected to it.
func chatTestServer(t *testing.T, handler http.Handler) *OpenAICompatible {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAICompatible(server.Client(), server.URL)
}

func TestOpenAICompatibleComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		var wireRequest struct {
			Model    string `json:"model"`
			Messages []struct {
				Role       string `json:"role"`
				Content    string `json:"content"`
				ToolCallID string `json:"tool_call_id"`
				Name       string `json:"name"`
			} `json:"messages"`
			Tools []struct {
				Type     string `json:"type"`
				Function struct {
					Name       string          `json:"name"`
					Parameters json.RawMessage `json:"parameters"`
				} `json:"function"`
			} `json:"tools"`
		}
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}

		if wireRequest.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", wireRequest.Model)
		}
		if length := len(wireRequest.Messages); length != 3 {
			t.Errorf("messages length = %d, want 3", length)
		} else {
			if wireRequest.Messages[0].Role != "system" {
				t.Errorf("messages[0].role = %q, want system", wireRequest.Messages[0].Role)
			}
			if wireRequest.Messages[2].Role != "tool" {
				t.Errorf("messages[2].role = %q, want tool", wireRequest.Messages[2].Role)
			}
			if wireRequest.Messages[2].ToolCallID != "call-1" {
				t.Errorf("messages[2].tool_call_id = %q, want call-1", wireRequest.Messages[2].ToolCallID)
			}
			if wireRequest.Messages[2].Name != "get_dom" {
				t.Errorf("messages[2].name = %q, want get_dom", wireRequest.Messages[2].Name)
			}
		}
		if length := len(wireRequest.Tools); length != 1 {
			t.Errorf("tools length = %d, want 1", length)
		} else if wireRequest.Tools[0].Function.Name != "click_text" {
			t.Errorf("tool name = %q, want click_text", wireRequest.Tools[0].Function.Name)
		}

		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("X-Ratelimit-Limit-Tokens", "30000")
		fmt.Fprint(writer, `{
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"tool_calls": [{
						"id": "call-2",
						"type": "function",
						"function": {"name": "click_text", "arguments": "{\"text\":\"Login\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 18, "total_tokens": 138}
		}`)
	})

	provider := chatTestServer(t, mux)

	response, err := provider.Complete(context.Background(), Request{
		Model: "gpt-4o",
		Messages: []Message{
			SystemMessage("You are a browser pilot."),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "get_dom"}}},
			ToolResultMessage("call-1", "get_dom", "<html></html>"),
		},
		Tools: []ToolDefinition{{
			Name:       "click_text",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if response.StopReason != StopReasonToolUse {
		t.Errorf("StopReason = %q, want %q", response.StopReason, StopReasonToolUse)
	}
	if length := len(response.Message.ToolCalls); length != 1 {
		t.Fatalf("ToolCalls length = %d, want 1", length)
	}
	call := response.Message.ToolCalls[0]
	if call.ID != "call-2" || call.Name != "click_text" {
		t.Errorf("tool call = %+v, want id call-2 name click_text", call)
	}
	if response.Usage.TotalTokens != 138 {
		t.Errorf("TotalTokens = %d, want 138", response.Usage.TotalTokens)
	}
	if got := response.Headers.Get("X-Ratelimit-Limit-Tokens"); got != "30000" {
		t.Errorf("rate limit header = %q, want 30000", got)
	}
}

func TestOpenAICompatibleCompleteDerivesTotalTokens(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{
			"model": "local",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SUCCESS"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 5}
		}`)
	})

	provider := chatTestServer(t, mux)
	response, err := provider.Complete(context.Background(), Request{Model: "local"})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if response.Usage.TotalTokens != 55 {
		t.Errorf("TotalTokens = %d, want 55 (derived)", response.Usage.TotalTokens)
	}
	if response.Message.Content != "SUCCESS" {
		t.Errorf("Content = %q, want SUCCESS", response.Message.Content)
	}
}

func TestOpenAICompatibleRateLimitError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("X-Ratelimit-Limit-Tokens", "10000")
		writer.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(writer, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	provider := chatTestServer(t, mux)
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("Complete() should return error on 429")
	}

	providerError, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error %v is not a ProviderError", err)
	}
	if !providerError.IsRateLimited() {
		t.Errorf("IsRateLimited() = false, want true")
	}
	if providerError.IsInvalidRequest() {
		t.Errorf("IsInvalidRequest() = true, want false")
	}
	if providerError.Type != "rate_limit_error" {
		t.Errorf("Type = %q, want rate_limit_error", providerError.Type)
	}
	if got := providerError.Headers.Get("X-Ratelimit-Limit-Tokens"); got != "10000" {
		t.Errorf("rate limit header = %q, want 10000", got)
	}
}

func TestOpenAICompatibleUnparseableError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(writer, "upstream unavailable")
	})

	provider := chatTestServer(t, mux)
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	providerError, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error %v is not a ProviderError", err)
	}
	if providerError.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", providerError.StatusCode)
	}
	if providerError.Message != "upstream unavailable" {
		t.Errorf("Message = %q, want raw body", providerError.Message)
	}
}

func TestOpenAICompatibleBearerToken(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"model":"m","choices":[],"usage":{}}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	provider := NewOpenAICompatible(server.Client(), server.URL).WithToken("secret")
	if _, err := provider.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
}
