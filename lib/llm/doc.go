// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the canonical conversation types for the
// mission turn loop and a provider-agnostic interface for chat
// completion backends.
//
// The canonical [Message] shape follows the chat-completions
// convention: flat roles (system, user, assistant, tool), tool calls
// declared on assistant messages, and tool results carried by
// tool-role messages that reference the declaring call by ID. Two
// structural invariants hold for every conversation sent to a
// provider:
//
//   - every tool-role message's ToolCallID resolves to a ToolCall
//     declared by an earlier assistant message, and
//   - every assistant ToolCall is answered by exactly one tool-role
//     message before the next provider call.
//
// The turn loop enforces both via lib/llm/context.
//
// [Chat] is the provider seam. [OpenAICompatible] is the stock
// implementation, speaking the chat-completions wire format to any
// compatible server (OpenAI, OpenRouter, vLLM, Ollama, llama.cpp).
// Response headers are surfaced so callers can learn rate-limit
// ceilings from 429 responses.
package llm
