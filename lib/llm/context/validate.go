// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"

	"github.com/flightdeck-ai/flightdeck/lib/llm"
)

// Validator checks that every assistant tool call is answered by a
// later tool message, repairing omissions when permitted.
type Validator struct {
	// Repair inserts a placeholder tool result for each unanswered
	// call. When false, Validate reports invalid conversations
	// without mutating them; the caller must not send them upstream.
	Repair bool
}

// Validate walks the conversation looking for assistant tool calls
// with no matching tool response. With repair enabled, a placeholder
// tool message naming the omission is inserted immediately after the
// declaring assistant message and the repaired conversation is
// returned with ok=true. With repair disabled, the original
// conversation is returned unchanged and ok=false when any call is
// unanswered.
func (validator *Validator) Validate(messages []llm.Message) (repaired []llm.Message, ok bool) {
	answered := make(map[string]bool)
	for _, message := range messages {
		if message.Role == llm.RoleTool && message.ToolCallID != "" {
			answered[message.ToolCallID] = true
		}
	}

	// Collect unanswered calls per assistant message index, in
	// declaration order.
	missing := make(map[int][]llm.ToolCall)
	for i, message := range messages {
		if message.Role != llm.RoleAssistant {
			continue
		}
		for _, call := range message.ToolCalls {
			if !answered[call.ID] {
				missing[i] = append(missing[i], call)
			}
		}
	}

	if len(missing) == 0 {
		return messages, true
	}
	if !validator.Repair {
		return messages, false
	}

	repaired = make([]llm.Message, 0, len(messages))
	for i, message := range messages {
		repaired = append(repaired, message)
		for _, call := range missing[i] {
			repaired = append(repaired, llm.ToolResultMessage(
				call.ID,
				call.Name,
				fmt.Sprintf("tool %s produced no recorded output; treat the call as returning nothing", call.Name),
			))
		}
	}
	return repaired, true
}
