// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"

	"github.com/flightdeck-ai/flightdeck/lib/llm"
)

// Archiver preserves a heavy tool output before the compactor
// replaces it with a placeholder. Implementations return a short
// reference (e.g., a content digest) that the placeholder embeds so
// the original remains traceable. A nil Archiver discards stubbed
// content.
type Archiver interface {
	// Archive stores content produced by the named tool and returns
	// a reference string. An error disables the reference but never
	// blocks compaction.
	Archive(toolName string, content string) (string, error)
}

// Compactor shrinks a conversation in two protocol-safe phases.
//
// Phase one, heavy-output stubbing: tool messages produced by tools
// in HeavyTools keep their verbatim content only for the most recent
// KeepRecent occurrences per tool name. Older occurrences have their
// content replaced by a placeholder; the messages themselves are not
// removed, so the call/response pairing is untouched.
//
// Phase two, window pruning: system messages are always retained;
// of the remainder only the last WindowSize survive. A consistency
// pass then drops any retained tool message whose call ID has no
// matching tool call among retained assistant messages, and drops
// unconditionally any tool message lacking a call ID.
//
// Compact is idempotent: compacting an already-compacted conversation
// with the same parameters returns it unchanged.
type Compactor struct {
	// HeavyTools names the tools whose outputs are characteristically
	// large (e.g., "get_dom"). Outputs of other tools are never stubbed.
	HeavyTools map[string]bool

	// KeepRecent is the number of most recent outputs per heavy tool
	// kept verbatim. Non-positive stubs every occurrence.
	KeepRecent int

	// WindowSize is the number of non-system messages retained by
	// window pruning. Non-positive disables pruning.
	WindowSize int

	// Archive, when non-nil, receives each stubbed output before
	// replacement.
	Archive Archiver
}

// stubPlaceholder is the fixed replacement content for displaced
// heavy outputs. The tool name tells the model what was elided; the
// suffix carries an archive reference when one exists.
func stubPlaceholder(toolName, reference string) string {
	if reference == "" {
		return fmt.Sprintf("[stale %s output removed to save context; re-run %s if needed]", toolName, toolName)
	}
	return fmt.Sprintf("[stale %s output removed to save context; archived as %s; re-run %s if needed]", toolName, reference, toolName)
}

// stubbed reports whether content is a compactor placeholder.
// Placeholders are never re-archived on later passes.
func stubbed(content string) bool {
	return len(content) > 7 && content[:7] == "[stale "
}

// Compact applies both phases and returns the compacted conversation.
// The input slice is not modified.
func (compactor *Compactor) Compact(messages []llm.Message) []llm.Message {
	return compactor.pruneWindow(compactor.stubHeavyOutputs(messages))
}

// stubHeavyOutputs replaces all but the most recent KeepRecent
// outputs of each heavy tool with placeholders.
func (compactor *Compactor) stubHeavyOutputs(messages []llm.Message) []llm.Message {
	if len(compactor.HeavyTools) == 0 {
		return messages
	}

	// Count verbatim occurrences per heavy tool so the scan below
	// knows which fall outside the most recent KeepRecent.
	verbatim := make(map[string]int)
	for _, message := range messages {
		if message.Role == llm.RoleTool && compactor.HeavyTools[message.Name] && !stubbed(message.Content) {
			verbatim[message.Name]++
		}
	}

	result := make([]llm.Message, len(messages))
	copy(result, messages)

	seen := make(map[string]int)
	for i := range result {
		message := &result[i]
		if message.Role != llm.RoleTool || !compactor.HeavyTools[message.Name] || stubbed(message.Content) {
			continue
		}
		seen[message.Name]++
		// The first (total - KeepRecent) occurrences are the stale ones.
		if verbatim[message.Name]-seen[message.Name] < compactor.KeepRecent {
			continue
		}

		reference := ""
		if compactor.Archive != nil {
			archived, err := compactor.Archive.Archive(message.Name, message.Content)
			if err == nil {
				reference = archived
			}
		}
		message.Content = stubPlaceholder(message.Name, reference)
	}

	return result
}

// pruneWindow retains all system messages plus the last WindowSize of
// the remainder, then drops orphaned tool messages.
func (compactor *Compactor) pruneWindow(messages []llm.Message) []llm.Message {
	if compactor.WindowSize <= 0 {
		return dropOrphanedToolResults(messages)
	}

	nonSystem := 0
	for _, message := range messages {
		if message.Role != llm.RoleSystem {
			nonSystem++
		}
	}

	toSkip := nonSystem - compactor.WindowSize
	if toSkip <= 0 {
		return dropOrphanedToolResults(messages)
	}

	retained := make([]llm.Message, 0, len(messages)-toSkip)
	for _, message := range messages {
		if message.Role != llm.RoleSystem && toSkip > 0 {
			toSkip--
			continue
		}
		retained = append(retained, message)
	}

	return dropOrphanedToolResults(retained)
}

// dropOrphanedToolResults removes tool messages whose call ID does
// not resolve to a tool call on a retained assistant message, and
// tool messages lacking a call ID entirely. Pruning can separate a
// tool response from its declaring assistant message; sending the
// orphan upstream would violate the provider contract.
func dropOrphanedToolResults(messages []llm.Message) []llm.Message {
	declared := make(map[string]bool)
	for _, message := range messages {
		if message.Role != llm.RoleAssistant {
			continue
		}
		for _, call := range message.ToolCalls {
			declared[call.ID] = true
		}
	}

	result := messages[:0:0]
	for _, message := range messages {
		if message.Role == llm.RoleTool {
			if message.ToolCallID == "" || !declared[message.ToolCallID] {
				continue
			}
		}
		result = append(result, message)
	}
	return result
}
