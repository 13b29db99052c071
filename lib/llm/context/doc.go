// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package context keeps a growing mission conversation inside the
// model's window without breaking the tool-calling protocol.
//
// Two mechanisms cooperate:
//
//   - [Compactor] shrinks and prunes history. Heavy tool outputs
//     (full-page DOM dumps) are stubbed down to placeholders once
//     newer occurrences supersede them, and the rolling window keeps
//     only the most recent messages plus every system message.
//   - [Validator] repairs conversations in which an assistant tool
//     call was never answered, inserting a placeholder tool result so
//     the provider contract (every call answered exactly once) holds.
//
// Both guarantee the same invariant: a conversation leaving this
// package never contains a tool message whose call ID does not
// resolve to a retained assistant tool call. An orphaned tool
// response is rejected by chat-completions providers and aborts the
// mission, so the invariant is safety-critical.
package context
