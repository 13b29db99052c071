// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package pilot drives one mission: a bounded, single-threaded turn
// loop between a tool-calling model and a browser automation
// backend.
//
// Each turn refreshes the token window, backs off if the mission is
// over its tokens-per-minute ceiling, repairs any tool-protocol
// damage, compacts the conversation, calls the provider, and then
// either dispatches the returned tool calls or interprets the text
// as a verdict. The loop never throws tool failures: they are fed
// back to the model as "ERROR:" observations and the model decides
// what to do next.
//
// One [Step] is appended per turn attempt: an immutable audit record
// of what the turn did, including backoffs, repairs, and tool errors,
// so a failed mission is diagnosable without re-running it.
package pilot
