// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package pilot

import (
	"fmt"

	"github.com/flightdeck-ai/flightdeck/lib/llm"
	"github.com/flightdeck-ai/flightdeck/lib/mission"
)

// systemPrompt is the standing instruction set for the model. It
// defines the interaction contract the loop depends on: act through
// tools, keep ground control current, and close the mission with a
// leading SUCCESS or FAILURE verdict.
const systemPrompt = `You are an automated browser test pilot. You verify web
application behavior by driving a real browser through the tools provided.

Rules:
- Act through tool calls. Never describe an action without performing it.
- After navigating or clicking, inspect the refreshed page state before
  deciding your next action.
- Record durable facts (current URL, login state, discovered constraints)
  with update_ground_control, and verification results with record_telemetry.
- Stay within the mission's base URL when ground control says so.
- When the goal is verified, reply with plain text starting with SUCCESS,
  followed by a short justification. If the goal cannot be achieved, reply
  with plain text starting with FAILURE and explain what blocked you.
- Do not declare a verdict until you have observed evidence for it.`

// MissionConversation builds the opening conversation for a mission:
// the standing system prompt plus a user message carrying the goal
// and starting point.
func MissionConversation(m *mission.Mission) []llm.Message {
	goal := fmt.Sprintf("Mission: %s\nStart at: %s\n\nGoal: %s", m.Name, m.BaseURL, m.Goal)
	if m.StayWithinBaseURL {
		goal += "\n\nConstraint: stay within the base URL origin."
	}
	return []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(goal),
	}
}
