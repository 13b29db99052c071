// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package pilot

import (
	"context"
	"encoding/json"

	"github.com/flightdeck-ai/flightdeck/lib/groundcontrol"
	"github.com/flightdeck-ai/flightdeck/lib/llm"
	"github.com/flightdeck-ai/flightdeck/lib/tooling"
)

var updateGroundControlDefinition = llm.ToolDefinition{
	Name: "update_ground_control",
	Description: "Merge durable facts about the application under test into " +
		"ground control. Provide only the keys you want to change; keys you " +
		"omit keep their current values. Recognized sections: app, session, " +
		"navigation, constraints.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"app": {"type": "object", "additionalProperties": true},
			"session": {"type": "object", "additionalProperties": true},
			"navigation": {"type": "object", "additionalProperties": true},
			"constraints": {"type": "object", "additionalProperties": true}
		},
		"additionalProperties": false
	}`),
}

var recordTelemetryDefinition = llm.ToolDefinition{
	Name: "record_telemetry",
	Description: "Append one telemetry entry to the mission record: a " +
		"breadcrumb, assertion, issue, or note. Assertions should carry a " +
		"passed/failed status.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"kind": {"type": "string", "enum": ["breadcrumb", "assertion", "issue", "note"]},
			"text": {"type": "string"},
			"status": {"type": "string", "enum": ["passed", "failed", "n/a"]}
		},
		"required": ["kind", "text"],
		"additionalProperties": false
	}`),
}

// RegisterGroundTools adds the pilot's built-in tools to the
// registry: update_ground_control and record_telemetry, both backed
// by the mission's ground-control state. The browser toolset comes
// from the automation collaborator; these are the only tools the
// pilot owns.
func RegisterGroundTools(registry *tooling.Registry, ground *groundcontrol.State) {
	registry.Register(updateGroundControlDefinition, func(_ context.Context, arguments json.RawMessage) (any, error) {
		if err := ground.ApplyUpdateJSON(arguments); err != nil {
			return nil, err
		}
		return "ground control updated", nil
	})

	registry.Register(recordTelemetryDefinition, func(_ context.Context, arguments json.RawMessage) (any, error) {
		recorded, err := ground.RecordTelemetryJSON(arguments)
		if err != nil {
			return nil, err
		}
		if !recorded {
			return "telemetry rejected: kind and text are required", nil
		}
		return "telemetry recorded", nil
	})
}
