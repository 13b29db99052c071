// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package groundcontrol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flightdeck-ai/flightdeck/lib/clock"
)

// Section names recognized by ApplyUpdate. Anything else in an
// update is ignored.
const (
	SectionApp         = "app"
	SectionSession     = "session"
	SectionNavigation  = "navigation"
	SectionConstraints = "constraints"
)

var recognizedSections = []string{
	SectionApp, SectionSession, SectionNavigation, SectionConstraints,
}

// State is the durable mission-state store. Created once per mission
// and exclusively owned by the running turn loop; no locking.
type State struct {
	clock    clock.Clock
	turn     int
	sections map[string]map[string]any

	telemetry []TelemetryEntry
}

// New creates an empty State. baseURL, when non-empty, seeds
// app.baseUrl and constraints.stayWithinBaseUrl.
func New(clk clock.Clock, baseURL string, stayWithinBase bool) *State {
	sections := make(map[string]map[string]any, len(recognizedSections))
	for _, name := range recognizedSections {
		sections[name] = make(map[string]any)
	}
	state := &State{clock: clk, sections: sections}
	if baseURL != "" {
		state.sections[SectionApp]["baseUrl"] = baseURL
		state.sections[SectionConstraints]["stayWithinBaseUrl"] = stayWithinBase
	}
	return state
}

// SetTurnIndex records the turn the loop is executing. Telemetry
// appended afterwards is stamped with this index.
func (state *State) SetTurnIndex(turn int) {
	state.turn = turn
}

// ApplyUpdate merges a partial update into the recognized sections,
// leaf by leaf. A key present in the update overwrites the stored
// value; explicitly provided false and null count as provided. Keys
// absent from the update keep their prior values. Sections that are
// not maps, and sections outside the recognized set, are ignored.
func (state *State) ApplyUpdate(partial map[string]any) {
	for _, name := range recognizedSections {
		raw, ok := partial[name]
		if !ok {
			continue
		}
		leaves, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range leaves {
			state.sections[name][key] = value
		}
	}
}

// ApplyUpdateJSON decodes a JSON object and applies it as an update.
// Tool calls deliver updates as raw JSON arguments.
func (state *State) ApplyUpdateJSON(raw json.RawMessage) error {
	var partial map[string]any
	if err := json.Unmarshal(raw, &partial); err != nil {
		return fmt.Errorf("groundcontrol: decoding update: %w", err)
	}
	state.ApplyUpdate(partial)
	return nil
}

// Lookup returns the value stored at section.key and whether it is
// set. A stored null returns (nil, true).
func (state *State) Lookup(section, key string) (any, bool) {
	leaves, ok := state.sections[section]
	if !ok {
		return nil, false
	}
	value, ok := leaves[key]
	return value, ok
}

// lookupString coerces a stored leaf to string, empty when unset or
// not a string.
func (state *State) lookupString(section, key string) string {
	value, ok := state.Lookup(section, key)
	if !ok {
		return ""
	}
	text, _ := value.(string)
	return text
}

// BaseURL returns app.baseUrl.
func (state *State) BaseURL() string { return state.lookupString(SectionApp, "baseUrl") }

// CurrentURL returns app.currentUrl.
func (state *State) CurrentURL() string { return state.lookupString(SectionApp, "currentUrl") }

// LoggedIn coerces session.loggedIn to a boolean. Models sometimes
// report it as a string ("true") or number; anything truthy counts.
func (state *State) LoggedIn() bool {
	value, ok := state.Lookup(SectionSession, "loggedIn")
	if !ok {
		return false
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(typed, "true")
	case float64:
		return typed != 0
	default:
		return false
	}
}

// Summarize renders the durable facts as a compact block for prompt
// injection: base and current URL, coerced login state, and the last
// five telemetry lines. Returns "no signal" when nothing durable has
// been set yet, so an empty state adds no prompt noise.
func (state *State) Summarize() string {
	var lines []string

	if base := state.BaseURL(); base != "" {
		lines = append(lines, "base url: "+base)
	}
	if current := state.CurrentURL(); current != "" {
		lines = append(lines, "current url: "+current)
	}
	if _, ok := state.Lookup(SectionSession, "loggedIn"); ok {
		lines = append(lines, fmt.Sprintf("logged in: %t", state.LoggedIn()))
	}

	telemetry := state.telemetry
	if len(telemetry) > 5 {
		telemetry = telemetry[len(telemetry)-5:]
	}
	for _, entry := range telemetry {
		lines = append(lines, fmt.Sprintf("[%s/%s] %s", entry.Kind, entry.Status, entry.Text))
	}

	if len(lines) == 0 {
		return "no signal"
	}
	return strings.Join(lines, "\n")
}
