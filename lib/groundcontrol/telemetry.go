// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package groundcontrol

import (
	"encoding/json"
	"fmt"
	"time"
)

// TelemetryKind classifies a telemetry entry.
type TelemetryKind string

const (
	TelemetryBreadcrumb TelemetryKind = "breadcrumb"
	TelemetryAssertion  TelemetryKind = "assertion"
	TelemetryIssue      TelemetryKind = "issue"
	TelemetryNote       TelemetryKind = "note"
)

// TelemetryStatus records the outcome attached to an entry.
type TelemetryStatus string

const (
	StatusPassed        TelemetryStatus = "passed"
	StatusFailed        TelemetryStatus = "failed"
	StatusNotApplicable TelemetryStatus = "n/a"
)

// TelemetryEntry is one append-only telemetry record. Immutable once
// appended.
type TelemetryEntry struct {
	Kind      TelemetryKind   `json:"kind"`
	Text      string          `json:"text"`
	Status    TelemetryStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	TurnIndex int             `json:"turn_index"`
}

// RecordTelemetry normalizes and appends an entry: an empty status
// defaults to "n/a", and the entry is stamped with the current time
// and turn index. Entries missing Kind or Text are rejected: nothing
// is appended and false is returned.
func (state *State) RecordTelemetry(entry TelemetryEntry) bool {
	if entry.Kind == "" || entry.Text == "" {
		return false
	}
	if entry.Status == "" {
		entry.Status = StatusNotApplicable
	}
	entry.Timestamp = state.clock.Now()
	entry.TurnIndex = state.turn
	state.telemetry = append(state.telemetry, entry)
	return true
}

// RecordTelemetryJSON decodes a JSON entry and appends it. The
// returned error covers decoding only; a decoded-but-incomplete
// entry is silently rejected like in RecordTelemetry.
func (state *State) RecordTelemetryJSON(raw json.RawMessage) (bool, error) {
	var entry TelemetryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, fmt.Errorf("groundcontrol: decoding telemetry entry: %w", err)
	}
	return state.RecordTelemetry(entry), nil
}

// Telemetry returns a copy of the full telemetry record.
func (state *State) Telemetry() []TelemetryEntry {
	out := make([]TelemetryEntry, len(state.telemetry))
	copy(out, state.telemetry)
	return out
}
