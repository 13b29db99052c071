// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package groundcontrol

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flightdeck-ai/flightdeck/lib/clock"
)

func testState() *State {
	return New(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), "", false)
}

func TestApplyUpdate_LeafMergePreservesSiblings(t *testing.T) {
	t.Parallel()

	state := testState()
	state.ApplyUpdate(map[string]any{
		"session": map[string]any{"loggedIn": false, "userLabel": "admin"},
	})
	state.ApplyUpdate(map[string]any{
		"app": map[string]any{"currentUrl": "X"},
	})

	if state.LoggedIn() {
		t.Error("LoggedIn() = true, want false (earlier explicit false preserved)")
	}
	if got := state.CurrentURL(); got != "X" {
		t.Errorf("CurrentURL() = %q, want X", got)
	}
	if value, ok := state.Lookup(SectionSession, "userLabel"); !ok || value != "admin" {
		t.Errorf("session.userLabel = %v, want admin", value)
	}
}

func TestApplyUpdate_ExplicitNullOverwrites(t *testing.T) {
	t.Parallel()

	state := testState()
	state.ApplyUpdate(map[string]any{"session": map[string]any{"tenant": "acme"}})

	// JSON null decodes to a nil any value, which is still an explicitly
	// provided key, so it overwrites.
	if err := state.ApplyUpdateJSON(json.RawMessage(`{"session":{"tenant":null}}`)); err != nil {
		t.Fatalf("ApplyUpdateJSON() error: %v", err)
	}

	value, ok := state.Lookup(SectionSession, "tenant")
	if !ok {
		t.Fatal("session.tenant should remain set after null overwrite")
	}
	if value != nil {
		t.Errorf("session.tenant = %v, want nil", value)
	}
}

func TestApplyUpdate_IgnoresUnknownSections(t *testing.T) {
	t.Parallel()

	state := testState()
	state.ApplyUpdate(map[string]any{
		"wormholes": map[string]any{"count": 7},
		"app":       "not-a-map",
	})

	if _, ok := state.Lookup("wormholes", "count"); ok {
		t.Error("unknown section was stored")
	}
	if got := state.CurrentURL(); got != "" {
		t.Errorf("CurrentURL() = %q, want empty after malformed section", got)
	}
}

func TestRecordTelemetry_NormalizesAndStamps(t *testing.T) {
	t.Parallel()

	state := testState()
	state.SetTurnIndex(4)

	if !state.RecordTelemetry(TelemetryEntry{Kind: TelemetryAssertion, Text: "cart has 2 items"}) {
		t.Fatal("RecordTelemetry() = false, want true")
	}

	entries := state.Telemetry()
	if len(entries) != 1 {
		t.Fatalf("Telemetry() has %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != StatusNotApplicable {
		t.Errorf("Status = %q, want %q default", entry.Status, StatusNotApplicable)
	}
	if entry.TurnIndex != 4 {
		t.Errorf("TurnIndex = %d, want 4", entry.TurnIndex)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
}

func TestRecordTelemetry_RejectsIncomplete(t *testing.T) {
	t.Parallel()

	state := testState()
	if state.RecordTelemetry(TelemetryEntry{Text: "no kind"}) {
		t.Error("RecordTelemetry() accepted entry without kind")
	}
	if state.RecordTelemetry(TelemetryEntry{Kind: TelemetryNote}) {
		t.Error("RecordTelemetry() accepted entry without text")
	}
	if len(state.Telemetry()) != 0 {
		t.Errorf("Telemetry() has %d entries, want 0", len(state.Telemetry()))
	}
}

func TestSummarize_NoSignalWhenEmpty(t *testing.T) {
	t.Parallel()

	if got := testState().Summarize(); got != "no signal" {
		t.Errorf("Summarize() = %q, want %q", got, "no signal")
	}
}

func TestSummarize_ProjectsStateAndRecentTelemetry(t *testing.T) {
	t.Parallel()

	state := New(clock.Fake(time.Now()), "https://example.test", true)
	state.ApplyUpdate(map[string]any{
		"app":     map[string]any{"currentUrl": "https://example.test/admin"},
		"session": map[string]any{"loggedIn": "true"},
	})
	for i := 0; i < 7; i++ {
		state.RecordTelemetry(TelemetryEntry{
			Kind: TelemetryBreadcrumb,
			Text: "step " + string(rune('a'+i)),
		})
	}

	summary := state.Summarize()
	if !strings.Contains(summary, "base url: https://example.test") {
		t.Errorf("summary missing base url:\n%s", summary)
	}
	if !strings.Contains(summary, "logged in: true") {
		t.Errorf("summary missing coerced login state:\n%s", summary)
	}
	// Only the last five telemetry lines appear.
	if strings.Contains(summary, "step a") || strings.Contains(summary, "step b") {
		t.Errorf("summary includes telemetry older than last five:\n%s", summary)
	}
	if !strings.Contains(summary, "step g") {
		t.Errorf("summary missing most recent telemetry:\n%s", summary)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	t.Parallel()

	state := New(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), "https://example.test", true)
	state.SetTurnIndex(3)
	state.ApplyUpdate(map[string]any{"navigation": map[string]any{"currentLabel": "Admin / Users"}})
	state.RecordTelemetry(TelemetryEntry{Kind: TelemetryIssue, Text: "404 on /reports", Status: StatusFailed})

	path := filepath.Join(t.TempDir(), "mission", "ground.cbor")
	if err := state.Checkpoint(path); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	snapshot, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if snapshot.TurnIndex != 3 {
		t.Errorf("TurnIndex = %d, want 3", snapshot.TurnIndex)
	}
	if got := snapshot.Sections["navigation"]["currentLabel"]; got != "Admin / Users" {
		t.Errorf("navigation.currentLabel = %v, want Admin / Users", got)
	}
	if len(snapshot.Telemetry) != 1 || snapshot.Telemetry[0].Status != StatusFailed {
		t.Errorf("Telemetry = %+v, want one failed issue", snapshot.Telemetry)
	}
}
