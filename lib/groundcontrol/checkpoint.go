// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package groundcontrol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flightdeck-ai/flightdeck/lib/codec"
)

// Snapshot is the serialized form of a State at one turn boundary.
type Snapshot struct {
	TurnIndex int                       `cbor:"turn_index"`
	Sections  map[string]map[string]any `cbor:"sections"`
	Telemetry []TelemetryEntry          `cbor:"telemetry"`
}

// Snapshot captures the current durable state.
func (state *State) Snapshot() Snapshot {
	sections := make(map[string]map[string]any, len(state.sections))
	for name, leaves := range state.sections {
		copied := make(map[string]any, len(leaves))
		for key, value := range leaves {
			copied[key] = value
		}
		sections[name] = copied
	}
	return Snapshot{
		TurnIndex: state.turn,
		Sections:  sections,
		Telemetry: state.Telemetry(),
	}
}

// Checkpoint writes a deterministic CBOR snapshot to path. The write
// goes through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot.
func (state *State) Checkpoint(path string) error {
	data, err := codec.Marshal(state.Snapshot())
	if err != nil {
		return fmt.Errorf("groundcontrol: encoding snapshot: %w", err)
	}

	temp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("groundcontrol: creating checkpoint directory: %w", err)
	}
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("groundcontrol: writing snapshot: %w", err)
	}
	if err := os.Rename(temp, path); err != nil {
		return fmt.Errorf("groundcontrol: committing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a checkpoint written by [State.Checkpoint].
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("groundcontrol: reading snapshot %q: %w", path, err)
	}
	var snapshot Snapshot
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("groundcontrol: decoding snapshot %q: %w", path, err)
	}
	return &snapshot, nil
}
