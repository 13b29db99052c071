// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package groundcontrol holds the durable per-mission facts that
// survive conversation compaction. The rolling conversation window
// forgets; ground control does not.
//
// State is organized into four recognized sections (app, session,
// navigation, constraints) mutated only through explicit tool calls
// routed to [State.ApplyUpdate]. Merging is leaf-by-leaf: a key
// present in the update overwrites (including explicit false and
// null), a key absent preserves the prior value, and unrecognized
// sections are dropped silently so a confused model cannot grow the
// schema.
//
// Telemetry is an append-only record of breadcrumbs, assertions,
// issues, and notes. Entries are normalized on append and immutable
// afterwards.
//
// [State.Summarize] renders a compact projection for prompt
// injection, and [State.Checkpoint] writes a deterministic CBOR
// snapshot for post-mission inspection.
package groundcontrol
