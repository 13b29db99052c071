// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package pilot

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// StepResult classifies one turn attempt.
type StepResult string

const (
	// StepPassed is a turn whose tool calls all dispatched cleanly.
	StepPassed StepResult = "passed"

	// StepError is a turn in which at least one tool call failed;
	// the failure was fed back to the model as an observation.
	StepError StepResult = "error"

	// StepSuccess and StepFailure record the model's verdict.
	StepSuccess StepResult = "success"
	StepFailure StepResult = "failure"

	// StepAborted records a turn the engine had to give up on:
	// unrepairable protocol damage, a 400 from the provider, or
	// exhausted rate-limit retries.
	StepAborted StepResult = "aborted"
)

// Step is the append-only audit record for one turn attempt.
// Immutable once created.
type Step struct {
	TurnIndex    int        `json:"turn_index"`
	Events       []string   `json:"events"`
	Result       StepResult `json:"result"`
	TokensUsed   int64      `json:"tokens_used"`
	RetryAttempt int        `json:"retry_attempt"`

	// ScreenshotPath is set when the turn produced a screenshot.
	ScreenshotPath string `json:"screenshot_path,omitempty"`

	// FileEvents records files produced by download-class tools.
	FileEvents []string `json:"file_events,omitempty"`
}

// StepLogWriter appends Step records as JSONL (one JSON object per
// line) and aggregates a mission summary. Safe for concurrent use.
type StepLogWriter struct {
	file    *os.File
	encoder *json.Encoder
	mutex   sync.Mutex
	closed  bool

	startTime  time.Time
	stepCount  int64
	tokensUsed int64
	errorCount int64
}

// NewStepLogWriter creates (or truncates) the step log at path.
func NewStepLogWriter(path string) (*StepLogWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating step log %q: %w", path, err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)
	return &StepLogWriter{
		file:      file,
		encoder:   encoder,
		startTime: time.Now(),
	}, nil
}

// Write appends one step and updates summary counters. Synced after
// each write so the trace survives a crash; step logs are
// low-throughput, so the cost is acceptable.
func (writer *StepLogWriter) Write(step Step) error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	if err := writer.encoder.Encode(step); err != nil {
		return fmt.Errorf("encoding step: %w", err)
	}
	if err := writer.file.Sync(); err != nil {
		return fmt.Errorf("syncing step log: %w", err)
	}

	writer.stepCount++
	writer.tokensUsed += step.TokensUsed
	if step.Result == StepError || step.Result == StepAborted {
		writer.errorCount++
	}
	return nil
}

// Close flushes and closes the log file. Idempotent.
func (writer *StepLogWriter) Close() error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	if writer.closed {
		return nil
	}
	writer.closed = true
	return writer.file.Close()
}

// MissionSummary aggregates the step log.
type MissionSummary struct {
	StepCount  int64         `json:"step_count"`
	TokensUsed int64         `json:"tokens_used"`
	ErrorCount int64         `json:"error_count"`
	Duration   time.Duration `json:"duration"`
}

// Summary returns the aggregated mission summary so far.
func (writer *StepLogWriter) Summary() MissionSummary {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return MissionSummary{
		StepCount:  writer.stepCount,
		TokensUsed: writer.tokensUsed,
		ErrorCount: writer.errorCount,
		Duration:   time.Since(writer.startTime),
	}
}
