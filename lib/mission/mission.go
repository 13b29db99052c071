// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package mission defines mission files: the natural-language goals
// the pilot flies against a browser session. Missions are authored by
// hand, so the format is JSONC: comments and trailing commas
// allowed, stripped before decoding.
package mission

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Mission is one end-to-end goal executed against a browser session.
type Mission struct {
	// Name identifies the mission in step logs and reports. Defaults
	// to the file name without extension.
	Name string `json:"name"`

	// Goal is the natural-language objective handed to the model.
	Goal string `json:"goal"`

	// BaseURL is where the mission starts.
	BaseURL string `json:"baseUrl"`

	// StayWithinBaseURL constrains navigation to the base URL's
	// origin. Seeded into ground control as a constraint.
	StayWithinBaseURL bool `json:"stayWithinBaseUrl"`

	// MaxTurns overrides the configured turn budget when > 0.
	MaxTurns int `json:"maxTurns"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the mission.
func Parse(data []byte) (*Mission, error) {
	stripped := jsonc.ToJSON(data)

	var parsed Mission
	if err := json.Unmarshal(stripped, &parsed); err != nil {
		return nil, fmt.Errorf("parsing mission: %w", err)
	}
	if err := parsed.Validate(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseFile reads and parses a mission file. A missing Name defaults
// to the file name without extension.
func ParseFile(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mission %q: %w", path, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mission %q: %w", path, err)
	}
	if parsed.Name == "" {
		base := filepath.Base(path)
		parsed.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return parsed, nil
}

// Validate checks the mission for errors.
func (m *Mission) Validate() error {
	if m.Goal == "" {
		return fmt.Errorf("mission: goal is required")
	}
	if m.BaseURL == "" {
		return fmt.Errorf("mission: baseUrl is required")
	}
	parsed, err := url.Parse(m.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("mission: baseUrl %q is not an absolute URL", m.BaseURL)
	}
	if m.MaxTurns < 0 {
		return fmt.Errorf("mission: maxTurns must not be negative")
	}
	return nil
}
