// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Flightdeck
// components.
//
// Configuration is loaded from a single YAML file specified by:
//   - FLIGHTDECK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables never override
// individual values. This keeps mission runs deterministic and
// auditable.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Flightdeck pilot.
type Config struct {
	// Provider configures the chat completion backend.
	Provider ProviderConfig `yaml:"provider"`

	// Loop configures the turn loop.
	Loop LoopConfig `yaml:"loop"`

	// Context configures conversation compaction.
	Context ContextConfig `yaml:"context"`

	// Paths configures output locations.
	Paths PathsConfig `yaml:"paths"`
}

// ProviderConfig configures the chat completion backend.
type ProviderConfig struct {
	// BaseURL is the OpenAI-compatible server root
	// (e.g., https://api.openai.com or http://localhost:11434); the
	// /v1/chat/completions path is appended by the client.
	BaseURL string `yaml:"base_url"`

	// Model is the model name sent with every request.
	Model string `yaml:"model"`

	// TokenFile is the path to a file holding the bearer token. A
	// file rather than an inline value so the config can be committed.
	TokenFile string `yaml:"token_file"`

	// TokensPerMinute pins the rate-limit ceiling, bypassing both
	// header learning and the built-in model family table. Zero means
	// resolve automatically.
	TokensPerMinute int64 `yaml:"tokens_per_minute"`

	// RateLimits pins ceilings per model name, taking priority over
	// TokensPerMinute for the matching model.
	RateLimits map[string]int64 `yaml:"rate_limits"`
}

// TPMOverride resolves the pinned tokens-per-minute ceiling for a
// model: the per-model entry if present, else the global pin, else
// zero (resolve automatically).
func (p *ProviderConfig) TPMOverride(model string) int64 {
	if limit, ok := p.RateLimits[model]; ok {
		return limit
	}
	return p.TokensPerMinute
}

// LoopConfig configures the turn loop.
type LoopConfig struct {
	// MaxTurns bounds the mission. A mission file's maxTurns takes
	// priority when set.
	MaxTurns int `yaml:"max_turns"`

	// RetryLimit is the 429 retry budget per provider call,
	// clamped to [1, 10] by Validate.
	RetryLimit int `yaml:"retry_limit"`
}

// ContextConfig configures conversation compaction.
type ContextConfig struct {
	// HeavyTools names the tools whose outputs get stubbed once
	// stale (e.g., get_dom).
	HeavyTools []string `yaml:"heavy_tools"`

	// KeepRecent is how many outputs per heavy tool stay verbatim.
	KeepRecent int `yaml:"keep_recent"`

	// WindowSize is how many non-system messages survive pruning.
	// Zero disables pruning.
	WindowSize int `yaml:"window_size"`
}

// PathsConfig configures output locations.
type PathsConfig struct {
	// Root is the base directory for mission output.
	Root string `yaml:"root"`

	// Archive is where stubbed heavy outputs are preserved.
	// Default: <root>/archive.
	Archive string `yaml:"archive"`

	// StepLog is the JSONL step log path.
	// Default: <root>/steps.jsonl.
	StepLog string `yaml:"step_log"`

	// Checkpoint is the ground-control snapshot path.
	// Default: <root>/groundcontrol.cbor.
	Checkpoint string `yaml:"checkpoint"`
}

// Default returns the default configuration. These defaults exist to
// give every field a sensible zero-value before the file is merged
// in, not as a substitute for the file: BaseURL and Model have no
// defaults and Validate rejects a config without them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "flightdeck")

	return &Config{
		Provider: ProviderConfig{
			TokensPerMinute: 0,
		},
		Loop: LoopConfig{
			MaxTurns:   30,
			RetryLimit: 3,
		},
		Context: ContextConfig{
			HeavyTools: []string{"get_dom"},
			KeepRecent: 2,
			WindowSize: 40,
		},
		Paths: PathsConfig{
			Root:       defaultRoot,
			Archive:    filepath.Join(defaultRoot, "archive"),
			StepLog:    filepath.Join(defaultRoot, "steps.jsonl"),
			Checkpoint: filepath.Join(defaultRoot, "groundcontrol.cbor"),
		},
	}
}

// Load loads configuration from the FLIGHTDECK_CONFIG environment
// variable. There is no fallback: if the variable is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FLIGHTDECK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FLIGHTDECK_CONFIG environment variable not set; " +
			"set it to the path of your flightdeck.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults and validating the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.fillDerivedPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// fillDerivedPaths derives unset output paths from the root.
func (c *Config) fillDerivedPaths() {
	if c.Paths.Root == "" {
		return
	}
	if c.Paths.Archive == "" {
		c.Paths.Archive = filepath.Join(c.Paths.Root, "archive")
	}
	if c.Paths.StepLog == "" {
		c.Paths.StepLog = filepath.Join(c.Paths.Root, "steps.jsonl")
	}
	if c.Paths.Checkpoint == "" {
		c.Paths.Checkpoint = filepath.Join(c.Paths.Root, "groundcontrol.cbor")
	}
}

// Validate checks required fields and clamps bounded ones.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Provider.TokensPerMinute < 0 {
		return fmt.Errorf("provider.tokens_per_minute must not be negative")
	}
	if c.Loop.MaxTurns <= 0 {
		return fmt.Errorf("loop.max_turns must be positive")
	}
	if c.Loop.RetryLimit < 1 {
		c.Loop.RetryLimit = 1
	}
	if c.Loop.RetryLimit > 10 {
		c.Loop.RetryLimit = 10
	}
	if c.Context.KeepRecent < 0 {
		return fmt.Errorf("context.keep_recent must not be negative")
	}
	if c.Context.WindowSize < 0 {
		return fmt.Errorf("context.window_size must not be negative")
	}
	return nil
}

// ReadToken reads the bearer token file, trimmed of trailing
// whitespace. Returns "" without error when no token file is
// configured; local endpoints often need no auth.
func (c *Config) ReadToken() (string, error) {
	if c.Provider.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Provider.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file %q: %w", c.Provider.TokenFile, err)
	}
	token := string(data)
	for len(token) > 0 && (token[len(token)-1] == '\n' || token[len(token)-1] == '\r' || token[len(token)-1] == ' ') {
		token = token[:len(token)-1]
	}
	return token, nil
}
