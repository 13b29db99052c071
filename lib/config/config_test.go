// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flightdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
provider:
  base_url: https://api.openai.com
  model: gpt-4o-mini
loop:
  max_turns: 15
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Loop.MaxTurns != 15 {
		t.Errorf("MaxTurns = %d, want 15", cfg.Loop.MaxTurns)
	}
	// Unset fields keep defaults.
	if cfg.Loop.RetryLimit != 3 {
		t.Errorf("RetryLimit = %d, want default 3", cfg.Loop.RetryLimit)
	}
	if len(cfg.Context.HeavyTools) != 1 || cfg.Context.HeavyTools[0] != "get_dom" {
		t.Errorf("HeavyTools = %v, want [get_dom]", cfg.Context.HeavyTools)
	}
}

func TestLoadFile_DerivesPathsFromRoot(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
provider:
  base_url: http://localhost:11434
  model: local-model
paths:
  root: /var/lib/flightdeck
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Paths.StepLog != "/var/lib/flightdeck/steps.jsonl" {
		t.Errorf("StepLog = %q, want derived from root", cfg.Paths.StepLog)
	}
	if cfg.Paths.Checkpoint != "/var/lib/flightdeck/groundcontrol.cbor" {
		t.Errorf("Checkpoint = %q, want derived from root", cfg.Paths.Checkpoint)
	}
}

func TestLoadFile_RejectsMissingModel(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
provider:
  base_url: https://api.openai.com
`)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() accepted config without provider.model")
	}
}

func TestValidate_ClampsRetryLimit(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Provider.BaseURL = "http://localhost:11434"
	cfg.Provider.Model = "m"

	cfg.Loop.RetryLimit = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Loop.RetryLimit != 1 {
		t.Errorf("RetryLimit = %d, want clamped to 1", cfg.Loop.RetryLimit)
	}

	cfg.Loop.RetryLimit = 99
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Loop.RetryLimit != 10 {
		t.Errorf("RetryLimit = %d, want clamped to 10", cfg.Loop.RetryLimit)
	}
}

func TestTPMOverride_PerModelBeatsGlobal(t *testing.T) {
	t.Parallel()

	provider := ProviderConfig{
		TokensPerMinute: 20_000,
		RateLimits: map[string]int64{
			"gpt-4o-mini": 60_000,
		},
	}
	if got := provider.TPMOverride("gpt-4o-mini"); got != 60_000 {
		t.Errorf("TPMOverride(gpt-4o-mini) = %d, want per-model 60000", got)
	}
	if got := provider.TPMOverride("o1"); got != 20_000 {
		t.Errorf("TPMOverride(o1) = %d, want global 20000", got)
	}
}

func TestLoad_RequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("FLIGHTDECK_CONFIG", "")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded without FLIGHTDECK_CONFIG")
	}
}

func TestReadToken_TrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	tokenPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenPath, []byte("sk-test-123\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg := Default()
	cfg.Provider.TokenFile = tokenPath
	token, err := cfg.ReadToken()
	if err != nil {
		t.Fatalf("ReadToken() error: %v", err)
	}
	if token != "sk-test-123" {
		t.Errorf("ReadToken() = %q, want sk-test-123", token)
	}
}
