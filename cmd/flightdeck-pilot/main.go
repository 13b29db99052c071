// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// flightdeck-pilot runs one browser-testing mission: it loads a
// mission file, assembles the turn loop against an OpenAI-compatible
// endpoint, and drives the mission to a SUCCESS/FAILURE verdict.
//
// The browser toolset is supplied by the automation backend; with
// --dry-run the pilot registers a canned toolset instead, useful for
// exercising configuration and prompts without a browser.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/flightdeck-ai/flightdeck/lib/artifact"
	"github.com/flightdeck-ai/flightdeck/lib/budget"
	"github.com/flightdeck-ai/flightdeck/lib/clock"
	"github.com/flightdeck-ai/flightdeck/lib/config"
	"github.com/flightdeck-ai/flightdeck/lib/groundcontrol"
	"github.com/flightdeck-ai/flightdeck/lib/llm"
	llmcontext "github.com/flightdeck-ai/flightdeck/lib/llm/context"
	"github.com/flightdeck-ai/flightdeck/lib/mission"
	"github.com/flightdeck-ai/flightdeck/lib/pilot"
	"github.com/flightdeck-ai/flightdeck/lib/tooling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var missionPath string
	var dryRun bool
	var logOutput string

	flagSet := pflag.NewFlagSet("flightdeck-pilot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to flightdeck.yaml (default: $FLIGHTDECK_CONFIG)")
	flagSet.StringVar(&missionPath, "mission", "", "path to the mission file (required)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "use a canned toolset instead of a browser backend")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file instead of stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if missionPath == "" {
		return fmt.Errorf("--mission is required")
	}

	logger, closeLog, err := buildLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	flight, err := mission.ParseFile(missionPath)
	if err != nil {
		return err
	}

	return fly(context.Background(), logger, cfg, flight, dryRun)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func buildLogger(logOutput string) (*slog.Logger, func(), error) {
	if logOutput == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}
	file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log output %q: %w", logOutput, err)
	}
	return slog.New(slog.NewJSONHandler(file, nil)), func() { file.Close() }, nil
}

func fly(ctx context.Context, logger *slog.Logger, cfg *config.Config, flight *mission.Mission, dryRun bool) error {
	realClock := clock.Real()
	ground := groundcontrol.New(realClock, flight.BaseURL, flight.StayWithinBaseURL)

	registry := tooling.NewRegistry()
	if dryRun {
		registerDryRunTools(registry)
	} else {
		// TODO(backend): register the CDP browser toolset once the
		// automation collaborator lands; until then only --dry-run is
		// wired end to end.
		return fmt.Errorf("no browser backend configured; run with --dry-run")
	}
	pilot.RegisterGroundTools(registry, ground)

	token, err := cfg.ReadToken()
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	provider := llm.NewOpenAICompatible(httpClient, cfg.Provider.BaseURL)
	if token != "" {
		provider = provider.WithToken(token)
	}

	archive, err := artifact.NewArchive(cfg.Paths.Archive)
	if err != nil {
		return err
	}
	heavyTools := make(map[string]bool, len(cfg.Context.HeavyTools))
	for _, name := range cfg.Context.HeavyTools {
		heavyTools[name] = true
	}

	if err := os.MkdirAll(cfg.Paths.Root, 0o755); err != nil {
		return fmt.Errorf("creating output root %q: %w", cfg.Paths.Root, err)
	}
	stepLog, err := pilot.NewStepLogWriter(cfg.Paths.StepLog)
	if err != nil {
		return err
	}
	defer stepLog.Close()

	maxTurns := cfg.Loop.MaxTurns
	if flight.MaxTurns > 0 {
		maxTurns = flight.MaxTurns
	}

	loop, err := pilot.New(pilot.Config{
		Provider: provider,
		Registry: registry,
		Ground:   ground,
		Budget:   budget.New(realClock, cfg.Provider.TPMOverride(cfg.Provider.Model)),
		Compactor: &llmcontext.Compactor{
			HeavyTools: heavyTools,
			KeepRecent: cfg.Context.KeepRecent,
			WindowSize: cfg.Context.WindowSize,
			Archive:    archive,
		},
		Validator:      &llmcontext.Validator{Repair: true},
		Clock:          realClock,
		Logger:         logger,
		StepLog:        stepLog,
		CheckpointPath: cfg.Paths.Checkpoint,
		Model:          cfg.Provider.Model,
		MaxTurns:       maxTurns,
		RetryLimit:     cfg.Loop.RetryLimit,
	})
	if err != nil {
		return err
	}

	logger.Info("mission starting",
		"mission", flight.Name,
		"model", cfg.Provider.Model,
		"maxTurns", maxTurns)

	outcome, err := loop.Run(ctx, pilot.MissionConversation(flight))
	if err != nil {
		return err
	}

	summary := stepLog.Summary()
	logger.Info("mission complete",
		"mission", flight.Name,
		"state", outcome.State,
		"steps", summary.StepCount,
		"tokens", summary.TokensUsed,
		"duration", summary.Duration)

	if !outcome.Succeeded() {
		return fmt.Errorf("mission %q ended in %s", flight.Name, outcome.State)
	}
	return nil
}

// registerDryRunTools installs a canned browser toolset: fixed pages,
// deterministic results. Enough surface for a model (or a scripted
// provider) to walk the whole protocol without a browser attached.
func registerDryRunTools(registry *tooling.Registry) {
	registry.Register(llm.ToolDefinition{
		Name:        "get_dom",
		Description: "Return a simplified DOM of the current page.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}, func(context.Context, json.RawMessage) (any, error) {
		return "<html><body><h1>Dry run</h1><a href=\"/login\">Log in</a></body></html>", nil
	})

	registry.Register(llm.ToolDefinition{
		Name:        "click_text",
		Description: "Click the first element whose visible text matches.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {"text": {"type": "string"}}, "required": ["text"]}`),
	}, func(_ context.Context, arguments json.RawMessage) (any, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("click_text: decoding arguments: %w", err)
		}
		if args.Text == "" {
			return nil, fmt.Errorf("click_text: text is required")
		}
		return fmt.Sprintf("clicked element with text %q", args.Text), nil
	})

	registry.Register(llm.ToolDefinition{
		Name:        "screenshot",
		Description: "Capture a screenshot of the current page.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}, func(context.Context, json.RawMessage) (any, error) {
		return "dry-run-screenshot.png", nil
	})
}
