// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package pilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flightdeck-ai/flightdeck/lib/budget"
	"github.com/flightdeck-ai/flightdeck/lib/clock"
	"github.com/flightdeck-ai/flightdeck/lib/groundcontrol"
	"github.com/flightdeck-ai/flightdeck/lib/llm"
	llmcontext "github.com/flightdeck-ai/flightdeck/lib/llm/context"
	"github.com/flightdeck-ai/flightdeck/lib/tooling"
)

// State is the loop's execution state. Running, AwaitingLLM,
// ProcessingTools, and RetryingTurn are transient; Success, Failure,
// and Aborted are terminal.
type State string

const (
	StateRunning         State = "running"
	StateAwaitingLLM     State = "awaiting_llm"
	StateProcessingTools State = "processing_tools"
	StateRetryingTurn    State = "retrying_turn"
	StateSuccess         State = "success"
	StateFailure         State = "failure"
	StateAborted         State = "aborted"
)

const (
	// defaultMaxTurns bounds a mission when neither the mission file
	// nor configuration says otherwise.
	defaultMaxTurns = 30

	// defaultRetryLimit is the 429 retry budget per provider call.
	defaultRetryLimit = 3

	// retryBase and retryCap shape the exponential 429 backoff:
	// 2s, 4s, 8s, ... capped at 60s.
	retryBase = 2 * time.Second
	retryCap  = 60 * time.Second

	// domRefreshTool is dispatched to re-observe the page after
	// state-mutating actions. Must be registered.
	domRefreshTool = "get_dom"
)

// stateMutatingTools are the actions after which the page must be
// re-observed before the model acts again.
var stateMutatingTools = map[string]bool{
	"click":       true,
	"click_text":  true,
	"expand_menu": true,
}

// fileProducingTools are the actions whose results are file paths
// worth surfacing in the step record.
var fileProducingTools = map[string]bool{
	"download_file": true,
}

// screenshotTool's result is recorded as the step's screenshot path.
const screenshotTool = "screenshot"

// Config assembles a [Loop]. Provider, Registry, Ground, Budget, and
// Model are required; everything else has a usable default.
type Config struct {
	Provider llm.Chat
	Registry *tooling.Registry
	Ground   *groundcontrol.State
	Budget   *budget.TokenBudget

	// Compactor defaults to a no-op compactor; Validator defaults to
	// repair-enabled.
	Compactor *llmcontext.Compactor
	Validator *llmcontext.Validator

	Clock  clock.Clock
	Logger *slog.Logger

	// StepLog, when non-nil, receives every step as it is emitted.
	StepLog *StepLogWriter

	// CheckpointPath, when non-empty, receives a ground-control
	// snapshot at every turn boundary.
	CheckpointPath string

	Model      string
	MaxTurns   int
	RetryLimit int
}

// Loop executes one mission turn by turn. Single-threaded: one Loop
// serves one mission and Run must not be called concurrently.
type Loop struct {
	provider  llm.Chat
	registry  *tooling.Registry
	ground    *groundcontrol.State
	budget    *budget.TokenBudget
	compactor *llmcontext.Compactor
	validator *llmcontext.Validator
	clock     clock.Clock
	logger    *slog.Logger

	stepLog        *StepLogWriter
	checkpointPath string

	model      string
	maxTurns   int
	retryLimit int

	state           State
	refreshSequence int
}

// New validates the configuration and builds a Loop.
func New(config Config) (*Loop, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("pilot: Provider is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("pilot: Registry is required")
	}
	if config.Ground == nil {
		return nil, fmt.Errorf("pilot: Ground is required")
	}
	if config.Budget == nil {
		return nil, fmt.Errorf("pilot: Budget is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("pilot: Model is required")
	}

	loop := &Loop{
		provider:       config.Provider,
		registry:       config.Registry,
		ground:         config.Ground,
		budget:         config.Budget,
		compactor:      config.Compactor,
		validator:      config.Validator,
		clock:          config.Clock,
		logger:         config.Logger,
		stepLog:        config.StepLog,
		checkpointPath: config.CheckpointPath,
		model:          config.Model,
		maxTurns:       config.MaxTurns,
		retryLimit:     config.RetryLimit,
		state:          StateRunning,
	}
	if loop.compactor == nil {
		loop.compactor = &llmcontext.Compactor{}
	}
	if loop.validator == nil {
		loop.validator = &llmcontext.Validator{Repair: true}
	}
	if loop.clock == nil {
		loop.clock = clock.Real()
	}
	if loop.logger == nil {
		loop.logger = slog.Default()
	}
	if loop.maxTurns <= 0 {
		loop.maxTurns = defaultMaxTurns
	}
	if loop.retryLimit <= 0 {
		loop.retryLimit = defaultRetryLimit
	}
	return loop, nil
}

// Outcome is the result of a completed mission.
type Outcome struct {
	// State is the terminal state: Success, Failure, or Aborted.
	State State

	// Steps is the full turn-by-turn audit trail.
	Steps []Step
}

// Succeeded reports whether the mission reached its goal.
func (outcome *Outcome) Succeeded() bool { return outcome.State == StateSuccess }

// CurrentState returns the loop's execution state, for observers.
func (loop *Loop) CurrentState() State { return loop.state }

// Run executes the mission until a terminal state or the turn budget
// runs out. The conversation must open with the system prompt and
// mission goal. Provider failures other than rate limits and invalid
// requests propagate as errors; everything else (tool failures, 429
// storms, protocol damage) is resolved inside the loop and lands in
// the returned Outcome.
func (loop *Loop) Run(ctx context.Context, conversation []llm.Message) (*Outcome, error) {
	outcome := &Outcome{State: StateRunning}
	var pendingEvents []string

	for turn := 1; turn <= loop.maxTurns; turn++ {
		loop.state = StateRunning
		loop.ground.SetTurnIndex(turn)

		// Backing off does not consume a turn: the model never saw
		// this attempt.
		if decision := loop.budget.ShouldBackoff(loop.model); decision.Backoff {
			loop.logger.Info("token ceiling exceeded, backing off",
				"model", loop.model,
				"wait", decision.Wait)
			pendingEvents = append(pendingEvents, fmt.Sprintf("token backoff %s", decision.Wait))
			loop.clock.Sleep(decision.Wait)
		}

		repairedConversation, ok := loop.validator.Validate(conversation)
		if !ok {
			step := Step{
				TurnIndex: turn,
				Events:    append(pendingEvents, "conversation has unanswered tool calls and repair is disabled"),
				Result:    StepAborted,
			}
			loop.emit(outcome, step)
			return loop.finish(outcome, StateAborted), nil
		}
		if repairedCount := len(repairedConversation) - len(conversation); repairedCount > 0 {
			loop.logger.Warn("repaired unanswered tool calls", "count", repairedCount)
			pendingEvents = append(pendingEvents, fmt.Sprintf("repaired %d unanswered tool calls", repairedCount))
		}
		conversation = loop.compactor.Compact(repairedConversation)

		loop.state = StateAwaitingLLM
		response, retries, abortReason, err := loop.complete(ctx, llm.Request{
			Model:    loop.model,
			Messages: conversation,
			Tools:    loop.registry.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("pilot: turn %d: %w", turn, err)
		}
		if retries > 0 {
			pendingEvents = append(pendingEvents, fmt.Sprintf("rate limited, retried %d times", retries))
		}
		if abortReason != "" {
			step := Step{
				TurnIndex:    turn,
				Events:       append(pendingEvents, abortReason),
				Result:       StepAborted,
				RetryAttempt: retries,
			}
			loop.emit(outcome, step)
			return loop.finish(outcome, StateAborted), nil
		}

		loop.budget.Record(response.Usage.TotalTokens)
		loop.budget.LearnFromHeaders(response.Headers)

		step := Step{
			TurnIndex:    turn,
			Events:       pendingEvents,
			TokensUsed:   response.Usage.TotalTokens,
			RetryAttempt: retries,
		}
		pendingEvents = nil

		conversation = append(conversation, response.Message)

		if len(response.Message.ToolCalls) > 0 {
			loop.state = StateProcessingTools
			conversation = loop.dispatchToolCalls(ctx, conversation, response.Message.ToolCalls, &step)
			loop.emit(outcome, step)
			continue
		}

		verdict := parseVerdict(response.Message.Content)
		switch verdict {
		case StepSuccess:
			step.Result = StepSuccess
			step.Events = append(step.Events, "verdict: success")
			loop.emit(outcome, step)
			return loop.finish(outcome, StateSuccess), nil
		case StepFailure:
			step.Result = StepFailure
			step.Events = append(step.Events, "verdict: failure")
			loop.emit(outcome, step)
			return loop.finish(outcome, StateFailure), nil
		}

		// Plain text without a verdict: the model is narrating instead
		// of acting. Re-observe the page and push it to continue.
		if loop.registry.Has(domRefreshTool) {
			conversation = loop.injectDOMRefresh(ctx, conversation, turn, &step)
		}
		conversation = append(conversation, llm.UserMessage(loop.nudgeText()))
		step.Events = append(step.Events, "no verdict, nudged to re-observe")
		step.Result = StepPassed
		loop.emit(outcome, step)
	}

	step := Step{
		TurnIndex: loop.maxTurns,
		Events:    append(pendingEvents, "turn budget exhausted without a verdict"),
		Result:    StepFailure,
	}
	loop.emit(outcome, step)
	return loop.finish(outcome, StateFailure), nil
}

// complete calls the provider, retrying rate limits with exponential
// backoff. Returns either a response, or a non-empty abortReason when
// the mission must stop (invalid request, retry budget exhausted), or
// an error for everything that must propagate.
func (loop *Loop) complete(ctx context.Context, request llm.Request) (response *llm.Response, retries int, abortReason string, err error) {
	for {
		response, err = loop.provider.Complete(ctx, request)
		if err == nil {
			return response, retries, "", nil
		}

		providerError, ok := llm.AsProviderError(err)
		if !ok {
			return nil, retries, "", err
		}
		if providerError.IsInvalidRequest() {
			loop.logger.Error("provider rejected request", "error", providerError)
			return nil, retries, "provider rejected the request: " + providerError.Message, nil
		}
		if !providerError.IsRateLimited() {
			return nil, retries, "", err
		}

		// 429: the headers often carry the real ceiling.
		loop.budget.LearnFromHeaders(providerError.Headers)
		if retries >= loop.retryLimit {
			return nil, retries, fmt.Sprintf("rate limited, retry budget of %d exhausted", loop.retryLimit), nil
		}

		loop.state = StateRetryingTurn
		wait := retryDelay(retries)
		loop.logger.Warn("rate limited, retrying",
			"attempt", retries+1,
			"limit", loop.retryLimit,
			"wait", wait)
		loop.clock.Sleep(wait)
		retries++
	}
}

// retryDelay returns the exponential backoff for the given 429 retry
// count: retryBase doubled per retry, capped at retryCap.
func retryDelay(retries int) time.Duration {
	delay := retryBase
	for i := 0; i < retries && delay < retryCap; i++ {
		delay *= 2
	}
	if delay > retryCap {
		delay = retryCap
	}
	return delay
}

// dispatchToolCalls executes the model's tool calls in issued order,
// appending a tool result message for each. Failures become "ERROR:"
// observations and mark the step as StepError. After any
// state-mutating call, a DOM refresh is injected so the next turn
// sees current page state.
func (loop *Loop) dispatchToolCalls(ctx context.Context, conversation []llm.Message, calls []llm.ToolCall, step *Step) []llm.Message {
	mutated := false
	failed := false

	for _, call := range calls {
		result := loop.registry.Dispatch(ctx, call.Name, call.Arguments)
		conversation = append(conversation, llm.ToolResultMessage(call.ID, call.Name, result))

		if strings.HasPrefix(result, "ERROR:") {
			failed = true
			step.Events = append(step.Events, fmt.Sprintf("tool %s failed: %s", call.Name, result))
			loop.logger.Warn("tool call failed", "tool", call.Name, "result", result)
			continue
		}

		step.Events = append(step.Events, "tool "+call.Name)
		if call.Name == screenshotTool {
			step.ScreenshotPath = result
		}
		if fileProducingTools[call.Name] && result != "" {
			step.FileEvents = append(step.FileEvents, result)
		}
		if stateMutatingTools[call.Name] {
			mutated = true
		}
	}

	if mutated && loop.registry.Has(domRefreshTool) {
		conversation = loop.injectDOMRefresh(ctx, conversation, step.TurnIndex, step)
	}

	if failed {
		step.Result = StepError
	} else {
		step.Result = StepPassed
	}
	return conversation
}

// injectDOMRefresh synthesizes a get_dom exchange (an assistant
// message declaring the call plus its tool result) so the model's
// next reasoning step is grounded in current page state. Synthesized
// call IDs are namespaced to never collide with provider-assigned
// ones.
func (loop *Loop) injectDOMRefresh(ctx context.Context, conversation []llm.Message, turn int, step *Step) []llm.Message {
	loop.refreshSequence++
	call := llm.ToolCall{
		ID:   fmt.Sprintf("refresh-%d-%d", turn, loop.refreshSequence),
		Name: domRefreshTool,
	}
	result := loop.registry.Dispatch(ctx, domRefreshTool, nil)
	step.Events = append(step.Events, "injected dom refresh")
	return append(conversation,
		llm.AssistantToolCalls(call),
		llm.ToolResultMessage(call.ID, call.Name, result),
	)
}

// nudgeText is the user message injected when the model produced
// prose without a verdict or a tool call.
func (loop *Loop) nudgeText() string {
	return "No verdict received. Inspect the refreshed page state and either " +
		"continue with tool calls or reply with a SUCCESS/FAILURE verdict.\n\n" +
		"Ground control:\n" + loop.ground.Summarize()
}

// emit appends the step to the outcome, writes it to the step log,
// and checkpoints ground control at the turn boundary.
func (loop *Loop) emit(outcome *Outcome, step Step) {
	outcome.Steps = append(outcome.Steps, step)
	if loop.stepLog != nil {
		if err := loop.stepLog.Write(step); err != nil {
			loop.logger.Warn("writing step log", "error", err)
		}
	}
	if loop.checkpointPath != "" {
		if err := loop.ground.Checkpoint(loop.checkpointPath); err != nil {
			loop.logger.Warn("checkpointing ground control", "error", err)
		}
	}
}

// finish records the terminal state on both the loop and the outcome.
func (loop *Loop) finish(outcome *Outcome, terminal State) *Outcome {
	loop.state = terminal
	outcome.State = terminal
	loop.logger.Info("mission finished",
		"state", terminal,
		"steps", len(outcome.Steps),
		"tokens", loop.budget.CumulativeTokens())
	return outcome
}

// parseVerdict maps a leading SUCCESS/FAILURE (case-insensitive,
// whitespace-trimmed) to the corresponding step result, or "" when
// the text carries no verdict.
func parseVerdict(content string) StepResult {
	lower := strings.ToLower(strings.TrimSpace(content))
	switch {
	case strings.HasPrefix(lower, "success"):
		return StepSuccess
	case strings.HasPrefix(lower, "failure"):
		return StepFailure
	}
	return ""
}
