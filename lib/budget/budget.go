// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget tracks per-mission token consumption against a
// tokens-per-minute ceiling and decides when the turn loop must pause
// before the next provider call.
//
// All counters are instance state on [TokenBudget]. One instance
// belongs to exactly one mission; nothing here is process-global, so
// two missions in one process never share rate-limit state.
package budget

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flightdeck-ai/flightdeck/lib/clock"
)

// windowSpan is the rolling window over which usage counts against
// the ceiling. Provider rate limits are quoted per minute.
const windowSpan = 60 * time.Second

// minimumWaitMs is the floor for any computed backoff wait.
const minimumWaitMs = 1000

// defaultCeiling is the tokens-per-minute fallback when the model
// matches no family entry and no limit has been learned.
const defaultCeiling = 30000

// familyCeilings maps model-name prefixes to tokens-per-minute
// limits. Longest matching prefix wins.
var familyCeilings = map[string]int64{
	"gpt-4o":        30000,
	"gpt-4":         10000,
	"gpt-3.5-turbo": 60000,
	"o1":            30000,
	"claude":        40000,
}

// usageSample is one provider response's token count at the time it
// was recorded.
type usageSample struct {
	at     time.Time
	tokens int64
}

// Decision is the outcome of a backoff check.
type Decision struct {
	// Backoff is true when the loop must pause before calling the
	// provider again.
	Backoff bool

	// Wait is how long to pause: the minimal duration after which the
	// rolling window regains headroom, floored at one second. Zero
	// when Backoff is false.
	Wait time.Duration
}

// TokenBudget tracks rolling token usage for one mission.
type TokenBudget struct {
	clock clock.Clock

	// override is an explicit tokens-per-minute ceiling from
	// configuration. Takes priority over everything else when > 0.
	override int64

	// learned is a ceiling parsed from a prior 429's rate-limit
	// headers. Second priority.
	learned int64

	window     []usageSample
	cumulative int64
}

// New creates a TokenBudget. overrideTPM > 0 pins the ceiling,
// bypassing header learning and the family table.
func New(clk clock.Clock, overrideTPM int64) *TokenBudget {
	return &TokenBudget{clock: clk, override: overrideTPM}
}

// Record adds a provider response's token count to the rolling window.
func (budget *TokenBudget) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	budget.window = append(budget.window, usageSample{at: budget.clock.Now(), tokens: tokens})
	budget.cumulative += tokens
}

// Refresh discards samples older than the window span and returns the
// remaining usage sum. Called at the top of every turn.
func (budget *TokenBudget) Refresh() int64 {
	cutoff := budget.clock.Now().Add(-windowSpan)
	kept := budget.window[:0]
	var sum int64
	for _, sample := range budget.window {
		if sample.at.Before(cutoff) {
			continue
		}
		kept = append(kept, sample)
		sum += sample.tokens
	}
	budget.window = kept
	budget.cumulative = sum
	return sum
}

// Ceiling resolves the tokens-per-minute limit for the given model:
// explicit override, then header-learned limit, then the model family
// table, then the global fallback.
func (budget *TokenBudget) Ceiling(model string) int64 {
	if budget.override > 0 {
		return budget.override
	}
	if budget.learned > 0 {
		return budget.learned
	}

	bestLength := -1
	var best int64
	for prefix, ceiling := range familyCeilings {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLength {
			bestLength = len(prefix)
			best = ceiling
		}
	}
	if bestLength >= 0 {
		return best
	}
	return defaultCeiling
}

// ShouldBackoff reports whether current usage exceeds the model's
// ceiling and, if so, for how long to pause. The wait is sized so the
// sample that first pushed the running sum past the ceiling ages out
// of the window: max(60s - (now - T), 1s), where T is that sample's
// timestamp. A fixed penalty would overshoot; this is the minimal
// wait that restores headroom.
//
// When backoff triggers, the window and cumulative counter are hard
// reset. Resetting the whole window is more conservative than a
// decaying partial reset, and that is intentional: after a pause long
// enough to regain headroom, stale samples only cause repeat
// back-to-back backoffs.
func (budget *TokenBudget) ShouldBackoff(model string) Decision {
	usage := budget.Refresh()
	ceiling := budget.Ceiling(model)
	if usage <= ceiling {
		return Decision{}
	}

	// Scan chronologically for the earliest sample at which the
	// running sum first exceeds the ceiling.
	now := budget.clock.Now()
	var running int64
	crossedAt := now
	for _, sample := range budget.window {
		running += sample.tokens
		if running > ceiling {
			crossedAt = sample.at
			break
		}
	}

	waitMs := windowSpan.Milliseconds() - now.Sub(crossedAt).Milliseconds()
	if waitMs < minimumWaitMs {
		waitMs = minimumWaitMs
	}

	budget.window = nil
	budget.cumulative = 0

	return Decision{
		Backoff: true,
		Wait:    time.Duration(waitMs) * time.Millisecond,
	}
}

// LearnFromHeaders extracts a tokens-per-minute ceiling from
// rate-limit response headers (sent by OpenAI-compatible servers on
// 429s and regular responses). A parsed limit takes priority over the
// family table for the rest of the mission.
func (budget *TokenBudget) LearnFromHeaders(headers http.Header) {
	if headers == nil {
		return
	}
	raw := headers.Get("X-Ratelimit-Limit-Tokens")
	if raw == "" {
		return
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return
	}
	budget.learned = limit
}

// CumulativeTokens returns the usage sum across the current window.
func (budget *TokenBudget) CumulativeTokens() int64 {
	return budget.cumulative
}
