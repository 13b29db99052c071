// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"net/http"
	"testing"
	"time"

	"github.com/flightdeck-ai/flightdeck/lib/clock"
)

func testClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestShouldBackoff_UnderCeiling(t *testing.T) {
	t.Parallel()

	budget := New(testClock(), 0)
	budget.Record(10000)

	decision := budget.ShouldBackoff("gpt-4o")
	if decision.Backoff {
		t.Errorf("ShouldBackoff() = %+v, want no backoff under 30000 ceiling", decision)
	}
}

func TestShouldBackoff_MinimalWait(t *testing.T) {
	t.Parallel()

	fake := testClock()
	budget := New(fake, 0)

	// First sample at t=0 pushes the running sum past the gpt-4o
	// ceiling of 30000 on its own. 20 seconds later the minimal wait
	// is 60s - 20s = 40s.
	budget.Record(31000)
	fake.Advance(20 * time.Second)
	budget.Record(100)

	decision := budget.ShouldBackoff("gpt-4o")
	if !decision.Backoff {
		t.Fatal("ShouldBackoff() = no backoff, want backoff over ceiling")
	}
	if decision.Wait != 40*time.Second {
		t.Errorf("Wait = %v, want 40s", decision.Wait)
	}

	// The trigger hard-resets the window.
	if budget.CumulativeTokens() != 0 {
		t.Errorf("CumulativeTokens() = %d after backoff, want 0", budget.CumulativeTokens())
	}
	if next := budget.ShouldBackoff("gpt-4o"); next.Backoff {
		t.Errorf("second ShouldBackoff() = %+v, want no backoff after reset", next)
	}
}

func TestShouldBackoff_WaitFloor(t *testing.T) {
	t.Parallel()

	fake := testClock()
	budget := New(fake, 0)

	// The crossing sample is 59.8s old: the raw wait (200ms) is
	// below the one-second floor.
	budget.Record(31000)
	fake.Advance(59800 * time.Millisecond)

	decision := budget.ShouldBackoff("gpt-4o")
	if !decision.Backoff {
		t.Fatal("ShouldBackoff() = no backoff, want backoff")
	}
	if decision.Wait != time.Second {
		t.Errorf("Wait = %v, want 1s floor", decision.Wait)
	}
}

func TestRefresh_DiscardsStaleSamples(t *testing.T) {
	t.Parallel()

	fake := testClock()
	budget := New(fake, 0)

	budget.Record(20000)
	fake.Advance(61 * time.Second)
	budget.Record(5000)

	if sum := budget.Refresh(); sum != 5000 {
		t.Errorf("Refresh() = %d, want 5000 (stale sample discarded)", sum)
	}
}

func TestCeiling_ResolutionPriority(t *testing.T) {
	t.Parallel()

	fake := testClock()

	// Family table: longest prefix wins.
	budget := New(fake, 0)
	if got := budget.Ceiling("gpt-4o-mini"); got != 30000 {
		t.Errorf("Ceiling(gpt-4o-mini) = %d, want 30000", got)
	}
	if got := budget.Ceiling("gpt-4-turbo"); got != 10000 {
		t.Errorf("Ceiling(gpt-4-turbo) = %d, want 10000", got)
	}
	if got := budget.Ceiling("mystery-model"); got != defaultCeiling {
		t.Errorf("Ceiling(mystery-model) = %d, want fallback %d", got, defaultCeiling)
	}

	// Header-learned limit beats the family table.
	headers := http.Header{}
	headers.Set("X-Ratelimit-Limit-Tokens", "12345")
	budget.LearnFromHeaders(headers)
	if got := budget.Ceiling("gpt-4o"); got != 12345 {
		t.Errorf("Ceiling() = %d after learning, want 12345", got)
	}

	// Explicit override beats everything.
	pinned := New(fake, 7000)
	pinned.LearnFromHeaders(headers)
	if got := pinned.Ceiling("gpt-4o"); got != 7000 {
		t.Errorf("Ceiling() = %d with override, want 7000", got)
	}
}

func TestLearnFromHeaders_IgnoresGarbage(t *testing.T) {
	t.Parallel()

	budget := New(testClock(), 0)

	headers := http.Header{}
	headers.Set("X-Ratelimit-Limit-Tokens", "not-a-number")
	budget.LearnFromHeaders(headers)
	if got := budget.Ceiling("gpt-4o"); got != 30000 {
		t.Errorf("Ceiling() = %d, want family value after unparseable header", got)
	}

	budget.LearnFromHeaders(nil)
	if got := budget.Ceiling("gpt-4o"); got != 30000 {
		t.Errorf("Ceiling() = %d, want family value after nil headers", got)
	}
}
