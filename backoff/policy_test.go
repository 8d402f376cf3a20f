package backoff

import (
	"testing"
	"time"

	"github.com/goliatone/go-slack/core"
)

func TestFixed_ReturnsConstantDelay(t *testing.T) {
	policy := Fixed{Delay: 250 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := policy.NextDelay(attempt); got != 250*time.Millisecond {
			t.Fatalf("attempt %d: expected 250ms, got %s", attempt, got)
		}
	}
}

func TestExponential_GrowsAndCaps(t *testing.T) {
	policy := Exponential{Initial: 100 * time.Millisecond, Multiplier: 2, Max: time.Second}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for index, want := range expected {
		if got := policy.NextDelay(index + 1); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", index+1, want, got)
		}
	}
}

func TestExponential_MonotonicAndNeverAboveCap(t *testing.T) {
	policy := Exponential{Initial: time.Second, Multiplier: 2, Max: 30 * time.Minute}
	previous := time.Duration(0)
	for attempt := 1; attempt <= 200; attempt++ {
		delay := policy.NextDelay(attempt)
		if delay < previous {
			t.Fatalf("attempt %d: delay %s decreased from %s", attempt, delay, previous)
		}
		if delay > policy.Max {
			t.Fatalf("attempt %d: delay %s exceeds cap %s", attempt, delay, policy.Max)
		}
		previous = delay
	}
}

func TestJittered_UsesInjectedFactor(t *testing.T) {
	policy := Jittered{
		Exponential: Exponential{Initial: time.Second, Multiplier: 2, Max: time.Minute},
		Rand: func(attempt int) float64 {
			if attempt == 3 {
				return 0.5
			}
			return 1
		},
	}
	if got := policy.NextDelay(1); got != time.Second {
		t.Fatalf("expected full delay for factor 1, got %s", got)
	}
	if got := policy.NextDelay(3); got != 2*time.Second {
		t.Fatalf("expected half of 4s, got %s", got)
	}
	if policy.NextDelay(3) != policy.NextDelay(3) {
		t.Fatalf("expected deterministic delay for a fixed random source")
	}
}

func TestJittered_DefaultSourceStaysWithinCap(t *testing.T) {
	policy := Jittered{Exponential: Exponential{Initial: time.Second, Multiplier: 2, Max: 8 * time.Second}}
	for attempt := 1; attempt <= 50; attempt++ {
		delay := policy.NextDelay(attempt)
		if delay < 0 || delay > 8*time.Second {
			t.Fatalf("attempt %d: jittered delay %s outside [0, cap]", attempt, delay)
		}
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	bounded := Bounded(Fixed{Delay: time.Millisecond}, 3)
	if bounded.Exhausted(2) {
		t.Fatalf("expected attempt 2 of 3 to allow a retry")
	}
	if !bounded.Exhausted(3) {
		t.Fatalf("expected attempt 3 of 3 to be terminal")
	}

	unbounded := Unbounded(Fixed{Delay: time.Millisecond})
	if unbounded.Exhausted(1_000_000) {
		t.Fatalf("unbounded policy must never be exhausted")
	}
}

func TestFromConfig_SelectsStrategy(t *testing.T) {
	cfg := core.DefaultConfig().Retry

	cfg.Strategy = core.RetryStrategyFixed
	if _, ok := FromConfig(cfg).Strategy.(Fixed); !ok {
		t.Fatalf("expected fixed strategy")
	}
	cfg.Strategy = core.RetryStrategyExponential
	if _, ok := FromConfig(cfg).Strategy.(Exponential); !ok {
		t.Fatalf("expected exponential strategy")
	}
	cfg.Strategy = core.RetryStrategyJittered
	policy := FromConfig(cfg)
	if _, ok := policy.Strategy.(Jittered); !ok {
		t.Fatalf("expected jittered strategy")
	}
	if policy.MaxAttempts != cfg.MaxAttempts {
		t.Fatalf("expected bounded attempts %d, got %d", cfg.MaxAttempts, policy.MaxAttempts)
	}

	cfg.Unbounded = true
	if !FromConfig(cfg).Unbounded() {
		t.Fatalf("expected unbounded policy")
	}
}
