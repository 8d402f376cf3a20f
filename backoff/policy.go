// Package backoff computes delays between retry attempts. Every strategy is a
// pure function of the attempt number.
package backoff

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/goliatone/go-slack/core"
)

// Strategy computes the delay that precedes attempt+1, where attempt is the
// 1-based number of the attempt that just failed.
type Strategy interface {
	NextDelay(attempt int) time.Duration
}

// Fixed waits the same delay after every failed attempt.
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) NextDelay(int) time.Duration {
	if f.Delay < 0 {
		return 0
	}
	return f.Delay
}

// Exponential grows Initial by Multiplier per attempt and never exceeds Max.
// A zero Max leaves the delay uncapped.
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

func (e Exponential) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if e.Initial <= 0 {
		return 0
	}
	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	next := float64(e.Initial) * math.Pow(multiplier, float64(attempt-1))
	if math.IsInf(next, 0) || math.IsNaN(next) || next >= float64(math.MaxInt64) {
		if e.Max > 0 {
			return e.Max
		}
		return time.Duration(math.MaxInt64)
	}
	delay := time.Duration(next)
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}

// Jittered scales the capped exponential delay by a uniform factor in [0,1].
// Rand receives the attempt number so tests can pin the factor per attempt.
type Jittered struct {
	Exponential
	Rand func(attempt int) float64
}

func (j Jittered) NextDelay(attempt int) time.Duration {
	base := j.Exponential.NextDelay(attempt)
	factor := uniform(attempt)
	if j.Rand != nil {
		factor = j.Rand(attempt)
	}
	switch {
	case factor < 0:
		factor = 0
	case factor > 1:
		factor = 1
	}
	return time.Duration(float64(base) * factor)
}

func uniform(int) float64 {
	return rand.Float64()
}

// Policy couples a Strategy with an attempt budget. MaxAttempts counts every
// attempt including the first; zero means unbounded.
type Policy struct {
	Strategy    Strategy
	MaxAttempts int
}

func (p Policy) NextDelay(attempt int) time.Duration {
	if p.Strategy == nil {
		return 0
	}
	return p.Strategy.NextDelay(attempt)
}

// Exhausted reports whether no attempt may follow attempt.
func (p Policy) Exhausted(attempt int) bool {
	if p.MaxAttempts <= 0 {
		return false
	}
	return attempt >= p.MaxAttempts
}

func (p Policy) Unbounded() bool {
	return p.MaxAttempts <= 0
}

// Unbounded wraps strategy with no attempt limit.
func Unbounded(strategy Strategy) Policy {
	return Policy{Strategy: strategy}
}

// Bounded wraps strategy with a maximum attempt count.
func Bounded(strategy Strategy, maxAttempts int) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{Strategy: strategy, MaxAttempts: maxAttempts}
}

// FromConfig builds the policy described by cfg.
func FromConfig(cfg core.RetryConfig) Policy {
	exponential := Exponential{
		Initial:    cfg.InitialDelay(),
		Multiplier: cfg.Multiplier,
		Max:        cfg.MaxDelay(),
	}
	var strategy Strategy
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case core.RetryStrategyFixed:
		strategy = Fixed{Delay: cfg.InitialDelay()}
	case core.RetryStrategyExponential:
		strategy = exponential
	default:
		strategy = Jittered{Exponential: exponential}
	}
	return Policy{Strategy: strategy, MaxAttempts: cfg.AttemptLimit()}
}

var (
	_ Strategy           = Fixed{}
	_ Strategy           = Exponential{}
	_ Strategy           = Jittered{}
	_ core.BackoffPolicy = Policy{}
)
