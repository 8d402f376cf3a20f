// Package retry wraps a unit of work with a bounded or unbounded retry loop.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-slack/core"
)

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Classifier decides whether an error may be retried.
type Classifier func(error) bool

// DefaultRetryable retries transport failures and rate limited answers.
var DefaultRetryable Classifier = core.IsRetryable

type delayHint interface {
	RetryAfter() time.Duration
}

// Controller runs an Operation until it succeeds, fails terminally or the
// policy runs out of attempts.
type Controller struct {
	Policy      core.BackoffPolicy
	IsRetryable Classifier
	Sleep       func(ctx context.Context, d time.Duration) error
	OnRetry     func(ctx context.Context, attempt core.RetryAttempt)
}

func New(policy core.BackoffPolicy, isRetryable Classifier) *Controller {
	return &Controller{Policy: policy, IsRetryable: isRetryable}
}

// Execute runs op under policy with the given classifier.
func Execute(ctx context.Context, op Operation, policy core.BackoffPolicy, isRetryable Classifier) error {
	_, err := New(policy, isRetryable).Run(ctx, op)
	return err
}

// Run returns the number of attempts made and the terminal outcome.
// Retryable failures never surface individually. When the budget runs out
// the error is a *core.RetriesExhaustedError wrapping the last cause.
func (c *Controller) Run(ctx context.Context, op Operation) (int, error) {
	if op == nil {
		return 0, core.NewBadInputError("retry: operation is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	classify := c.IsRetryable
	if classify == nil {
		classify = DefaultRetryable
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !classify(err) {
			return attempt, err
		}
		if c.Policy == nil || c.Policy.Exhausted(attempt) {
			return attempt, &core.RetriesExhaustedError{Attempts: attempt, Cause: err}
		}

		delay := DelayFor(c.Policy, attempt, err)
		if c.OnRetry != nil {
			c.OnRetry(ctx, core.RetryAttempt{Attempt: attempt + 1, Delay: delay, Cause: err})
		}
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return attempt, waitErr
		}
	}
}

// DelayFor is the larger of the policy delay and any server suggested delay
// carried by err.
func DelayFor(policy core.BackoffPolicy, attempt int, err error) time.Duration {
	delay := time.Duration(0)
	if policy != nil {
		delay = policy.NextDelay(attempt)
	}
	var hint delayHint
	if errors.As(err, &hint) {
		if after := hint.RetryAfter(); after > delay {
			delay = after
		}
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
