// Package retry implements the bounded retry-with-backoff executor used
// by every external call in the build pipeline.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Initial     time.Duration // delay before the second attempt
	Max         time.Duration // cap for backoff growth
}

// DefaultPolicy returns the baseline policy (5 attempts, 1s initial, 60s cap).
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Initial: time.Second, Max: 60 * time.Second}
}

// Validate ensures invariants; returns error if the policy cannot be applied.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >=1")
	}
	if p.Initial <= 0 {
		return fmt.Errorf("initial delay must be >0")
	}
	if p.Max < p.Initial {
		return fmt.Errorf("max delay must be >= initial delay")
	}
	return nil
}

// ExhaustedError signals that all attempts were consumed without success.
// It wraps the error from the final attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Executor runs operations under a Policy. Safe for concurrent use: all
// mutable state lives in the call frame.
type Executor struct {
	policy   Policy
	recorder metrics.Recorder

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter perturbs a delay by ±10%; replaced in tests for determinism.
	jitter func(d time.Duration) time.Duration
}

// New creates an Executor. A nil recorder falls back to NoopRecorder.
func New(policy Policy, recorder metrics.Recorder) *Executor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Executor{
		policy:   policy,
		recorder: recorder,
		sleep:    sleepCtx,
		jitter:   defaultJitter,
	}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do calls op up to MaxAttempts times. Between attempts it sleeps for the
// current delay, then doubles it (capped at Max) and applies jitter. No
// sleep happens after the final attempt. Errors classified non-retryable
// short-circuit immediately; exhausting the budget yields an
// *ExhaustedError wrapping the last failure.
//
// retryable may be nil, in which case apperrors.IsRetryable is used.
// task is carried only for log correlation.
func (e *Executor) Do(ctx context.Context, task, opName string, op func(context.Context) error, retryable func(error) bool) error {
	if retryable == nil {
		retryable = apperrors.IsRetryable
	}

	delay := e.policy.Initial
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		slog.Debug("external call attempt",
			logfields.Task(task),
			slog.String("op", opName),
			logfields.Attempt(attempt),
			logfields.MaxAttempts(e.policy.MaxAttempts))

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			slog.Warn("permanent failure, not retrying",
				logfields.Task(task),
				slog.String("op", opName),
				logfields.Attempt(attempt),
				logfields.Error(err))
			return err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		e.recorder.IncRetryAttempt(opName)
		slog.Warn("transient failure, backing off",
			logfields.Task(task),
			slog.String("op", opName),
			logfields.Attempt(attempt),
			logfields.Delay(delay.String()),
			logfields.Error(err))

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}

		next := delay * 2
		if next > e.policy.Max {
			next = e.policy.Max
		}
		delay = e.jitter(next)
	}

	e.recorder.IncRetryExhausted(opName)
	slog.Error("retries exhausted",
		logfields.Task(task),
		slog.String("op", opName),
		logfields.MaxAttempts(e.policy.MaxAttempts),
		logfields.Error(lastErr))
	return &ExhaustedError{Op: opName, Attempts: e.policy.MaxAttempts, Last: lastErr}
}

// defaultJitter perturbs d by a uniform ±10%. The result never goes negative.
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.1
	j := time.Duration(spread * (rand.Float64()*2 - 1))
	out := d + j
	if out < 0 {
		return 0
	}
	return out
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first. Backoff
// waits must be interruptible at shutdown, not busy loops.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
