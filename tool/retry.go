package tool

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 500 * time.Millisecond
	defaultBackoffCap   = 8 * time.Second
	defaultCallTimeout  = 10 * time.Second
	defaultCallDeadline = 45 * time.Second
)

// RetryPolicy defines adapter retry behavior. The zero value takes defaults
// when normalized, so definitions only override what they care about.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts,omitempty"`
	BackoffBase time.Duration `json:"backoff_base,omitempty"`
	BackoffCap  time.Duration `json:"backoff_cap,omitempty"`
	// Timeout bounds a single attempt.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Deadline bounds one whole invocation: attempts plus backoff waits.
	Deadline time.Duration `json:"deadline,omitempty"`
	// Jitter draws the random wait component for one backoff. Nil uses a
	// uniform draw from [0, backoff).
	Jitter func(backoff time.Duration) time.Duration `json:"-"`
}

// DefaultRetryPolicy returns the policy shared by every adapter unless its
// definition overrides it.
func DefaultRetryPolicy() RetryPolicy {
	return normalizeRetryPolicy(RetryPolicy{})
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = defaultBackoffBase
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = defaultBackoffCap
	}
	if out.BackoffCap < out.BackoffBase {
		out.BackoffCap = out.BackoffBase
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultCallTimeout
	}
	if out.Deadline <= 0 {
		out.Deadline = defaultCallDeadline
	}
	return out
}

type attemptFunc func(ctx context.Context, attempt int) (CallResult, error)

// callWithRetry runs fn up to MaxAttempts times, sleeping between attempts
// per the policy. Non-retryable errors pass through unchanged; a retryable
// error on the final attempt is wrapped as UNAVAILABLE with the attempt count
// and last cause.
func callWithRetry(ctx context.Context, policy RetryPolicy, toolName string, fn attemptFunc) (CallResult, int, error) {
	normalized := normalizeRetryPolicy(policy)
	var (
		lastErr error
		result  CallResult
	)

	for attempt := 1; attempt <= normalized.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return CallResult{}, attempt - 1, unavailableError(attempt-1, lastErr)
			}
			return CallResult{}, attempt, err
		}

		result, lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return result, attempt, nil
		}
		if !isRetryableError(lastErr) {
			return CallResult{}, attempt, lastErr
		}
		if attempt == normalized.MaxAttempts {
			return CallResult{}, attempt, unavailableError(attempt, lastErr)
		}

		wait := retryWait(normalized, attempt, retryAfterHint(lastErr))
		emitRetryObservation(RetryObservation{
			Tool:    toolName,
			Attempt: attempt,
			Cause:   adapterErrorCode(lastErr),
			Wait:    wait,
		})
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return CallResult{}, attempt, unavailableError(attempt, lastErr)
		case <-timer.C:
		}
	}

	return CallResult{}, normalized.MaxAttempts, unavailableError(normalized.MaxAttempts, lastErr)
}

// backoffDuration is the deterministic wait component after a failed attempt:
// the base delay doubled per attempt, capped.
func backoffDuration(policy RetryPolicy, attempt int) time.Duration {
	if attempt <= 0 || policy.BackoffBase <= 0 {
		return 0
	}
	delay := policy.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= policy.BackoffCap {
			return policy.BackoffCap
		}
	}
	if delay > policy.BackoffCap {
		return policy.BackoffCap
	}
	return delay
}

// retryWait combines the exponential delay with jitter, then honors an
// explicit upstream hint by taking whichever wait is larger.
func retryWait(policy RetryPolicy, attempt int, hint time.Duration) time.Duration {
	wait := backoffDuration(policy, attempt)
	jitter := policy.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}
	wait += jitter(wait)
	if hint > wait {
		wait = hint
	}
	return wait
}

func defaultJitter(backoff time.Duration) time.Duration {
	if backoff <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(backoff)))
}

func retryAfterHint(err error) time.Duration {
	if adapterErr, ok := adapterErrorFrom(err); ok {
		return adapterErr.RetryAfter
	}
	return 0
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if adapterErr, ok := adapterErrorFrom(err); ok {
		return adapterErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
