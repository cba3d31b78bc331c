package graph

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// NodePolicy configures the execution behavior for a specific node.
//
// Policies are attached to nodes via Engine.SetPolicy and enforced by the
// execution loop. If not specified, engine-wide defaults from Options apply.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// RetryPolicy specifies automatic retry behavior for transient failures.
	// If nil, no retries are attempted.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines automatic retry configuration for transient node failures.
//
// When a node execution fails, the policy determines whether the failure is
// retryable and how long to wait before the next attempt. Exponential backoff
// with jitter avoids thundering-herd retries against a struggling backend.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including the
	// initial one. Must be >= 1; a value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	// The actual delay is min(BaseDelay * 2^attempt + jitter, MaxDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff. Must be >= BaseDelay.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying.
	// If nil, all errors are considered non-retryable.
	Retryable func(error) bool
}

// backoffDelay computes the delay before the given retry attempt (0-indexed).
func (p *RetryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	// Up to 25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// executeWithRetry runs a node under its retry policy.
//
// The node is re-invoked with the original state on each attempt; at most one
// attempt's result is merged by the caller. Non-retryable errors and
// exhausted policies return the last failing result.
func executeWithRetry[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) NodeResult[S] {
	var retry *RetryPolicy
	if policy != nil {
		retry = policy.RetryPolicy
	}

	attempts := 1
	result := executeNodeWithTimeout(ctx, node, nodeID, state, policy, defaultTimeout)
	if result.Err == nil || retry == nil {
		return stampAttempts(result, attempts)
	}

	for attempt := 1; attempt < retry.MaxAttempts; attempt++ {
		if retry.Retryable == nil || !retry.Retryable(result.Err) {
			return stampAttempts(result, attempts)
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return stampAttempts(result, attempts)
		case <-time.After(retry.backoffDelay(attempt - 1)):
		}

		attempts++
		result = executeNodeWithTimeout(ctx, node, nodeID, state, policy, defaultTimeout)
		if result.Err == nil {
			return stampAttempts(result, attempts)
		}
	}

	return stampAttempts(result, attempts)
}

// stampAttempts records the execution count on a failing NodeError so error
// hooks can report how many tries the failure consumed.
func stampAttempts[S any](result NodeResult[S], attempts int) NodeResult[S] {
	if result.Err == nil {
		return result
	}
	var ne *NodeError
	if errors.As(result.Err, &ne) {
		ne.Attempts = attempts
	}
	return result
}
