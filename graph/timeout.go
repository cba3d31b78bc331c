package graph

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout determines the timeout for a node based on precedence:
// per-node policy override, then the engine-wide default, then none.
func nodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout wraps a single node invocation with timeout
// enforcement. A node that outlives its deadline has its result replaced
// with a NODE_TIMEOUT error; the node itself is expected to honor context
// cancellation on blocking calls.
func executeNodeWithTimeout[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) NodeResult[S] {
	timeout := nodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		return node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		result.Err = &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}

	return result
}
