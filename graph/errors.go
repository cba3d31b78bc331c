package graph

import "errors"

// ErrMaxStepsExceeded indicates that graph execution reached the maximum
// allowed step count without completing. This prevents infinite loops and
// runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNotSuspended is returned by Resume when the thread has no pending
// interrupt node to deliver a response to.
var ErrNotSuspended = errors.New("thread is not suspended")

// ErrMaxAttemptsExceeded is returned when a node fails more times than
// allowed by its retry policy.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
