package model

import (
	"context"
	"sync"
)

// Mock is a scripted ChatModel for tests. Each call to Chat pops the
// next queued response; when the script runs dry it returns the Default
// text. Calls are recorded for assertion.
type Mock struct {
	mu sync.Mutex

	// Responses are returned in order, one per Chat call.
	Responses []string

	// Errs pairs with Responses by index; a non-nil entry is returned
	// instead of the response at that position.
	Errs []error

	// Default is returned once Responses is exhausted.
	Default string

	// Calls records every message batch passed to Chat.
	Calls [][]Message

	next int
}

// Chat implements ChatModel by replaying the scripted responses.
func (m *Mock) Chat(_ context.Context, messages []Message) (ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)

	i := m.next
	m.next++
	if i < len(m.Errs) && m.Errs[i] != nil {
		return ChatOut{}, m.Errs[i]
	}
	if i < len(m.Responses) {
		return ChatOut{Text: m.Responses[i]}, nil
	}
	return ChatOut{Text: m.Default}, nil
}

// CallCount reports how many times Chat was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
