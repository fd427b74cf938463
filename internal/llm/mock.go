package llm

import (
	"context"
	"sync"
)

// MockCompleter replays scripted responses and records every prompt.
// When Responses is exhausted the last entry repeats.
type MockCompleter struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     [][]Message
}

// NewMockCompleter creates a mock that answers with responses in order.
func NewMockCompleter(responses ...string) *MockCompleter {
	return &MockCompleter{Responses: responses}
}

// Complete records the prompt and returns the next scripted response.
func (m *MockCompleter) Complete(_ context.Context, messages []Message, _ Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prompt := make([]Message, len(messages))
	copy(prompt, messages)
	m.Calls = append(m.Calls, prompt)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", ErrEmptyCompletion
	}
	i := min(len(m.Calls)-1, len(m.Responses)-1)
	return m.Responses[i], nil
}

// CallCount returns how many completions were requested.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
