// Package llm is the boundary to the text-completion model.
package llm

import (
	"context"
	"errors"
)

// Role is the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a completion prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling parameters of a completion.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("model returned no text")

// Completer produces the next assistant text for a prompt.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Ensure implementations satisfy Completer.
var (
	_ Completer = (*OpenAIClient)(nil)
	_ Completer = (*MockCompleter)(nil)
)
