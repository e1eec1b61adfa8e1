package ports

import (
	"context"
)

// LLMMessage represents a single chat-style message sent to the model.
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions carries provider-specific knobs forwarded verbatim to
// the underlying model API. Unset fields are omitted from the request.
type CompletionOptions struct {
	Verbosity string           `json:"verbosity,omitempty"`
	Reasoning map[string]any   `json:"reasoning,omitempty"`
	Tools     []map[string]any `json:"tools,omitempty"`
}

// CompletionRequest is the provider-neutral request shape used by the
// optimizer's reflective mutation step.
type CompletionRequest struct {
	Messages    []LLMMessage      `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Options     CompletionOptions `json:"options,omitempty"`
}

// Completion is the opaque response returned by a language model adapter.
// Callers must not interpret Raw; ExtractText is the only sanctioned way
// to obtain the response text.
type Completion struct {
	Model string `json:"model,omitempty"`
	Text  string `json:"text"`
	Raw   any    `json:"-"`
}

// LanguageModel is the adapter boundary for the reflective mutation step.
// The adapter owns all knowledge of the underlying API's response shape;
// an offline implementation must return a deterministic, content-derived
// completion so the optimizer stays testable without network access.
type LanguageModel interface {
	CreateCompletion(ctx context.Context, req CompletionRequest) (*Completion, error)
	ExtractText(resp *Completion) string
}
