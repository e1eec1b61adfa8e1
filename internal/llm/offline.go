package llm

import (
	"context"
	"strings"

	"github.com/longregen/gepa/internal/ports"
)

// offlineClipRunes bounds how much of the rendered request the offline
// completion echoes back.
const offlineClipRunes = 1000

// Offline is a deterministic LanguageModel that never touches the network.
// Its completion is derived from the request content alone, so two runs
// over the same inputs produce identical mutations. The fenced body it
// returns is what the mutator's extraction step picks up.
type Offline struct{}

func NewOffline() *Offline {
	return &Offline{}
}

// CreateCompletion echoes a clipped rendering of the request inside a
// fenced block, marked as a fallback refinement.
func (o *Offline) CreateCompletion(_ context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	rendered := renderMessages(req.Messages)
	clipped := rendered
	if runes := []rune(clipped); len(runes) > offlineClipRunes {
		clipped = string(runes[:offlineClipRunes]) + "..."
	}
	text := "```\n# REFINED PROMPT (fallback)\n" + clipped + "\n```"
	return &ports.Completion{Model: "offline", Text: text}, nil
}

// ExtractText returns the completion's text content.
func (o *Offline) ExtractText(resp *ports.Completion) string {
	if resp == nil {
		return ""
	}
	return resp.Text
}

// renderMessages flattens chat messages into "[role] content" lines joined
// by blank lines. Messages without a role render as user messages.
func renderMessages(messages []ports.LLMMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		parts = append(parts, "["+role+"] "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
