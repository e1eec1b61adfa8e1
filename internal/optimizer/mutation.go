package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/ports"
)

const (
	defaultReflectionTemperature = 0.3
	defaultReflectionMaxTokens   = 800

	// Rendering limits inside the meta-request.
	traceFeedbackClip    = 300
	ancestorClip         = 400
	fallbackFeedbackClip = 400
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:\\w+)?\\n(.*?)```")

// TraceSample is one minibatch example's evidence for reflection: the
// pipeline run's score together with the feedback generated for it.
type TraceSample struct {
	Input    map[string]any
	Output   map[string]any
	Score    float64
	Traces   []models.StageTrace
	Feedback string
}

// ReflectiveMutator proposes a replacement instruction for one stage by
// showing a language model the current instruction, recent execution
// evidence, and the instruction's ancestry.
type ReflectiveMutator struct {
	llm         ports.LanguageModel
	temperature float64
	maxTokens   int
	options     ports.CompletionOptions
}

// MutatorOption configures a ReflectiveMutator.
type MutatorOption func(*ReflectiveMutator)

func WithTemperature(t float64) MutatorOption {
	return func(m *ReflectiveMutator) {
		m.temperature = t
	}
}

func WithMaxTokens(n int) MutatorOption {
	return func(m *ReflectiveMutator) {
		m.maxTokens = n
	}
}

// WithCompletionOptions forwards provider-specific knobs on every
// reflection request.
func WithCompletionOptions(opts ports.CompletionOptions) MutatorOption {
	return func(m *ReflectiveMutator) {
		m.options = opts
	}
}

func NewReflectiveMutator(llm ports.LanguageModel, opts ...MutatorOption) *ReflectiveMutator {
	m := &ReflectiveMutator{
		llm:         llm,
		temperature: defaultReflectionTemperature,
		maxTokens:   defaultReflectionMaxTokens,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Propose returns a replacement instruction for stageName. An adapter
// error is returned to the caller; a response without a recognizable
// instruction block falls back to appending an excerpt of the first
// sample's feedback to the old instruction.
func (m *ReflectiveMutator) Propose(ctx context.Context, oldInstruction string, samples []TraceSample, ancestors []string, stageName string) (string, error) {
	meta := buildMetaPrompt(oldInstruction, samples, ancestors, stageName)

	resp, err := m.llm.CreateCompletion(ctx, ports.CompletionRequest{
		Messages: []ports.LLMMessage{
			{Role: "user", Content: meta},
		},
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
		Options:     m.options,
	})
	if err != nil {
		return "", fmt.Errorf("reflection completion for stage %s: %w", stageName, err)
	}

	content := m.llm.ExtractText(resp)
	if match := fencedBlockRe.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1]), nil
	}

	slog.WarnContext(ctx, "no instruction block in reflection response, appending feedback excerpt",
		"stage", stageName,
		"response_length", len(content))
	excerpt := ""
	if len(samples) > 0 {
		excerpt = clip(samples[0].Feedback, fallbackFeedbackClip)
	}
	return oldInstruction + "\n\n# REFINE: " + excerpt, nil
}

func buildMetaPrompt(oldInstruction string, samples []TraceSample, ancestors []string, stageName string) string {
	traceLines := make([]string, 0, len(samples))
	for i, s := range samples {
		traceLines = append(traceLines, fmt.Sprintf("Example %d: Score=%.3f Feedback=%s", i+1, s.Score, clip(s.Feedback, traceFeedbackClip)))
	}

	ancestorBlocks := make([]string, 0, len(ancestors))
	for _, a := range ancestors {
		ancestorBlocks = append(ancestorBlocks, clip(a, ancestorClip))
	}

	var b strings.Builder
	b.WriteString("You are optimizing a prompt for stage '" + stageName + "'.\n")
	b.WriteString("Current prompt:\n" + oldInstruction + "\n\n")
	b.WriteString("Recent traces:\n" + strings.Join(traceLines, "\n") + "\n\n")
	b.WriteString("Ancestors:\n" + strings.Join(ancestorBlocks, "\n\n") + "\n\n")
	b.WriteString("Produce a single improved prompt between ``` blocks.")
	return b.String()
}

// clip truncates s to at most max runes, without an ellipsis.
func clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
