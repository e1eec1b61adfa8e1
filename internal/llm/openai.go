// Package llm adapts OpenAI-compatible chat APIs to the optimizer's
// LanguageModel port. The live adapter talks to any endpoint that speaks
// the chat completions protocol; the offline adapter produces deterministic
// completions so optimization runs work without network access.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/internal/adapters/metrics"
	"github.com/longregen/gepa/internal/adapters/retry"
	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/ports"
)

var tracer = otel.GetTracerProvider().Tracer("internal/llm")

// Config holds the configuration for the OpenAI adapter.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.BackoffConfig
}

// Option configures a Config.
type Option func(*Config)

// WithModel sets the model used for completions.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the default max tokens when a request does not carry
// its own limit.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetry overrides the backoff policy applied to transient API failures.
func WithRetry(cfg retry.BackoffConfig) Option {
	return func(c *Config) {
		c.Retry = cfg
	}
}

// OpenAIModel calls an OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client    *openai.Client
	model     string
	maxTokens int
	backoff   retry.BackoffConfig
}

// NewOpenAI creates an adapter for the given endpoint. BaseURL should be
// the full API base URL (e.g., "https://api.openai.com/v1"); empty keeps
// the SDK default.
func NewOpenAI(baseURL, apiKey string, opts ...Option) *OpenAIModel {
	cfg := &Config{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		APIKey:    apiKey,
		Model:     "gpt-4o-mini",
		MaxTokens: 4096,
		Timeout:   60 * time.Second,
		Retry:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		openaiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIModel{
		client:    openai.NewClientWithConfig(openaiCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		backoff:   cfg.Retry,
	}
}

// CreateCompletion sends the request as a chat completion, retrying rate
// limits and upstream failures with exponential backoff. Reasoning effort
// is forwarded when the request carries one; verbosity and tool options are
// Responses API surface that the chat protocol has no field for.
func (m *OpenAIModel) CreateCompletion(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
	}
	if effort, ok := req.Options.Reasoning["effort"].(string); ok {
		apiReq.ReasoningEffort = effort
	}

	span.SetAttributes(
		attribute.String("llm.model", apiReq.Model),
		attribute.Int("llm.request.max_tokens", apiReq.MaxTokens),
		attribute.Int("llm.request.messages", len(apiReq.Messages)),
	)
	if req.Temperature > 0 {
		span.SetAttributes(attribute.Float64("llm.request.temperature", req.Temperature))
	}

	var resp openai.ChatCompletionResponse
	err := retry.WithBackoff(ctx, m.backoff, func() error {
		start := time.Now()
		r, reqErr := m.client.CreateChatCompletion(ctx, apiReq)
		metrics.LLMRequestDuration.WithLabelValues(m.model).Observe(time.Since(start).Seconds())
		if reqErr != nil {
			metrics.LLMRequestsTotal.WithLabelValues(m.model, "error").Inc()
			return reqErr
		}
		resp = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMRequestFailed, err)
	}
	metrics.LLMRequestsTotal.WithLabelValues(m.model, "success").Inc()

	if len(resp.Choices) == 0 {
		return nil, domain.ErrEmptyCompletion
	}
	choice := resp.Choices[0]
	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.String("llm.response.finish_reason", string(choice.FinishReason)),
		attribute.Int("llm.response.content_length", len(choice.Message.Content)),
	)

	return &ports.Completion{
		Model: resp.Model,
		Text:  choice.Message.Content,
		Raw:   resp,
	}, nil
}

// ExtractText returns the completion's text content.
func (m *OpenAIModel) ExtractText(resp *ports.Completion) string {
	if resp == nil {
		return ""
	}
	return resp.Text
}
