package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/gepa/internal/adapters/retry"
	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/ports"
)

// chatStub records the last chat completion request body and serves a
// canned response. When failures is set, the first that many requests
// get the error status and later ones succeed.
type chatStub struct {
	lastBody map[string]any
	status   int
	failures int
	requests int
	response string
}

func (s *chatStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests++
		s.lastBody = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&s.lastBody)
		if s.status != 0 && (s.failures == 0 || s.requests <= s.failures) {
			http.Error(w, "upstream unavailable", s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.response))
	}
}

func fastRetry() retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxRetries:      2,
		Multiplier:      2.0,
	}
}

func completionJSON(content string) string {
	return `{
		"id": "cmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": ` + mustJSON(content) + `}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestOpenAICreateCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the first choice's text", func(t *testing.T) {
		stub := &chatStub{response: completionJSON("```\nrewritten instruction\n```")}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key", WithModel("test-model"))
		resp, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages:    []ports.LLMMessage{{Role: "user", Content: "improve it"}},
			Temperature: 0.3,
			MaxTokens:   800,
		})
		require.NoError(t, err)

		assert.Equal(t, "```\nrewritten instruction\n```", resp.Text)
		assert.Equal(t, "test-model", resp.Model)
		assert.Equal(t, resp.Text, model.ExtractText(resp))
	})

	t.Run("request carries model, sampling, and messages", func(t *testing.T) {
		stub := &chatStub{response: completionJSON("ok")}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key", WithModel("test-model"))
		_, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages:    []ports.LLMMessage{{Role: "user", Content: "improve it"}},
			Temperature: 0.3,
			MaxTokens:   800,
		})
		require.NoError(t, err)

		assert.Equal(t, "test-model", stub.lastBody["model"])
		assert.InDelta(t, 0.3, stub.lastBody["temperature"], 1e-6)
		assert.EqualValues(t, 800, stub.lastBody["max_tokens"])
		messages := stub.lastBody["messages"].([]any)
		require.Len(t, messages, 1)
		assert.Equal(t, "improve it", messages[0].(map[string]any)["content"])
	})

	t.Run("zero max tokens falls back to the configured default", func(t *testing.T) {
		stub := &chatStub{response: completionJSON("ok")}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key", WithMaxTokens(512))
		_, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages: []ports.LLMMessage{{Role: "user", Content: "x"}},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 512, stub.lastBody["max_tokens"])
	})

	t.Run("reasoning effort option is forwarded", func(t *testing.T) {
		stub := &chatStub{response: completionJSON("ok")}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key")
		_, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages: []ports.LLMMessage{{Role: "user", Content: "x"}},
			Options: ports.CompletionOptions{
				Reasoning: map[string]any{"effort": "low"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "low", stub.lastBody["reasoning_effort"])
	})

	t.Run("rate limited requests are retried until they succeed", func(t *testing.T) {
		stub := &chatStub{status: http.StatusTooManyRequests, failures: 2, response: completionJSON("ok")}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key", WithRetry(fastRetry()))
		resp, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages: []ports.LLMMessage{{Role: "user", Content: "x"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
		assert.Equal(t, 3, stub.requests)
	})

	t.Run("persistent upstream failure wraps the domain error", func(t *testing.T) {
		stub := &chatStub{status: http.StatusInternalServerError}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key", WithRetry(fastRetry()))
		_, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages: []ports.LLMMessage{{Role: "user", Content: "x"}},
		})
		assert.ErrorIs(t, err, domain.ErrLLMRequestFailed)
		assert.Equal(t, 3, stub.requests)
	})

	t.Run("no choices yields the empty-completion error", func(t *testing.T) {
		stub := &chatStub{response: `{"id":"cmpl-2","object":"chat.completion","created":1,"model":"test-model","choices":[],"usage":{"prompt_tokens":1,"completion_tokens":0,"total_tokens":1}}`}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		model := NewOpenAI(server.URL+"/v1", "test-key")
		_, err := model.CreateCompletion(ctx, ports.CompletionRequest{
			Messages: []ports.LLMMessage{{Role: "user", Content: "x"}},
		})
		assert.ErrorIs(t, err, domain.ErrEmptyCompletion)
	})
}
