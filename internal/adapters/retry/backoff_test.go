package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "context canceled",
			err:      context.Canceled,
			expected: false,
		},
		{
			name:     "context deadline exceeded",
			err:      context.DeadlineExceeded,
			expected: false,
		},
		{
			name:     "rate limited",
			err:      &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"},
			expected: true,
		},
		{
			name:     "upstream internal error",
			err:      &openai.APIError{HTTPStatusCode: http.StatusInternalServerError},
			expected: true,
		},
		{
			name:     "upstream overloaded",
			err:      &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable},
			expected: true,
		},
		{
			name:     "bad request",
			err:      &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid model"},
			expected: false,
		},
		{
			name:     "bad api key",
			err:      &openai.APIError{HTTPStatusCode: http.StatusUnauthorized},
			expected: false,
		},
		{
			name:     "wrapped api error",
			err:      fmt.Errorf("chat completion: %w", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}),
			expected: true,
		},
		{
			name:     "request error with retryable status",
			err:      &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
			expected: true,
		},
		{
			name:     "request error with terminal status",
			err:      &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("no such route")},
			expected: false,
		},
		{
			name:     "connection refused",
			err:      &net.OpError{Err: syscall.ECONNREFUSED},
			expected: true,
		},
		{
			name:     "connection reset",
			err:      &net.OpError{Err: syscall.ECONNRESET},
			expected: true,
		},
		{
			name:     "broken pipe",
			err:      &net.OpError{Err: syscall.EPIPE},
			expected: true,
		},
		{
			name:     "dns timeout",
			err:      &net.DNSError{IsTimeout: true},
			expected: true,
		},
		{
			name:     "dns not found",
			err:      &net.DNSError{IsNotFound: true},
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   bool
	}{
		{
			name:       "200 OK",
			statusCode: http.StatusOK,
			expected:   false,
		},
		{
			name:       "400 Bad Request",
			statusCode: http.StatusBadRequest,
			expected:   false,
		},
		{
			name:       "401 Unauthorized",
			statusCode: http.StatusUnauthorized,
			expected:   false,
		},
		{
			name:       "404 Not Found",
			statusCode: http.StatusNotFound,
			expected:   false,
		},
		{
			name:       "408 Request Timeout",
			statusCode: http.StatusRequestTimeout,
			expected:   true,
		},
		{
			name:       "429 Too Many Requests",
			statusCode: http.StatusTooManyRequests,
			expected:   true,
		},
		{
			name:       "500 Internal Server Error",
			statusCode: http.StatusInternalServerError,
			expected:   true,
		},
		{
			name:       "502 Bad Gateway",
			statusCode: http.StatusBadGateway,
			expected:   true,
		},
		{
			name:       "503 Service Unavailable",
			statusCode: http.StatusServiceUnavailable,
			expected:   true,
		},
		{
			name:       "504 Gateway Timeout",
			statusCode: http.StatusGatewayTimeout,
			expected:   true,
		},
		{
			name:       "600 out of range",
			statusCode: 600,
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableStatus(tt.statusCode)
			if result != tt.expected {
				t.Errorf("IsRetryableStatus(%d) = %v, want %v", tt.statusCode, result, tt.expected)
			}
		})
	}
}

func testConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 1 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxRetries:      3,
		Multiplier:      2.0,
	}
}

func TestWithBackoff_Success(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return nil
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err != nil {
		t.Errorf("WithBackoff() error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("WithBackoff() attempts = %d, want 1", attempts)
	}
}

func TestWithBackoff_RecoversFromRateLimit(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
		}
		return nil
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err != nil {
		t.Errorf("WithBackoff() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("WithBackoff() attempts = %d, want 3", attempts)
	}
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	authErr := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	fn := func() error {
		attempts++
		return authErr
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if !errors.Is(err, authErr) {
		t.Errorf("WithBackoff() error = %v, want the original error", err)
	}
	if attempts != 1 {
		t.Errorf("WithBackoff() attempts = %d, want 1 (should not retry non-retryable errors)", attempts)
	}
}

func TestWithBackoff_MaxRetriesExceeded(t *testing.T) {
	cfg := testConfig()
	attempts := 0
	fn := func() error {
		attempts++
		return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	}

	err := WithBackoff(context.Background(), cfg, fn)

	if err == nil {
		t.Fatal("WithBackoff() error = nil, want non-nil")
	}

	// Initial attempt plus MaxRetries retries.
	expectedAttempts := cfg.MaxRetries + 1
	if attempts != expectedAttempts {
		t.Errorf("WithBackoff() attempts = %d, want %d", attempts, expectedAttempts)
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("WithBackoff() error = %v, want the last API error wrapped", err)
	}
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		MaxRetries:      5,
		Multiplier:      2.0,
	}

	attempts := 0
	fn := func() error {
		attempts++
		return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WithBackoff(ctx, cfg, fn)

	if err != context.Canceled {
		t.Errorf("WithBackoff() error = %v, want context.Canceled", err)
	}
	if attempts < 1 {
		t.Errorf("WithBackoff() attempts = %d, want at least 1", attempts)
	}
}
