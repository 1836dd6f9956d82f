package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig configures retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries (caps exponential backoff)
	Timeout    time.Duration // Per-attempt timeout (0 = inherit the caller's deadline)
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 8,
		RetryDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider wraps a Provider with timeout and retry logic. It is a
// caller-side decorator: the pipeline itself never retries.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{
		inner:  inner,
		config: config,
	}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// Complete sends a conversation with timeout and retry logic.
func (r *RetryProvider) Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error) {
	return withRetry(ctx, r.config, func(attemptCtx context.Context) (*Response, error) {
		return r.inner.Complete(attemptCtx, conv, opts)
	})
}

// Embed sends an embedding request with timeout and retry logic.
func (r *RetryProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return withRetry(ctx, r.config, func(attemptCtx context.Context) ([][]float32, error) {
		return r.inner.Embed(attemptCtx, texts, model)
	})
}

func withRetry[T any](ctx context.Context, cfg *RetryConfig, call func(context.Context) (T, error)) (T, error) {
	var (
		zero      T
		lastErr   error
		permanent bool
	)

	result, err := retry.DoWithData(
		func() (T, error) {
			attemptCtx, cancel := ctx, context.CancelFunc(func() {})
			if cfg.Timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			}
			defer cancel()

			v, err := call(attemptCtx)
			if err == nil {
				return v, nil
			}
			lastErr = err
			if !isRetryable(err) {
				permanent = true
				return zero, retry.Unrecoverable(err)
			}
			return zero, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.MaxRetries+1)),
		retry.Delay(cfg.RetryDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return result, nil
	}

	switch {
	case ctx.Err() != nil:
		return zero, ctx.Err()
	case permanent:
		return zero, fmt.Errorf("non-retryable error: %w", lastErr)
	case lastErr == nil:
		return zero, err
	default:
		return zero, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
	}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable (caller cancelled)
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Per-attempt timeouts are retryable
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	dailyLimit := strings.Contains(errStr, "tokens per day") || strings.Contains(errStr, "TPD")

	// Typed service errors carry the remote status
	if code := StatusCode(err); code != 0 {
		switch {
		case code == http.StatusTooManyRequests:
			return !dailyLimit
		case code >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Rate limiting (429) - retryable, UNLESS it's a daily token limit (TPD)
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return !dailyLimit
	}

	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, http.StatusText(http.StatusInternalServerError)) ||
		strings.Contains(errStr, http.StatusText(http.StatusBadGateway)) ||
		strings.Contains(errStr, http.StatusText(http.StatusServiceUnavailable)) ||
		strings.Contains(errStr, http.StatusText(http.StatusGatewayTimeout)) {
		return true
	}

	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors: retry, remote LLM endpoints fail in many transient ways
	return true
}

// WrapWithRetry wraps a provider with retry logic from config.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 && cfg.Timeout == 0 {
		maxRetries = 3
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}

	return NewRetryProvider(provider, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})
}
