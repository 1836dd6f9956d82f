package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for LLM providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// TokensPerMinute limits total completion tokens per minute (0 = unlimited)
	TokensPerMinute int
	// BurstSize allows temporary burst above the request rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults for most providers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,    // conservative for free-tier cloud APIs
		TokensPerMinute:   25000, // free tiers sit between 6K and 30K TPM
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with client-side throttling. Completion
// and embedding calls share the request budget.
type RateLimitProvider struct {
	inner    Provider
	config   *RateLimitConfig
	requests *rate.Limiter
	tokens   *rate.Limiter

	mu    sync.Mutex
	stats RateLimitStats
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	r := &RateLimitProvider{
		inner:  inner,
		config: config,
		stats:  RateLimitStats{WindowStart: time.Now()},
	}

	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		r.requests = rate.NewLimiter(perMinute(config.RequestsPerMinute), burst)
	}
	if config.TokensPerMinute > 0 {
		r.tokens = rate.NewLimiter(perMinute(config.TokensPerMinute), config.TokensPerMinute)
	}
	return r
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, conv, opts)
	if err == nil && resp != nil {
		r.trackTokenUsage(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts, model)
}

// waitForCapacity blocks until both limiters allow a request.
func (r *RateLimitProvider) waitForCapacity(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if r.tokens != nil {
		// Spent tokens are reserved after each call; waiting for a single
		// token blocks until that debt has been paid back.
		if err := r.tokens.Wait(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.rollWindow()
	r.stats.RequestsInWindow++
	r.mu.Unlock()
	return nil
}

// trackTokenUsage records token consumption against the token budget.
func (r *RateLimitProvider) trackTokenUsage(tokens int) {
	if tokens <= 0 {
		return
	}
	if r.tokens != nil {
		n := tokens
		if n > r.tokens.Burst() {
			n = r.tokens.Burst()
		}
		r.tokens.ReserveN(time.Now(), n)
	}

	r.mu.Lock()
	r.rollWindow()
	r.stats.TokensInWindow += tokens
	r.mu.Unlock()
}

// rollWindow resets the per-minute counters. Caller holds r.mu.
func (r *RateLimitProvider) rollWindow() {
	if time.Since(r.stats.WindowStart) >= time.Minute {
		r.stats = RateLimitStats{WindowStart: time.Now()}
	}
}

// Stats returns current rate limiting statistics.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// RateLimitStats contains rate limiting statistics for the current minute.
type RateLimitStats struct {
	RequestsInWindow int
	TokensInWindow   int
	WindowStart      time.Time
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
