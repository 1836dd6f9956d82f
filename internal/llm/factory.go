package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any LLM provider.
type ProviderConfig struct {
	Provider string // "openai", "anthropic", "groq", "ollama", "custom", ...
	APIKey   string
	BaseURL  string // Override for self-hosted / custom endpoints

	// Per-attempt timeout and retry policy. Zero MaxRetries leaves the
	// provider unwrapped.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Client-side throttling. Zero disables the limiter.
	RequestsPerMinute int
	BurstSize         int
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:   "openai",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider is
// empty or "none".
// The returned provider is wrapped with rate limiting and retry logic when
// the config asks for them; retry is the outer layer so every attempt waits
// for limiter capacity.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q, registered: %v", cfg.Provider, f.Names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		provider = WithRateLimit(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         cfg.BurstSize,
		})
	}

	if cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}

	return provider, nil
}

// Names lists registered providers in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders documents the built-in provider presets.
// For OpenAI-compatible APIs (Groq, vLLM, Ollama, Together, etc.)
// use "openai" provider with a custom base_url.
//
// Presets with default base URLs:
//
//	anthropic  → https://api.anthropic.com/v1
//	openai     → https://api.openai.com/v1
//	groq       → https://api.groq.com/openai/v1
//	ollama     → http://localhost:11434/v1
//	together   → https://api.together.xyz/v1
//	deepseek   → https://api.deepseek.com/v1
var KnownProviders = map[string]string{
	"anthropic": "https://api.anthropic.com/v1",
	"openai":    "https://api.openai.com/v1",
	"groq":      "https://api.groq.com/openai/v1",
	"ollama":    "http://localhost:11434/v1",
	"together":  "https://api.together.xyz/v1",
	"deepseek":  "https://api.deepseek.com/v1",
}
