package llm

import (
	"context"
	"fmt"
	"math"
)

// Completer generates text for a conversation.
type Completer interface {
	Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error)
}

// Embedder returns one embedding vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Provider is the interface all LLM backends must implement.
type Provider interface {
	Completer
	Embedder
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// RequestOptions tunes a single completion call.
type RequestOptions struct {
	Model       string
	Temperature float64
	MaxTokens   *int
	TopP        *float64
	StopSeqs    []string
}

// MaxTemperature is the upper bound accepted by the chat completion APIs.
const MaxTemperature = 2.0

// ValidTemperature reports whether t lies in [0, MaxTemperature]. NaN does not.
func ValidTemperature(t float64) bool {
	return !math.IsNaN(t) && t >= 0 && t <= MaxTemperature
}

// Validate rejects options no provider would accept.
func (o *RequestOptions) Validate() error {
	if o == nil {
		return fmt.Errorf("request options are required")
	}
	if o.Model == "" {
		return fmt.Errorf("model is required")
	}
	if !ValidTemperature(o.Temperature) {
		return fmt.Errorf("temperature %.2f outside [0, %.1f]", o.Temperature, MaxTemperature)
	}
	if o.MaxTokens != nil && *o.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", *o.MaxTokens)
	}
	return nil
}
