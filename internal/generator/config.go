package generator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nestauk/discovery-genai/internal/llm"
)

// Injection says where retrieved text goes in the conversation.
type Injection string

const (
	// InjectBeforeRequest adds one user message right before the request.
	InjectBeforeRequest Injection = "before_request"
	// InjectAfterSystem adds one system message after the leading system
	// messages.
	InjectAfterSystem Injection = "after_system"
)

// ParseInjection accepts "" as the default policy.
func ParseInjection(s string) (Injection, error) {
	switch Injection(strings.TrimSpace(s)) {
	case "", InjectBeforeRequest:
		return InjectBeforeRequest, nil
	case InjectAfterSystem:
		return InjectAfterSystem, nil
	}
	return "", fmt.Errorf("unknown injection policy %q (want before_request or after_system)", s)
}

// Config is everything one Generate call needs. Nothing is read from the
// environment at call time.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int // 0 leaves the provider default

	TemplateRefs []string
	Placeholders map[string]any
	// RequestTemplate, when set, is a template ref whose {request}
	// placeholder receives the request text.
	RequestTemplate string
	// Custom replaces the stored templates with a ready conversation.
	Custom llm.Conversation

	UseRetrieval   bool
	K              int
	EmbeddingModel string
	Injection      Injection

	Timeout        time.Duration
	StripReasoning bool
}

func (c Config) validate(request string, canRetrieve bool) error {
	var errs []error
	if strings.TrimSpace(request) == "" {
		errs = append(errs, errors.New("request is empty"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if !llm.ValidTemperature(c.Temperature) {
		errs = append(errs, fmt.Errorf("temperature %.2f outside [0, %.1f]", c.Temperature, llm.MaxTemperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if len(c.TemplateRefs) == 0 && len(c.Custom) == 0 {
		errs = append(errs, errors.New("no templates configured"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if _, err := ParseInjection(string(c.Injection)); err != nil {
		errs = append(errs, err)
	}
	if c.UseRetrieval {
		if c.K <= 0 {
			errs = append(errs, fmt.Errorf("k must be positive when retrieval is on, got %d", c.K))
		}
		if !canRetrieve {
			errs = append(errs, errors.New("retrieval requested but no embedder and index are configured"))
		}
	}
	if len(c.Custom) > 0 {
		if err := c.Custom.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("custom prompt: %w", err))
		}
	}
	return errors.Join(errs...)
}
