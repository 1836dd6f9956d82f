package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nestauk/discovery-genai/internal/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
	providerName     = "anthropic"
)

// Client implements llm.Provider for the Anthropic Messages API. It only
// completes; pair it with an OpenAI-compatible embedder for retrieval.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates an Anthropic provider.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// FromConfig adapts New to the provider factory.
func FromConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	return New(cfg.APIKey, "", cfg.BaseURL), nil
}

func (c *Client) Name() string { return providerName }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []message `json:"messages"`
	Temperature   float64   `json:"temperature"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Complete sends conv to the Messages API. System turns are lifted into the
// top-level system field, joined in order; the API rejects them inline.
func (c *Client) Complete(ctx context.Context, conv llm.Conversation, opts *llm.RequestOptions) (*llm.Response, error) {
	body := request{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
	}

	var system []string
	for _, m := range conv {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, message{Role: string(m.Role), Content: m.Content})
	}
	body.System = strings.Join(system, "\n\n")

	if opts != nil {
		if opts.Model != "" {
			body.Model = opts.Model
		}
		if opts.MaxTokens != nil {
			body.MaxTokens = *opts.MaxTokens
		}
		body.Temperature = opts.Temperature
		body.TopP = opts.TopP
		body.StopSequences = opts.StopSeqs
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &llm.CompletionServiceError{Provider: providerName, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.CompletionServiceError{Provider: providerName, StatusCode: resp.StatusCode, Reason: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.CompletionServiceError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Reason:     errorReason(resp.Status, respBody),
		}
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &llm.CompletionServiceError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("decode response: %v", err),
			Err:        err,
		}
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.Response{
		Content:      text.String(),
		Model:        result.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		StopReason:   result.StopReason,
	}, nil
}

func (c *Client) Embed(_ context.Context, _ []string, model string) ([][]float32, error) {
	return nil, &llm.EmbeddingServiceError{
		Provider: providerName,
		Model:    model,
		Reason:   "use a dedicated embedding provider",
		Err:      llm.ErrEmbeddingUnsupported,
	}
}

func errorReason(status string, body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fmt.Sprintf("%s: %s", status, body)
}
