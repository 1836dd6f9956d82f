package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nestauk/discovery-genai/internal/llm"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = string(goopenai.SmallEmbedding3)
	providerName      = "openai"
)

// Client implements llm.Provider for OpenAI-compatible APIs (OpenAI, vLLM, etc.).
type Client struct {
	model      string
	embedModel string
	baseURL    string
	api        *goopenai.Client
}

// New creates an OpenAI-compatible provider. model and embedModel are used
// when a call does not name one.
func New(apiKey, model, baseURL, embedModel string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: 300 * time.Second}
	return &Client{
		model:      model,
		embedModel: embedModel,
		baseURL:    baseURL,
		api:        goopenai.NewClientWithConfig(cfg),
	}
}

// FromConfig adapts New to the provider factory.
func FromConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = llm.KnownProviders[cfg.Provider]
	}
	return New(cfg.APIKey, "", baseURL, ""), nil
}

func (c *Client) Name() string { return providerName }

func (c *Client) Complete(ctx context.Context, conv llm.Conversation, opts *llm.RequestOptions) (*llm.Response, error) {
	req := goopenai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  make([]goopenai.ChatCompletionMessage, len(conv)),
		MaxTokens: 4096,
	}
	for i, m := range conv {
		req.Messages[i] = goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		req.Temperature = float32(opts.Temperature)
		if opts.TopP != nil {
			req.TopP = float32(*opts.TopP)
		}
		if len(opts.StopSeqs) > 0 {
			req.Stop = opts.StopSeqs
		}
	}
	// The client drops a zero temperature from the payload, which the API
	// then treats as its own default of 1.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if req.Model == "" {
		return nil, &llm.CompletionServiceError{Provider: providerName, Reason: "model is required"}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		code, reason := describe(err)
		return nil, &llm.CompletionServiceError{Provider: providerName, StatusCode: code, Reason: reason, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.CompletionServiceError{Provider: providerName, Reason: "response has no choices"}
	}

	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(resp.Choices[0].FinishReason),
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if model == "" {
		model = c.embedModel
	}

	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(model),
	})
	if err != nil {
		code, reason := describe(err)
		return nil, &llm.EmbeddingServiceError{Provider: providerName, Model: model, StatusCode: code, Reason: reason, Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &llm.EmbeddingServiceError{
			Provider: providerName,
			Model:    model,
			Reason:   "service returned a different number of vectors than inputs",
		}
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// describe pulls the HTTP status and a readable reason out of a client error.
func describe(err error) (int, string) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return 0, err.Error()
}
