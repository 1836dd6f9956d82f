// Package llmtest provides an in-process llm.Provider for tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/nestauk/discovery-genai/internal/llm"
)

// Provider records every call and answers from its funcs. A zero Provider
// replies with an empty completion and FNV-derived 8-dimension vectors.
type Provider struct {
	ProviderName string
	Reply        string
	CompleteFunc func(ctx context.Context, conv llm.Conversation, opts *llm.RequestOptions) (*llm.Response, error)
	EmbedFunc    func(ctx context.Context, texts []string, model string) ([][]float32, error)

	mu            sync.Mutex
	conversations []llm.Conversation
	options       []llm.RequestOptions
	embedBatches  [][]string
}

var _ llm.Provider = (*Provider)(nil)

// Fixed returns a Provider that always answers reply.
func Fixed(reply string) *Provider {
	return &Provider{Reply: reply}
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "fake"
	}
	return p.ProviderName
}

func (p *Provider) Complete(ctx context.Context, conv llm.Conversation, opts *llm.RequestOptions) (*llm.Response, error) {
	p.mu.Lock()
	p.conversations = append(p.conversations, append(llm.Conversation(nil), conv...))
	if opts != nil {
		p.options = append(p.options, *opts)
	}
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, conv, opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := ""
	if opts != nil {
		model = opts.Model
	}
	return &llm.Response{Content: p.Reply, Model: model, StopReason: "stop"}, nil
}

func (p *Provider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	p.mu.Lock()
	p.embedBatches = append(p.embedBatches, append([]string(nil), texts...))
	p.mu.Unlock()

	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, texts, model)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashVector(t, 8)
	}
	return out, nil
}

// Conversations returns copies of every conversation passed to Complete.
func (p *Provider) Conversations() []llm.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Conversation(nil), p.conversations...)
}

// LastConversation returns the most recent conversation, or nil.
func (p *Provider) LastConversation() llm.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conversations) == 0 {
		return nil
	}
	return p.conversations[len(p.conversations)-1]
}

// Options returns the request options seen by Complete.
func (p *Provider) Options() []llm.RequestOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.RequestOptions(nil), p.options...)
}

// EmbedBatches returns the text batches passed to Embed, in call order.
func (p *Provider) EmbedBatches() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.embedBatches...)
}

// HashVector maps text to a deterministic vector of the given dimension.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		v[i] = float32(h.Sum32()%1000) / 1000
	}
	return v
}
