package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// mockRetryProvider is a mock that can be configured to fail N times then succeed
type mockRetryProvider struct {
	name           string
	responses      []*Response
	errors         []error
	embedResponses [][][]float32
	embedErrors    []error
	calls          int
	embedCalls     int
}

func (m *mockRetryProvider) Name() string {
	return m.name
}

func (m *mockRetryProvider) Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error) {
	m.calls++

	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}

	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}

	return nil, fmt.Errorf("mock: no more responses configured")
}

func (m *mockRetryProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	m.embedCalls++

	if len(m.embedErrors) > 0 {
		err := m.embedErrors[0]
		m.embedErrors = m.embedErrors[1:]
		return nil, err
	}

	if len(m.embedResponses) > 0 {
		resp := m.embedResponses[0]
		m.embedResponses = m.embedResponses[1:]
		return resp, nil
	}

	return nil, fmt.Errorf("mock: no more embed responses configured")
}

// mockProvider counts calls and reports a fixed token usage.
type mockProvider struct {
	name       string
	callCount  int64
	embedCount int64
	delay      time.Duration
	tokenUsage int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error) {
	atomic.AddInt64(&m.callCount, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return &Response{
		Content:      "test response",
		InputTokens:  m.tokenUsage / 2,
		OutputTokens: m.tokenUsage / 2,
	}, nil
}

func (m *mockProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	atomic.AddInt64(&m.embedCount, 1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func userTurn(content string) Conversation {
	return Conversation{{Role: RoleUser, Content: content}}
}
