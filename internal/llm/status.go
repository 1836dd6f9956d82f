package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// StatusProvider remembers the outcome of the most recent remote call so
// health checks can report a failing backend without spending a request.
type StatusProvider struct {
	inner Provider
	last  atomic.Pointer[callStatus]
}

type callStatus struct {
	err error
	at  time.Time
}

var _ Provider = (*StatusProvider)(nil)

// WithStatus wraps p. A nil p stays nil.
func WithStatus(p Provider) *StatusProvider {
	if p == nil {
		return nil
	}
	return &StatusProvider{inner: p}
}

func (s *StatusProvider) Name() string { return s.inner.Name() }

func (s *StatusProvider) Complete(ctx context.Context, conv Conversation, opts *RequestOptions) (*Response, error) {
	resp, err := s.inner.Complete(ctx, conv, opts)
	s.record(err)
	return resp, err
}

func (s *StatusProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vecs, err := s.inner.Embed(ctx, texts, model)
	s.record(err)
	return vecs, err
}

// Check returns the error of the last call, or nil if it succeeded or no
// call was made yet.
func (s *StatusProvider) Check(context.Context) error {
	st := s.last.Load()
	if st == nil || st.err == nil {
		return nil
	}
	return fmt.Errorf("last call at %s failed: %w", st.at.Format(time.RFC3339), st.err)
}

func (s *StatusProvider) record(err error) {
	// a caller giving up says nothing about the backend
	if errors.Is(err, context.Canceled) {
		return
	}
	s.last.Store(&callStatus{err: err, at: time.Now()})
}
