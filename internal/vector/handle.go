package vector

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotPublished is returned by a Handle that has no index yet.
var ErrNotPublished = errors.New("no index published")

// Handle is the publish point for the current Index. Readers never see a
// partially built index; a failed rebuild leaves the previous one in place.
type Handle struct {
	current atomic.Pointer[Index]
}

var _ Retriever = (*Handle)(nil)

// Publish makes idx the current index. A nil idx is ignored.
func (h *Handle) Publish(idx *Index) {
	if idx != nil {
		h.current.Store(idx)
	}
}

// Current returns the published index, or nil.
func (h *Handle) Current() *Index {
	return h.current.Load()
}

// Ready reports whether an index has been published.
func (h *Handle) Ready() bool {
	return h.current.Load() != nil
}

// Rebuild builds a new index and publishes it only if the build succeeds.
func (h *Handle) Rebuild(docs []Document, cfg IndexConfig) (*Index, error) {
	idx, err := Build(docs, cfg)
	if err != nil {
		return nil, err
	}
	h.current.Store(idx)
	return idx, nil
}

// Search queries the current index.
func (h *Handle) Search(ctx context.Context, vec []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := h.current.Load()
	if idx == nil {
		return nil, ErrNotPublished
	}
	return idx.Query(vec, k)
}
