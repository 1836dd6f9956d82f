// Package vector holds an in-memory nearest-neighbour index over embedded
// documents and the publish point that swaps it atomically.
package vector

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

var (
	// ErrEmptyEmbedding is returned when a document has no vector.
	ErrEmptyEmbedding = errors.New("document has an empty embedding")
	// ErrInvalidK is returned for a non-positive k.
	ErrInvalidK = errors.New("k must be positive")
)

// DuplicateIDError is returned by Build when two documents share an id.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate document id %q", e.ID)
}

// DimensionError reports a vector whose length differs from the index.
type DimensionError struct {
	ID   string // empty for a query vector
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("query vector has dimension %d, index has %d", e.Got, e.Want)
	}
	return fmt.Sprintf("document %q has dimension %d, index has %d", e.ID, e.Got, e.Want)
}

// Index is an immutable set of documents. It is safe for concurrent queries.
type Index struct {
	docs     []Document
	cfg      IndexConfig
	dim      int
	distance func(a, b []float32) float64
}

// Build copies docs into a new Index. Insertion order is kept and breaks ties
// between equal distances.
func Build(docs []Document, cfg IndexConfig) (*Index, error) {
	distance, err := cfg.Metric.distanceFunc()
	if err != nil {
		return nil, err
	}

	idx := &Index{
		docs:     make([]Document, len(docs)),
		cfg:      cfg,
		distance: distance,
	}
	seen := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		if _, dup := seen[d.ID]; dup {
			return nil, &DuplicateIDError{ID: d.ID}
		}
		seen[d.ID] = struct{}{}

		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("document %q: %w", d.ID, ErrEmptyEmbedding)
		}
		if i == 0 {
			idx.dim = len(d.Embedding)
		} else if len(d.Embedding) != idx.dim {
			return nil, &DimensionError{ID: d.ID, Want: idx.dim, Got: len(d.Embedding)}
		}

		vec := append([]float32(nil), d.Embedding...)
		if cfg.Normalize {
			vec = normalized(vec)
		}
		idx.docs[i] = Document{
			ID:        d.ID,
			Text:      d.Text,
			Embedding: vec,
			Metadata:  maps.Clone(d.Metadata),
		}
	}
	return idx, nil
}

// Len returns the number of documents.
func (x *Index) Len() int { return len(x.docs) }

// Dim returns the vector dimension, or 0 for an empty index.
func (x *Index) Dim() int { return x.dim }

// Config returns the configuration the index was built with.
func (x *Index) Config() IndexConfig { return x.cfg }

// Query returns the k documents closest to vec, ascending by distance. A k
// larger than the index returns every document.
func (x *Index) Query(vec []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(x.docs) == 0 {
		return []Result{}, nil
	}
	if len(vec) != x.dim {
		return nil, &DimensionError{Want: x.dim, Got: len(vec)}
	}
	if x.cfg.Normalize {
		vec = normalized(vec)
	}

	type scored struct {
		pos  int
		dist float64
	}
	all := make([]scored, len(x.docs))
	for i, d := range x.docs {
		all[i] = scored{pos: i, dist: x.distance(vec, d.Embedding)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	k = min(k, len(all))
	out := make([]Result, k)
	for i := range out {
		d := x.docs[all[i].pos]
		out[i] = Result{
			ID:       d.ID,
			Distance: all[i].dist,
			Metadata: maps.Clone(d.Metadata),
			Text:     d.Text,
		}
	}
	return out, nil
}
