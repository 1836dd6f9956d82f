package vector

import "context"

// Document is one retrievable text with its embedding. Metadata values are
// scalars: string, bool, integer or float.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// Result is a single match, best first.
type Result struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Text     string         `json:"text"`
}

// Retriever answers top-k queries.
type Retriever interface {
	Search(ctx context.Context, vec []float32, k int) ([]Result, error)
}

// Repository is a durable store that can also be searched.
type Repository interface {
	Retriever
	// Upsert inserts or replaces documents by id.
	Upsert(ctx context.Context, docs []Document) error
	// Close releases resources.
	Close() error
}
