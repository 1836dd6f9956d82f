package corpus

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/vector"
)

// collectionEnsurer is implemented by durable stores that create their
// collection on demand.
type collectionEnsurer interface {
	EnsureCollection(ctx context.Context, dim int) error
}

// pruner is implemented by durable stores that can drop documents missing
// from the latest build.
type pruner interface {
	Prune(ctx context.Context, keep []string) error
}

// Indexer embeds corpus rows and publishes the resulting index.
type Indexer struct {
	Embedder llm.Embedder
	Model    string
	Handle   *vector.Handle
	Config   vector.IndexConfig
	// Mirror, when set, also receives every document of a successful build
	// and drops the ones the build no longer has.
	Mirror vector.Repository
	Logger *zap.Logger
}

// Build embeds rows and publishes a new index. Nothing is published if any
// step fails.
func (ix *Indexer) Build(ctx context.Context, rows []Row) (*vector.Index, error) {
	logger := ix.logger()

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vecs, err := ix.Embedder.Embed(ctx, texts, ix.Model)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vecs) != len(rows) {
		return nil, &llm.EmbeddingServiceError{
			Model:  ix.Model,
			Reason: fmt.Sprintf("got %d vectors for %d rows", len(vecs), len(rows)),
		}
	}

	docs := make([]vector.Document, len(rows))
	for i, r := range rows {
		docs[i] = vector.Document{ID: r.ID, Text: r.Text, Embedding: vecs[i], Metadata: r.Metadata}
	}

	idx, err := vector.Build(docs, ix.Config)
	if err != nil {
		return nil, err
	}

	if ix.Mirror != nil && idx.Len() > 0 {
		if e, ok := ix.Mirror.(collectionEnsurer); ok {
			if err := e.EnsureCollection(ctx, idx.Dim()); err != nil {
				return nil, err
			}
		}
		if err := ix.Mirror.Upsert(ctx, docs); err != nil {
			return nil, err
		}
		if p, ok := ix.Mirror.(pruner); ok {
			keep := make([]string, len(docs))
			for i, d := range docs {
				keep[i] = d.ID
			}
			if err := p.Prune(ctx, keep); err != nil {
				return nil, err
			}
		}
	}

	ix.Handle.Publish(idx)
	logger.Info("index published",
		zap.Int("documents", idx.Len()),
		zap.Int("dim", idx.Dim()),
		zap.String("metric", string(ix.Config.Metric)),
	)
	return idx, nil
}

// BuildFile loads a CSV corpus from fs and builds it.
func (ix *Indexer) BuildFile(ctx context.Context, fs afero.Fs, path string, cols Columns) (*vector.Index, error) {
	rows, report, err := LoadFile(fs, path, cols)
	if err != nil {
		return nil, err
	}
	ix.logger().Info("corpus loaded",
		zap.String("path", path),
		zap.Int("read", report.Read),
		zap.Int("dropped_missing", report.MissingField),
		zap.Int("dropped_duplicate", report.DuplicateSource),
		zap.Int("kept", report.Kept),
	)
	return ix.Build(ctx, rows)
}

func (ix *Indexer) logger() *zap.Logger {
	if ix.Logger == nil {
		return zap.NewNop()
	}
	return ix.Logger
}
