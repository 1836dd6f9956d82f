// Package embedding batches text through a remote embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nestauk/discovery-genai/internal/llm"
)

const (
	DefaultBatchSize   = 500
	DefaultParallelism = 1
)

var tracer = otel.Tracer("github.com/nestauk/discovery-genai/internal/embedding")

// Client splits large inputs into sub-batches. The result is the same as a
// single unbounded call: one vector per input, in input order.
type Client struct {
	embedder    llm.Embedder
	provider    string
	batchSize   int
	parallelism int
	logger      *zap.Logger
}

var _ llm.Embedder = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBatchSize caps the number of texts per remote call.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithParallelism sets how many sub-batches may be in flight at once.
func WithParallelism(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps embedder. Retries are the embedder's business; wrap it
// with llm.WrapWithRetry before passing it in if they are wanted.
func NewClient(embedder llm.Embedder, opts ...Option) *Client {
	c := &Client{
		embedder:    embedder,
		provider:    "embedding",
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		logger:      zap.NewNop(),
	}
	if p, ok := embedder.(interface{ Name() string }); ok {
		c.provider = p.Name()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns one vector per text. Every failure, including a service that
// answers with the wrong number of vectors, is an *llm.EmbeddingServiceError.
func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", model),
		attribute.Int("embedding.texts", len(texts)),
		attribute.Int("embedding.batch_size", c.batchSize),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedder.Embed(gctx, texts[start:end], model)
			if err != nil {
				return c.wrap(model, err)
			}
			if len(vecs) != end-start {
				return &llm.EmbeddingServiceError{
					Provider: c.provider,
					Model:    model,
					Reason:   fmt.Sprintf("batch at offset %d: got %d vectors for %d texts", start, len(vecs), end-start),
				}
			}
			copy(out[start:end], vecs)
			c.logger.Debug("embedded batch",
				zap.String("model", model),
				zap.Int("offset", start),
				zap.Int("size", end-start),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (c *Client) wrap(model string, err error) error {
	var ee *llm.EmbeddingServiceError
	if errors.As(err, &ee) {
		return err
	}
	return &llm.EmbeddingServiceError{
		Provider:   c.provider,
		Model:      model,
		StatusCode: llm.StatusCode(err),
		Reason:     err.Error(),
		Err:        err,
	}
}
