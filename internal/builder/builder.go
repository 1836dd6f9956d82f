// Package builder wires configuration into the running components.
package builder

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/config"
	"github.com/nestauk/discovery-genai/internal/corpus"
	"github.com/nestauk/discovery-genai/internal/embedding"
	"github.com/nestauk/discovery-genai/internal/generator"
	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/llm/anthropic"
	"github.com/nestauk/discovery-genai/internal/llm/openai"
	"github.com/nestauk/discovery-genai/internal/observability"
	"github.com/nestauk/discovery-genai/internal/template"
	"github.com/nestauk/discovery-genai/internal/vector"
	"github.com/nestauk/discovery-genai/internal/vector/qdrant"
)

// NewFactory registers every built-in provider. Everything except
// anthropic speaks the OpenAI wire format.
func NewFactory() *llm.ProviderFactory {
	f := llm.NewFactory()
	f.Register("anthropic", anthropic.FromConfig)
	for name := range llm.KnownProviders {
		if name != "anthropic" {
			f.Register(name, openai.FromConfig)
		}
	}
	f.Register("custom", openai.FromConfig)
	return f
}

// App holds the wired components for one process.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Templates template.Store
	Generator *generator.Generator
	Handle    *vector.Handle
	Indexer   *corpus.Indexer
	Provider  llm.Provider
	// Status wraps Provider and backs the llm health check.
	Status *llm.StatusProvider
	// Qdrant is set when the qdrant backend or mirror is configured.
	Qdrant  *qdrant.Repository
	Tracing *observability.TracerProvider
}

// Build creates every component named by cfg. Nothing is dialled or
// indexed yet; see LoadCorpus.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger, Handle: &vector.Handle{}}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	app.Tracing = tp

	app.Templates = Templates(cfg.Templates.Dir)

	factory := NewFactory()
	provider, err := factory.Create(cfg.LLM.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return nil, errors.New("llm.provider is 'none'; a completion provider is required")
	}
	app.Status = llm.WithStatus(provider)
	app.Provider = app.Status
	logger.Info("LLM provider ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))

	embedder, err := buildEmbedder(factory, cfg, app.Provider, logger)
	if err != nil {
		return nil, err
	}

	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return nil, fmt.Errorf("vector: %w", err)
	}

	var retriever vector.Retriever = app.Handle
	if cfg.Vector.Backend == "qdrant" || cfg.Vector.Mirror {
		repo, err := qdrant.New(qdrant.Config{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			Collection: cfg.Vector.Collection,
			Metric:     metric,
		})
		if err != nil {
			return nil, fmt.Errorf("setup qdrant: %w", err)
		}
		app.Qdrant = repo
		if cfg.Vector.Backend == "qdrant" {
			retriever = repo
		}
		logger.Info("qdrant configured",
			zap.String("collection", cfg.Vector.Collection),
			zap.Bool("retriever", cfg.Vector.Backend == "qdrant"),
			zap.Bool("mirror", cfg.Vector.Mirror),
		)
	}

	app.Indexer = &corpus.Indexer{
		Embedder: embedder,
		Model:    cfg.Embedding.Model,
		Handle:   app.Handle,
		Config:   vector.IndexConfig{Metric: metric, Normalize: cfg.Vector.Normalize},
		Logger:   logger.Named("corpus"),
	}
	if app.Qdrant != nil && cfg.Vector.Mirror {
		app.Indexer.Mirror = app.Qdrant
	}

	app.Generator = generator.New(app.Templates, app.Provider,
		generator.WithRetrieval(embedder, retriever),
		generator.WithLogger(logger.Named("generator")),
	)
	return app, nil
}

// Templates returns the built-in templates, overlaid by dir when set.
func Templates(dir string) template.Store {
	if dir == "" {
		return template.Builtin()
	}
	return template.Chain{template.NewDirStore(dir), template.Builtin()}
}

func buildEmbedder(factory *llm.ProviderFactory, cfg *config.Config, chat llm.Provider, logger *zap.Logger) (llm.Embedder, error) {
	resolved := cfg.Embedding.Resolve(cfg.LLM)
	var embedder llm.Embedder = chat
	if resolved.ProviderConfig() != cfg.LLM.ProviderConfig() {
		p, err := factory.Create(resolved.ProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("create embedding provider: %w", err)
		}
		if p == nil {
			return nil, errors.New("embedding.provider is 'none'")
		}
		embedder = p
	}

	var out llm.Embedder = embedding.NewClient(embedder,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithParallelism(cfg.Embedding.Parallelism),
		embedding.WithLogger(logger.Named("embedding")),
	)
	if cfg.Embedding.CacheTTL > 0 {
		out = embedding.NewCache(out, cfg.Embedding.CacheTTL)
	}
	return out, nil
}

// GeneratorConfig returns the per-request defaults from configuration.
func (a *App) GeneratorConfig() (generator.Config, error) {
	injection, err := generator.ParseInjection(a.Config.Retrieval.Injection)
	if err != nil {
		return generator.Config{}, err
	}
	c := a.Config
	return generator.Config{
		Model:           c.LLM.Model,
		Temperature:     c.LLM.Temperature,
		MaxTokens:       c.LLM.MaxTokens,
		TemplateRefs:    append([]string(nil), c.Templates.Refs...),
		Placeholders:    maps.Clone(c.Templates.Placeholders),
		RequestTemplate: c.Templates.RequestTemplate,
		UseRetrieval:    c.Retrieval.Enabled,
		K:               c.Retrieval.K,
		EmbeddingModel:  c.Embedding.Model,
		Injection:       injection,
		Timeout:         c.Server.RequestTimeout,
		StripReasoning:  c.LLM.StripReasoning,
	}, nil
}

// Columns returns the configured corpus columns.
func (a *App) Columns() corpus.Columns {
	return corpus.Columns{Text: a.Config.Corpus.TextColumn, Source: a.Config.Corpus.SourceColumn}
}

// LoadCorpus builds and publishes the index from corpus.path. It is a
// no-op when no path is configured.
func (a *App) LoadCorpus(ctx context.Context, fs afero.Fs) (*vector.Index, error) {
	if a.Config.Corpus.Path == "" {
		return nil, nil
	}
	return a.Indexer.BuildFile(ctx, fs, a.Config.Corpus.Path, a.Columns())
}

// Watcher returns a corpus watcher, or nil when watching is off.
func (a *App) Watcher() *corpus.Watcher {
	if !a.Config.Corpus.Watch || a.Config.Corpus.Path == "" {
		return nil
	}
	return &corpus.Watcher{
		Indexer:  a.Indexer,
		Path:     a.Config.Corpus.Path,
		Columns:  a.Columns(),
		Debounce: a.Config.Corpus.Debounce,
		Logger:   a.Logger.Named("watcher"),
	}
}

// Close releases connections and flushes spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Qdrant != nil {
		errs = append(errs, a.Qdrant.Close())
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
