// Package generator runs one request through template loading, prompt
// composition, optional retrieval and a single completion call.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/observability"
	"github.com/nestauk/discovery-genai/internal/prompt"
	"github.com/nestauk/discovery-genai/internal/template"
	"github.com/nestauk/discovery-genai/internal/vector"
)

// RequestPlaceholder is the name the request template uses for the request.
const RequestPlaceholder = "request"

const groundingHeader = "Use the following reference material where it is relevant to the request."

// Generator is safe for concurrent use; it keeps no per-request state.
type Generator struct {
	templates template.Store
	completer llm.Completer
	embedder  llm.Embedder
	retriever vector.Retriever
	logger    *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetrieval enables Config.UseRetrieval requests.
func WithRetrieval(embedder llm.Embedder, retriever vector.Retriever) Option {
	return func(g *Generator) {
		g.embedder = embedder
		g.retriever = retriever
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns a Generator reading templates from store and completing with c.
func New(store template.Store, c llm.Completer, opts ...Option) *Generator {
	g := &Generator{templates: store, completer: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanRetrieve reports whether retrieval requests can be served.
func (g *Generator) CanRetrieve() bool {
	return g.embedder != nil && g.retriever != nil
}

// Generate returns the completion text for request, or a *GenerationError.
// No partial text is returned on failure.
func (g *Generator) Generate(ctx context.Context, request string, cfg Config) (string, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	ctx = g.withLogger(ctx)
	ctx, span := observability.StartGenerateSpan(ctx, cfg.Model, cfg.UseRetrieval)
	defer span.End()

	text, err := g.generate(ctx, request, cfg)
	if err != nil {
		observability.RecordError(span, err)
		g.log(ctx).Warn("generation failed", zap.String("stage", string(StageOf(err))), zap.Error(err))
		return "", err
	}
	return text, nil
}

func (g *Generator) generate(ctx context.Context, request string, cfg Config) (string, error) {
	if err := cfg.validate(request, g.CanRetrieve()); err != nil {
		return "", &GenerationError{Stage: StageValidate, Cause: err}
	}
	injection, _ := ParseInjection(string(cfg.Injection))

	conv, err := g.Prompt(ctx, cfg)
	if err != nil {
		return "", err
	}

	if cfg.UseRetrieval {
		results, err := g.retrieve(ctx, request, cfg)
		if err != nil {
			return "", err
		}
		conv = inject(conv, results, injection)
	}

	requestText, err := g.renderRequest(ctx, request, cfg)
	if err != nil {
		return "", err
	}
	conv = prompt.WithRequest(conv, requestText)

	resp, err := g.complete(ctx, conv, cfg)
	if err != nil {
		return "", err
	}
	text := resp.Content
	if cfg.StripReasoning {
		text = llm.StripReasoning(text)
	}
	return text, nil
}

// Prompt loads and composes the configured templates without the request.
// A Custom conversation is returned as given.
func (g *Generator) Prompt(ctx context.Context, cfg Config) (llm.Conversation, error) {
	if len(cfg.Custom) > 0 {
		return cfg.Custom.Append(), nil
	}

	sctx, span := startStage(ctx, StageLoad)
	var templates []template.Template
	for _, ref := range cfg.TemplateRefs {
		ts, err := g.templates.LoadAll(ref)
		if err != nil {
			span.End()
			return nil, g.fail(sctx, StageLoad, err)
		}
		templates = append(templates, ts...)
	}
	span.End()

	sctx, span = startStage(ctx, StageCompose)
	defer span.End()
	conv, err := prompt.Compose(templates, cfg.Placeholders)
	if err != nil {
		return nil, g.fail(sctx, StageCompose, err)
	}
	g.log(sctx).Debug("prompt composed", zap.Int("messages", len(conv)), zap.Strings("templates", cfg.TemplateRefs))
	return conv, nil
}

func (g *Generator) retrieve(ctx context.Context, request string, cfg Config) ([]vector.Result, error) {
	sctx, span := startStage(ctx, StageEmbed)
	vecs, err := g.embedder.Embed(sctx, []string{request}, cfg.EmbeddingModel)
	if err == nil && len(vecs) != 1 {
		err = &llm.EmbeddingServiceError{
			Provider: providerName(g.embedder),
			Reason:   fmt.Sprintf("expected 1 embedding, got %d", len(vecs)),
		}
	}
	if err != nil {
		span.End()
		return nil, g.fail(sctx, StageEmbed, err)
	}
	span.End()

	sctx, span = startStage(ctx, StageRetrieve)
	defer span.End()
	results, err := g.retriever.Search(sctx, vecs[0], cfg.K)
	if err != nil {
		return nil, g.fail(sctx, StageRetrieve, err)
	}
	best := 0.0
	if len(results) > 0 {
		best = results[0].Distance
	}
	observability.RecordRetrieval(span, cfg.K, len(results), best)
	g.log(sctx).Debug("retrieved documents", zap.Int("k", cfg.K), zap.Int("returned", len(results)))
	return results, nil
}

func (g *Generator) renderRequest(ctx context.Context, request string, cfg Config) (string, error) {
	if cfg.RequestTemplate == "" {
		return request, nil
	}
	t, err := g.templates.Load(cfg.RequestTemplate)
	if err != nil {
		return "", g.fail(ctx, StageLoad, err)
	}
	values := make(map[string]any, len(cfg.Placeholders)+1)
	for k, v := range cfg.Placeholders {
		values[k] = v
	}
	values[RequestPlaceholder] = request
	conv, err := prompt.Compose([]template.Template{t}, values)
	if err != nil {
		return "", g.fail(ctx, StageCompose, err)
	}
	return conv[0].Content, nil
}

func (g *Generator) complete(ctx context.Context, conv llm.Conversation, cfg Config) (*llm.Response, error) {
	sctx, span := startStage(ctx, StageComplete)
	defer span.End()

	opts := &llm.RequestOptions{Model: cfg.Model, Temperature: cfg.Temperature}
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = &cfg.MaxTokens
	}

	lctx, lspan := observability.StartLLMSpan(sctx, providerName(g.completer), cfg.Model)
	start := time.Now()
	resp, err := g.completer.Complete(lctx, conv, opts)
	if err != nil {
		observability.RecordError(lspan, err)
		lspan.End()
		return nil, g.fail(sctx, StageComplete, err)
	}
	observability.RecordLLMMetrics(lspan, resp.InputTokens, resp.OutputTokens, time.Since(start))
	lspan.End()

	g.log(sctx).Info("completion received",
		zap.String("model", cfg.Model),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// fail wraps err for stage, marking it as a timeout when ctx ran out.
func (g *Generator) fail(ctx context.Context, stage Stage, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &GenerationError{Stage: stage, Cause: err}
}

// startStage opens the stage span and tags the context logger with the stage.
func startStage(ctx context.Context, stage Stage) (context.Context, trace.Span) {
	ctx, span := observability.StartStageSpan(ctx, string(stage))
	return observability.WithStage(ctx, string(stage)), span
}

// withLogger seeds ctx with the generator's logger unless the caller
// already put one there.
func (g *Generator) withLogger(ctx context.Context) context.Context {
	if hasLogger(ctx) {
		return ctx
	}
	return ctxzap.ToContext(ctx, g.logger)
}

func hasLogger(ctx context.Context) bool {
	return ctxzap.Extract(ctx).Core().Enabled(zapcore.FatalLevel)
}

func (g *Generator) log(ctx context.Context) *zap.Logger {
	if hasLogger(ctx) {
		return ctxzap.Extract(ctx)
	}
	return g.logger
}

// inject splices one grounding message holding results into conv. An
// empty result set leaves conv unchanged.
func inject(conv llm.Conversation, results []vector.Result, policy Injection) llm.Conversation {
	if len(results) == 0 {
		return conv
	}
	content := Grounding(results)
	if policy == InjectAfterSystem {
		i := 0
		for i < len(conv) && conv[i].Role == llm.RoleSystem {
			i++
		}
		return conv.Insert(i, llm.Message{Role: llm.RoleSystem, Content: content})
	}
	return conv.Append(llm.Message{Role: llm.RoleUser, Content: content})
}

// Grounding formats retrieved documents as numbered reference lines, best
// match first.
func Grounding(results []vector.Result) string {
	var b strings.Builder
	b.WriteString(groundingHeader)
	b.WriteString("\n")
	for i, r := range results {
		text := r.Text
		if text == "" {
			text = r.ID
		}
		fmt.Fprintf(&b, "\n[%d] %s", i+1, strings.TrimSpace(text))
	}
	return b.String()
}

func providerName(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
