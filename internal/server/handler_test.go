package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/generator"
	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/llm/llmtest"
	"github.com/nestauk/discovery-genai/internal/prompt"
	"github.com/nestauk/discovery-genai/internal/template"
	"github.com/nestauk/discovery-genai/internal/vector"
)

type stubGenerator struct {
	text    string
	err     error
	request string
	cfg     generator.Config
}

func (s *stubGenerator) Generate(ctx context.Context, request string, cfg generator.Config) (string, error) {
	s.request = request
	s.cfg = cfg
	return s.text, s.err
}

func defaults() generator.Config {
	return generator.Config{
		Model:        "gpt-4",
		TemplateRefs: []string{"eyfs/activity-plan"},
		Placeholders: map[string]any{"location": "Indoors", "n_results": 5},
		K:            4,
	}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func router(gen Generator) http.Handler {
	return NewRouter(NewHandler(gen, defaults()), NewHealthServer("test"), 0, zap.NewNop())
}

func TestGenerate_OK(t *testing.T) {
	gen := &stubGenerator{text: "Activity: shell counting"}
	rec := post(t, router(gen), `{
		"request": "Shells",
		"placeholders": {"location": "Outdoors", "areas_of_learning": ["Maths"]},
		"use_retrieval": true,
		"k": 2,
		"temperature": 0.6
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Activity: shell counting", resp.Text)

	assert.Equal(t, "Shells", gen.request)
	assert.Equal(t, "gpt-4", gen.cfg.Model)
	assert.Equal(t, []string{"eyfs/activity-plan"}, gen.cfg.TemplateRefs)
	assert.True(t, gen.cfg.UseRetrieval)
	assert.Equal(t, 2, gen.cfg.K)
	assert.InDelta(t, 0.6, gen.cfg.Temperature, 1e-9)
	assert.Equal(t, "Outdoors", gen.cfg.Placeholders["location"])
	assert.EqualValues(t, 5, gen.cfg.Placeholders["n_results"])
	assert.Contains(t, gen.cfg.Placeholders, "areas_of_learning")
}

func TestGenerate_DefaultsAreNotMutated(t *testing.T) {
	d := defaults()
	h := NewRouter(NewHandler(&stubGenerator{}, d), NewHealthServer(""), 0, zap.NewNop())

	post(t, h, `{"request": "x", "placeholders": {"location": "Beach"}}`)
	assert.Equal(t, "Indoors", d.Placeholders["location"])
}

func TestGenerate_CustomPrompt(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	rec := post(t, router(gen), `{"request": "x", "system": "Be brief.", "user": "Simple words."}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gen.cfg.TemplateRefs)
	assert.Equal(t, prompt.Custom("Be brief.", "Simple words."), gen.cfg.Custom)
}

func TestGenerate_BadBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `request=x`,
		"unknown field": `{"request": "x", "prompt": "y"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(t, router(&stubGenerator{}), body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "validate", resp.Stage)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		stage  string
	}{
		{"validate", &generator.GenerationError{Stage: generator.StageValidate, Cause: assert.AnError}, http.StatusBadRequest, "validate"},
		{"unknown template", &generator.GenerationError{Stage: generator.StageLoad, Cause: &template.NotFoundError{Ref: "nope"}}, http.StatusBadRequest, "load"},
		{"malformed template", &generator.GenerationError{Stage: generator.StageLoad, Cause: &template.MalformedTemplateError{Ref: "bad", Reason: "no role"}}, http.StatusInternalServerError, "load"},
		{"missing placeholder", &generator.GenerationError{Stage: generator.StageCompose, Cause: &prompt.MissingPlaceholderError{Name: "location"}}, http.StatusBadRequest, "compose"},
		{"embed", &generator.GenerationError{Stage: generator.StageEmbed, Cause: &llm.EmbeddingServiceError{Provider: "openai", StatusCode: 500}}, http.StatusBadGateway, "embed"},
		{"index not ready", &generator.GenerationError{Stage: generator.StageRetrieve, Cause: vector.ErrNotPublished}, http.StatusServiceUnavailable, "retrieve"},
		{"complete", &generator.GenerationError{Stage: generator.StageComplete, Cause: &llm.CompletionServiceError{Provider: "openai", StatusCode: 429}}, http.StatusBadGateway, "complete"},
		{"timeout", &generator.GenerationError{Stage: generator.StageComplete, Cause: generator.ErrTimeout}, http.StatusGatewayTimeout, "complete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, router(&stubGenerator{err: tt.err}), `{"request": "x"}`)
			require.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.stage, resp.Stage)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

// slowGenerator gives up once its configured timeout passes, like the real
// generator does, and notes whether the request context was still live.
type slowGenerator struct {
	ctxErr error
}

func (g *slowGenerator) Generate(ctx context.Context, _ string, cfg generator.Config) (string, error) {
	select {
	case <-time.After(cfg.Timeout):
		g.ctxErr = ctx.Err()
		return "", &generator.GenerationError{Stage: generator.StageComplete, Cause: generator.ErrTimeout}
	case <-ctx.Done():
		g.ctxErr = ctx.Err()
		return "", &generator.GenerationError{Stage: generator.StageComplete, Cause: ctx.Err()}
	}
}

type headerCounter struct {
	*httptest.ResponseRecorder
	writes int
}

func (h *headerCounter) WriteHeader(code int) {
	h.writes++
	h.ResponseRecorder.WriteHeader(code)
}

func TestGenerate_TimeoutWritesOneResponse(t *testing.T) {
	cfg := defaults()
	cfg.Timeout = 50 * time.Millisecond
	gen := &slowGenerator{}
	h := NewRouter(NewHandler(gen, cfg), NewHealthServer("test"), cfg.Timeout, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewBufferString(`{"request":"snails"}`))
	rec := &headerCounter{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(rec, req)

	assert.NoError(t, gen.ctxErr, "router deadline must outlast the generator's")
	assert.Equal(t, 1, rec.writes, "only the handler writes a status")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "complete", body.Stage)
}

func TestGenerate_EndToEnd(t *testing.T) {
	store := template.NewMemoryStore()
	store.Put("eyfs/activity-plan", template.Template{Role: llm.RoleSystem, Content: "Plan activities {location}."})
	p := llmtest.Fixed("1. Rock pool hunt")
	gen := generator.New(store, p)

	rec := post(t, router(gen), `{"request": "Rock pools"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1. Rock pool hunt", resp.Text)

	conv := p.LastConversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "Plan activities Indoors.", conv[0].Content)
	assert.Equal(t, "Rock pools", conv[1].Content)

	rec = post(t, router(gen), `{"request": "Rock pools", "use_retrieval": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ProbesAndShutdown(t *testing.T) {
	health := NewHealthServer("test")
	srv := New(Config{Addr: "127.0.0.1:0"}, NewHandler(&stubGenerator{}, defaults()), health, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.Shutdown(context.Background()))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NoError(t, srv.ListenAndServe(), "serving after shutdown reports a clean stop")
}
