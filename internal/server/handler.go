package server

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/generator"
	"github.com/nestauk/discovery-genai/internal/prompt"
	"github.com/nestauk/discovery-genai/internal/template"
	"github.com/nestauk/discovery-genai/internal/vector"
)

const maxBodyBytes = 1 << 20

// Generator produces text for one request.
type Generator interface {
	Generate(ctx context.Context, request string, cfg generator.Config) (string, error)
}

// GenerateRequest is the body of POST /v1/generate. Omitted fields fall
// back to the server's configured defaults.
type GenerateRequest struct {
	Request      string         `json:"request"`
	TemplateRefs []string       `json:"template_refs,omitempty"`
	Placeholders map[string]any `json:"placeholders,omitempty"`
	UseRetrieval *bool          `json:"use_retrieval,omitempty"`
	K            *int           `json:"k,omitempty"`
	Model        string         `json:"model,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
	// System and User replace the template set with a custom prompt.
	System string `json:"system,omitempty"`
	User   string `json:"user,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// Handler serves generation requests.
type Handler struct {
	gen      Generator
	defaults generator.Config
}

func NewHandler(gen Generator, defaults generator.Config) *Handler {
	return &Handler{gen: gen, defaults: defaults}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/generate", h.generate)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	logger := ctxzap.Extract(r.Context())

	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error(), string(generator.StageValidate))
		return
	}

	text, err := h.gen.Generate(r.Context(), req.Request, req.config(h.defaults))
	if err != nil {
		status := statusFor(err)
		stage := generator.StageOf(err)
		logger.Warn("generate request failed",
			zap.String("stage", string(stage)),
			zap.Int("status", status),
			zap.Error(err),
		)
		Error(w, status, err.Error(), string(stage))
		return
	}
	JSON(w, http.StatusOK, GenerateResponse{Text: text})
}

func (req GenerateRequest) config(defaults generator.Config) generator.Config {
	cfg := defaults
	if len(req.TemplateRefs) > 0 {
		cfg.TemplateRefs = req.TemplateRefs
	}
	if len(req.Placeholders) > 0 {
		merged := make(map[string]any, len(defaults.Placeholders)+len(req.Placeholders))
		maps.Copy(merged, defaults.Placeholders)
		maps.Copy(merged, req.Placeholders)
		cfg.Placeholders = merged
	}
	if req.UseRetrieval != nil {
		cfg.UseRetrieval = *req.UseRetrieval
	}
	if req.K != nil {
		cfg.K = *req.K
	}
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = *req.MaxTokens
	}
	if req.System != "" || req.User != "" {
		cfg.Custom = prompt.Custom(req.System, req.User)
		cfg.TemplateRefs = nil
	}
	return cfg
}

// statusFor maps a generation failure to an HTTP status. Problems the
// caller can fix are 4xx; upstream services failing are 502/504.
func statusFor(err error) int {
	var missing *prompt.MissingPlaceholderError
	switch {
	case errors.Is(err, generator.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	switch generator.StageOf(err) {
	case generator.StageValidate:
		return http.StatusBadRequest
	case generator.StageLoad:
		if template.IsNotFound(err) {
			return http.StatusBadRequest
		}
	case generator.StageCompose:
		if errors.As(err, &missing) {
			return http.StatusBadRequest
		}
	case generator.StageRetrieve:
		if errors.Is(err, vector.ErrNotPublished) {
			return http.StatusServiceUnavailable
		}
	case generator.StageEmbed, generator.StageComplete:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
