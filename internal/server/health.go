// Package server exposes the generator over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nestauk/discovery-genai/internal/vector"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the response from health endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer answers the probe endpoints. Health checks only report;
// readiness checks decide whether /readyz returns 200.
type HealthServer struct {
	mu        sync.RWMutex
	checks    map[string]HealthChecker
	readiness map[string]HealthChecker
	version   string
	draining  bool
	timeout   time.Duration
}

// NewHealthServer creates a new health server.
func NewHealthServer(version string) *HealthServer {
	return &HealthServer{
		checks:    make(map[string]HealthChecker),
		readiness: make(map[string]HealthChecker),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// RegisterCheck adds a health check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// RegisterReadiness adds a check that gates /readyz.
func (s *HealthServer) RegisterReadiness(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness[name] = checker
}

// SetDraining makes /readyz fail while the server shuts down.
func (s *HealthServer) SetDraining(draining bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = draining
}

// Routes mounts /healthz, /readyz and /livez.
func (s *HealthServer) Routes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/livez", s.handleLive)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks)+len(s.readiness))
	for k, v := range s.checks {
		checks[k] = v
	}
	for k, v := range s.readiness {
		checks[k] = v
	}
	s.mu.RUnlock()

	// Reporting only: a failing check never turns /healthz red.
	response := s.run(r.Context(), checks)
	if response.Status == HealthStatusUnhealthy {
		response.Status = HealthStatusDegraded
	}
	JSON(w, http.StatusOK, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.readiness))
	for k, v := range s.readiness {
		checks[k] = v
	}
	draining := s.draining
	s.mu.RUnlock()

	response := s.run(r.Context(), checks)
	if draining {
		response.Status = HealthStatusUnhealthy
		response.Checks = append(response.Checks, HealthCheck{
			Name:    "server",
			Status:  HealthStatusUnhealthy,
			Message: "shutting down",
		})
	}

	status := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, response)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
	})
}

func (s *HealthServer) run(ctx context.Context, checks map[string]HealthChecker) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}
	return response
}

// IndexHealthChecker reports whether the in-memory index is published. When
// retrieval is off there is nothing to wait for.
func IndexHealthChecker(h *vector.Handle, retrieval bool) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if !retrieval {
			return HealthCheck{Status: HealthStatusHealthy, Message: "retrieval disabled"}
		}
		idx := h.Current()
		if idx == nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "no index published"}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "index published",
			Details: map[string]string{
				"documents": strconv.Itoa(idx.Len()),
				"dimension": strconv.Itoa(idx.Dim()),
				"metric":    string(idx.Config().Metric),
			},
		}
	}
}

// VectorStoreHealthChecker creates a check for an external vector store.
func VectorStoreHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "vector store unavailable: " + err.Error(),
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "vector store OK"}
	}
}

// LLMHealthChecker creates a health check for LLM provider availability.
func LLMHealthChecker(providerName string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if checkFn == nil {
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "LLM provider configured: " + providerName,
				Details: map[string]string{"provider": providerName},
			}
		}

		err := checkFn(ctx)
		if err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "LLM provider degraded: " + err.Error(),
				Details: map[string]string{"provider": providerName},
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider OK",
			Details: map[string]string{"provider": providerName},
		}
	}
}
