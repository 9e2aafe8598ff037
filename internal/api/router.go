// Package api serves the pipeline HTTP API.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duckflow/internal/middleware"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Pipelines   PipelineService
	Credentials CredentialStore
	// Schedules reports the next fire time per scheduled pipeline. Optional.
	Schedules func() map[string]time.Time
	// Metrics is mounted at /metrics when set.
	Metrics     http.Handler
	Logger      *slog.Logger
	CORSOrigins []string
	RateLimit   middleware.RateLimitConfig
	// Validator checks /v1 requests against the OpenAPI document when set.
	// See RequestValidator.
	Validator func(http.Handler) http.Handler
}

type handler struct {
	pipelines   PipelineService
	credentials CredentialStore
	schedules   func() map[string]time.Time
	logger      *slog.Logger
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{
		pipelines:   deps.Pipelines,
		credentials: deps.Credentials,
		schedules:   deps.Schedules,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Principal)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Principal", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/openapi.json", serveSpec)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if deps.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(deps.RateLimit))
		}
		if deps.Validator != nil {
			r.Use(deps.Validator)
		}

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", h.listPipelines)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.getPipeline)
				r.Post("/pause", h.pausePipeline)
				r.Post("/resume", h.resumePipeline)
				r.Get("/runs", h.listPipelineRuns)
				r.Post("/runs", h.triggerRun)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.listRuns)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", h.getRun)
				r.Get("/tasks", h.listTaskRuns)
				r.Post("/cancel", h.cancelRun)
			})
		})

		if deps.Credentials != nil {
			r.Route("/storage-credentials", func(r chi.Router) {
				r.Get("/", h.listCredentials)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", h.getCredential)
					r.Put("/", h.putCredential)
					r.Delete("/", h.deleteCredential)
				})
			})
		}
	})

	return r
}
