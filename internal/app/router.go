package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/observability"
	"github.com/openshelf/authz/internal/override"
	"github.com/openshelf/authz/internal/resolve"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	OverrideHandler *override.Handler
	ResolveHandler  *resolve.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/permissions", params.CatalogHandler.MountRoutes)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Route("/permissions", params.ResolveHandler.MountRoutes)
		r.Route("/overrides", params.OverrideHandler.MountRoutes)
	})

	return r
}
