package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopfeed/shopfeed/internal/ingest"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/review"
	"github.com/shopfeed/shopfeed/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	MerchantHandler *merchant.Handler
	ReviewHandler   *review.Handler
	SyncLogHandler  *ingest.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Shopfeed defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if params.MerchantHandler != nil {
			params.MerchantHandler.MountRoutes(api)
		}
		if params.SyncLogHandler != nil {
			params.SyncLogHandler.MountRoutes(api)
		}
		if params.ReviewHandler != nil {
			params.ReviewHandler.MountRoutes(api)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
