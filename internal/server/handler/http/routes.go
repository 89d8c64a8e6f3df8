package http

import (
	"net/http"

	"github.com/atinyakov/FarmCredit/internal/metrics"
	"github.com/atinyakov/FarmCredit/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the remote application service.
//
// Routes:
//
//	GET  /api/health                          → liveness probe
//	GET  /api/loan-applications               → appHandler.List
//	POST /api/loan-applications               → appHandler.Upsert
//	GET  /api/loan-applications/stats         → appHandler.Stats
//	GET  /api/loan-applications/{id}          → appHandler.Get
//	POST /api/loan-applications/{id}/status   → appHandler.UpdateStatus
//	GET  /api/farmers, POST /api/farmers      → registryHandler
//	GET  /api/loans, POST /api/loans          → registryHandler
//	POST /api/loans/{id}/status               → registryHandler.UpdateLoanStatus
//	POST /api/schemes/check                   → registryHandler.CheckSchemes
//	GET  /metrics                             → Prometheus exposition
//
// Middleware chain (applied in order): request id, panic recovery, request
// logging, metrics, rate limiting (when limiter is non-nil), and
// AllowContentType("application/json") for request bodies.
func NewRouter(
	appHandler *ApplicationHandler,
	registryHandler *RegistryHandler,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Use(chiMiddleware.AllowContentType("application/json"))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/loan-applications", func(r chi.Router) {
			r.Get("/", appHandler.List)
			r.Post("/", appHandler.Upsert)
			r.Get("/stats", appHandler.Stats)
			r.Get("/{id}", appHandler.Get)
			r.Post("/{id}/status", appHandler.UpdateStatus)
		})

		r.Get("/farmers", registryHandler.ListFarmers)
		r.Post("/farmers", registryHandler.SaveFarmer)
		r.Get("/loans", registryHandler.ListLoans)
		r.Post("/loans", registryHandler.SaveLoan)
		r.Post("/loans/{id}/status", registryHandler.UpdateLoanStatus)
		r.Post("/schemes/check", registryHandler.CheckSchemes)
	})

	return r
}
