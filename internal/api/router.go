package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/api/handlers"
	mw "github.com/Harshitk-cp/paper-agent/internal/api/middleware"
	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/buildconfig"
)

// Limits for the HTTP surface.
type Limits struct {
	RPS   float64
	Burst int
}

// App holds the router and the middleware state that outlives a request.
type App struct {
	Router     *chi.Mux
	components *app.Components
	limiter    *mw.RateLimiter
	metrics    *mw.MetricsCollector
	startTime  time.Time
}

func NewApp(c *app.Components, limits Limits, logger *zap.Logger) *App {
	sessionHandler := handlers.NewSessionHandler(c.Engine, c.Bus, logger)
	conceptHandler := handlers.NewConceptHandler(c.Catalog, logger)

	r := chi.NewRouter()
	a := &App{
		Router:     r,
		components: c,
		limiter:    mw.NewRateLimiter(limits.RPS, limits.Burst),
		metrics:    mw.NewMetricsCollector(),
		startTime:  time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(a.limiter.Middleware)

	r.Get("/health", a.healthHandler())
	r.Get("/metrics", a.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/turns", sessionHandler.Turn)
				r.Post("/complete", sessionHandler.Complete)
				r.Get("/events", sessionHandler.Events)
				r.Get("/summary", sessionHandler.Summary)
				r.Get("/executions", sessionHandler.Executions)
				r.Get("/observer", sessionHandler.Observer)
				r.Post("/observer/insight", sessionHandler.Insight)
				r.Post("/review", sessionHandler.Review)
				r.Post("/review/resume", sessionHandler.ResumeReview)
			})
		})

		r.Route("/concepts", func(r chi.Router) {
			r.Get("/", conceptHandler.List)
			r.Post("/", conceptHandler.Create)
			r.Get("/search", conceptHandler.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conceptHandler.Get)
				r.Delete("/", conceptHandler.Delete)
				r.Post("/variations", conceptHandler.AddVariation)
			})
		})

		r.Get("/ideas/{id}/concepts", conceptHandler.ForIdea)
	})

	return a
}

// Close stops the rate limiter's sweeper.
func (a *App) Close() {
	a.limiter.Close()
}

func (a *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.components.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

func (a *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(a.startTime)
		snap := a.metrics.Snapshot()

		response := map[string]any{
			"uptime_seconds":     uptime.Seconds(),
			"uptime_human":       uptime.Round(time.Second).String(),
			"request_count":      snap.Requests,
			"error_count":        snap.Errors,
			"client_error_count": snap.ClientErrors,
			"server_error_count": snap.ServerErrors,
			"in_flight":          snap.InFlight,
			"active_sessions":    a.components.Engine.Sessions().Len(),
			"goroutines":         runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
