// Package api exposes the dosing, forecasting, ingestion and reporting
// services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/config"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/interfaces"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

type nopHTTPRecorder struct{}

func (nopHTTPRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}

// Deps are the services behind the routes.
type Deps struct {
	Glucose  interfaces.GlucoseServiceInterface
	Dose     interfaces.DoseServiceInterface
	Forecast interfaces.ForecastServiceInterface
	Insights interfaces.InsightServiceInterface
	Meals    interfaces.MealServiceInterface
	Profiles interfaces.ProfileServiceInterface
	Images   interfaces.ImageFetcher

	Metrics        HTTPRecorder
	MetricsHandler http.Handler
	RateLimiter    *RateLimiter
}

type Server struct {
	deps       Deps
	metrics    HTTPRecorder
	errHandler *apperrors.Handler
	limiter    *RateLimiter
	httpServer *http.Server
	cfg        config.HTTPConfig
}

func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	s := &Server{
		deps:       deps,
		metrics:    deps.Metrics,
		errHandler: apperrors.NewHandler(logger.GetLogger()),
		limiter:    deps.RateLimiter,
		cfg:        cfg,
	}
	if s.metrics == nil {
		s.metrics = nopHTTPRecorder{}
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(PerMinute(cfg.RequestsPerMinute, cfg.Burst))
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestContext)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	r.Get("/healthz", s.health)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	// monitor webhooks identify the user in the body
	r.Post("/api/glucose/webhook", s.glucoseWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Use(s.limiter.Middleware(s))

		r.Post("/api/insulin/calculate", s.calculateInsulin)

		r.Route("/api/glucose", func(r chi.Router) {
			r.Post("/", s.addGlucose)
			r.Post("/sync", s.syncGlucose)
			r.Get("/latest", s.latestGlucose)
			r.Get("/predict", s.predict)
			r.Post("/predict-meal", s.predictMeal)
			r.Get("/predict/status", s.predictStatus)
			r.Get("/statistics", s.statistics)
		})

		r.Get("/api/insights", s.insights)
		r.Get("/api/insights/last", s.lastInsights)

		r.Get("/api/meals", s.listMeals)
		r.Get("/api/meals/{id}", s.getMeal)
		r.Post("/api/meals", s.logMeal)
		r.Post("/api/meals/analyze", s.analyzeMeal)

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", s.getProfile)
			r.Put("/", s.updateProfile)
			r.Get("/ratios", s.listRatios)
			r.Post("/ratios", s.addRatio)
			r.Put("/ratios/{id}", s.updateRatio)
			r.Delete("/ratios/{id}", s.deleteRatio)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, apperrors.NewNotFoundError("route"))
	})
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("HTTP server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}
