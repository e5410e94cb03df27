package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/heatmap"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
	"github.com/bangalorenow/incident-heatmap/internal/store"
)

// ReportPublisher hands accepted submissions to the ingestion topic.
type ReportPublisher interface {
	Publish(ctx context.Context, reports ...domain.Report) error
}

// ReportGetter looks up a stored report.
type ReportGetter interface {
	Get(ctx context.Context, id string) (domain.Report, error)
}

// HeatmapScorer scores viewports and ad-hoc batches.
type HeatmapScorer interface {
	Viewport(ctx context.Context, q store.Query) (heatmap.Result, error)
	Score(reports []domain.Report) ([]domain.ScoredReport, error)
}

// API holds the dependencies of the /api/v1 routes. A nil Geocoder makes the
// geocode route answer 503.
type API struct {
	Publisher ReportPublisher
	Reports   ReportGetter
	Heatmap   HeatmapScorer
	Geocoder  domain.Geocoder
	Metrics   *observability.Metrics
}

// Server exposes the report API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	api        API
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the health routes and the report API.
func NewServer(addr string, api API, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:    api,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/reports", s.handleSubmitReport)
	mux.HandleFunc("POST /send-report", s.handleSubmitReport)
	mux.HandleFunc("GET /api/v1/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/v1/heatmap", s.handleHeatmap)
	mux.HandleFunc("POST /api/v1/heatmap/score", s.handleScore)
	mux.HandleFunc("GET /api/v1/geocode", s.handleGeocode)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
