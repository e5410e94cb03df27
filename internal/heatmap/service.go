// Package heatmap turns stored reports into weighted heat-map points.
package heatmap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
	"github.com/bangalorenow/incident-heatmap/internal/store"
)

// ReportLister loads the reports of one viewport.
type ReportLister interface {
	ListInBBox(ctx context.Context, q store.Query) ([]domain.Report, error)
}

// Result is one scored viewport.
type Result struct {
	BBox         store.BBox            `json:"bbox"`
	Count        int                   `json:"count"`
	MaxIntensity float64               `json:"max_intensity"`
	Reports      []domain.ScoredReport `json:"reports"`
}

// Service scores viewports and ad-hoc batches with a single Scorer.
type Service struct {
	lister  ReportLister
	scorer  *domain.Scorer
	cache   *gocache.Cache // nil when caching is disabled
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a Service. Viewport results are cached for cacheTTL;
// a zero TTL disables the cache. Cached results may lag newly stored reports
// by up to cacheTTL, and a Since cutoff is rounded down to a multiple of
// cacheTTL so that relative windows ("the last 24h") share a cache entry.
func NewService(lister ReportLister, scorer *domain.Scorer, cacheTTL time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Service {
	s := &Service{
		lister:  lister,
		scorer:  scorer,
		metrics: metrics,
		logger:  logger,
	}
	if cacheTTL > 0 {
		s.ttl = cacheTTL
		s.cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// Viewport loads the reports inside q.BBox and scores them as one batch.
// Returned results may be shared with other callers and must not be modified.
func (s *Service) Viewport(ctx context.Context, q store.Query) (Result, error) {
	if s.cache != nil && !q.Since.IsZero() {
		q.Since = q.Since.Truncate(s.ttl)
	}
	key := cacheKey(q)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(Result), nil
		}
	}

	reports, err := s.lister.ListInBBox(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("load viewport %s: %w", q.BBox, err)
	}

	scored, err := s.Score(reports)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		BBox:    q.BBox,
		Count:   len(scored),
		Reports: scored,
	}
	for _, r := range scored {
		res.MaxIntensity = max(res.MaxIntensity, r.Intensity)
	}

	if s.cache != nil {
		s.cache.SetDefault(key, res)
	}
	s.logger.Debug("viewport scored", "bbox", q.BBox.String(), "count", res.Count, "max_intensity", res.MaxIntensity)
	return res, nil
}

// Score scores an ad-hoc batch of reports.
func (s *Service) Score(reports []domain.Report) ([]domain.ScoredReport, error) {
	start := time.Now()
	scored, err := s.scorer.Score(reports)
	if err != nil {
		s.metrics.HeatmapErrors.Inc()
		return nil, fmt.Errorf("score reports: %w", err)
	}
	s.metrics.HeatmapScoreDuration.Observe(time.Since(start).Seconds())
	s.metrics.HeatmapReports.Observe(float64(len(scored)))
	return scored, nil
}

// Profile returns the scoring profile in use.
func (s *Service) Profile() domain.ScoringProfile {
	return s.scorer.Profile()
}

func cacheKey(q store.Query) string {
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}
	return fmt.Sprintf("%s|%d|%d", q.BBox, since, q.Limit)
}
