package pipeline

import (
	"context"
	"log/slog"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

// ReportTransformer implements Transformer: it parses a published report and
// enriches it with an AI description and a neighbourhood name.
type ReportTransformer struct {
	describer domain.Describer
	geocoder  domain.Geocoder
	logger    *slog.Logger
}

// NewTransformer creates a ReportTransformer. A nil describer or geocoder
// disables that enrichment.
func NewTransformer(describer domain.Describer, geocoder domain.Geocoder, logger *slog.Logger) *ReportTransformer {
	return &ReportTransformer{
		describer: describer,
		geocoder:  geocoder,
		logger:    logger,
	}
}

func (t *ReportTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Report, error) {
	r, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.Report{}, err
	}

	r = domain.EnrichWithDescription(ctx, r, t.describer, t.logger)
	r = domain.EnrichWithArea(ctx, r, t.geocoder, t.logger)
	return domain.EnrichReport(r), nil
}
