package domain

import (
	"context"
	"log/slog"
)

// EnrichWithArea sets the report's area from a reverse geocode of its
// coordinates. An existing area is kept. If geocoder is nil or the lookup
// fails, the report is returned unchanged.
func EnrichWithArea(ctx context.Context, r Report, geocoder Geocoder, logger *slog.Logger) Report {
	if geocoder == nil || r.Area != "" {
		return r
	}

	result, err := geocoder.ReverseGeocode(ctx, r.Lat, r.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"report_id", r.ID,
			"lat", r.Lat,
			"lon", r.Lon,
			"error", err,
		)
		return r
	}

	r.Area = result.Area
	return r
}
