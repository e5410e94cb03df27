package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

// ErrInvalidBBox is returned for malformed or out-of-range viewports.
var ErrInvalidBBox = errors.New("invalid bbox")

// BBox is a map viewport. Viewports crossing the antimeridian are not supported.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: must have 4 components, got %d", ErrInvalidBBox, len(parts))
	}

	var vals [4]float64
	names := [4]string{"minLat", "minLon", "maxLat", "maxLon"}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %s %q", ErrInvalidBBox, names[i], strings.TrimSpace(p))
		}
		vals[i] = v
	}

	b := BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	return b, b.Validate()
}

// Validate checks ranges and corner order.
func (b BBox) Validate() error {
	if err := domain.ValidateGeo(domain.Geo{Lat: b.MinLat, Lon: b.MinLon}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBBox, err)
	}
	if err := domain.ValidateGeo(domain.Geo{Lat: b.MaxLat, Lon: b.MaxLon}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBBox, err)
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: minLat must be <= maxLat and minLon must be <= maxLon", ErrInvalidBBox)
	}
	return nil
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
