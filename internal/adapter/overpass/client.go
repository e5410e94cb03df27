// Package overpass resolves report areas from OpenStreetMap place nodes via
// the Overpass API. It needs no API key and serves as the geocoder when
// Google geocoding is not configured.
package overpass

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
)

const (
	DefaultEndpoint = "https://overpass-api.de/api/interpreter"

	// placeFilter selects the OSM place kinds that name a neighbourhood.
	placeFilter = "suburb|neighbourhood|quarter|locality"
)

// SearchArea bounds forward lookups, as "south,west,north,east".
const SearchArea = "12.83,77.46,13.14,77.78" // Bengaluru

// Client implements domain.Geocoder on top of OSM place nodes.
type Client struct {
	api     overpass.Client
	radiusM int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates an Overpass client. Reverse lookups consider place nodes
// within radiusM metres of the report.
func NewClient(endpoint string, radiusM int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		api:     overpass.NewWithSettings(endpoint, 2, &http.Client{Timeout: timeout}),
		radiusM: radiusM,
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode returns the nearest named place node around lat/lon.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	q := fmt.Sprintf(`[out:json][timeout:10];
node["place"~"%s"]["name"](around:%d,%.6f,%.6f);
out body;`, placeFilter, c.radiusM, lat, lon)

	places, err := c.query(ctx, q, "reverse")
	if err != nil || len(places) == 0 {
		return domain.GeocodingResult{}, err
	}

	origin := domain.Geo{Lat: lat, Lon: lon}
	best := slices.MinFunc(places, func(a, b place) int {
		if c := cmp.Compare(domain.Haversine(origin, a.geo), domain.Haversine(origin, b.geo)); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return best.result(), nil
}

// ForwardGeocode finds a neighbourhood by name inside SearchArea. Matching is
// case-insensitive and whole-name.
func (c *Client) ForwardGeocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	name := strings.TrimSpace(address)
	if name == "" {
		return domain.GeocodingResult{}, nil
	}
	q := fmt.Sprintf(`[out:json][timeout:10];
node["place"~"%s"]["name"~"^%s$",i](%s);
out body;`, placeFilter, quoteRegex(name), SearchArea)

	places, err := c.query(ctx, q, "forward")
	if err != nil || len(places) == 0 {
		return domain.GeocodingResult{}, err
	}

	best := slices.MinFunc(places, func(a, b place) int { return cmp.Compare(a.id, b.id) })
	return best.result(), nil
}

type place struct {
	id   int64
	name string
	geo  domain.Geo
}

func (p place) result() domain.GeocodingResult {
	return domain.GeocodingResult{
		Lat:              p.geo.Lat,
		Lon:              p.geo.Lon,
		FormattedAddress: p.name + ", Bengaluru",
		Area:             p.name,
	}
}

func (c *Client) query(ctx context.Context, q, method string) ([]place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		res overpass.Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := c.api.Query(q)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, ctx.Err()
	}
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if out.err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		c.logger.Debug("overpass query failed", "method", method, "error", out.err)
		return nil, fmt.Errorf("overpass %s query: %w", method, out.err)
	}

	places := make([]place, 0, len(out.res.Nodes))
	for _, n := range out.res.Nodes {
		if n.Tags["name"] == "" {
			continue
		}
		places = append(places, place{id: n.ID, name: n.Tags["name"], geo: domain.Geo{Lat: n.Lat, Lon: n.Lon}})
	}

	outcomeLabel := "success"
	if len(places) == 0 {
		outcomeLabel = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues(method, outcomeLabel).Inc()
	return places, nil
}

var qlSpecial = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteRegex escapes s for use inside a quoted Overpass QL regular expression.
func quoteRegex(s string) string {
	return qlSpecial.Replace(regexp.QuoteMeta(s))
}
