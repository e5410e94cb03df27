package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// areaTypes are the address component types accepted as a report's area,
// most specific first.
var areaTypes = []string{
	"sublocality_level_1",
	"sublocality",
	"neighborhood",
	"locality",
}

// Client implements domain.Geocoder using the Google Geocoding API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Google geocoding client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode resolves a free-text address, as typed into the map search box.
func (c *Client) ForwardGeocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}
	return c.doRequest(ctx, params, "forward")
}

// ReverseGeocode resolves coordinates to an address and neighbourhood.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	params := url.Values{
		"latlng": {fmt.Sprintf("%.6f,%.6f", lat, lon)},
		"key":    {c.apiKey},
	}
	return c.doRequest(ctx, params, "reverse")
}

func (c *Client) doRequest(ctx context.Context, params url.Values, method string) (domain.GeocodingResult, error) {
	start := time.Now()
	result, err := c.fetch(ctx, params, method)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		c.logger.Debug("geocode request failed", "method", method, "error", err)
	case result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
	}
	return result, err
}

func (c *Client) fetch(ctx context.Context, params url.Values, method string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("google geocoding API error: status %d: %s", resp.StatusCode, body)
	}

	var gResp response
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	switch gResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return domain.GeocodingResult{}, nil
	default:
		return domain.GeocodingResult{}, fmt.Errorf("google geocoding API error: %s: %s", gResp.Status, gResp.ErrorMessage)
	}
	if len(gResp.Results) == 0 {
		return domain.GeocodingResult{}, nil
	}

	first := gResp.Results[0]
	return domain.GeocodingResult{
		Lat:              first.Geometry.Location.Lat,
		Lon:              first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
		Area:             areaName(gResp.Results),
	}, nil
}

// areaName returns the long name of the first address component, across all
// results, whose types include any of areaTypes.
func areaName(results []result) string {
	for _, r := range results {
		for _, comp := range r.AddressComponents {
			for _, t := range comp.Types {
				if slices.Contains(areaTypes, t) {
					return comp.LongName
				}
			}
		}
	}
	return ""
}

// Google Geocoding API response types.

type response struct {
	Results      []result `json:"results"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type result struct {
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          geometry           `json:"geometry"`
	AddressComponents []addressComponent `json:"address_components"`
}

type geometry struct {
	Location latLng `json:"location"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}
