package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidCoordinates is returned for unparsable or out-of-range
	// latitude/longitude values.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrMissingField is returned when a required submission field is empty.
	ErrMissingField = errors.New("missing required field")
)

// NewReport parses and validates a web-app submission. Title and description
// may be empty; the pipeline fills them from the photo when a describer is
// configured.
func NewReport(sub ReportSubmission) (Report, error) {
	uid := strings.TrimSpace(sub.UID)
	if uid == "" {
		return Report{}, fmt.Errorf("%w: uid", ErrMissingField)
	}
	imageURL := strings.TrimSpace(sub.URL)
	if imageURL == "" {
		return Report{}, fmt.Errorf("%w: url", ErrMissingField)
	}

	lat, err := parseCoordinate("latitude", sub.Latitude)
	if err != nil {
		return Report{}, err
	}
	lon, err := parseCoordinate("longitude", sub.Longitude)
	if err != nil {
		return Report{}, err
	}
	geo := Geo{Lat: lat, Lon: lon}
	if err := ValidateGeo(geo); err != nil {
		return Report{}, err
	}

	severity, err := ParseSeverity(strings.TrimSpace(sub.Severity))
	if err != nil {
		return Report{}, err
	}

	return Report{
		UID:         uid,
		Geo:         geo,
		Severity:    severity,
		Title:       sub.Title,
		Description: sub.Description,
		ImageURL:    imageURL,
		Source:      strings.TrimSpace(sub.Source),
	}, nil
}

func parseCoordinate(name, value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidCoordinates, name, value)
	}
	return v, nil
}

// ValidateGeo checks lat ∈ [-90, 90] and lon ∈ [-180, 180].
func ValidateGeo(g Geo) error {
	if math.IsNaN(g.Lat) || g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("%w: latitude %g out of range", ErrInvalidCoordinates, g.Lat)
	}
	if math.IsNaN(g.Lon) || g.Lon < -180 || g.Lon > 180 {
		return fmt.Errorf("%w: longitude %g out of range", ErrInvalidCoordinates, g.Lon)
	}
	return nil
}

// ValidateReport checks the fields the scorer depends on.
func ValidateReport(r Report) error {
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidSeverity, r.Severity)
	}
	return ValidateGeo(r.Geo)
}

// ParseRawEvent deserializes a report published on the source topic.
func ParseRawEvent(raw RawEvent) (Report, error) {
	var r Report
	if err := json.Unmarshal(raw.Value, &r); err != nil {
		return Report{}, fmt.Errorf("parse raw event: %w", err)
	}
	if err := ValidateReport(r); err != nil {
		return Report{}, fmt.Errorf("parse raw event: %w", err)
	}
	return r, nil
}

// EnrichReport normalizes text fields, assigns a deterministic ID, defaults
// the source and stamps received_at. It is idempotent.
func EnrichReport(r Report) Report {
	r.Title = NormalizeText(r.Title)
	r.Description = NormalizeText(r.Description)
	if r.Source == "" {
		r.Source = "user"
	}
	if r.ID == "" {
		r.ID = generateID(r.UID, r.Lat, r.Lon, r.ImageURL)
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = clock.Now().UTC()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = r.ReceivedAt
	}
	return r
}

// generateID derives a name-based UUID from the submission's identifying
// fields, so a replayed submission maps to the same row.
func generateID(uid string, lat, lon float64, imageURL string) string {
	input := fmt.Sprintf("report:%s|%.6f|%.6f|%s", uid, lat, lon, imageURL)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(input)).String()
}

// NormalizeText applies NFKC normalization, trims surrounding whitespace and
// drops control characters other than newline and tab.
func NormalizeText(text string) string {
	normed := strings.TrimSpace(norm.NFKC.String(text))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
}

// SerializeReport marshals a report for publication, keyed by its ID.
func SerializeReport(r Report) (OutputEvent, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize report: %w", err)
	}
	return OutputEvent{
		Key:   []byte(r.ID),
		Value: data,
		Headers: map[string]string{
			"severity":    r.Severity.String(),
			"received_at": r.ReceivedAt.Format(time.RFC3339),
		},
	}, nil
}
