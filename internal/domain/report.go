package domain

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Report is a single geotagged civic-issue record.
type Report struct {
	ID  string `json:"id,omitempty"`
	UID string `json:"uid,omitempty"`
	Geo
	Severity Severity `json:"severity"`

	// Descriptive fields, passed through untouched by the scorer.
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Sources     []string  `json:"sources,omitempty"`
	Source      string    `json:"source,omitempty"` // "user" for app submissions
	Area        string    `json:"area,omitempty"`   // neighbourhood from reverse geocoding
	Timestamp   time.Time `json:"timestamp,omitzero"`
	ReceivedAt  time.Time `json:"received_at,omitzero"`
}

// ScoredReport is a Report plus its heat-map weight.
type ScoredReport struct {
	Report
	Intensity float64 `json:"intensity"`
}

// ReportSubmission is the form payload posted by the web app. Every field
// arrives as text; NewReport parses and validates it.
type ReportSubmission struct {
	UID         string `json:"uid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Severity    string `json:"severity"`
}

// UnmarshalJSON accepts latitude and longitude either as strings or as bare
// JSON numbers.
func (s *ReportSubmission) UnmarshalJSON(data []byte) error {
	type plain ReportSubmission
	var aux struct {
		plain
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = ReportSubmission(aux.plain)
	s.Latitude = rawCoordinate(aux.Latitude)
	s.Longitude = rawCoordinate(aux.Longitude)
	return nil
}

func rawCoordinate(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return ""
	}
	if strings.HasPrefix(v, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return v
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form of a report destined for a topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
