package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSeverity is returned when a severity is not one of the four
// known categories.
var ErrInvalidSeverity = errors.New("invalid severity")

// Severity is the ordinal category of a report. The zero value is unknown
// and is never produced by decoding.
type Severity uint8

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ParseSeverity maps the wire name of a severity to its value. Matching is
// exact: "critical", "high", "medium", "low".
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	default:
		return SeverityUnknown, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four known categories.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// MarshalText refuses values outside the four categories so that a report
// which would not decode again never reaches the wire.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Weights is the severity-to-multiplier table used by the scorer.
type Weights struct {
	Critical float64 `yaml:"critical" json:"critical"`
	High     float64 `yaml:"high" json:"high"`
	Medium   float64 `yaml:"medium" json:"medium"`
	Low      float64 `yaml:"low" json:"low"`
}

// DefaultWeights returns critical=3, high=2.5, medium=1.5, low=1.
func DefaultWeights() Weights {
	return Weights{Critical: 3, High: 2.5, Medium: 1.5, Low: 1}
}

// Multiplier looks up the multiplier for s. There is no default: an unknown
// severity is an error.
func (w Weights) Multiplier(s Severity) (float64, error) {
	switch s {
	case SeverityCritical:
		return w.Critical, nil
	case SeverityHigh:
		return w.High, nil
	case SeverityMedium:
		return w.Medium, nil
	case SeverityLow:
		return w.Low, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidSeverity, s)
	}
}

// Validate rejects negative multipliers, which would produce negative
// intensities.
func (w Weights) Validate() error {
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		m, _ := w.Multiplier(s)
		if m < 0 {
			return fmt.Errorf("multiplier for %s must not be negative, got %g", s, m)
		}
	}
	return nil
}
