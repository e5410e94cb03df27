package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	// EarthRadiusKm is the sphere radius used for haversine distances.
	EarthRadiusKm = 6371.0

	DefaultNeighborRadiusKm = 2.0
	DefaultNeighborWeight   = 0.5
)

// ScoringProfile holds every tunable of the intensity computation.
type ScoringProfile struct {
	Weights        Weights `yaml:"multipliers" json:"multipliers"`
	RadiusKm       float64 `yaml:"neighbor_radius_km" json:"neighbor_radius_km"`
	NeighborWeight float64 `yaml:"neighbor_weight" json:"neighbor_weight"`
}

// DefaultScoringProfile returns the production profile: default weights,
// a 2 km inclusive radius and a 0.5 neighbour weight.
func DefaultScoringProfile() ScoringProfile {
	return ScoringProfile{
		Weights:        DefaultWeights(),
		RadiusKm:       DefaultNeighborRadiusKm,
		NeighborWeight: DefaultNeighborWeight,
	}
}

// Validate checks that the profile yields non-negative intensities.
func (p ScoringProfile) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.RadiusKm < 0 || math.IsNaN(p.RadiusKm) {
		return errors.New("neighbor radius must not be negative")
	}
	if p.NeighborWeight < 0 || math.IsNaN(p.NeighborWeight) {
		return errors.New("neighbor weight must not be negative")
	}
	return nil
}

// Scorer assigns heat-map intensities to report batches. A Scorer holds no
// mutable state and is safe for concurrent use.
type Scorer struct {
	profile  ScoringProfile
	distance func(a, b Geo) float64
}

// NewScorer creates a Scorer for the given profile.
func NewScorer(profile ScoringProfile) *Scorer {
	return &Scorer{profile: profile, distance: Haversine}
}

// Profile returns the profile the scorer was built with.
func (s *Scorer) Profile() ScoringProfile {
	return s.profile
}

// Score returns one ScoredReport per input report, in input order. Each
// report starts at 1, gains NeighborWeight × multiplier for every other
// report within RadiusKm (inclusive), and the sum is scaled by its own
// multiplier. The whole batch is rejected if any severity is unknown.
//
// Reports are compared by position, not value: two identical reports are
// still neighbours of each other. O(n²) in the batch size.
func (s *Scorer) Score(reports []Report) ([]ScoredReport, error) {
	multipliers := make([]float64, len(reports))
	for i := range reports {
		m, err := s.profile.Weights.Multiplier(reports[i].Severity)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		multipliers[i] = m
	}

	scored := make([]ScoredReport, len(reports))
	for i := range reports {
		intensity := 1.0
		for j := range reports {
			if i == j {
				continue
			}
			if s.distance(reports[i].Geo, reports[j].Geo) <= s.profile.RadiusKm {
				intensity += s.profile.NeighborWeight * multipliers[j]
			}
		}

		r := reports[i]
		r.Sources = slices.Clone(r.Sources)
		scored[i] = ScoredReport{Report: r, Intensity: intensity * multipliers[i]}
	}
	return scored, nil
}

// ScoreIntensities scores reports with the default profile.
func ScoreIntensities(reports []Report) ([]ScoredReport, error) {
	return NewScorer(DefaultScoringProfile()).Score(reports)
}

// Haversine returns the great-circle distance in kilometres between a and b
// on a sphere of radius EarthRadiusKm.
func Haversine(a, b Geo) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
