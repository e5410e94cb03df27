// Package domain models crowd-sourced civic issue reports and the heat-map
// weighting applied to them.
//
// # Data Source
//
// Reports are submitted by citizens through the Bangalore.now web app: a
// photo, the device location, a severity category and an optional title and
// description (generated by Gemini when the user leaves them blank). The HTTP
// intake publishes each submission as JSON on the "user-reports" Kafka topic;
// the pipeline enriches and stores it, and the map view reads the stored
// reports back for a viewport.
//
// # Report Conventions
//
// Coordinates:
//
//	WGS-84 decimal degrees. Forms send them as strings ("12.9716"), JSON
//	clients may send numbers; both are accepted by [ReportSubmission].
//	Latitude must lie in [-90, 90] and longitude in [-180, 180].
//
// Severity:
//
//	One of "critical", "high", "medium", "low" (exact, lower case). Anything
//	else is rejected with [ErrInvalidSeverity] when decoded, so an unknown
//	category can never reach the scorer as a silently wrong number.
//
// IDs:
//
//	Name-based (SHA-1) UUIDs of uid|lat|lon|image. Re-submitting the same
//	photo from the same place yields the same ID, which makes the store
//	insert idempotent (ON CONFLICT DO NOTHING).
//
// # Intensity
//
// Each report in a batch receives a heat weight:
//
//	intensity = (1 + Σ neighbourWeight × multiplier(o.severity)) × multiplier(r.severity)
//
// where the sum runs over every other report o of the same batch whose
// haversine distance from r is at most the neighbour radius. Defaults:
//
//	multipliers: critical=3, high=2.5, medium=1.5, low=1
//	neighbour radius: 2 km (inclusive), neighbour weight: 0.5
//	earth radius: 6371 km
//
// Reports at identical coordinates are still distinct neighbours; nothing is
// deduplicated. See [Scorer].
package domain
