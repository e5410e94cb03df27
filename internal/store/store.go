// Package store persists enriched reports and serves viewport queries over
// them. PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite) are supported.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

const (
	// DefaultLimit bounds viewport queries that do not set a limit.
	DefaultLimit = 500
	// MaxLimit caps every viewport query; scoring is quadratic in the result size.
	MaxLimit = 5000
)

// ErrNotFound is returned by Get for an unknown report ID.
var ErrNotFound = errors.New("report not found")

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id             TEXT PRIMARY KEY,
		uid            TEXT NOT NULL DEFAULT '',
		lat            DOUBLE PRECISION NOT NULL,
		lon            DOUBLE PRECISION NOT NULL,
		severity       TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		image_url      TEXT NOT NULL DEFAULT '',
		confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
		sources        TEXT NOT NULL DEFAULT '[]',
		source         TEXT NOT NULL DEFAULT '',
		area           TEXT NOT NULL DEFAULT '',
		timestamp_ms   BIGINT NOT NULL DEFAULT 0,
		received_at_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reports_lat_lon_idx ON reports (lat, lon)`,
	`CREATE INDEX IF NOT EXISTS reports_received_at_idx ON reports (received_at_ms)`,
}

const columns = `id, uid, lat, lon, severity, title, description, image_url,
	confidence, sources, source, area, timestamp_ms, received_at_ms`

const insertReport = `INSERT INTO reports (` + columns + `)
	VALUES (:id, :uid, :lat, :lon, :severity, :title, :description, :image_url,
		:confidence, :sources, :source, :area, :timestamp_ms, :received_at_ms)
	ON CONFLICT (id) DO NOTHING`

// Query selects the reports shown in one map viewport.
type Query struct {
	BBox  BBox
	Since time.Time // zero means no lower bound
	Limit int       // <= 0 means DefaultLimit
}

// Store is a sqlx-backed report repository.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the reports table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadBatch inserts reports in one transaction. Reports whose ID already
// exists are left untouched, so redelivered messages are harmless.
// It implements pipeline.BatchLoader.
func (s *Store) LoadBatch(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, insertReport)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range reports {
		row, err := toRow(reports[i])
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, row)
		if err != nil {
			return fmt.Errorf("insert report %s: %w", reports[i].ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("reports stored", "batch", len(reports), "inserted", inserted)
	return nil
}

// ListInBBox returns reports inside the viewport received at or after
// q.Since, newest first.
func (s *Store) ListInBBox(ctx context.Context, q Query) ([]domain.Report, error) {
	if err := q.BBox.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}

	query := s.db.Rebind(`SELECT ` + columns + ` FROM reports
		WHERE lat BETWEEN ? AND ?
		AND lon BETWEEN ? AND ?
		AND received_at_ms >= ?
		ORDER BY received_at_ms DESC, id
		LIMIT ?`)

	var rows []reportRow
	err := s.db.SelectContext(ctx, &rows, query,
		q.BBox.MinLat, q.BBox.MaxLat,
		q.BBox.MinLon, q.BBox.MaxLon,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return fromRows(rows)
}

// Get returns a single report by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+columns+` FROM reports WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("get report: %w", err)
	}
	return row.toReport()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("report store unreachable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// reportRow is the column layout of the reports table. Times are stored as
// Unix milliseconds so both drivers round-trip them identically.
type reportRow struct {
	ID           string  `db:"id"`
	UID          string  `db:"uid"`
	Lat          float64 `db:"lat"`
	Lon          float64 `db:"lon"`
	Severity     string  `db:"severity"`
	Title        string  `db:"title"`
	Description  string  `db:"description"`
	ImageURL     string  `db:"image_url"`
	Confidence   float64 `db:"confidence"`
	Sources      string  `db:"sources"`
	Source       string  `db:"source"`
	Area         string  `db:"area"`
	TimestampMs  int64   `db:"timestamp_ms"`
	ReceivedAtMs int64   `db:"received_at_ms"`
}

func toRow(r domain.Report) (reportRow, error) {
	if r.ID == "" {
		return reportRow{}, fmt.Errorf("%w: id", domain.ErrMissingField)
	}
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return reportRow{}, fmt.Errorf("encode sources: %w", err)
	}
	return reportRow{
		ID:           r.ID,
		UID:          r.UID,
		Lat:          r.Lat,
		Lon:          r.Lon,
		Severity:     r.Severity.String(),
		Title:        r.Title,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Confidence:   r.Confidence,
		Sources:      string(encoded),
		Source:       r.Source,
		Area:         r.Area,
		TimestampMs:  unixMilli(r.Timestamp),
		ReceivedAtMs: unixMilli(r.ReceivedAt),
	}, nil
}

func (row reportRow) toReport() (domain.Report, error) {
	severity, err := domain.ParseSeverity(row.Severity)
	if err != nil {
		return domain.Report{}, fmt.Errorf("report %s: %w", row.ID, err)
	}
	var sources []string
	if err := json.Unmarshal([]byte(row.Sources), &sources); err != nil {
		return domain.Report{}, fmt.Errorf("report %s: decode sources: %w", row.ID, err)
	}
	if len(sources) == 0 {
		sources = nil
	}
	return domain.Report{
		ID:          row.ID,
		UID:         row.UID,
		Geo:         domain.Geo{Lat: row.Lat, Lon: row.Lon},
		Severity:    severity,
		Title:       row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Confidence:  row.Confidence,
		Sources:     sources,
		Source:      row.Source,
		Area:        row.Area,
		Timestamp:   fromUnixMilli(row.TimestampMs),
		ReceivedAt:  fromUnixMilli(row.ReceivedAtMs),
	}, nil
}

func fromRows(rows []reportRow) ([]domain.Report, error) {
	reports := make([]domain.Report, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReport()
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
