package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

// fixtureBaseTime stamps received_at so generated fixtures are reproducible.
var fixtureBaseTime = time.Date(2026, time.July, 14, 8, 0, 0, 0, time.UTC)

func newFixtureCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Turn a CSV of form submissions into a JSON fixture of enriched reports",
		Long: `Reads a CSV whose header names the submission fields (uid, title,
description, latitude, longitude, url, source, severity), validates each row
exactly like the intake endpoint and writes the accepted reports as JSON.
Rejected rows are reported on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()

			domain.SetClock(clockwork.NewFakeClockAt(fixtureBaseTime))
			defer domain.SetClock(nil)

			reports, rejected, err := buildFixture(in)
			if err != nil {
				return err
			}
			for _, msg := range rejected {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}

			if output != "" && output != "-" {
				err = writeJSONFile(output, reports)
			} else {
				err = writeJSON(cmd.OutOrStdout(), reports)
			}
			if err != nil {
				return fmt.Errorf("write fixture: %w", err)
			}

			printStats(cmd.ErrOrStderr(), reports, len(rejected))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "file", "f", "-", "CSV of submissions (- for stdin)")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "output JSON path (- for stdout)")

	return cmd
}

// buildFixture parses submissions row by row. Rows that fail validation are
// returned as messages rather than aborting the run.
func buildFixture(r io.Reader) ([]domain.Report, []string, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[h] = i
	}

	var (
		reports  []domain.Report
		rejected []string
	)
	for n, row := range rows[1:] {
		sub := domain.ReportSubmission{
			UID:         get(row, colIdx, "uid"),
			Title:       get(row, colIdx, "title"),
			Description: get(row, colIdx, "description"),
			Latitude:    get(row, colIdx, "latitude"),
			Longitude:   get(row, colIdx, "longitude"),
			URL:         get(row, colIdx, "url"),
			Source:      get(row, colIdx, "source"),
			Severity:    get(row, colIdx, "severity"),
		}
		rep, err := domain.NewReport(sub)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("row %d: %v", n+2, err))
			continue
		}
		reports = append(reports, domain.EnrichReport(rep))
	}
	return reports, rejected, nil
}

// writeJSONFile writes v as indented JSON to path, creating parent directories.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func printStats(w io.Writer, reports []domain.Report, rejected int) {
	counts := map[domain.Severity]int{}
	for _, r := range reports {
		counts[r.Severity]++
	}
	fmt.Fprintf(w, "accepted: %d, rejected: %d\n", len(reports), rejected)
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		fmt.Fprintf(w, "  %-8s %d\n", s, counts[s])
	}
}
