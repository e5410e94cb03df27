// Command scorectl scores report batches offline and builds report fixtures
// with the same domain code the service runs.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bangalorenow/incident-heatmap/internal/config"
	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "scorectl",
		Short:        "Score civic-issue reports for the Bangalore heat map",
		SilenceUsage: true,
	}

	root.AddCommand(newScoreCmd(), newExtractCmd(), newFixtureCmd())
	return root
}

// loadProfile returns the default profile when path is empty.
func loadProfile(path string) (domain.ScoringProfile, error) {
	if path == "" {
		return domain.DefaultScoringProfile(), nil
	}
	return config.LoadScoringProfile(path)
}

// openInput opens path, or stdin for "" and "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
