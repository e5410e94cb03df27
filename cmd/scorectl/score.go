package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

func newScoreCmd() *cobra.Command {
	var (
		input   string
		profile string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a JSON array of reports and print them with intensities",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(profile)
			if err != nil {
				return err
			}

			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()

			var reports []domain.Report
			if err := json.NewDecoder(in).Decode(&reports); err != nil {
				return fmt.Errorf("decode reports: %w", err)
			}

			scored, err := domain.NewScorer(p).Score(reports)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), scored)
		},
	}

	cmd.Flags().StringVarP(&input, "file", "f", "-", "JSON file of reports (- for stdin)")
	cmd.Flags().StringVar(&profile, "profile", "", "YAML scoring profile (default weights when empty)")

	return cmd
}
