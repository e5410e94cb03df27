package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

func newExtractCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Split model output into a title and description",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()

			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			title, description := domain.ExtractTitleDescription(string(text))
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"title":       title,
				"description": description,
			})
		},
	}

	cmd.Flags().StringVarP(&input, "file", "f", "-", "text file (- for stdin)")

	return cmd
}
