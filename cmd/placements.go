package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newPlacementsCmd creates the 'synthesize-placements' subcommand.
func newPlacementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synthesize-placements",
		Short: "Generate anchor profiles for past placements",
		Long: `Builds a synthesized candidate profile and embedding for every
historical placement that does not have one yet. These anchors drive the
placement-similarity part of candidate scoring; run this once after loading
placement data and again whenever new placements land.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			created, err := appInstance.pipeline.SynthesizePlacements(cmd.Context())
			if err != nil {
				return fmt.Errorf("synthesize placements: %w", err)
			}

			appInstance.logger.Info("placement synthesis finished", zap.Int("created", created))
			fmt.Fprintf(cmd.OutOrStdout(), "Synthesized %d placement anchor profile(s)\n", created)
			return nil
		},
	}
}
