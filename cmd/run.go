package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand: one full sourcing run for one job
// description.
func newRunCmd() *cobra.Command {
	var (
		jdFile string
		target int
		top    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sourcing pass for a job description",
		Long: `Parses the job description, searches for matching public profiles,
acquires and enriches them over up to the configured number of rounds, and
prints the ranked shortlist. Everything is persisted; partial acquisition
is a normal outcome, not a failure.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			rawJD, err := os.ReadFile(jdFile)
			if err != nil {
				return fmt.Errorf("read jd file: %w", err)
			}
			if strings.TrimSpace(string(rawJD)) == "" {
				return fmt.Errorf("jd file %s is empty", jdFile)
			}

			res, err := appInstance.pipeline.Source(cmd.Context(), string(rawJD), target)
			if err != nil {
				return fmt.Errorf("sourcing run: %w", err)
			}

			appInstance.logger.Info("sourcing run finished",
				zap.String("run_id", res.Run.ID.String()),
				zap.String("title", res.JD.Title),
				zap.Int("ranked", len(res.Ranked)),
				zap.Int("rounds", res.Rounds),
				zap.Bool("satisfied", res.Satisfied),
			)

			printShortlist(cmd, appInstance, res, top)
			return nil
		},
	}

	cmd.Flags().StringVar(&jdFile, "jd-file", "", "path to the raw job description text (required)")
	cmd.Flags().IntVar(&target, "target", 0, "number of profiles to source (0 = configured default)")
	cmd.Flags().IntVar(&top, "top", 10, "how many ranked candidates to print")
	_ = cmd.MarkFlagRequired("jd-file")

	return cmd
}

func printShortlist(cmd *cobra.Command, appInstance *app, res pipeline.SourceResult, top int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d candidates ranked (%d rounds, satisfied=%v)\n\n",
		res.Run.ID, len(res.Ranked), res.Rounds, res.Satisfied)

	if top > len(res.Ranked) {
		top = len(res.Ranked)
	}
	for i, row := range res.Ranked[:top] {
		c, err := appInstance.store.Candidate(cmd.Context(), row.CandidateID)
		if err != nil {
			appInstance.logger.Warn("load ranked candidate failed",
				zap.Int64("candidate_id", row.CandidateID), zap.Error(err))
			continue
		}
		fmt.Fprintf(out, "%2d. %-30s score=%.3f  %s\n", i+1, c.Name, row.Score, c.ProfileURL)
		for _, line := range row.Explanation {
			fmt.Fprintf(out, "      - %s\n", line)
		}
	}
}
