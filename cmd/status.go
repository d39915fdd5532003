package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/attraction-crawler/internal/report"
)

const recentRuns = 10

// newStatusCmd creates the 'status' subcommand.
func newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints how many items are checkpointed and stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			services, err := openStores(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("open stores: %w", err)
			}
			defer services.Close()

			records, err := services.Records().Records(cmd.Context())
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			summary := report.Summarize(services.Checkpoints().Keys(), records)
			if history := services.Runs(); history != nil {
				recent, err := history.ListRuns(cmd.Context(), recentRuns, 0)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				summary.Runs = recent
			}
			return report.Write(cmd.OutOrStdout(), report.Format(format), summary, time.Now())
		},
	}
	cmd.Flags().StringVar(&format, "format", string(report.FormatJSON), "output format: json or markdown")
	return cmd
}
