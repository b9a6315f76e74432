// File: cmd/results.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
	"github.com/openbraininstitute/obi-linkcheck/internal/observability"
	"github.com/openbraininstitute/obi-linkcheck/internal/store"
)

// newResultsCmd prints the stored results of a previous run.
func newResultsCmd() *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Prints the stored results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			dbURL := cfg.Database().URL
			if dbURL == "" {
				return fmt.Errorf("database URL is not configured (OBI_LINKCHECK_DATABASE_URL)")
			}

			ctx := cmd.Context()
			s, closeStore, err := store.Connect(ctx, dbURL, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			results, err := s.GetResultsByRunID(ctx, args[0])
			if err != nil {
				return err
			}
			printResults(cmd, results)
			return nil
		},
	}
	resultsCmd.Flags().String("database-url", "", "PostgreSQL connection string (overrides database.url)")
	return resultsCmd
}

func printResults(cmd *cobra.Command, results []linkcheck.Result) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results stored for this run.")
		return
	}
	for _, r := range results {
		fmt.Fprintln(out, linkcheck.FormatLine(r))
	}
	s := linkcheck.Summarize(results)
	fmt.Fprintf(out, "\n%d links: %d working, %d forbidden, %d broken\n", s.Total, s.Working, s.Forbidden, s.Broken)
}
