// File: cmd/check.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openbraininstitute/obi-linkcheck/internal/harness"
	"github.com/openbraininstitute/obi-linkcheck/internal/observability"
)

// newCheckCmd validates URLs given on the command line without a browser.
func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [urls...]",
		Short: "Checks the given URLs without logging in",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			runner := harness.NewRunner(cfg, observability.GetLogger(), harness.WithOutput(cmd.OutOrStdout()))
			_, err = runner.Check(cmd.Context(), args)
			return err
		},
	}
	checkCmd.Flags().String("report-dir", "", "Directory for report files (overrides report.dir)")
	checkCmd.Flags().Bool("fail-on-broken", false, "Exit non-zero when forbidden or broken links are found")
	checkCmd.Flags().StringSlice("format", nil, "Report formats to write: json, junit")
	return checkCmd
}
