// File: cmd/run.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openbraininstitute/obi-linkcheck/internal/harness"
	"github.com/openbraininstitute/obi-linkcheck/internal/observability"
)

// newRunCmd creates the `run` command: log in, crawl every route and check
// every link found.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Logs in, crawls the platform and checks every link found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			runner := harness.NewRunner(cfg, observability.GetLogger(), harness.WithOutput(cmd.OutOrStdout()))
			_, err = runner.Run(cmd.Context())
			return err
		},
	}

	runCmd.Flags().Bool("headless", false, "Run the browser without a window")
	runCmd.Flags().String("browser", "chrome", "Browser to drive: chrome, chromium or edge (alias --browser-name)")
	runCmd.Flags().String("env", "staging", "Environment to test: staging or production")
	runCmd.Flags().String("env_url", "", "Override the environment base URL (alias --env-url)")
	runCmd.Flags().String("report-dir", "", "Directory for report files (overrides report.dir)")
	runCmd.Flags().Bool("fail-on-broken", false, "Exit non-zero when forbidden or broken links are found")
	runCmd.Flags().Bool("skip-external", false, "Do not check links outside the platform's domain")
	runCmd.Flags().StringSlice("format", nil, "Report formats to write: json, junit")
	return runCmd
}
