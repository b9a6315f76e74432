// File: cmd/routes.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbraininstitute/obi-linkcheck/internal/routes"
)

func newRoutesCmd() *cobra.Command {
	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "Prints the pages a run would visit for the selected environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			target, err := cfg.Target().Resolve()
			if err != nil {
				return err
			}
			siteRoot, err := routes.SiteRoot(target.BaseURL)
			if err != nil {
				return err
			}
			for _, r := range routes.Generate(siteRoot, target.LabID, target.ProjectID) {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	routesCmd.Flags().String("env", "staging", "Environment: staging or production")
	routesCmd.Flags().String("env_url", "", "Override the environment base URL (alias --env-url)")
	return routesCmd
}
