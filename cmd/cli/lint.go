package cli

import (
	"converge/internal/chart"

	"github.com/spf13/cobra"
)

// lintCmd represents the lint command
func init() {
	var lintCmd = &cobra.Command{
		Use:   "lint <path-to-chart>",
		Short: "Validate templates, YAML structure and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return chart.Lint(chart.LintOptions{
				ChartPath: args[0],
				Verbose:   verbose,
				Out:       cmd.OutOrStdout(),
			})
		},
	}

	rootCmd.AddCommand(lintCmd)
}
