package cli

import (
	"converge/internal/chart"

	"github.com/spf13/cobra"
)

var upgradeDryRun bool

// upgradeCmd represents the upgrade command
var upgradeCmd = &cobra.Command{
	Use:   "upgrade <chart>",
	Short: "Show the changes a chart brings and apply them (use --dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := chart.Upgrade(cmd.Context(), chart.UpgradeOptions{
			ChartPath:  args[0],
			DryRun:     upgradeDryRun,
			Verbose:    verbose,
			Controller: newController(),
			Out:        cmd.OutOrStdout(),
		})
		return err
	},
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "Preview changes without applying them")

	rootCmd.AddCommand(upgradeCmd)
}
