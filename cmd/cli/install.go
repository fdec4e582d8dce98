package cli

import (
	"converge/internal/chart"

	"github.com/spf13/cobra"
)

var installDryRun bool

// installCmd represents the apply command
var installCmd = &cobra.Command{
	Use:     "apply <chart>",
	Aliases: []string{"install"},
	Short:   "Render a chart and converge the host to it (use --dry-run to preview)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := chart.Install(cmd.Context(), chart.InstallOptions{
			ChartPath:  args[0],
			DryRun:     installDryRun,
			Verbose:    verbose,
			Controller: newController(),
			Out:        cmd.OutOrStdout(),
		})
		return err
	},
}

func init() {
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "Preview changes without applying them")

	rootCmd.AddCommand(installCmd)
}
