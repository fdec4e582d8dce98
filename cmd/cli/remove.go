package cli

import (
	"converge/internal/chart"

	"github.com/spf13/cobra"
)

var removeDryRun bool

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:   "remove <catalog>",
	Short: "Delete every resource recorded for a catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := chart.Remove(cmd.Context(), chart.RemoveOptions{
			CatalogName: args[0],
			DryRun:      removeDryRun,
			Controller:  newController(),
			Out:         cmd.OutOrStdout(),
		})
		return err
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeDryRun, "dry-run", false, "Preview deletions without applying them")

	rootCmd.AddCommand(removeCmd)
}
