package cli

import (
	"converge/internal/chart"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <catalog>",
	Short: "Show the recorded state of a catalog and report missing resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := chart.Status(cmd.Context(), newController(), args[0], cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
