package cli

import (
	"converge/internal/chart"
	"converge/internal/exporter"
	"converge/internal/logging"

	"github.com/spf13/cobra"
)

var (
	rdsParamsFile string
	rdsSet        []string
	rdsDryRun     bool
)

// rdsExporterCmd applies the prometheus-rds-exporter module
var rdsExporterCmd = &cobra.Command{
	Use:   "rds-exporter",
	Short: "Install and run prometheus-rds-exporter as a systemd service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := exporter.LoadParams(rdsParamsFile)
		if err != nil {
			return err
		}
		for _, assignment := range rdsSet {
			if err := params.Set(assignment); err != nil {
				return err
			}
		}

		module, err := exporter.NewRDSExporter(params)
		if err != nil {
			return err
		}
		catalog, err := module.Catalog()
		if err != nil {
			return err
		}

		logging.FromContext(cmd.Context()).Debug().
			Str("version", params.Version).
			Str("bin", module.Daemon().ArchiveBinPath).
			Int("resources", catalog.Len()).
			Msg("Built rds-exporter catalog")

		_, err = chart.Apply(cmd.Context(), newController(), catalog, rdsDryRun, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rdsExporterCmd.Flags().StringVar(&rdsParamsFile, "params", "", "YAML file of module parameters")
	rdsExporterCmd.Flags().StringArrayVar(&rdsSet, "set", nil, "Override a parameter, e.g. --set config_content.debug=true")
	rdsExporterCmd.Flags().BoolVar(&rdsDryRun, "dry-run", false, "Preview changes without applying them")

	rootCmd.AddCommand(rdsExporterCmd)
}
