package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"converge/internal/exporter"
	"converge/internal/host"
	"converge/internal/inventory"
	"converge/internal/logging"
	"converge/internal/metrics"
	"converge/internal/resource"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes by error category
const (
	ExitGeneric    = 1
	ExitValidation = 2
	ExitDependency = 3
	ExitHost       = 4
)

var (
	stateDir    string
	logLevel    string
	metricsFile string
	verbose     bool

	// clientProvider supplies the host the commands act on
	clientProvider host.ClientProvider = host.NewDefaultClientProvider()
	recorder       *metrics.PrometheusRecorder
)

var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Converge reconciles a host with a declared set of resources",
	Long: `Converge applies catalogs of files, users, groups, services, archives and packages
to the local host. Runs are idempotent: applying the same catalog twice changes nothing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.Configure(logging.ProfileRuntime, cmd.ErrOrStderr())
		if logLevel != "" {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			logger = logger.Level(level)
		} else if verbose {
			logger = logger.Level(zerolog.DebugLevel)
		}

		recorder = metrics.NewPrometheusRecorder(nil)
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
		return nil
	},
}

// Execute executes the root CLI command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if werr := writeMetrics(); werr != nil {
		fmt.Fprintln(os.Stderr, werr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory of the inventory records (default $"+inventory.StateDirEnv+" or "+inventory.DefaultStateDir+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this node-exporter textfile")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// newController builds a controller on the configured host and state directory
func newController() resource.ReconciliationController {
	options := resource.DefaultControllerOptions()
	options.Inventory = inventory.NewStore(stateDir)
	if recorder != nil {
		options.Recorder = recorder
	}
	return resource.NewReconciliationController(clientProvider.GetClient(), options)
}

func writeMetrics() error {
	if metricsFile == "" || recorder == nil {
		return nil
	}
	return recorder.WriteTextfile(metricsFile)
}

// exitCode maps an error to the exit code of its category
func exitCode(err error) int {
	if errors.Is(err, exporter.ErrInvalidParams) {
		return ExitValidation
	}
	if rerr, ok := resource.AsReconciliationError(err); ok {
		switch rerr.Type {
		case resource.ErrorTypeValidation, resource.ErrorTypeConfiguration:
			return ExitValidation
		case resource.ErrorTypeDependency:
			return ExitDependency
		case resource.ErrorTypeHost:
			return ExitHost
		}
	}
	return ExitGeneric
}
