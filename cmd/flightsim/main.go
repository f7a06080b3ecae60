// Command flightsim runs the flight stack as a software-in-the-loop
// simulation and inspects its topics and parameters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flightbus/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "flightsim",
	Short: "Software-in-the-loop flight stack",
	Long: `flightsim wires the flight management, control, estimator and plant drivers
over an in-process topic bus and runs them on prioritized work queues.
Configuration is read from the environment; flags override it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	logLevel  string
	paramFile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&paramFile, "params", "p", "", "parameter file, yaml|json|toml (overrides PARAM_FILE)")

	rootCmd.AddCommand(runCmd, topicsCmd, paramsCmd, telemetryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup reads the environment and applies the persistent flags.
func setup() (app.Config, *zap.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if paramFile != "" {
		cfg.ParamFile = paramFile
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, logger, nil
}
