package main

import (
	"github.com/filecoin-project/go-clock"
	"github.com/spf13/cobra"

	"flightbus/internal/app"
	"flightbus/internal/param"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect and persist parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var paramsDumpCmd = &cobra.Command{
	Use:     "dump",
	Short:   "Print the effective parameters",
	Long:    `Print every parameter group after defaults, the parameter file and the store are merged.`,
	Example: "  flightsim params dump --format toml\n  PARAM_STORE=couchbase flightsim params dump",
	RunE:    runParamsDump,
}

var paramsPushCmd = &cobra.Command{
	Use:     "push",
	Short:   "Write the effective parameters to the store",
	Example: "  PARAM_STORE=couchbase flightsim params push -p tuned.yaml",
	RunE:    runParamsPush,
}

var paramsResetCmd = &cobra.Command{
	Use:     "reset GROUP...",
	Short:   "Delete parameter groups from the store",
	Long:    `Delete the stored values of each group so the next start uses defaults and the parameter file.`,
	Example: "  PARAM_STORE=couchbase flightsim params reset FMS CONTROL",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runParamsReset,
}

var paramsFormat string

func init() {
	paramsDumpCmd.Flags().StringVarP(&paramsFormat, "format", "f", "yaml", "output format: yaml|json|toml")
	paramsCmd.AddCommand(paramsDumpCmd, paramsPushCmd, paramsResetCmd)
}

func newParamsApp(cmd *cobra.Command) (*app.App, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	cfg.Serve = false
	cfg.TelemetrySink = app.BackendMemory

	return app.New(cmd.Context(), cfg, clock.NewMock(), logger)
}

func runParamsDump(cmd *cobra.Command, _ []string) error {
	a, err := newParamsApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	return param.Encode(cmd.OutOrStdout(), a.Params.Snapshot(), paramsFormat)
}

func runParamsPush(cmd *cobra.Command, _ []string) error {
	a, err := newParamsApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if err := a.SaveParams(cmd.Context()); err != nil {
		return err
	}
	cmd.Printf("saved %d parameter groups\n", len(a.Params.Groups()))
	return nil
}

func runParamsReset(cmd *cobra.Command, args []string) error {
	a, err := newParamsApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if err := a.ResetParams(cmd.Context(), args...); err != nil {
		return err
	}
	cmd.Printf("reset %d parameter groups\n", len(args))
	return nil
}
