package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/filecoin-project/go-clock"
	"github.com/spf13/cobra"

	"flightbus/internal/app"
	"flightbus/internal/mlog"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Replay and remove recorded telemetry sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var telemetryShowCmd = &cobra.Command{
	Use:     "show SESSION",
	Short:   "Print the records of a session",
	Example: "  TELEMETRY_SINK=couchbase flightsim telemetry show 0b6f...",
	Args:    cobra.ExactArgs(1),
	RunE:    runTelemetryShow,
}

var telemetryDeleteCmd = &cobra.Command{
	Use:   "delete SESSION",
	Short: "Delete every record of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTelemetryDelete,
}

func init() {
	telemetryCmd.AddCommand(telemetryShowCmd, telemetryDeleteCmd)
}

func newTelemetryApp(cmd *cobra.Command) (*app.App, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	cfg.Serve = false

	return app.New(cmd.Context(), cfg, clock.NewMock(), logger)
}

func runTelemetryShow(cmd *cobra.Command, args []string) error {
	a, err := newTelemetryApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	records, err := a.Session(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printRecords(cmd.OutOrStdout(), records)
}

func runTelemetryDelete(cmd *cobra.Command, args []string) error {
	a, err := newTelemetryApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	n, err := a.DeleteSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("deleted %s records\n", humanize.Comma(int64(n)))
	return nil
}

func printRecords(out io.Writer, records []mlog.Record) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tMSG\tTIME\tSIZE")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			rec.Seq,
			rec.ID,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			humanize.Bytes(uint64(len(rec.Payload))),
		)
	}
	return w.Flush()
}
