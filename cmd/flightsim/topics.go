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
	"flightbus/internal/bus"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Print the topic table",
	Long: `Initialize every driver, optionally step the simulation on a simulated
clock, and print each topic with its record size, version and subscribers.`,
	Example: "  flightsim topics\n  flightsim topics --sim 2s",
	RunE:    runTopics,
}

var topicsSim time.Duration

func init() {
	topicsCmd.Flags().DurationVar(&topicsSim, "sim", 0, "simulated time to step before printing")
}

func runTopics(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg.Serve = false
	cfg.TelemetrySink = app.BackendMemory

	clk := clock.NewMock()
	a, err := app.New(cmd.Context(), cfg, clk, logger)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if topicsSim > 0 {
		if err := a.Start(cmd.Context()); err != nil {
			return err
		}
		a.Step(cmd.Context(), clk, topicsSim)
	}

	return printTopics(cmd.OutOrStdout(), a.Bus.Topics())
}

func printTopics(out io.Writer, topics []bus.TopicInfo) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tTYPE\tSIZE\tVERSION\tNODES\tOBSERVERS")
	for _, t := range topics {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			t.Name,
			t.Type,
			humanize.Bytes(uint64(t.Size)),
			humanize.Comma(int64(t.Version)),
			t.Nodes,
			t.Observers,
		)
	}
	return w.Flush()
}
