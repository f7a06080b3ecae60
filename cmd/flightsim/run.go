package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flightbus/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation on the wall clock",
	Long: `Run the simulation in real time until interrupted or until --duration
has passed. Metrics and the topic table are served on METRICS_PORT.`,
	RunE: runSim,
}

var runDuration time.Duration

func init() {
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "stop after this long; 0 runs until interrupted")
}

func runSim(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if runDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	a, err := app.New(ctx, cfg, clock.New(), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Error("failed to shut down cleanly", zap.Error(err))
		}
	}()

	now := time.Now()
	if err := a.Run(ctx); err != nil {
		return err
	}

	stats := a.Telemetry.Stats()
	logger.Info("simulation stopped",
		zap.Duration("elapsed", time.Since(now)),
		zap.Uint64("telemetry_written", stats.Written),
		zap.Uint64("telemetry_dropped", stats.Dropped),
	)
	return nil
}
