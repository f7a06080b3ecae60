package workqueue

import (
	"context"
	"time"

	"github.com/filecoin-project/go-clock"

	"flightbus/internal/metrics"
)

// MetricsRunner wraps a Runner with run count and duration metrics
type MetricsRunner struct {
	runner   Runner
	registry *metrics.Registry
	clock    clock.Clock
	queue    string
	item     string
}

// NewMetricsRunner creates a new instrumented runner timed on clk, the clock
// the queue dispatches on
func NewMetricsRunner(runner Runner, registry *metrics.Registry, clk clock.Clock, queue, item string) Runner {
	return &MetricsRunner{
		runner:   runner,
		registry: registry,
		clock:    clk,
		queue:    queue,
		item:     item,
	}
}

// Run implements Runner.Run with metrics collection
func (r *MetricsRunner) Run(ctx context.Context, now time.Time) {
	start := r.clock.Now()
	defer func() {
		r.registry.RecordWorkItemRun(r.queue, r.item, r.clock.Since(start))
	}()

	r.runner.Run(ctx, now)
}
