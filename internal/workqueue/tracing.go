package workqueue

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"flightbus/internal/tracing"
)

// TracedRunner wraps a Runner with distributed tracing
// Layer order: TracedRunner -> MetricsRunner -> Runner (module body)
type TracedRunner struct {
	runner Runner
	tracer *tracing.Tracer
	queue  string
	item   string
	period time.Duration
}

// NewTracedRunner creates a new traced runner that wraps a metrics runner
func NewTracedRunner(runner Runner, tracer *tracing.Tracer, queue, item string, period time.Duration) Runner {
	return &TracedRunner{
		runner: runner,
		tracer: tracer,
		queue:  queue,
		item:   item,
		period: period,
	}
}

// Run implements Runner.Run with distributed tracing. A panic is recorded on
// the span and handed on to the queue.
func (r *TracedRunner) Run(ctx context.Context, now time.Time) {
	ctx, span := r.tracer.StartSpan(ctx, "workqueue.run")
	defer span.End()

	span.SetAttributes(r.tracer.WorkItemAttributes(r.queue, r.item, r.period)...)

	defer func() {
		if p := recover(); p != nil {
			r.tracer.RecordError(ctx, fmt.Errorf("work item panicked: %v", p))
			panic(p)
		}
		span.SetStatus(codes.Ok, "")
	}()

	r.runner.Run(ctx, now)
}
