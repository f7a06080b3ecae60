// Package workqueue schedules periodic work items on priority-ordered queues.
//
// Items re-arm from their previous deadline rather than from the time they
// finished, so callback latency never shifts a loop's phase. An item that
// overruns is due again immediately and catches up one period per tick.
package workqueue

import (
	"context"
	"errors"
	"time"
)

// Default queue names.
const (
	HPWork = "wq:hp_work"
	LPWork = "wq:lp_work"
)

var (
	ErrNotFound         = errors.New("work queue not found")
	ErrQueueExists      = errors.New("work queue already exists")
	ErrInvalidItem      = errors.New("invalid work item")
	ErrAlreadyScheduled = errors.New("work item already scheduled")
	ErrNotScheduled     = errors.New("work item not scheduled on this queue")
)

// Runner is the body of a work item. now is the dispatch time of this run.
// Runners have no error return: faults are the module's own concern and the
// queue keeps the item scheduled regardless.
type Runner interface {
	Run(ctx context.Context, now time.Time)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, now time.Time)

func (f RunnerFunc) Run(ctx context.Context, now time.Time) {
	f(ctx, now)
}

// Observer receives scheduling anomalies. Implementations must not block.
type Observer interface {
	ObserveOverrun(queue, item string, took time.Duration)
	ObserveFault(queue, item string)
}

type nopObserver struct{}

func (nopObserver) ObserveOverrun(string, string, time.Duration) {}
func (nopObserver) ObserveFault(string, string)                  {}
