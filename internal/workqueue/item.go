package workqueue

import (
	"sync/atomic"
	"time"
)

// Item is one periodic task. Name, Period, Delay and Runner are fixed once
// the item is scheduled.
type Item struct {
	Name   string
	Period time.Duration
	// Delay offsets the first run from the time the item is scheduled.
	Delay  time.Duration
	Runner Runner

	queue atomic.Pointer[Queue]
	seq   uint64
	// next is guarded by the owning queue's mutex.
	next time.Time

	runs     atomic.Uint64
	overruns atomic.Uint64
	faults   atomic.Uint64
}

// Runs returns how many times the item has run.
func (it *Item) Runs() uint64 {
	return it.runs.Load()
}

// Overruns returns how many runs took at least one period.
func (it *Item) Overruns() uint64 {
	return it.overruns.Load()
}

// Faults returns how many runs panicked.
func (it *Item) Faults() uint64 {
	return it.faults.Load()
}

// Queue returns the queue the item is scheduled on, or nil.
func (it *Item) Queue() *Queue {
	return it.queue.Load()
}
