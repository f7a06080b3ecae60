package workqueue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"
)

// QueueConfig describes one work queue.
type QueueConfig struct {
	Name string
	// Priority orders queues in Manager.Tick; higher runs first.
	Priority int
	// Tick is the dispatch interval used by Run.
	Tick time.Duration
}

// Queue holds work items of one priority class. Dispatch must only be called
// from one goroutine at a time; Schedule and Cancel may be called from any.
type Queue struct {
	name     string
	priority int
	tick     time.Duration

	clock    clock.Clock
	logger   *zap.Logger
	observer Observer

	mu    sync.Mutex
	items []*Item
	seq   uint64

	// reused by Dispatch
	due []dueItem
}

// dueItem is an item's deadline and order as read under the queue lock.
type dueItem struct {
	it   *Item
	next time.Time
	seq  uint64
}

func compareDue(a, b dueItem) int {
	if c := a.next.Compare(b.next); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Priority returns the queue priority.
func (q *Queue) Priority() int {
	return q.priority
}

// Schedule adds it to the queue with its first run due at now + it.Delay.
func (q *Queue) Schedule(it *Item) error {
	if it == nil || it.Runner == nil || it.Period <= 0 || it.Name == "" {
		return ErrInvalidItem
	}
	if !it.queue.CompareAndSwap(nil, q) {
		return fmt.Errorf("item %s: %w", it.Name, ErrAlreadyScheduled)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	it.seq = q.seq
	q.seq++
	it.next = q.clock.Now().Add(it.Delay)
	q.items = append(q.items, it)

	q.logger.Debug("work item scheduled",
		zap.String("item", it.Name),
		zap.Duration("period", it.Period),
		zap.Time("next", it.next),
	)

	return nil
}

// Cancel removes it from the queue. A run in progress completes but does
// not re-arm the item.
func (q *Queue) Cancel(it *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !it.queue.CompareAndSwap(q, nil) {
		return fmt.Errorf("item %s: %w", it.Name, ErrNotScheduled)
	}

	for i, cur := range q.items {
		if cur == it {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}

	return nil
}

// Len returns the number of scheduled items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dispatch runs every item due at the start of the pass, earliest deadline
// first, and returns how many ran. Each item runs at most once per pass.
func (q *Queue) Dispatch(ctx context.Context) int {
	now := q.clock.Now()

	q.mu.Lock()
	q.due = q.due[:0]
	for _, it := range q.items {
		if !it.next.After(now) {
			q.due = append(q.due, dueItem{it: it, next: it.next, seq: it.seq})
		}
	}
	slices.SortStableFunc(q.due, compareDue)
	q.mu.Unlock()

	ran := 0
	for _, d := range q.due {
		if ctx.Err() != nil {
			break
		}
		q.run(ctx, d.it)
		ran++
	}

	return ran
}

func (q *Queue) run(ctx context.Context, it *Item) {
	start := q.clock.Now()
	q.invoke(ctx, it, start)
	took := q.clock.Since(start)

	it.runs.Add(1)

	// Cancel swaps the owner under q.mu, so a moved item is never touched here
	q.mu.Lock()
	if it.queue.Load() == q {
		it.next = it.next.Add(it.Period)
	}
	q.mu.Unlock()

	if took >= it.Period {
		it.overruns.Add(1)
		q.observer.ObserveOverrun(q.name, it.Name, took)
		q.logger.Warn("work item overran its period",
			zap.String("item", it.Name),
			zap.Duration("period", it.Period),
			zap.Duration("took", took),
		)
	}
}

func (q *Queue) invoke(ctx context.Context, it *Item, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			it.faults.Add(1)
			q.observer.ObserveFault(q.name, it.Name)
			q.logger.Error("work item panicked", zap.String("item", it.Name), zap.Any("panic", r))
		}
	}()

	it.Runner.Run(ctx, now)
}

// Run dispatches the queue on every tick until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	ticker := q.clock.Ticker(q.tick)
	defer ticker.Stop()

	q.logger.Info("work queue started", zap.Duration("tick", q.tick), zap.Int("items", q.Len()))

	q.Dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("work queue stopped")
			return nil
		case <-ticker.C:
			q.Dispatch(ctx)
		}
	}
}
