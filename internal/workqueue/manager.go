package workqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flightbus/internal/validator"
)

const defaultTick = time.Millisecond

// Manager owns the named work queues of the process.
type Manager struct {
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer

	mu     sync.RWMutex
	queues []*Queue
	byName map[string]*Queue
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver reports overruns and faults of every queue to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates a manager with no queues.
func NewManager(clk clock.Clock, logger *zap.Logger, opts ...Option) (*Manager, error) {
	m := Manager{
		clock:    clk,
		logger:   logger,
		observer: nopObserver{},
		byName:   make(map[string]*Queue),
	}

	if err := validator.Validate("workqueue manager", m.clock, m.logger); err != nil {
		return nil, fmt.Errorf("failed to validate workqueue manager deps: %w", err)
	}

	for _, opt := range opts {
		opt(&m)
	}
	m.logger = m.logger.Named("workqueue")

	return &m, nil
}

// CreateQueue adds a queue. Names are unique.
func (m *Manager) CreateQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("failed to create queue: empty name")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[cfg.Name]; ok {
		return nil, fmt.Errorf("failed to create queue %s: %w", cfg.Name, ErrQueueExists)
	}

	q := &Queue{
		name:     cfg.Name,
		priority: cfg.Priority,
		tick:     cfg.Tick,
		clock:    m.clock,
		logger:   m.logger.With(zap.String("queue", cfg.Name)),
		observer: m.observer,
	}

	m.byName[cfg.Name] = q
	m.queues = append(m.queues, q)
	sort.SliceStable(m.queues, func(i, j int) bool {
		return m.queues[i].priority > m.queues[j].priority
	})

	return q, nil
}

// CreateDefaultQueues creates the high and low priority queues with the
// given dispatch tick.
func (m *Manager) CreateDefaultQueues(tick time.Duration) error {
	for _, cfg := range []QueueConfig{
		{Name: HPWork, Priority: 10, Tick: tick},
		{Name: LPWork, Priority: 1, Tick: tick},
	} {
		if _, err := m.CreateQueue(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the queue called name.
func (m *Manager) Find(name string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("queue %s: %w", name, ErrNotFound)
	}
	return q, nil
}

// Queues returns the queues from highest to lowest priority.
func (m *Manager) Queues() []*Queue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Queue, len(m.queues))
	copy(out, m.queues)
	return out
}

// Tick runs one dispatch pass on every queue, highest priority first. It
// must not be mixed with Run.
func (m *Manager) Tick(ctx context.Context) int {
	ran := 0
	for _, q := range m.Queues() {
		ran += q.Dispatch(ctx)
	}
	return ran
}

// Run dispatches every queue on its own goroutine until ctx is done, so a
// slow low priority item never holds up a higher priority queue.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range m.Queues() {
		g.Go(func() error {
			return q.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to run work queues: %w", err)
	}
	return nil
}
