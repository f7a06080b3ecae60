package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu       sync.Mutex
	overruns []string
	faults   []string
}

func (o *recordingObserver) ObserveOverrun(queue, item string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overruns = append(o.overruns, queue+"/"+item)
}

func (o *recordingObserver) ObserveFault(queue, item string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faults = append(o.faults, queue+"/"+item)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	m, err := NewManager(mock, zap.NewNop(), opts...)
	require.NoError(t, err)
	require.NoError(t, m.CreateDefaultQueues(10*time.Millisecond))
	return m, mock
}

func elapsed(start, now time.Time) int {
	return int(now.Sub(start) / time.Millisecond)
}

func TestItemCadence(t *testing.T) {
	m, mock := newTestManager(t)
	q, err := m.Find(HPWork)
	require.NoError(t, err)

	start := mock.Now()
	var fired []int
	it := &Item{
		Name:   "loop",
		Period: 100 * time.Millisecond,
		Runner: RunnerFunc(func(_ context.Context, now time.Time) {
			fired = append(fired, elapsed(start, now))
		}),
	}
	require.NoError(t, q.Schedule(it))

	for i := 0; i < 40; i++ {
		m.Tick(context.Background())
		mock.Add(10 * time.Millisecond)
	}

	assert.Equal(t, []int{0, 100, 200, 300}, fired)
	assert.Equal(t, uint64(4), it.Runs())
	assert.Zero(t, it.Overruns())
}

func TestOverrunRunsAtNextTick(t *testing.T) {
	obs := &recordingObserver{}
	m, mock := newTestManager(t, WithObserver(obs))
	q, err := m.Find(HPWork)
	require.NoError(t, err)

	start := mock.Now()
	var fired []int
	it := &Item{
		Name:   "loop",
		Period: 100 * time.Millisecond,
		Runner: RunnerFunc(func(_ context.Context, now time.Time) {
			at := elapsed(start, now)
			fired = append(fired, at)
			if at == 100 {
				mock.Add(250 * time.Millisecond)
			}
		}),
	}
	require.NoError(t, q.Schedule(it))

	for elapsed(start, mock.Now()) < 510 {
		m.Tick(context.Background())
		mock.Add(10 * time.Millisecond)
	}

	// the slow run ends at 350; the missed 200 and 300 deadlines run on the
	// following ticks instead of being dropped, then the phase is restored
	assert.Equal(t, []int{0, 100, 360, 370, 400, 500}, fired)
	assert.Equal(t, uint64(1), it.Overruns())
	assert.Equal(t, []string{HPWork + "/loop"}, obs.overruns)
}

func TestHighPriorityQueueDispatchesFirst(t *testing.T) {
	m, _ := newTestManager(t)
	hp, err := m.Find(HPWork)
	require.NoError(t, err)
	lp, err := m.Find(LPWork)
	require.NoError(t, err)

	var order []string
	record := func(name string) Runner {
		return RunnerFunc(func(context.Context, time.Time) { order = append(order, name) })
	}

	require.NoError(t, lp.Schedule(&Item{Name: "led", Period: time.Second, Runner: record("led")}))
	require.NoError(t, hp.Schedule(&Item{Name: "rgb_led", Period: 10 * time.Millisecond, Runner: record("rgb_led")}))
	require.NoError(t, hp.Schedule(&Item{Name: "control", Period: 10 * time.Millisecond, Runner: record("control")}))

	assert.Equal(t, 3, m.Tick(context.Background()))
	assert.Equal(t, []string{"rgb_led", "control", "led"}, order)
}

func TestPanickingItemKeepsQueueAlive(t *testing.T) {
	obs := &recordingObserver{}
	m, mock := newTestManager(t, WithObserver(obs))
	q, err := m.Find(LPWork)
	require.NoError(t, err)

	bad := &Item{Name: "bad", Period: 10 * time.Millisecond, Runner: RunnerFunc(func(context.Context, time.Time) {
		panic("boom")
	})}
	var good int
	ok := &Item{Name: "good", Period: 10 * time.Millisecond, Runner: RunnerFunc(func(context.Context, time.Time) {
		good++
	})}
	require.NoError(t, q.Schedule(bad))
	require.NoError(t, q.Schedule(ok))

	for i := 0; i < 3; i++ {
		m.Tick(context.Background())
		mock.Add(10 * time.Millisecond)
	}

	assert.Equal(t, 3, good)
	assert.Equal(t, uint64(3), bad.Faults())
	assert.Equal(t, uint64(3), bad.Runs())
	assert.Len(t, obs.faults, 3)
}

func TestScheduleValidation(t *testing.T) {
	m, mock := newTestManager(t)
	hp, err := m.Find(HPWork)
	require.NoError(t, err)
	lp, err := m.Find(LPWork)
	require.NoError(t, err)

	noop := RunnerFunc(func(context.Context, time.Time) {})

	require.ErrorIs(t, hp.Schedule(&Item{Name: "x", Runner: noop}), ErrInvalidItem)
	require.ErrorIs(t, hp.Schedule(&Item{Name: "x", Period: time.Second}), ErrInvalidItem)
	require.ErrorIs(t, hp.Schedule(nil), ErrInvalidItem)

	it := &Item{Name: "x", Period: 10 * time.Millisecond, Delay: 30 * time.Millisecond, Runner: noop}
	require.NoError(t, hp.Schedule(it))
	require.ErrorIs(t, lp.Schedule(it), ErrAlreadyScheduled)
	assert.Same(t, hp, it.Queue())

	assert.Zero(t, m.Tick(context.Background()), "delayed item is not due yet")
	mock.Add(30 * time.Millisecond)
	assert.Equal(t, 1, m.Tick(context.Background()))

	require.ErrorIs(t, lp.Cancel(it), ErrNotScheduled)
	require.NoError(t, hp.Cancel(it))
	assert.Zero(t, hp.Len())
	assert.Nil(t, it.Queue())

	mock.Add(time.Second)
	assert.Zero(t, m.Tick(context.Background()))
	require.NoError(t, lp.Schedule(it))
}

func TestManagerQueues(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateQueue(QueueConfig{Name: HPWork})
	require.ErrorIs(t, err, ErrQueueExists)

	_, err = m.Find("wq:missing")
	require.ErrorIs(t, err, ErrNotFound)

	mid, err := m.CreateQueue(QueueConfig{Name: "wq:mid", Priority: 5})
	require.NoError(t, err)

	var names []string
	for _, q := range m.Queues() {
		names = append(names, q.Name())
	}
	assert.Equal(t, []string{HPWork, "wq:mid", LPWork}, names)
	assert.Equal(t, 5, mid.Priority())

	_, err = NewManager(nil, zap.NewNop())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	m, err := NewManager(clock.New(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.CreateDefaultQueues(time.Millisecond))
	hp, err := m.Find(HPWork)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, hp.Schedule(&Item{Name: "tick", Period: time.Millisecond, Runner: RunnerFunc(func(context.Context, time.Time) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("item never ran")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestItemMovedDuringRunKeepsNewDeadline(t *testing.T) {
	m, mock := newTestManager(t)
	hp, err := m.Find(HPWork)
	require.NoError(t, err)
	lp, err := m.Find(LPWork)
	require.NoError(t, err)

	var runs []string
	it := &Item{Name: "link", Period: 50 * time.Millisecond}
	it.Runner = RunnerFunc(func(context.Context, time.Time) {
		runs = append(runs, it.Queue().Name())
		if it.Queue() == hp {
			require.NoError(t, hp.Cancel(it))
			require.NoError(t, lp.Schedule(it))
		}
	})
	require.NoError(t, hp.Schedule(it))

	assert.Equal(t, 1, hp.Dispatch(context.Background()))
	assert.Equal(t, 0, hp.Len())
	// due now on the new queue, not re-armed a period later by the old one
	assert.Equal(t, 1, lp.Dispatch(context.Background()))
	assert.Equal(t, []string{HPWork, LPWork}, runs)

	mock.Add(49 * time.Millisecond)
	assert.Equal(t, 0, lp.Dispatch(context.Background()))
	mock.Add(time.Millisecond)
	assert.Equal(t, 1, lp.Dispatch(context.Background()))
}

func TestDispatchOrderAndAllocations(t *testing.T) {
	m, mock := newTestManager(t)
	hp, err := m.Find(HPWork)
	require.NoError(t, err)

	var order []string
	record := func(name string) Runner {
		return RunnerFunc(func(context.Context, time.Time) { order = append(order, name) })
	}

	late := &Item{Name: "late", Period: time.Nanosecond, Delay: 2 * time.Millisecond, Runner: record("late")}
	early := &Item{Name: "early", Period: time.Nanosecond, Delay: time.Millisecond, Runner: record("early")}
	require.NoError(t, hp.Schedule(late))
	require.NoError(t, hp.Schedule(early))

	mock.Add(time.Hour)
	assert.Equal(t, 2, hp.Dispatch(context.Background()))
	assert.Equal(t, []string{"early", "late"}, order)

	order = make([]string, 0, 1024)
	ctx := context.Background()
	allocs := testing.AllocsPerRun(100, func() {
		hp.Dispatch(ctx)
	})
	assert.Zero(t, allocs)
}
