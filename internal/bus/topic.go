package bus

import (
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
)

// slots is the number of record buffers a topic owns. One holds the
// current record; the others are rewritten by publishers once no reader
// holds them.
const slots = 4

// slot is one version/record pair. state is -1 while a publisher writes it,
// otherwise the number of readers copying it. A slot with state >= 0 always
// holds a pair that was published together.
type slot[T any] struct {
	state   atomic.Int32
	version uint64
	value   T
}

type observer[T any] struct {
	id uint64
	fn func(T)
}

// Topic is the hub of one named record of type T. Every buffer is allocated
// with the topic; publishing and reading never allocate.
type Topic[T any] struct {
	name string
	typ  reflect.Type

	ring      [slots]slot[T]
	current   atomic.Pointer[slot[T]]
	observers atomic.Pointer[[]observer[T]]
	nodes     atomic.Int64
	nextID    atomic.Uint64

	// serializes observer list rewrites, never taken by Publish
	mu sync.Mutex
}

func newTopic[T any](name string) *Topic[T] {
	t := &Topic[T]{
		name: name,
		typ:  reflect.TypeFor[T](),
	}
	t.current.Store(&t.ring[0])
	return t
}

// acquire pins the current slot against rewrites. The caller must release it.
func (t *Topic[T]) acquire() *slot[T] {
	for {
		s := t.current.Load()
		n := s.state.Load()
		if n < 0 {
			runtime.Gosched()
			continue
		}
		if s.state.CompareAndSwap(n, n+1) {
			return s
		}
	}
}

func (t *Topic[T]) release(s *slot[T]) {
	s.state.Add(-1)
}

// claim takes a slot that is neither current nor pinned by a reader for
// exclusive writing.
func (t *Topic[T]) claim() *slot[T] {
	for {
		cur := t.current.Load()
		for i := range t.ring {
			s := &t.ring[i]
			if s == cur || !s.state.CompareAndSwap(0, -1) {
				continue
			}
			if s == t.current.Load() {
				s.state.Store(0)
				continue
			}
			return s
		}
		runtime.Gosched()
	}
}

// Name returns the process-wide topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Size returns the record size in bytes.
func (t *Topic[T]) Size() uintptr {
	return t.typ.Size()
}

// Version returns the number of publishes so far.
func (t *Topic[T]) Version() uint64 {
	s := t.acquire()
	defer t.release(s)
	return s.version
}

// Publish writes v into a spare slot, makes it current with the next
// version and then calls every observer in registration order. It returns
// the new version.
//
// Publish takes no lock: concurrent publishers each write their own slot and
// race on a compare-and-swap, the loser renumbering after the winner. It only
// yields when every spare slot is pinned by a reader mid-copy.
func (t *Topic[T]) Publish(v T) uint64 {
	next := t.claim()
	next.value = v

	for {
		cur := t.acquire()
		next.version = cur.version + 1
		ok := t.current.CompareAndSwap(cur, next)
		t.release(cur)
		if ok {
			break
		}
	}
	version := next.version
	next.state.Store(0)

	if obs := t.observers.Load(); obs != nil {
		for _, o := range *obs {
			o.fn(v)
		}
	}

	return version
}

// Read copies the current record straight from the hub without a cursor.
// It returns ErrStale before the first publish.
func (t *Topic[T]) Read() (T, uint64, error) {
	s := t.acquire()
	defer t.release(s)

	if s.version == 0 {
		var zero T
		return zero, 0, ErrStale
	}
	return s.value, s.version, nil
}

// Observe appends fn to the topic's observer list. Observers run
// synchronously inside Publish, after the new version is visible.
func (t *Topic[T]) Observe(fn func(T)) {
	if fn == nil {
		return
	}
	t.addObserver(t.nextID.Add(1), fn)
}

// Subscribe creates a cursor positioned at the current version, so the first
// Poll reports fresh data only after a later publish.
func (t *Topic[T]) Subscribe(opts ...SubscribeOption[T]) *Node[T] {
	var cfg subscription[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Node[T]{
		topic: t,
		id:    t.nextID.Add(1),
		last:  t.Version(),
	}

	if cfg.callback != nil {
		cb, filter := cfg.callback, cfg.filter
		fn := cb
		if filter != nil {
			fn = func(v T) {
				if filter(v) {
					cb(v)
				}
			}
		}
		t.addObserver(n.id, fn)
	}
	t.nodes.Add(1)

	return n
}

func (t *Topic[T]) addObserver(id uint64, fn func(T)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var next []observer[T]
	if cur := t.observers.Load(); cur != nil {
		next = make([]observer[T], len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, observer[T]{id: id, fn: fn})
	t.observers.Store(&next)
}

func (t *Topic[T]) removeObserver(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.observers.Load()
	if cur == nil {
		return
	}
	next := make([]observer[T], 0, len(*cur))
	for _, o := range *cur {
		if o.id != id {
			next = append(next, o)
		}
	}
	t.observers.Store(&next)
}

func (t *Topic[T]) info() TopicInfo {
	var observers int
	if obs := t.observers.Load(); obs != nil {
		observers = len(*obs)
	}
	return TopicInfo{
		Name:      t.name,
		Type:      t.typ.String(),
		Size:      t.typ.Size(),
		Version:   t.Version(),
		Nodes:     int(t.nodes.Load()),
		Observers: observers,
	}
}

func (t *Topic[T]) payloadType() reflect.Type {
	return t.typ
}

// AdvertiseOption configures a topic at advertise time.
type AdvertiseOption[T any] func(*Topic[T])

// WithEcho registers an observer called after every publish, typically a
// logging or diagnostics tap.
func WithEcho[T any](fn func(T)) AdvertiseOption[T] {
	return func(t *Topic[T]) {
		t.Observe(fn)
	}
}

type subscription[T any] struct {
	callback func(T)
	filter   func(T) bool
}

// SubscribeOption configures a Node at subscribe time.
type SubscribeOption[T any] func(*subscription[T])

// WithCallback makes the node call fn synchronously on every publish.
func WithCallback[T any](fn func(T)) SubscribeOption[T] {
	return func(s *subscription[T]) {
		s.callback = fn
	}
}

// WithFilter gates the node callback. It never affects Poll or Copy.
func WithFilter[T any](fn func(T) bool) SubscribeOption[T] {
	return func(s *subscription[T]) {
		s.filter = fn
	}
}
