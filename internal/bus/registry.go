package bus

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// TopicInfo is a point-in-time description of an advertised topic.
type TopicInfo struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Size      uintptr `json:"size"`
	Version   uint64  `json:"version"`
	Nodes     int     `json:"nodes"`
	Observers int     `json:"observers"`
}

type entry interface {
	info() TopicInfo
	payloadType() reflect.Type
}

// Registry is the process-wide set of topics, keyed by name. One registry is
// created at startup and handed to every module driver.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]entry
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		topics: make(map[string]entry),
		logger: logger.Named("bus"),
	}
}

// Advertise registers a topic carrying T under name, or returns the existing
// one. Re-advertising appends any echo options to the existing topic. An
// existing topic of a different record type fails with ErrSizeMismatch or
// ErrTypeMismatch.
func Advertise[T any](r *Registry, name string, opts ...AdvertiseOption[T]) (*Topic[T], error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.topics[name]; ok {
		t, err := typed[T](name, e)
		if err != nil {
			return nil, fmt.Errorf("failed to advertise topic: %w", err)
		}
		for _, opt := range opts {
			opt(t)
		}
		return t, nil
	}

	t := newTopic[T](name)
	for _, opt := range opts {
		opt(t)
	}
	r.topics[name] = t

	r.logger.Debug("topic advertised",
		zap.String("topic", name),
		zap.Stringer("type", t.typ),
		zap.Uintptr("size", t.Size()),
	)

	return t, nil
}

// Lookup returns the advertised topic carrying T under name.
func Lookup[T any](r *Registry, name string) (*Topic[T], error) {
	r.mu.RLock()
	e, ok := r.topics[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("topic %s: %w", name, ErrNotFound)
	}

	return typed[T](name, e)
}

// Subscribe attaches a new node to the topic advertised under name.
func Subscribe[T any](r *Registry, name string, opts ...SubscribeOption[T]) (*Node[T], error) {
	t, err := Lookup[T](r, name)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	n := t.Subscribe(opts...)
	r.logger.Debug("topic subscribed", zap.String("topic", name), zap.Uint64("version", n.last))

	return n, nil
}

// Topics lists every advertised topic ordered by name.
func (r *Registry) Topics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]TopicInfo, 0, len(r.topics))
	for _, e := range r.topics {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Len returns the number of advertised topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

func typed[T any](name string, e entry) (*Topic[T], error) {
	if t, ok := e.(*Topic[T]); ok {
		return t, nil
	}

	want := reflect.TypeFor[T]()
	have := e.payloadType()
	if have.Size() != want.Size() {
		return nil, fmt.Errorf("topic %s carries %d bytes, caller uses %d: %w", name, have.Size(), want.Size(), ErrSizeMismatch)
	}

	return nil, fmt.Errorf("topic %s carries %s, caller uses %s: %w", name, have, want, ErrTypeMismatch)
}
