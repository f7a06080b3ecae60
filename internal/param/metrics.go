package param

import (
	"context"
	"time"

	"flightbus/internal/metrics"
)

// MetricsStore wraps a Store with database operation metrics
type MetricsStore struct {
	store    Store
	registry *metrics.Registry
}

// NewMetricsStore creates a new instrumented store
func NewMetricsStore(store Store, registry *metrics.Registry) Store {
	return &MetricsStore{
		store:    store,
		registry: registry,
	}
}

// Fetch implements Store.Fetch with metrics collection
func (s *MetricsStore) Fetch(ctx context.Context, group string) (map[string]float32, error) {
	start := time.Now()
	values, err := s.store.Fetch(ctx, group)
	s.registry.RecordDatabaseOperation("param_fetch", time.Since(start), err)
	return values, err
}

// Save implements Store.Save with metrics collection
func (s *MetricsStore) Save(ctx context.Context, group string, values map[string]float32) error {
	start := time.Now()
	err := s.store.Save(ctx, group, values)
	s.registry.RecordDatabaseOperation("param_save", time.Since(start), err)
	return err
}

// Delete implements Store.Delete with metrics collection
func (s *MetricsStore) Delete(ctx context.Context, group string) error {
	start := time.Now()
	err := s.store.Delete(ctx, group)
	s.registry.RecordDatabaseOperation("param_delete", time.Since(start), err)
	return err
}
