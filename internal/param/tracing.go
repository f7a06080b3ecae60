package param

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flightbus/internal/tracing"
)

// TracedStore wraps a Store with distributed tracing
// Layer order: TracedStore -> MetricsStore -> Store (real thing)
type TracedStore struct {
	store  Store
	tracer *tracing.Tracer
}

// NewTracedStore creates a new traced store that wraps a metrics store
func NewTracedStore(store Store, tracer *tracing.Tracer) Store {
	return &TracedStore{
		store:  store,
		tracer: tracer,
	}
}

// Fetch implements Store.Fetch with distributed tracing. A missing group is
// not an error for the span.
func (s *TracedStore) Fetch(ctx context.Context, group string) (map[string]float32, error) {
	ctx, span := s.tracer.StartSpan(ctx, "param.fetch")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("param_fetch")...)
	span.SetAttributes(attribute.String("param.group", group))

	values, err := s.store.Fetch(ctx, group)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return values, err
}

// Save implements Store.Save with distributed tracing
func (s *TracedStore) Save(ctx context.Context, group string, values map[string]float32) error {
	ctx, span := s.tracer.StartSpan(ctx, "param.save")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("param_save")...)
	span.SetAttributes(
		attribute.String("param.group", group),
		attribute.Int("param.count", len(values)),
	)

	err := s.store.Save(ctx, group, values)
	if err != nil {
		s.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(s.tracer.ErrorAttributes(err)...)

	return err
}

// Delete implements Store.Delete with distributed tracing
func (s *TracedStore) Delete(ctx context.Context, group string) error {
	ctx, span := s.tracer.StartSpan(ctx, "param.delete")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("param_delete")...)
	span.SetAttributes(attribute.String("param.group", group))

	err := s.store.Delete(ctx, group)
	if err != nil {
		s.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}
