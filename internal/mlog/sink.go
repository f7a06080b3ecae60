package mlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/metrics"
)

// ZapSink writes records to a zap logger at debug level.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink logging through logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("telemetry")}
}

// Write implements Sink.Write.
func (s *ZapSink) Write(_ context.Context, rec Record) error {
	s.logger.Debug("telemetry record",
		zap.String("session", rec.Session),
		zap.Uint64("seq", rec.Seq),
		zap.Stringer("msg", rec.ID),
		zap.Time("at", rec.Timestamp),
		zap.Binary("payload", rec.Payload),
	)
	return nil
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink.Write.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the records written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByID returns the written records of one message.
func (s *MemorySink) ByID(id MsgID) []Record {
	var out []Record
	for _, rec := range s.Records() {
		if rec.ID == id {
			out = append(out, rec)
		}
	}
	return out
}

// Session implements SessionStore.
func (s *MemorySink) Session(_ context.Context, session string) ([]Record, error) {
	var out []Record
	for _, rec := range s.Records() {
		if rec.Session == session {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("session %s: %w", session, ErrSessionNotFound)
	}
	return out, nil
}

// DeleteSession implements SessionStore.
func (s *MemorySink) DeleteSession(_ context.Context, session string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Session != session {
			kept = append(kept, rec)
		}
	}
	n := len(s.records) - len(kept)
	s.records = kept
	return n, nil
}

// MetricsSink wraps a Sink with telemetry write metrics
type MetricsSink struct {
	sink     Sink
	registry *metrics.Registry
	// database operation name, empty for sinks that are not a database
	operation string
}

// NewMetricsSink creates a new instrumented sink. A non-empty operation also
// records every write as a database operation of that name.
func NewMetricsSink(sink Sink, registry *metrics.Registry, operation string) Sink {
	return &MetricsSink{
		sink:      sink,
		registry:  registry,
		operation: operation,
	}
}

// Write implements Sink.Write with metrics collection
func (s *MetricsSink) Write(ctx context.Context, rec Record) error {
	start := time.Now()
	err := s.sink.Write(ctx, rec)
	s.registry.RecordLogMessage(rec.ID.String(), len(rec.Payload), err)
	if s.operation != "" {
		s.registry.RecordDatabaseOperation(s.operation, time.Since(start), err)
	}
	return err
}
