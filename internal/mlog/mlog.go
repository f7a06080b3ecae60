// Package mlog is the telemetry logger. Modules push fixed-size records,
// which are encoded and handed to a Sink by a writer goroutine. Pushing
// never blocks: records are dropped when the buffer is full, when the
// bandwidth budget is spent, or while the logger is stopped.
package mlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"flightbus/internal/validator"
)

var (
	ErrRunning         = errors.New("logger already running")
	ErrNotRunning      = errors.New("logger not running")
	ErrSessionNotFound = errors.New("telemetry session not found")
)

// MsgID identifies the record layout of a telemetry message.
type MsgID uint8

const (
	PilotCmdID MsgID = iota + 1
	GCSCmdID
	AutoCmdID
	FMSOutID
	ControlOutID
	PlantStateID
)

var msgNames = map[MsgID]string{
	PilotCmdID:   "pilot_cmd",
	GCSCmdID:     "gcs_cmd",
	AutoCmdID:    "auto_cmd",
	FMSOutID:     "fms_out",
	ControlOutID: "control_out",
	PlantStateID: "plant_state",
}

func (id MsgID) String() string {
	if name, ok := msgNames[id]; ok {
		return name
	}
	return fmt.Sprintf("msg_%d", uint8(id))
}

// Record is one encoded telemetry message.
type Record struct {
	Session   string
	Seq       uint64
	ID        MsgID
	Timestamp time.Time
	Payload   []byte
}

// Sink receives records from the writer goroutine.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SessionStore is a sink that can read back and delete what it stored.
type SessionStore interface {
	// Session returns the records of session ordered by sequence number.
	Session(ctx context.Context, session string) ([]Record, error)
	// DeleteSession removes the records of session and returns how many
	// were removed.
	DeleteSession(ctx context.Context, session string) (int, error)
}

// DropRecorder counts records that never reached the sink.
type DropRecorder interface {
	RecordLogDrop(message string)
}

// Config holds logger settings.
type Config struct {
	BufferSize int `env:"MLOG_BUFFER_SIZE" envDefault:"256"`
	// BytesPerSecond caps the encoded payload rate. Zero disables the cap.
	BytesPerSecond int `env:"MLOG_BYTES_PER_SECOND" envDefault:"0"`
	Burst          int `env:"MLOG_BURST_BYTES" envDefault:"4096"`
}

// Stats are the logger's running totals.
type Stats struct {
	Pushed  uint64
	Dropped uint64
	Written uint64
	Failed  uint64
}

// Logger is the telemetry logger.
type Logger struct {
	sink    Sink
	clock   clock.Clock
	logger  *zap.Logger
	limiter *rate.Limiter
	drops   DropRecorder
	size    int

	mu        sync.RWMutex
	running   bool
	session   string
	records   chan Record
	done      chan struct{}
	callbacks []func()

	seq     atomic.Uint64
	pushed  atomic.Uint64
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

// Option configures a Logger.
type Option func(*Logger)

// WithDropRecorder reports every dropped record to r.
func WithDropRecorder(r DropRecorder) Option {
	return func(l *Logger) {
		l.drops = r
	}
}

// New creates a stopped logger.
func New(sink Sink, config Config, clk clock.Clock, logger *zap.Logger, opts ...Option) (*Logger, error) {
	l := Logger{
		sink:   sink,
		clock:  clk,
		logger: logger,
		size:   config.BufferSize,
	}

	if err := validator.Validate("mlog", l.sink, l.clock, l.logger); err != nil {
		return nil, fmt.Errorf("failed to validate mlog deps: %w", err)
	}
	if l.size <= 0 {
		return nil, fmt.Errorf("failed to create mlog: buffer size %d", l.size)
	}
	if config.BytesPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(config.BytesPerSecond), max(config.Burst, 1))
	}

	for _, opt := range opts {
		opt(&l)
	}
	l.logger = l.logger.Named("mlog")

	return &l, nil
}

// RegisterStartCallback adds fn to the callbacks run, in registration
// order, every time the logger starts.
func (l *Logger) RegisterStartCallback(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Start opens a new session and starts the writer. The start callbacks run
// after the logger accepts records, so they may push.
func (l *Logger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}

	l.running = true
	l.session = uuid.NewString()
	l.seq.Store(0)
	l.records = make(chan Record, l.size)
	l.done = make(chan struct{})
	callbacks := make([]func(), len(l.callbacks))
	copy(callbacks, l.callbacks)

	go l.write(context.WithoutCancel(ctx), l.records, l.done)
	l.mu.Unlock()

	l.logger.Info("telemetry session started", zap.String("session", l.Session()))

	for _, fn := range callbacks {
		fn()
	}

	return nil
}

// Stop stops accepting records and waits for the writer to drain what was
// already queued.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.running = false
	close(l.records)
	done := l.done
	l.mu.Unlock()

	<-done

	stats := l.Stats()
	l.logger.Info("telemetry session stopped",
		zap.String("session", l.Session()),
		zap.Uint64("written", stats.Written),
		zap.Uint64("dropped", stats.Dropped),
	)

	return nil
}

// Running reports whether the logger accepts records.
func (l *Logger) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// Session returns the ID of the current or last session.
func (l *Logger) Session() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.session
}

// Stats returns the running totals.
func (l *Logger) Stats() Stats {
	return Stats{
		Pushed:  l.pushed.Load(),
		Dropped: l.dropped.Load(),
		Written: l.written.Load(),
		Failed:  l.failed.Load(),
	}
}

// Push encodes payload little-endian and queues it. payload must be a
// fixed-size value or a pointer to one. Push never blocks.
func (l *Logger) Push(id MsgID, payload any) {
	l.pushed.Add(1)

	buf, err := binary.Append(nil, binary.LittleEndian, payload)
	if err != nil {
		l.logger.Error("failed to encode telemetry record", zap.Stringer("msg", id), zap.Error(err))
		l.drop(id)
		return
	}

	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.running {
		l.drop(id)
		return
	}
	if l.limiter != nil && !l.limiter.AllowN(now, len(buf)) {
		l.drop(id)
		return
	}

	rec := Record{
		Session:   l.session,
		Seq:       l.seq.Add(1),
		ID:        id,
		Timestamp: now,
		Payload:   buf,
	}

	select {
	case l.records <- rec:
	default:
		l.drop(id)
	}
}

func (l *Logger) drop(id MsgID) {
	l.dropped.Add(1)
	if l.drops != nil {
		l.drops.RecordLogDrop(id.String())
	}
}

func (l *Logger) write(ctx context.Context, records <-chan Record, done chan<- struct{}) {
	defer close(done)

	for rec := range records {
		if err := l.sink.Write(ctx, rec); err != nil {
			l.failed.Add(1)
			l.logger.Warn("failed to write telemetry record",
				zap.Stringer("msg", rec.ID),
				zap.Uint64("seq", rec.Seq),
				zap.Error(err),
			)
			continue
		}
		l.written.Add(1)
	}
}

// Decode unpacks a record payload into out, which must point to a value of
// the layout the record was pushed with.
func Decode(rec Record, out any) error {
	if _, err := binary.Decode(rec.Payload, binary.LittleEndian, out); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", rec.ID, err)
	}
	return nil
}
