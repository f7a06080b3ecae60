package mlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flightbus/internal/metrics"
	"flightbus/internal/msg"
)

func newLogger(t *testing.T, sink Sink, config Config, opts ...Option) (*Logger, *clock.Mock) {
	t.Helper()
	if config.BufferSize == 0 {
		config.BufferSize = 16
	}
	clk := clock.NewMock()
	l, err := New(sink, config, clk, zap.NewNop(), opts...)
	require.NoError(t, err)
	return l, clk
}

func TestPushRoundTrip(t *testing.T) {
	sink := NewMemorySink()
	l, _ := newLogger(t, sink, Config{})
	require.NoError(t, l.Start(context.Background()))

	out := msg.ControlOut{Timestamp: 42}
	out.ActuatorCmd[0] = 1500
	out.ActuatorCmd[3] = 1100
	l.Push(ControlOutID, &out)

	require.NoError(t, l.Stop())

	recs := sink.ByID(ControlOutID)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, l.Session(), recs[0].Session)

	var got msg.ControlOut
	require.NoError(t, Decode(recs[0], &got))
	assert.Equal(t, out, got)
}

func TestPushWhileStoppedIsDropped(t *testing.T) {
	sink := NewMemorySink()
	l, _ := newLogger(t, sink, Config{})

	l.Push(FMSOutID, msg.FMSOut{})
	assert.Equal(t, uint64(1), l.Stats().Dropped)
	assert.Empty(t, sink.Records())

	assert.ErrorIs(t, l.Stop(), ErrNotRunning)
}

func TestPushRejectsVariableSize(t *testing.T) {
	l, _ := newLogger(t, NewMemorySink(), Config{})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	l.Push(FMSOutID, []any{"not", "fixed"})
	assert.Equal(t, uint64(1), l.Stats().Dropped)
}

func TestStartCallbacksRunInOrderOnEveryStart(t *testing.T) {
	sink := NewMemorySink()
	l, _ := newLogger(t, sink, Config{})

	var calls []string
	l.RegisterStartCallback(func() { calls = append(calls, "fms") })
	l.RegisterStartCallback(func() {
		calls = append(calls, "control")
		// callbacks run after the logger accepts records
		l.Push(PilotCmdID, msg.PilotCmd{})
	})

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	first := l.Session()
	assert.ErrorIs(t, l.Start(ctx), ErrRunning)
	require.NoError(t, l.Stop())

	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Stop())

	assert.Equal(t, []string{"fms", "control", "fms", "control"}, calls)
	assert.NotEqual(t, first, l.Session())
	assert.Len(t, sink.ByID(PilotCmdID), 2)
}

func TestBandwidthBudget(t *testing.T) {
	registry := metrics.NewRegistry()
	sink := NewMemorySink()
	size := len(mustEncode(t, msg.ControlOut{}))

	// room for two records per second
	l, clk := newLogger(t, sink, Config{BytesPerSecond: 2 * size, Burst: 2 * size}, WithDropRecorder(registry))
	require.NoError(t, l.Start(context.Background()))

	for i := 0; i < 5; i++ {
		l.Push(ControlOutID, msg.ControlOut{Timestamp: uint32(i)})
	}
	clk.Add(time.Second)
	l.Push(ControlOutID, msg.ControlOut{Timestamp: 99})

	require.NoError(t, l.Stop())

	assert.Len(t, sink.Records(), 3)
	assert.Equal(t, uint64(3), l.Stats().Dropped)
	assert.Equal(t, uint64(3), l.Stats().Written)

	count, err := testutil.GatherAndCount(registry.Gatherer(), "flightbus_mlog_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFullBufferDrops(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Record) error {
		<-block
		return nil
	})

	l, _ := newLogger(t, sink, Config{BufferSize: 2})
	require.NoError(t, l.Start(context.Background()))

	for i := 0; i < 10; i++ {
		l.Push(GCSCmdID, msg.GCSCmd{})
	}
	close(block)
	require.NoError(t, l.Stop())

	stats := l.Stats()
	assert.Equal(t, uint64(10), stats.Pushed)
	assert.Equal(t, stats.Pushed, stats.Written+stats.Dropped)
	assert.GreaterOrEqual(t, stats.Dropped, uint64(7))
}

func TestSinkErrorsAreCounted(t *testing.T) {
	registry := metrics.NewRegistry()
	failing := sinkFunc(func(context.Context, Record) error { return errors.New("disk full") })

	l, _ := newLogger(t, NewMetricsSink(failing, registry, ""), Config{})
	require.NoError(t, l.Start(context.Background()))
	l.Push(PlantStateID, msg.PlantStates{})
	require.NoError(t, l.Stop())

	assert.Equal(t, uint64(1), l.Stats().Failed)
	count, err := testutil.GatherAndCount(registry.Gatherer(), "flightbus_mlog_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMsgIDString(t *testing.T) {
	assert.Equal(t, "fms_out", FMSOutID.String())
	assert.Equal(t, "msg_200", MsgID(200).String())
	assert.Equal(t, "mlog::abc::7", DocumentKey("abc", 7))
}

type sinkFunc func(ctx context.Context, rec Record) error

func (f sinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	sink := NewMemorySink()
	l, _ := newLogger(t, sink, Config{})
	require.NoError(t, l.Start(context.Background()))
	l.Push(ControlOutID, v)
	require.NoError(t, l.Stop())
	require.Len(t, sink.Records(), 1)
	return sink.Records()[0].Payload
}

func TestSessionsAreSeparated(t *testing.T) {
	sink := NewMemorySink()
	var _ SessionStore = sink
	l, _ := newLogger(t, sink, Config{})
	ctx := context.Background()

	require.NoError(t, l.Start(ctx))
	l.Push(GCSCmdID, msg.GCSCmd{Cmd1: msg.CmdArm})
	l.Push(GCSCmdID, msg.GCSCmd{Cmd1: msg.CmdDisarm})
	require.NoError(t, l.Stop())
	first := l.Session()

	require.NoError(t, l.Start(ctx))
	l.Push(GCSCmdID, msg.GCSCmd{})
	require.NoError(t, l.Stop())
	second := l.Session()
	require.NotEqual(t, first, second)

	recs, err := sink.Session(ctx, first)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []uint64{1, 2}, []uint64{recs[0].Seq, recs[1].Seq})

	n, err := sink.DeleteSession(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = sink.Session(ctx, first)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	recs, err = sink.Session(ctx, second)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
