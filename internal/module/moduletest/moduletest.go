// Package moduletest builds driver environments on a mock clock.
package moduletest

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/mlog"
	"flightbus/internal/module"
	"flightbus/internal/param"
	"flightbus/internal/workqueue"
)

// Push is one recorded telemetry push.
type Push struct {
	ID      mlog.MsgID
	Payload any
}

// Telemetry records pushes instead of logging them.
type Telemetry struct {
	mu        sync.Mutex
	pushes    []Push
	callbacks []func()
}

// Push implements module.Telemetry. Pointer payloads are copied, as the
// real logger encodes them before returning.
func (t *Telemetry) Push(id mlog.MsgID, payload any) {
	if v := reflect.ValueOf(payload); v.Kind() == reflect.Pointer && !v.IsNil() {
		payload = v.Elem().Interface()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushes = append(t.pushes, Push{ID: id, Payload: payload})
}

// Pushes returns the recorded pushes of id.
func (t *Telemetry) Pushes(id mlog.MsgID) []Push {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Push
	for _, p := range t.pushes {
		if p.ID == id {
			out = append(out, p)
		}
	}
	return out
}

// RegisterStartCallback implements module.Telemetry.
func (t *Telemetry) RegisterStartCallback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// Restart runs the start callbacks as a logger restart would.
func (t *Telemetry) Restart() {
	t.mu.Lock()
	callbacks := append([]func(){}, t.callbacks...)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Count returns how many records of id were pushed.
func (t *Telemetry) Count(id mlog.MsgID) int {
	return len(t.Pushes(id))
}

// Env is a driver environment on a mock clock.
type Env struct {
	*module.Env
	Clock     *clock.Mock
	Telemetry *Telemetry
}

// NewEnv creates an environment with the default queues.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	clk := clock.NewMock()
	logger := zap.NewNop()

	queues, err := workqueue.NewManager(clk, logger)
	require.NoError(t, err)
	require.NoError(t, queues.CreateDefaultQueues(time.Millisecond))

	tel := &Telemetry{}
	return &Env{
		Env: &module.Env{
			Bus:       bus.NewRegistry(logger),
			Params:    param.NewTable(logger),
			Telemetry: tel,
			Queues:    queues,
			Clock:     clk,
			Logger:    logger,
			Boot:      clk.Now(),
		},
		Clock:     clk,
		Telemetry: tel,
	}
}

// Advance steps the clock by step until d has passed, dispatching every
// queue before each step.
func (e *Env) Advance(d, step time.Duration) {
	ctx := context.Background()
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		e.Queues.Tick(ctx)
		e.Clock.Add(step)
	}
}
