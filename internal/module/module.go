// Package module is the contract every driver implements against the bus,
// the work queues and the parameter table.
//
// A driver advertises its outputs, subscribes to its inputs, reads its
// parameters and schedules one or more work items. InitAll advertises for
// every driver before any driver subscribes, so drivers that feed each
// other (the flight manager and the controller) initialise in any order.
package module

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/metrics"
	"flightbus/internal/mlog"
	"flightbus/internal/msg"
	"flightbus/internal/param"
	"flightbus/internal/tracing"
	"flightbus/internal/validator"
	"flightbus/internal/workqueue"
)

var ErrInvalidState = errors.New("invalid driver state")

// State is a driver's lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Initialized
	Running
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Telemetry is the part of the telemetry logger drivers use.
type Telemetry interface {
	Push(id mlog.MsgID, payload any)
	RegisterStartCallback(fn func())
}

// ModelInfo describes an opaque step function.
type ModelInfo struct {
	Period      time.Duration
	Description string
}

// Env is everything a driver may touch during init.
type Env struct {
	Bus       *bus.Registry
	Params    *param.Table
	Telemetry Telemetry
	Queues    *workqueue.Manager
	Clock     clock.Clock
	Logger    *zap.Logger
	// Boot is time zero for record timestamps.
	Boot time.Time
	// OnlineTuning makes drivers re-read their parameters every step.
	OnlineTuning bool

	// Optional work item instrumentation.
	Metrics *metrics.Registry
	Tracer  *tracing.Tracer

	// every item placed by Schedule, in order
	scheduled []*workqueue.Item
}

// Validate checks the required fields.
func (e *Env) Validate() error {
	if err := validator.Validate("module env", e.Bus, e.Params, e.Telemetry, e.Queues, e.Clock, e.Logger); err != nil {
		return fmt.Errorf("failed to validate module env: %w", err)
	}
	return nil
}

// Millis returns the record timestamp of now.
func (e *Env) Millis(now time.Time) uint32 {
	return msg.Millis(e.Boot, now)
}

// Schedule places it on the named queue, wrapping its runner with the
// configured instrumentation.
func (e *Env) Schedule(queue string, it *workqueue.Item) error {
	q, err := e.Queues.Find(queue)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", it.Name, err)
	}

	if e.Metrics != nil {
		it.Runner = workqueue.NewMetricsRunner(it.Runner, e.Metrics, e.Clock, queue, it.Name)
	}
	if e.Tracer != nil {
		it.Runner = workqueue.NewTracedRunner(it.Runner, e.Tracer, queue, it.Name, it.Period)
	}

	if err := q.Schedule(it); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", it.Name, err)
	}
	e.scheduled = append(e.scheduled, it)
	return nil
}

// unschedule cancels every item scheduled after the first mark items.
func (e *Env) unschedule(mark int) {
	for _, it := range e.scheduled[mark:] {
		if q := it.Queue(); q != nil {
			if err := q.Cancel(it); err != nil {
				e.Logger.Warn("failed to cancel work item", zap.String("item", it.Name), zap.Error(err))
			}
		}
	}
	e.scheduled = e.scheduled[:mark]
}

// Driver is a module driver. Implementations embed Base.
type Driver interface {
	Name() string
	State() State
	// Advertise registers the driver's output topics.
	Advertise(env *Env) error
	// Init subscribes to inputs, reads parameters and schedules work.
	Init(env *Env) error

	base() *Base
}

// Base carries the lifecycle shared by every driver.
type Base struct {
	state atomic.Int32
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	return State(b.state.Load())
}

func (b *Base) base() *Base {
	return b
}

// Step wraps fn so the driver enters Running on its first step.
func (b *Base) Step(fn func(ctx context.Context, now time.Time)) workqueue.Runner {
	return workqueue.RunnerFunc(func(ctx context.Context, now time.Time) {
		b.state.CompareAndSwap(int32(Initialized), int32(Running))
		fn(ctx, now)
	})
}

// InitAll runs Advertise on every driver, then Init on every driver. The
// first failure aborts: work items scheduled by this call are cancelled and
// every driver is back in Uninitialized. Advertised topics and subscribed
// nodes stay in the registry; advertising again is harmless.
func InitAll(env *Env, drivers ...Driver) error {
	if err := env.Validate(); err != nil {
		return err
	}

	for _, d := range drivers {
		if d.State() != Uninitialized {
			return fmt.Errorf("driver %s is %s: %w", d.Name(), d.State(), ErrInvalidState)
		}
		if err := d.Advertise(env); err != nil {
			return fmt.Errorf("failed to advertise %s: %w", d.Name(), err)
		}
	}

	mark := len(env.scheduled)
	for i, d := range drivers {
		if err := d.Init(env); err != nil {
			env.unschedule(mark)
			for _, done := range drivers[:i] {
				done.base().state.Store(int32(Uninitialized))
			}
			return fmt.Errorf("failed to init %s: %w", d.Name(), err)
		}
		d.base().state.Store(int32(Initialized))
		env.Logger.Info("driver initialized", zap.String("driver", d.Name()))
	}

	return nil
}

// ReadParams copies every named parameter of group into the float32
// fields the map points to.
func ReadParams(t *param.Table, group string, fields map[string]*float32) error {
	for name, dst := range fields {
		v, err := t.GetFloat(group, name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// Pull copies the latest record of n into out when the topic was published
// since the last copy, and reports whether it did. out keeps its previous
// value otherwise.
func Pull[T any](n *bus.Node[T], out *T) bool {
	if !n.Poll() {
		return false
	}
	return n.Copy(out) == nil
}
