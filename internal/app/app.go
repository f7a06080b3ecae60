// Package app wires the bus, work queues, parameters, telemetry and module
// drivers into a runnable flight stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchbase/gocb/v2"
	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flightbus/internal/bus"
	"flightbus/internal/couchbase"
	"flightbus/internal/metrics"
	"flightbus/internal/mlog"
	"flightbus/internal/module"
	"flightbus/internal/module/control"
	"flightbus/internal/module/fms"
	"flightbus/internal/module/gcs"
	"flightbus/internal/module/ins"
	"flightbus/internal/module/led"
	"flightbus/internal/module/plant"
	"flightbus/internal/module/rc"
	"flightbus/internal/param"
	"flightbus/internal/tracing"
	"flightbus/internal/validator"
	"flightbus/internal/workqueue"
)

// Version is reported in the system info metric.
var Version = "dev"

// Couchbase collections.
const (
	paramCollection     = "params"
	telemetryCollection = "telemetry"
)

// App is a fully initialized flight stack.
type App struct {
	config Config
	logger *zap.Logger

	Bus       *bus.Registry
	Queues    *workqueue.Manager
	Params    *param.Table
	Telemetry *mlog.Logger
	Metrics   *metrics.Registry
	Tracer    *tracing.Tracer

	// Radio feeds the rc driver; GCS accepts ground station commands.
	Radio *rc.ScriptedSource
	GCS   *gcs.Driver
	LED   led.Device

	env      *module.Env
	store    param.Store
	sessions mlog.SessionStore
	drivers  []module.Driver
	server   *metrics.Server
	cluster  *gocb.Cluster
	cleanup  func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	sink   mlog.Sink
	device led.Device
	script []Stick
}

// WithSink sends telemetry to sink instead of the configured backend.
func WithSink(sink mlog.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithDevice drives device instead of a logging LED.
func WithDevice(device led.Device) Option {
	return func(o *options) {
		o.device = device
	}
}

// WithScript replays script on the radio instead of DefaultScript.
func WithScript(script []Stick) Option {
	return func(o *options) {
		o.script = script
	}
}

// New builds every component and initializes the drivers. Nothing runs
// until Start or Run.
func New(ctx context.Context, config Config, clk clock.Clock, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if err := validator.Validate("app", clk, logger); err != nil {
		return nil, fmt.Errorf("failed to validate app deps: %w", err)
	}

	o := options{script: DefaultScript()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		config:  config,
		logger:  logger,
		Bus:     bus.NewRegistry(logger),
		Params:  param.NewTable(logger),
		Metrics: metrics.NewRegistry(),
	}
	a.Metrics.SetSystemInfo(Version, clk.Now().Format(time.RFC3339))
	if err := a.Metrics.RegisterBus(a.Bus); err != nil {
		return nil, fmt.Errorf("failed to register bus metrics: %w", err)
	}

	tracer, cleanup, err := tracing.NewTracer(config.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.Tracer, a.cleanup = tracer, cleanup
	defer func() {
		if err == nil {
			return
		}
		logger.Info("releasing resources after failed init", zap.Error(err))
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("failed to release resources", zap.Error(cerr))
		}
	}()

	a.Queues, err = workqueue.NewManager(clk, logger, workqueue.WithObserver(a.Metrics))
	if err != nil {
		return nil, err
	}
	if err := a.Queues.CreateDefaultQueues(config.QueueTick); err != nil {
		return nil, err
	}

	if needsCouchbase(config) {
		if a.cluster, err = a.connect(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.loadParams(ctx); err != nil {
		return nil, err
	}

	sink, operation := o.sink, ""
	if sink == nil {
		if sink, operation, err = a.newSink(); err != nil {
			return nil, err
		}
	}
	if sessions, ok := sink.(mlog.SessionStore); ok {
		a.sessions = sessions
	}
	a.Telemetry, err = mlog.New(
		mlog.NewMetricsSink(sink, a.Metrics, operation),
		config.Telemetry,
		clk,
		logger,
		mlog.WithDropRecorder(a.Metrics),
	)
	if err != nil {
		return nil, err
	}

	a.LED = o.device
	if a.LED == nil {
		a.LED = led.NewLogDevice(logger)
	}
	a.Radio = rc.NewScriptedSource()
	a.GCS = gcs.New(workqueue.LPWork)

	a.drivers = []module.Driver{
		rc.New(a.Radio, workqueue.HPWork),
		a.GCS,
		fms.New(fms.NewBaseModel(), workqueue.HPWork),
		control.New(control.NewBaseModel(), workqueue.HPWork),
		plant.New(plant.NewBaseModel(), workqueue.HPWork),
		ins.New(ins.NewBaseModel(), workqueue.HPWork),
		led.New(a.LED, led.Config{
			LPQueue: workqueue.LPWork,
			HPQueue: workqueue.HPWork,
			RGB:     config.RGBLED,
		}),
	}

	a.env = &module.Env{
		Bus:          a.Bus,
		Params:       a.Params,
		Telemetry:    a.Telemetry,
		Queues:       a.Queues,
		Clock:        clk,
		Logger:       logger,
		Boot:         clk.Now(),
		OnlineTuning: config.OnlineTuning,
		Metrics:      a.Metrics,
		Tracer:       a.Tracer,
	}
	if err := module.InitAll(a.env, a.drivers...); err != nil {
		return nil, err
	}

	if err := a.env.Schedule(workqueue.LPWork, &workqueue.Item{
		Name:   "transmitter",
		Period: TransmitterPeriod,
		Runner: NewTransmitter(a.Radio, o.script),
	}); err != nil {
		return nil, err
	}

	if config.Serve {
		a.server = metrics.NewServer(config.Metrics, a.Metrics, a.Bus, logger)
	}

	logger.Info("flight stack initialized",
		zap.Int("drivers", len(a.drivers)),
		zap.Int("topics", a.Bus.Len()),
		zap.Strings("param_groups", a.Params.Groups()),
	)

	return a, nil
}

// Env is the environment the drivers were initialized with.
func (a *App) Env() *module.Env {
	return a.env
}

// Drivers returns the drivers in init order.
func (a *App) Drivers() []module.Driver {
	return a.drivers
}

func needsCouchbase(config Config) bool {
	return config.ParamStore == BackendCouchbase || config.TelemetrySink == BackendCouchbase
}

// connect dials the cluster, retrying with exponential backoff while it
// comes up.
func (a *App) connect(ctx context.Context) (*gocb.Cluster, error) {
	var cluster *gocb.Cluster

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.config.CouchbaseConnectRetries),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		var err error
		cluster, _, err = couchbase.Connect(a.config.Couchbase)
		return err
	}, policy, func(err error, wait time.Duration) {
		a.logger.Warn("couchbase not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to couchbase: %w", err)
	}

	return cluster, nil
}

// loadParams registers every driver's defaults, applies the parameter file
// and syncs with the configured store, so drivers read the final values
// during init.
func (a *App) loadParams(ctx context.Context) error {
	if err := a.Params.Register(fms.Group, fms.DefaultParams); err != nil {
		return err
	}
	if err := a.Params.Register(control.Group, control.DefaultParams); err != nil {
		return err
	}

	if a.config.ParamFile != "" {
		if err := a.Params.LoadFile(a.config.ParamFile); err != nil {
			return err
		}
	}

	var store param.Store
	switch a.config.ParamStore {
	case BackendMemory, "":
		return nil
	case BackendCouchbase:
		docs, err := couchbase.NewStore[param.Document](a.cluster, a.cluster.Bucket(a.config.Couchbase.Bucket), a.config.Couchbase.Scope, paramCollection)
		if err != nil {
			return err
		}
		transactions, err := couchbase.NewTransactions(a.cluster, 0)
		if err != nil {
			return err
		}
		if store, err = param.NewCouchbaseStore(docs, transactions); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown parameter store %q", a.config.ParamStore)
	}

	a.store = param.NewTracedStore(param.NewMetricsStore(store, a.Metrics), a.Tracer)
	if err := param.Sync(ctx, a.store, a.Params); err != nil {
		return fmt.Errorf("failed to sync parameters: %w", err)
	}
	return nil
}

// ErrNoStore is returned by SaveParams when parameters live only in memory.
var ErrNoStore = errors.New("no parameter store configured")

// SaveParams writes every parameter group to the configured store.
func (a *App) SaveParams(ctx context.Context) error {
	if a.store == nil {
		return ErrNoStore
	}

	for group, values := range a.Params.Snapshot() {
		if err := a.store.Save(ctx, group, values); err != nil {
			return fmt.Errorf("failed to save parameter group %s: %w", group, err)
		}
	}
	return nil
}

// ResetParams deletes groups from the configured store and restores their
// defaults in the table.
func (a *App) ResetParams(ctx context.Context, groups ...string) error {
	if a.store == nil {
		return ErrNoStore
	}

	for _, group := range groups {
		if err := a.store.Delete(ctx, group); err != nil {
			return fmt.Errorf("failed to delete parameter group %s: %w", group, err)
		}
		if err := a.Params.Reset(group); err != nil {
			return err
		}
	}
	return nil
}

// ErrNoSessions is returned when the telemetry sink cannot replay sessions.
var ErrNoSessions = errors.New("telemetry sink does not keep sessions")

// Session returns the records of a telemetry session in sequence order.
func (a *App) Session(ctx context.Context, session string) ([]mlog.Record, error) {
	if a.sessions == nil {
		return nil, ErrNoSessions
	}
	return a.sessions.Session(ctx, session)
}

// DeleteSession removes a telemetry session and reports how many records
// were deleted.
func (a *App) DeleteSession(ctx context.Context, session string) (int, error) {
	if a.sessions == nil {
		return 0, ErrNoSessions
	}
	return a.sessions.DeleteSession(ctx, session)
}

// newSink builds the configured sink and the database operation its writes
// are recorded under.
func (a *App) newSink() (mlog.Sink, string, error) {
	switch a.config.TelemetrySink {
	case BackendZap, "":
		return mlog.NewZapSink(a.logger), "", nil
	case BackendMemory:
		return mlog.NewMemorySink(), "", nil
	case BackendCouchbase:
		docs, err := couchbase.NewStore[mlog.Document](a.cluster, a.cluster.Bucket(a.config.Couchbase.Bucket), a.config.Couchbase.Scope, telemetryCollection)
		if err != nil {
			return nil, "", err
		}
		sink, err := mlog.NewCouchbaseSink(docs)
		return sink, "telemetry_write", err
	default:
		return nil, "", fmt.Errorf("unknown telemetry sink %q", a.config.TelemetrySink)
	}
}

// Start opens a telemetry session.
func (a *App) Start(ctx context.Context) error {
	if err := a.Telemetry.Start(ctx); err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}
	return nil
}

// Run starts telemetry, then runs the work queues and the metrics server
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			return a.server.Start(gctx)
		})
		a.logger.Info("metrics server started",
			zap.String("endpoint", fmt.Sprintf("http://localhost%s/metrics", a.server.Addr())),
			zap.String("topics", fmt.Sprintf("http://localhost%s/topics", a.server.Addr())),
		)
	}
	g.Go(func() error {
		return a.Queues.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close stops telemetry and releases external resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Telemetry != nil && a.Telemetry.Running() {
		if err := a.Telemetry.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cleanup != nil {
		if err := a.cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to cleanup tracing: %w", err))
		}
	}
	if a.cluster != nil {
		if err := a.cluster.Close(nil); err != nil {
			errs = append(errs, fmt.Errorf("failed to close couchbase: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Step advances clk by d one queue tick at a time, dispatching every queue
// before each tick. It drives the stack deterministically in place of Run.
func (a *App) Step(ctx context.Context, clk *clock.Mock, d time.Duration) {
	tick := a.config.QueueTick
	if tick <= 0 {
		tick = time.Millisecond
	}

	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		if ctx.Err() != nil {
			return
		}
		a.Queues.Tick(ctx)
		clk.Add(tick)
	}
}
