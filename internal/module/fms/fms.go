// Package fms is the flight management driver. It turns pilot and ground
// station commands into attitude and throttle setpoints for the controller.
package fms

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/mlog"
	"flightbus/internal/module"
	"flightbus/internal/msg"
	"flightbus/internal/timetag"
	"flightbus/internal/workqueue"
)

// Name is the driver and work item name.
const Name = "fms"

// Group is the parameter group read by the driver.
const Group = "FMS"

const logPeriod = 100 * time.Millisecond

// DefaultParams are registered in Group at init.
var DefaultParams = map[string]float32{
	"THROTTLE_DZ":    0.15,
	"YAW_DZ":         0.15,
	"ROLL_DZ":        0.1,
	"PITCH_DZ":       0.1,
	"XY_P":           0.95,
	"Z_P":            1,
	"VEL_XY_LIM":     5,
	"VEL_Z_LIM":      2.5,
	"YAW_P":          2.5,
	"YAW_RATE_LIM":   1.0472,
	"ROLL_PITCH_LIM": 0.5236,
}

// Params is the typed view of Group.
type Params struct {
	ThrottleDZ   float32
	YawDZ        float32
	RollDZ       float32
	PitchDZ      float32
	XYP          float32
	ZP           float32
	VelXYLim     float32
	VelZLim      float32
	YawP         float32
	YawRateLim   float32
	RollPitchLim float32
}

func (p *Params) fields() map[string]*float32 {
	return map[string]*float32{
		"THROTTLE_DZ":    &p.ThrottleDZ,
		"YAW_DZ":         &p.YawDZ,
		"ROLL_DZ":        &p.RollDZ,
		"PITCH_DZ":       &p.PitchDZ,
		"XY_P":           &p.XYP,
		"Z_P":            &p.ZP,
		"VEL_XY_LIM":     &p.VelXYLim,
		"VEL_Z_LIM":      &p.VelZLim,
		"YAW_P":          &p.YawP,
		"YAW_RATE_LIM":   &p.YawRateLim,
		"ROLL_PITCH_LIM": &p.RollPitchLim,
	}
}

// Input is the model input, accumulated from the subscribed topics.
type Input struct {
	Pilot   msg.PilotCmd
	GCS     msg.GCSCmd
	INS     msg.INSOut
	Control msg.ControlOut
}

// Output is the model output.
type Output struct {
	FMS  msg.FMSOut
	Auto msg.AutoCmd
}

// Model is the flight management step function.
type Model interface {
	Info() module.ModelInfo
	Init()
	Step(in *Input, p *Params, out *Output)
}

// Driver runs a Model on the high priority queue.
type Driver struct {
	module.Base

	model  Model
	queue  string
	env    *module.Env
	logger *zap.Logger

	params Params
	in     Input
	out    Output

	fmsOut  *bus.Topic[msg.FMSOut]
	autoCmd *bus.Topic[msg.AutoCmd]

	pilotNode   *bus.Node[msg.PilotCmd]
	gcsNode     *bus.Node[msg.GCSCmd]
	insNode     *bus.Node[msg.INSOut]
	controlNode *bus.Node[msg.ControlOut]

	// set by the telemetry start callback, cleared by the step
	pilotUpdated atomic.Bool
	gcsUpdated   atomic.Bool

	logGate timetag.Gate
}

// New creates a driver stepping model on the given queue.
func New(model Model, queue string) *Driver {
	d := &Driver{
		model:   model,
		queue:   queue,
		logGate: timetag.New(logPeriod),
	}
	d.pilotUpdated.Store(true)
	d.gcsUpdated.Store(true)
	return d
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver.
func (d *Driver) Advertise(env *module.Env) error {
	var err error
	if d.fmsOut, err = bus.Advertise[msg.FMSOut](env.Bus, msg.TopicFMSOutput); err != nil {
		return err
	}
	if d.autoCmd, err = bus.Advertise[msg.AutoCmd](env.Bus, msg.TopicAutoCmd); err != nil {
		return err
	}
	return nil
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	var err error
	if d.pilotNode, err = bus.Subscribe[msg.PilotCmd](env.Bus, msg.TopicPilotCmd); err != nil {
		return err
	}
	if d.gcsNode, err = bus.Subscribe[msg.GCSCmd](env.Bus, msg.TopicGCSCmd); err != nil {
		return err
	}
	if d.insNode, err = bus.Subscribe[msg.INSOut](env.Bus, msg.TopicINSOutput); err != nil {
		return err
	}
	if d.controlNode, err = bus.Subscribe[msg.ControlOut](env.Bus, msg.TopicControlOutput); err != nil {
		return err
	}

	env.Telemetry.RegisterStartCallback(func() {
		d.pilotUpdated.Store(true)
		d.gcsUpdated.Store(true)
	})

	d.model.Init()

	if err := env.Params.Register(Group, DefaultParams); err != nil {
		return err
	}
	if err := d.updateParams(); err != nil {
		return err
	}

	info := d.model.Info()
	d.logger.Info("model loaded", zap.String("info", info.Description), zap.Duration("period", info.Period))

	return env.Schedule(d.queue, &workqueue.Item{
		Name:   Name,
		Period: info.Period,
		Runner: d.Step(d.step),
	})
}

func (d *Driver) updateParams() error {
	if err := module.ReadParams(d.env.Params, Group, d.params.fields()); err != nil {
		return fmt.Errorf("failed to read fms params: %w", err)
	}
	return nil
}

func (d *Driver) step(_ context.Context, now time.Time) {
	if d.env.OnlineTuning {
		if err := d.updateParams(); err != nil {
			d.logger.Warn("keeping previous parameters", zap.Error(err))
		}
	}

	ts := d.env.Millis(now)

	if module.Pull(d.pilotNode, &d.in.Pilot) {
		d.in.Pilot.Timestamp = ts
		d.pilotUpdated.Store(true)
	}
	if module.Pull(d.gcsNode, &d.in.GCS) {
		d.in.GCS.Timestamp = ts
		d.gcsUpdated.Store(true)
	}
	module.Pull(d.insNode, &d.in.INS)
	module.Pull(d.controlNode, &d.in.Control)

	d.model.Step(&d.in, &d.params, &d.out)
	d.out.FMS.Timestamp = ts
	d.out.Auto.Timestamp = ts

	d.fmsOut.Publish(d.out.FMS)
	d.autoCmd.Publish(d.out.Auto)

	if d.pilotUpdated.Swap(false) {
		d.env.Telemetry.Push(mlog.PilotCmdID, &d.in.Pilot)
	}
	if d.gcsUpdated.Swap(false) {
		d.env.Telemetry.Push(mlog.GCSCmdID, &d.in.GCS)
	}

	if d.logGate.Check(now) {
		d.env.Telemetry.Push(mlog.FMSOutID, &d.out.FMS)
	}
}
