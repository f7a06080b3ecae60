// Package control is the attitude and velocity controller driver. It turns
// flight manager setpoints and the navigation estimate into actuator
// commands.
package control

import (
	"context"
	"fmt"
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
const Name = "control"

// Group is the parameter group read by the driver.
const Group = "CONTROL"

const logPeriod = 100 * time.Millisecond

// DefaultParams are registered in Group at init.
var DefaultParams = map[string]float32{
	"VEL_XY_P":           1.4,
	"VEL_XY_I":           0.2,
	"VEL_XY_D":           0.2,
	"VEL_Z_P":            0.6,
	"VEL_Z_I":            0.1,
	"VEL_Z_D":            0,
	"VEL_XY_I_MIN":       -1,
	"VEL_XY_I_MAX":       1,
	"VEL_XY_D_MIN":       -1,
	"VEL_XY_D_MAX":       1,
	"VEL_Z_I_MIN":        -0.15,
	"VEL_Z_I_MAX":        0.15,
	"VEL_Z_D_MIN":        -0.1,
	"VEL_Z_D_MAX":        0.1,
	"ROLL_P":             7,
	"PITCH_P":            7,
	"ROLL_PITCH_CMD_LIM": 0.7854,
	"ROLL_RATE_P":        0.1,
	"PITCH_RATE_P":       0.1,
	"YAW_RATE_P":         0.15,
	"ROLL_RATE_I":        0.1,
	"PITCH_RATE_I":       0.1,
	"YAW_RATE_I":         0.2,
	"ROLL_RATE_D":        0.003,
	"PITCH_RATE_D":       0.003,
	"YAW_RATE_D":         0.001,
	"RATE_I_MIN":         -0.1,
	"RATE_I_MAX":         0.1,
	"RATE_D_MIN":         -0.1,
	"RATE_D_MAX":         0.1,
	"P_Q_CMD_LIM":        3.1416,
	"R_CMD_LIM":          1.5708,
}

// Params is the typed view of Group. The stand-in model uses the attitude
// and rate gains; the velocity loop gains are carried for replacement
// models.
type Params struct {
	VelXYP, VelXYI, VelXYD                     float32
	VelZP, VelZI, VelZD                        float32
	VelXYIMin, VelXYIMax, VelXYDMin, VelXYDMax float32
	VelZIMin, VelZIMax, VelZDMin, VelZDMax     float32
	RollP, PitchP, RollPitchCmdLim             float32
	RollRateP, PitchRateP, YawRateP            float32
	RollRateI, PitchRateI, YawRateI            float32
	RollRateD, PitchRateD, YawRateD            float32
	RateIMin, RateIMax, RateDMin, RateDMax     float32
	PQCmdLim, RCmdLim                          float32
}

func (p *Params) fields() map[string]*float32 {
	return map[string]*float32{
		"VEL_XY_P":           &p.VelXYP,
		"VEL_XY_I":           &p.VelXYI,
		"VEL_XY_D":           &p.VelXYD,
		"VEL_Z_P":            &p.VelZP,
		"VEL_Z_I":            &p.VelZI,
		"VEL_Z_D":            &p.VelZD,
		"VEL_XY_I_MIN":       &p.VelXYIMin,
		"VEL_XY_I_MAX":       &p.VelXYIMax,
		"VEL_XY_D_MIN":       &p.VelXYDMin,
		"VEL_XY_D_MAX":       &p.VelXYDMax,
		"VEL_Z_I_MIN":        &p.VelZIMin,
		"VEL_Z_I_MAX":        &p.VelZIMax,
		"VEL_Z_D_MIN":        &p.VelZDMin,
		"VEL_Z_D_MAX":        &p.VelZDMax,
		"ROLL_P":             &p.RollP,
		"PITCH_P":            &p.PitchP,
		"ROLL_PITCH_CMD_LIM": &p.RollPitchCmdLim,
		"ROLL_RATE_P":        &p.RollRateP,
		"PITCH_RATE_P":       &p.PitchRateP,
		"YAW_RATE_P":         &p.YawRateP,
		"ROLL_RATE_I":        &p.RollRateI,
		"PITCH_RATE_I":       &p.PitchRateI,
		"YAW_RATE_I":         &p.YawRateI,
		"ROLL_RATE_D":        &p.RollRateD,
		"PITCH_RATE_D":       &p.PitchRateD,
		"YAW_RATE_D":         &p.YawRateD,
		"RATE_I_MIN":         &p.RateIMin,
		"RATE_I_MAX":         &p.RateIMax,
		"RATE_D_MIN":         &p.RateDMin,
		"RATE_D_MAX":         &p.RateDMax,
		"P_Q_CMD_LIM":        &p.PQCmdLim,
		"R_CMD_LIM":          &p.RCmdLim,
	}
}

// Input is the model input.
type Input struct {
	FMS msg.FMSOut
	INS msg.INSOut
}

// Model is the controller step function.
type Model interface {
	Info() module.ModelInfo
	Init()
	Step(in *Input, p *Params, out *msg.ControlOut)
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
	out    msg.ControlOut

	controlOut *bus.Topic[msg.ControlOut]
	fmsNode    *bus.Node[msg.FMSOut]
	insNode    *bus.Node[msg.INSOut]

	logGate timetag.Gate
}

// New creates a driver stepping model on the given queue.
func New(model Model, queue string) *Driver {
	return &Driver{
		model:   model,
		queue:   queue,
		logGate: timetag.New(logPeriod),
	}
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver. The output topic carries an echo tap
// that prints actuator commands at debug level.
func (d *Driver) Advertise(env *module.Env) error {
	logger := env.Logger.Named(Name)

	var err error
	d.controlOut, err = bus.Advertise(env.Bus, msg.TopicControlOutput, bus.WithEcho(func(out msg.ControlOut) {
		if ce := logger.Check(zap.DebugLevel, "control output"); ce != nil {
			ce.Write(
				zap.Uint32("timestamp", out.Timestamp),
				zap.Uint16s("actuator", out.ActuatorCmd[:4]),
			)
		}
	}))
	return err
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	var err error
	if d.fmsNode, err = bus.Subscribe[msg.FMSOut](env.Bus, msg.TopicFMSOutput); err != nil {
		return err
	}
	if d.insNode, err = bus.Subscribe[msg.INSOut](env.Bus, msg.TopicINSOutput); err != nil {
		return err
	}

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
		return fmt.Errorf("failed to read control params: %w", err)
	}
	return nil
}

func (d *Driver) step(_ context.Context, now time.Time) {
	if d.env.OnlineTuning {
		if err := d.updateParams(); err != nil {
			d.logger.Warn("keeping previous parameters", zap.Error(err))
		}
	}

	module.Pull(d.fmsNode, &d.in.FMS)
	module.Pull(d.insNode, &d.in.INS)

	d.model.Step(&d.in, &d.params, &d.out)
	d.out.Timestamp = d.env.Millis(now)

	d.controlOut.Publish(d.out)

	if d.logGate.Check(now) {
		d.env.Telemetry.Push(mlog.ControlOutID, &d.out)
	}
}
