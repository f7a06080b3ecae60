// Package ins is the navigation driver. It fuses the sensor topics into
// the attitude, rate and position estimate published on ins_output.
package ins

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/module"
	"flightbus/internal/msg"
	"flightbus/internal/workqueue"
)

// Name is the driver and work item name.
const Name = "ins"

// Input is the latest sample of every sensor, with a flag per sensor set
// when the sample arrived this step.
type Input struct {
	IMU  msg.IMU
	Mag  msg.Mag
	Baro msg.Baro
	GPS  msg.GPS

	IMUUpdated, MagUpdated, BaroUpdated, GPSUpdated bool
}

// Model is the estimator step function.
type Model interface {
	Info() module.ModelInfo
	Init()
	Step(in *Input, out *msg.INSOut)
}

// Driver runs a Model on the high priority queue.
type Driver struct {
	module.Base

	model  Model
	queue  string
	env    *module.Env
	logger *zap.Logger

	in  Input
	out msg.INSOut

	insOut   *bus.Topic[msg.INSOut]
	imuNode  *bus.Node[msg.IMU]
	magNode  *bus.Node[msg.Mag]
	baroNode *bus.Node[msg.Baro]
	gpsNode  *bus.Node[msg.GPS]
}

// New creates a driver stepping model on the given queue.
func New(model Model, queue string) *Driver {
	return &Driver{
		model: model,
		queue: queue,
	}
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver.
func (d *Driver) Advertise(env *module.Env) error {
	var err error
	d.insOut, err = bus.Advertise[msg.INSOut](env.Bus, msg.TopicINSOutput)
	return err
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	var err error
	if d.imuNode, err = bus.Subscribe[msg.IMU](env.Bus, msg.TopicSensorIMU); err != nil {
		return err
	}
	if d.magNode, err = bus.Subscribe[msg.Mag](env.Bus, msg.TopicSensorMag); err != nil {
		return err
	}
	if d.baroNode, err = bus.Subscribe[msg.Baro](env.Bus, msg.TopicSensorBaro); err != nil {
		return err
	}
	if d.gpsNode, err = bus.Subscribe[msg.GPS](env.Bus, msg.TopicSensorGPS); err != nil {
		return err
	}

	d.model.Init()

	info := d.model.Info()
	d.logger.Info("model loaded", zap.String("info", info.Description), zap.Duration("period", info.Period))

	return env.Schedule(d.queue, &workqueue.Item{
		Name:   Name,
		Period: info.Period,
		Runner: d.Step(d.step),
	})
}

func (d *Driver) step(_ context.Context, now time.Time) {
	d.in.IMUUpdated = module.Pull(d.imuNode, &d.in.IMU)
	d.in.MagUpdated = module.Pull(d.magNode, &d.in.Mag)
	d.in.BaroUpdated = module.Pull(d.baroNode, &d.in.Baro)
	d.in.GPSUpdated = module.Pull(d.gpsNode, &d.in.GPS)

	d.model.Step(&d.in, &d.out)
	d.out.Timestamp = d.env.Millis(now)

	d.insOut.Publish(d.out)
}
