// Package plant is the simulation-in-hardware plant driver. It feeds the
// controller's actuator commands to a vehicle model and publishes the
// model's sensor samples, closing the loop without hardware.
package plant

import (
	"context"
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
const Name = "plant"

const logPeriod = 100 * time.Millisecond

// Output is the model output. Each sensor sample carries the model time of
// its last update in TimestampMs; the driver publishes a sensor only when
// that changes.
type Output struct {
	States msg.PlantStates
	IMU    msg.IMU
	Mag    msg.Mag
	Baro   msg.Baro
	GPS    msg.GPS
}

// Model is the vehicle dynamics and sensor model.
type Model interface {
	Info() module.ModelInfo
	Init()
	Step(in *msg.ControlOut, out *Output)
}

// Driver runs a Model on the high priority queue.
type Driver struct {
	module.Base

	model  Model
	queue  string
	env    *module.Env
	logger *zap.Logger

	in  msg.ControlOut
	out Output

	controlNode *bus.Node[msg.ControlOut]
	imu         *bus.Topic[msg.IMU]
	mag         *bus.Topic[msg.Mag]
	baro        *bus.Topic[msg.Baro]
	gps         *bus.Topic[msg.GPS]

	// model timestamps of the last published samples
	imuStamp, magStamp, baroStamp, gpsStamp uint32

	logGate timetag.Gate
}

// New creates a driver stepping model on the given queue.
func New(model Model, queue string) *Driver {
	const unset = 0xFFFF
	return &Driver{
		model:     model,
		queue:     queue,
		imuStamp:  unset,
		magStamp:  unset,
		baroStamp: unset,
		gpsStamp:  unset,
		logGate:   timetag.New(logPeriod),
	}
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver.
func (d *Driver) Advertise(env *module.Env) error {
	var err error
	if d.imu, err = bus.Advertise[msg.IMU](env.Bus, msg.TopicSensorIMU); err != nil {
		return err
	}
	if d.mag, err = bus.Advertise[msg.Mag](env.Bus, msg.TopicSensorMag); err != nil {
		return err
	}
	if d.baro, err = bus.Advertise[msg.Baro](env.Bus, msg.TopicSensorBaro); err != nil {
		return err
	}
	if d.gps, err = bus.Advertise[msg.GPS](env.Bus, msg.TopicSensorGPS); err != nil {
		return err
	}
	return nil
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	var err error
	if d.controlNode, err = bus.Subscribe[msg.ControlOut](env.Bus, msg.TopicControlOutput); err != nil {
		d.logger.Error("control_output subscribe failed", zap.Error(err))
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
	module.Pull(d.controlNode, &d.in)

	d.model.Step(&d.in, &d.out)

	if d.logGate.Check(now) {
		d.env.Telemetry.Push(mlog.PlantStateID, &d.out.States)
	}

	d.publishSensors(d.env.Millis(now))
}

// publishSensors stamps fresh samples with the step time.
func (d *Driver) publishSensors(ts uint32) {
	if d.out.IMU.TimestampMs != d.imuStamp {
		d.imuStamp = d.out.IMU.TimestampMs
		imu := d.out.IMU
		imu.TimestampMs = ts
		d.imu.Publish(imu)
	}

	if d.out.Mag.TimestampMs != d.magStamp {
		d.magStamp = d.out.Mag.TimestampMs
		mag := d.out.Mag
		mag.TimestampMs = ts
		d.mag.Publish(mag)
	}

	if d.out.Baro.TimestampMs != d.baroStamp {
		d.baroStamp = d.out.Baro.TimestampMs
		baro := d.out.Baro
		baro.TimestampMs = ts
		d.baro.Publish(baro)
	}

	if d.out.GPS.TimestampMs != d.gpsStamp {
		d.gpsStamp = d.out.GPS.TimestampMs
		gps := d.out.GPS
		gps.TimestampMs = ts
		d.gps.Publish(gps)
	}
}
