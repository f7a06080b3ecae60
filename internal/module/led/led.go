// Package led drives the board status LEDs: a heartbeat on the low
// priority queue and, when an RGB LED is fitted, a breathing light on the
// high priority queue whose colour follows the vehicle status.
package led

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/module"
	"flightbus/internal/msg"
	"flightbus/internal/timetag"
	"flightbus/internal/workqueue"
)

// Name is the driver name.
const Name = "led"

// Work item names and periods.
const (
	LEDItem      = "led"
	LEDPeriod    = 1000 * time.Millisecond
	RGBItem      = "rgb_led"
	RGBPeriod    = 10 * time.Millisecond
	maxBright    = 16
	minBright    = 0
	dimPeriod    = 150 * time.Millisecond
	brightPeriod = 250 * time.Millisecond
	rampPeriod   = 50 * time.Millisecond
)

// Config selects the queues and whether an RGB LED is fitted.
type Config struct {
	LPQueue string
	HPQueue string
	RGB     bool
}

// Driver runs the LED work items.
type Driver struct {
	module.Base

	config Config
	device Device
	env    *module.Env
	logger *zap.Logger

	fmsNode *bus.Node[msg.FMSOut]

	// breathing state, owned by the rgb_led item
	bright  int
	inc     int
	rgbGate timetag.Gate

	// last status and state seen by the fms_output callback
	status atomic.Uint32
	state  atomic.Uint32
}

// New creates a driver for device.
func New(device Device, config Config) *Driver {
	d := &Driver{
		config: config,
		device: device,
	}
	d.status.Store(uint32(msg.VehicleStatusNone))
	d.state.Store(uint32(msg.VehicleStateNone))
	return d
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver. The driver publishes nothing.
func (d *Driver) Advertise(*module.Env) error {
	return nil
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	if err := env.Schedule(d.config.LPQueue, &workqueue.Item{
		Name:   LEDItem,
		Period: LEDPeriod,
		Runner: d.Step(d.runLED),
	}); err != nil {
		return err
	}

	if !d.config.RGB {
		d.logger.Info("no rgb led fitted")
		return nil
	}

	if err := d.device.SetColor(Blue); err != nil {
		return err
	}

	var err error
	d.fmsNode, err = bus.Subscribe(env.Bus, msg.TopicFMSOutput,
		bus.WithFilter(d.changed),
		bus.WithCallback(d.onFMSOutput),
	)
	if err != nil {
		return err
	}

	// rgb led runs on the high priority queue so it does not hold the i2c
	// bus against other users
	return env.Schedule(d.config.HPQueue, &workqueue.Item{
		Name:   RGBItem,
		Period: RGBPeriod,
		Runner: d.Step(d.runRGB),
	})
}

func (d *Driver) runLED(context.Context, time.Time) {
	if err := d.device.Toggle(); err != nil {
		d.logger.Warn("failed to toggle led", zap.Error(err))
	}
}

func (d *Driver) runRGB(_ context.Context, now time.Time) {
	switch {
	case d.bright <= minBright:
		d.rgbGate.SetPeriod(dimPeriod)
	case d.bright >= maxBright:
		d.rgbGate.SetPeriod(brightPeriod)
	default:
		d.rgbGate.SetPeriod(rampPeriod)
	}

	if !d.rgbGate.Check(now) {
		return
	}

	if d.bright <= minBright {
		d.inc = 1
	}
	if d.bright >= maxBright {
		d.inc = -1
	}
	d.bright += d.inc

	if err := d.device.SetBrightness(d.bright); err != nil {
		d.logger.Warn("failed to set rgb brightness", zap.Error(err))
	}
}

// changed passes only records whose status or state differs from the last
// one seen.
func (d *Driver) changed(out msg.FMSOut) bool {
	status := d.status.Swap(uint32(out.Status))
	state := d.state.Swap(uint32(out.State))
	return status != uint32(out.Status) || state != uint32(out.State)
}

func (d *Driver) onFMSOutput(out msg.FMSOut) {
	color := StatusColor(out.Status)
	if out.State == msg.VehicleStateNone {
		color = Red
	}

	if err := d.device.SetColor(color); err != nil {
		d.logger.Warn("failed to set rgb colour", zap.Error(err))
	}
}

// StatusColor is the RGB colour shown for a vehicle status.
func StatusColor(s msg.VehicleStatus) Color {
	switch s {
	case msg.VehicleStatusDisarm:
		return Blue
	case msg.VehicleStatusStandby, msg.VehicleStatusArm:
		return Green
	default:
		return Red
	}
}

// Brightness returns the current breathing level.
func (d *Driver) Brightness() int {
	return d.bright
}
