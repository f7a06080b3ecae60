// Package gcs is the ground station link driver. Commands handed to Send
// are published on gcs_cmd in order, one per step, so a consumer stepping at
// least as fast as the link sees every command.
package gcs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/module"
	"flightbus/internal/msg"
	"flightbus/internal/workqueue"
)

// Name is the driver and work item name.
const Name = "gcs"

// Period is the link poll period.
const Period = 20 * time.Millisecond

// Driver publishes queued ground station commands.
type Driver struct {
	module.Base

	queue  string
	env    *module.Env
	logger *zap.Logger

	gcsCmd *bus.Topic[msg.GCSCmd]

	mu      sync.Mutex
	pending []msg.GCSCmd
}

// New creates a driver on the given queue.
func New(queue string) *Driver {
	return &Driver{queue: queue}
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver.
func (d *Driver) Advertise(env *module.Env) error {
	var err error
	d.gcsCmd, err = bus.Advertise[msg.GCSCmd](env.Bus, msg.TopicGCSCmd)
	return err
}

// Init implements module.Driver.
func (d *Driver) Init(env *module.Env) error {
	d.env = env
	d.logger = env.Logger.Named(Name)

	return env.Schedule(d.queue, &workqueue.Item{
		Name:   Name,
		Period: Period,
		Runner: d.Step(d.step),
	})
}

// Send queues cmd. It is safe to call from any goroutine.
func (d *Driver) Send(cmd msg.GCSCmd) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, cmd)
}

// Pending returns the number of commands not yet published.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Driver) step(_ context.Context, now time.Time) {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	cmd := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()

	cmd.Timestamp = d.env.Millis(now)
	d.gcsCmd.Publish(cmd)
	d.logger.Info("ground station command",
		zap.Uint32("mode", uint32(cmd.Mode)),
		zap.Uint32("cmd1", cmd.Cmd1),
	)
}
