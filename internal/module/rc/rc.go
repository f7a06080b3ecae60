// Package rc is the radio receiver driver. It decodes iBus frames from a
// byte source into pilot commands.
package rc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/module"
	"flightbus/internal/msg"
	"flightbus/internal/workqueue"
)

// Name is the driver and work item name.
const Name = "rc"

// Period is the receiver poll period.
const Period = 7 * time.Millisecond

// maxBytesPerStep bounds the work done in one step.
const maxBytesPerStep = 4 * FrameSize

// channel order: aileron, elevator, throttle, rudder, arm switch, mode switch
const (
	chRoll = iota
	chPitch
	chThrottle
	chYaw
	chArm
	chMode
)

// Source yields received bytes. ReadByte must not block; any error means
// no byte is available right now.
type Source interface {
	io.ByteReader
}

// Driver reads frames from a Source and publishes pilot_cmd.
type Driver struct {
	module.Base

	source Source
	queue  string
	env    *module.Env
	logger *zap.Logger

	decoder  Decoder
	pilotCmd *bus.Topic[msg.PilotCmd]
}

// New creates a driver polling source on the given queue.
func New(source Source, queue string) *Driver {
	return &Driver{
		source: source,
		queue:  queue,
	}
}

// Name implements module.Driver.
func (d *Driver) Name() string {
	return Name
}

// Advertise implements module.Driver.
func (d *Driver) Advertise(env *module.Env) error {
	var err error
	d.pilotCmd, err = bus.Advertise[msg.PilotCmd](env.Bus, msg.TopicPilotCmd)
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

// Decoder exposes the frame counters.
func (d *Driver) Decoder() *Decoder {
	return &d.decoder
}

func (d *Driver) step(_ context.Context, now time.Time) {
	var (
		latest Channels
		got    bool
	)

	for i := 0; i < maxBytesPerStep; i++ {
		b, err := d.source.ReadByte()
		if err != nil {
			break
		}

		ch, ok, err := d.decoder.Feed(b)
		if err != nil {
			d.logger.Debug("dropping frame", zap.Error(err))
			continue
		}
		if ok {
			latest, got = ch, true
		}
	}

	if got {
		d.pilotCmd.Publish(PilotCmd(latest, d.env.Millis(now)))
	}
}

// PilotCmd maps channels to a pilot command.
func PilotCmd(ch Channels, ts uint32) msg.PilotCmd {
	cmd := msg.PilotCmd{
		Timestamp:     ts,
		StickRoll:     stick(ch[chRoll]),
		StickPitch:    stick(ch[chPitch]),
		StickThrottle: stick(ch[chThrottle]),
		StickYaw:      stick(ch[chYaw]),
	}

	switch {
	case ch[chArm] > 1700:
		cmd.Cmd1 = msg.CmdArm
	case ch[chArm] < 1300:
		cmd.Cmd1 = msg.CmdDisarm
	}

	switch {
	case ch[chMode] < 1300:
		cmd.Mode = msg.PilotModeStabilize
	case ch[chMode] > 1700:
		cmd.Mode = msg.PilotModePosition
	default:
		cmd.Mode = msg.PilotModeAltitude
	}

	return cmd
}

func stick(v uint16) float32 {
	return min(max((float32(v)-1500)/500, -1), 1)
}

// ScriptedSource is an in-memory transmitter: Send queues a frame and the
// driver drains it on its next step.
type ScriptedSource struct {
	mu  sync.Mutex
	buf []byte
}

// NewScriptedSource creates an empty source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{}
}

// Send queues the frame carrying ch.
func (s *ScriptedSource) Send(ch Channels) {
	frame := Encode(ch)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, frame[:]...)
}

// Write queues raw bytes.
func (s *ScriptedSource) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// ReadByte implements Source.
func (s *ScriptedSource) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		return 0, errNoData
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

var errNoData = errors.New("no data")

// Neutral returns sticks centred, throttle low and both switches low.
func Neutral() Channels {
	var ch Channels
	for i := range ch {
		ch[i] = 1500
	}
	ch[chThrottle] = 1000
	ch[chArm] = 1000
	ch[chMode] = 1000
	return ch
}

// WithArm sets the arm switch.
func (c Channels) WithArm(armed bool) Channels {
	if armed {
		c[chArm] = 2000
	} else {
		c[chArm] = 1000
	}
	return c
}

// WithThrottle sets the throttle channel.
func (c Channels) WithThrottle(v uint16) Channels {
	c[chThrottle] = v
	return c
}

// WithRoll sets the aileron channel.
func (c Channels) WithRoll(v uint16) Channels {
	c[chRoll] = v
	return c
}
