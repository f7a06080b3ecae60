package app

import (
	"context"
	"time"

	"flightbus/internal/module/rc"
)

// TransmitterPeriod is how often the scripted transmitter sends a frame.
const TransmitterPeriod = 14 * time.Millisecond

// Stick is a transmitter state held from At, measured from the first frame,
// until the next Stick.
type Stick struct {
	At       time.Duration
	Channels rc.Channels
}

// DefaultScript idles for half a second, arms, then climbs.
func DefaultScript() []Stick {
	n := rc.Neutral()
	return []Stick{
		{At: 0, Channels: n},
		{At: 500 * time.Millisecond, Channels: n.WithArm(true)},
		{At: time.Second, Channels: n.WithArm(true).WithThrottle(1700)},
	}
}

// Transmitter replays a script into an rc source, standing in for the
// pilot's radio.
type Transmitter struct {
	source *rc.ScriptedSource
	script []Stick

	start   time.Time
	started bool
}

// NewTransmitter replays script into source. The script must be ordered
// by At.
func NewTransmitter(source *rc.ScriptedSource, script []Stick) *Transmitter {
	return &Transmitter{
		source: source,
		script: script,
	}
}

// Run implements workqueue.Runner.
func (t *Transmitter) Run(_ context.Context, now time.Time) {
	if len(t.script) == 0 {
		return
	}
	if !t.started {
		t.start, t.started = now, true
	}

	t.source.Send(t.current(now.Sub(t.start)))
}

func (t *Transmitter) current(elapsed time.Duration) rc.Channels {
	ch := t.script[0].Channels
	for _, s := range t.script[1:] {
		if s.At > elapsed {
			break
		}
		ch = s.Channels
	}
	return ch
}
