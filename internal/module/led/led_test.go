package led

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flightbus/internal/bus"
	"flightbus/internal/module"
	"flightbus/internal/module/moduletest"
	"flightbus/internal/msg"
	"flightbus/internal/workqueue"
)

var config = Config{
	LPQueue: workqueue.LPWork,
	HPQueue: workqueue.HPWork,
	RGB:     true,
}

func setup(t *testing.T, config Config) (*moduletest.Env, *Driver, *LogDevice, *bus.Topic[msg.FMSOut]) {
	t.Helper()
	env := moduletest.NewEnv(t)

	fms, err := bus.Advertise[msg.FMSOut](env.Bus, msg.TopicFMSOutput)
	require.NoError(t, err)

	dev := NewLogDevice(zap.NewNop())
	d := New(dev, config)
	require.NoError(t, module.InitAll(env.Env, d))

	return env, d, dev, fms
}

func TestHeartbeat(t *testing.T) {
	env, _, dev, _ := setup(t, Config{LPQueue: workqueue.LPWork, HPQueue: workqueue.HPWork})

	env.Advance(2010*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, 3, dev.Toggles())
	assert.False(t, dev.On())
	assert.Equal(t, Blue, dev.Color())
}

func TestBreathing(t *testing.T) {
	env, d, dev, _ := setup(t, config)
	assert.Equal(t, Blue, dev.Color())

	// fires at once, then ramps every 50ms
	env.Advance(10*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, d.Brightness())

	env.Advance(750*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, maxBright, d.Brightness())
	assert.Equal(t, maxBright, dev.Brightness())

	// holds at the top for 250ms
	env.Advance(240*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, maxBright, d.Brightness())
	env.Advance(10*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, maxBright-1, d.Brightness())

	// ramps down to off, then holds for 150ms
	env.Advance(750*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, minBright, d.Brightness())
	env.Advance(140*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, minBright, d.Brightness())
	env.Advance(10*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, d.Brightness())
}

func TestColourFollowsStatus(t *testing.T) {
	_, _, dev, fms := setup(t, config)

	fms.Publish(msg.FMSOut{Status: msg.VehicleStatusDisarm, State: msg.VehicleStateDisarm})
	assert.Equal(t, Blue, dev.Color())

	fms.Publish(msg.FMSOut{Status: msg.VehicleStatusArm, State: msg.VehicleStateStabilize})
	assert.Equal(t, Green, dev.Color())

	fms.Publish(msg.FMSOut{Status: msg.VehicleStatusArm, State: msg.VehicleStateNone})
	assert.Equal(t, Red, dev.Color())
}

func TestColourOnlySetOnChange(t *testing.T) {
	_, d, dev, fms := setup(t, config)

	fms.Publish(msg.FMSOut{Status: msg.VehicleStatusStandby, State: msg.VehicleStateStandby})
	require.Equal(t, Green, dev.Color())

	// an unchanged status does not touch the device
	require.NoError(t, dev.SetColor(Off))
	fms.Publish(msg.FMSOut{Status: msg.VehicleStatusStandby, State: msg.VehicleStateStandby, ThrottleCmd: 1200})
	assert.Equal(t, Off, dev.Color())

	assert.False(t, d.changed(msg.FMSOut{Status: msg.VehicleStatusStandby, State: msg.VehicleStateStandby}))
	assert.True(t, d.changed(msg.FMSOut{Status: msg.VehicleStatusArm, State: msg.VehicleStateStandby}))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, Red, StatusColor(msg.VehicleStatusNone))
	assert.Equal(t, Blue, StatusColor(msg.VehicleStatusDisarm))
	assert.Equal(t, Green, StatusColor(msg.VehicleStatusArm))
}
