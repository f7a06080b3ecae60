package plant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightbus/internal/bus"
	"flightbus/internal/mlog"
	"flightbus/internal/module"
	"flightbus/internal/module/moduletest"
	"flightbus/internal/msg"
	"flightbus/internal/workqueue"
)

func setup(t *testing.T) (*moduletest.Env, *bus.Topic[msg.ControlOut]) {
	t.Helper()
	env := moduletest.NewEnv(t)

	control, err := bus.Advertise[msg.ControlOut](env.Bus, msg.TopicControlOutput)
	require.NoError(t, err)
	require.NoError(t, module.InitAll(env.Env, New(NewBaseModel(), workqueue.HPWork)))

	return env, control
}

func version[T any](t *testing.T, env *moduletest.Env, name string) uint64 {
	t.Helper()
	topic, err := bus.Lookup[T](env.Bus, name)
	require.NoError(t, err)
	return topic.Version()
}

func TestSensorCadence(t *testing.T) {
	env, _ := setup(t)

	env.Advance(100*time.Millisecond, time.Millisecond)

	// every sensor publishes on the first step, then on its own period
	assert.Equal(t, uint64(100), version[msg.IMU](t, env, msg.TopicSensorIMU))
	assert.Equal(t, uint64(6), version[msg.Mag](t, env, msg.TopicSensorMag))
	assert.Equal(t, uint64(6), version[msg.Baro](t, env, msg.TopicSensorBaro))
	assert.Equal(t, uint64(2), version[msg.GPS](t, env, msg.TopicSensorGPS))
	assert.Equal(t, 1, env.Telemetry.Count(mlog.PlantStateID))
}

func TestRestingOnGround(t *testing.T) {
	env, _ := setup(t)

	env.Advance(50*time.Millisecond, time.Millisecond)

	topic, err := bus.Lookup[msg.IMU](env.Bus, msg.TopicSensorIMU)
	require.NoError(t, err)
	imu, _, err := topic.Read()
	require.NoError(t, err)

	assert.Equal(t, uint32(49), imu.TimestampMs)
	assert.InDelta(t, -gravity, imu.AccMS2[2], 1e-4)
	assert.InDelta(t, 0, imu.AccMS2[0], 1e-6)
}

func TestFullThrottleClimbs(t *testing.T) {
	env, control := setup(t)

	var cmd msg.ControlOut
	for i := range 4 {
		cmd.ActuatorCmd[i] = 2000
	}
	control.Publish(cmd)
	env.Advance(500*time.Millisecond, time.Millisecond)

	states := env.Telemetry.Pushes(mlog.PlantStateID)
	require.Len(t, states, 5)
	last := states[len(states)-1].Payload.(msg.PlantStates)
	assert.Greater(t, last.H, float32(0))
	assert.Less(t, last.VelD, float32(0))
}
