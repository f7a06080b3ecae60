package fms

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

type inputs struct {
	pilot *bus.Topic[msg.PilotCmd]
	gcs   *bus.Topic[msg.GCSCmd]
}

func setup(t *testing.T) (*moduletest.Env, *Driver, inputs) {
	t.Helper()
	env := moduletest.NewEnv(t)

	pilot, err := bus.Advertise[msg.PilotCmd](env.Bus, msg.TopicPilotCmd)
	require.NoError(t, err)
	gcs, err := bus.Advertise[msg.GCSCmd](env.Bus, msg.TopicGCSCmd)
	require.NoError(t, err)
	_, err = bus.Advertise[msg.INSOut](env.Bus, msg.TopicINSOutput)
	require.NoError(t, err)
	_, err = bus.Advertise[msg.ControlOut](env.Bus, msg.TopicControlOutput)
	require.NoError(t, err)

	d := New(NewBaseModel(), workqueue.HPWork)
	require.NoError(t, module.InitAll(env.Env, d))

	return env, d, inputs{pilot: pilot, gcs: gcs}
}

func output(t *testing.T, env *moduletest.Env) msg.FMSOut {
	t.Helper()
	topic, err := bus.Lookup[msg.FMSOut](env.Bus, msg.TopicFMSOutput)
	require.NoError(t, err)
	out, _, err := topic.Read()
	require.NoError(t, err)
	return out
}

func TestLogsOutputEveryHundredMilliseconds(t *testing.T) {
	env, d, _ := setup(t)

	env.Advance(time.Second, time.Millisecond)

	assert.Equal(t, module.Running, d.State())
	assert.Equal(t, 10, env.Telemetry.Count(mlog.FMSOutID))

	topic, err := bus.Lookup[msg.FMSOut](env.Bus, msg.TopicFMSOutput)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), topic.Version())
}

func TestCommandsLoggedOnUpdateAndRestart(t *testing.T) {
	env, _, in := setup(t)

	// initial step logs both commands once
	env.Advance(20*time.Millisecond, time.Millisecond)
	assert.Equal(t, 1, env.Telemetry.Count(mlog.PilotCmdID))
	assert.Equal(t, 1, env.Telemetry.Count(mlog.GCSCmdID))

	in.pilot.Publish(msg.PilotCmd{StickRoll: 0.5})
	env.Advance(20*time.Millisecond, time.Millisecond)
	assert.Equal(t, 2, env.Telemetry.Count(mlog.PilotCmdID))
	assert.Equal(t, 1, env.Telemetry.Count(mlog.GCSCmdID))

	// the pilot command is stamped with the step time
	last := env.Telemetry.Pushes(mlog.PilotCmdID)[1].Payload.(msg.PilotCmd)
	assert.Equal(t, uint32(20), last.Timestamp)

	env.Telemetry.Restart()
	env.Advance(20*time.Millisecond, time.Millisecond)
	assert.Equal(t, 3, env.Telemetry.Count(mlog.PilotCmdID))
	assert.Equal(t, 2, env.Telemetry.Count(mlog.GCSCmdID))
}

func TestArmSequence(t *testing.T) {
	env, _, in := setup(t)

	env.Advance(8*time.Millisecond, time.Millisecond)
	assert.Equal(t, msg.VehicleStatusDisarm, output(t, env).Status)

	in.pilot.Publish(msg.PilotCmd{Cmd1: msg.CmdArm, StickThrottle: -1, Mode: msg.PilotModeStabilize})
	env.Advance(8*time.Millisecond, time.Millisecond)
	assert.Equal(t, msg.VehicleStatusStandby, output(t, env).Status)

	in.pilot.Publish(msg.PilotCmd{Cmd1: msg.CmdArm, StickThrottle: 0.5, StickRoll: 1, Mode: msg.PilotModeStabilize})
	env.Advance(8*time.Millisecond, time.Millisecond)
	out := output(t, env)
	assert.Equal(t, msg.VehicleStatusArm, out.Status)
	assert.Equal(t, msg.VehicleStateStabilize, out.State)
	assert.InDelta(t, DefaultParams["ROLL_PITCH_LIM"], out.PhiCmd, 1e-6)
	assert.Equal(t, uint32(1750), out.ThrottleCmd)

	in.gcs.Publish(msg.GCSCmd{Cmd1: msg.CmdForceDisarm})
	env.Advance(8*time.Millisecond, time.Millisecond)
	assert.Equal(t, msg.VehicleStatusDisarm, output(t, env).Status)
}

func TestOnlineTuning(t *testing.T) {
	env, d, _ := setup(t)
	env.OnlineTuning = true

	require.NoError(t, env.Params.Set(Group, "ROLL_PITCH_LIM", 0.25))
	env.Advance(4*time.Millisecond, time.Millisecond)
	assert.Equal(t, float32(0.25), d.params.RollPitchLim)
}

func TestDeadzone(t *testing.T) {
	assert.Equal(t, float32(0), deadzone(0.05, 0.1))
	assert.Equal(t, float32(1), deadzone(1, 0.1))
	assert.Equal(t, float32(-1), deadzone(-3, 0.1))
	assert.InDelta(t, 0.5, deadzone(0.55, 0.1), 1e-6)
	assert.Equal(t, float32(0), deadzone(0.9, 1))
}
