package fms

import (
	"time"

	"flightbus/internal/module"
	"flightbus/internal/msg"
)

const (
	pwmMin = 1000
	pwmMax = 2000
)

// BaseModel is a minimal stand-in for the generated flight manager: an arm
// state machine plus stick shaping.
type BaseModel struct {
	status msg.VehicleStatus
	state  msg.VehicleState
}

// NewBaseModel creates the stand-in model.
func NewBaseModel() *BaseModel {
	return &BaseModel{}
}

// Info implements Model.
func (m *BaseModel) Info() module.ModelInfo {
	return module.ModelInfo{
		Period:      4 * time.Millisecond,
		Description: "base fms: arm state machine and stick shaping",
	}
}

// Init implements Model.
func (m *BaseModel) Init() {
	m.status = msg.VehicleStatusDisarm
	m.state = msg.VehicleStateDisarm
}

// Step implements Model.
func (m *BaseModel) Step(in *Input, p *Params, out *Output) {
	cmd := in.Pilot.Cmd1 | in.GCS.Cmd1

	switch {
	case cmd&(msg.CmdDisarm|msg.CmdForceDisarm) != 0:
		m.status = msg.VehicleStatusDisarm
	case cmd&msg.CmdArm != 0 && m.status == msg.VehicleStatusDisarm:
		m.status = msg.VehicleStatusStandby
	case m.status == msg.VehicleStatusStandby && deadzone(in.Pilot.StickThrottle, p.ThrottleDZ) > 0:
		m.status = msg.VehicleStatusArm
	}

	mode := in.Pilot.Mode
	if in.GCS.Mode != msg.PilotModeNone {
		mode = in.GCS.Mode
	}

	switch m.status {
	case msg.VehicleStatusDisarm:
		m.state = msg.VehicleStateDisarm
	case msg.VehicleStatusStandby:
		m.state = msg.VehicleStateStandby
	default:
		m.state = stateOf(mode)
	}

	fms := &out.FMS
	*fms = msg.FMSOut{
		Status: m.status,
		State:  m.state,
		Mode:   uint8(mode),
	}

	if m.status != msg.VehicleStatusArm {
		fms.ThrottleCmd = pwmMin
		for i := range fms.ActuatorCmd {
			fms.ActuatorCmd[i] = pwmMin
		}
		out.Auto = msg.AutoCmd{}
		return
	}

	fms.PhiCmd = deadzone(in.Pilot.StickRoll, p.RollDZ) * p.RollPitchLim
	fms.ThetaCmd = -deadzone(in.Pilot.StickPitch, p.PitchDZ) * p.RollPitchLim
	fms.PsiRateCmd = deadzone(in.Pilot.StickYaw, p.YawDZ) * p.YawRateLim
	fms.WCmd = -deadzone(in.Pilot.StickThrottle, p.ThrottleDZ) * p.VelZLim
	fms.ThrottleCmd = uint32(pwmMin + (clamp(in.Pilot.StickThrottle, -1, 1)+1)/2*(pwmMax-pwmMin))

	out.Auto = msg.AutoCmd{
		UCmd:    clamp(p.XYP*-in.INS.X, -p.VelXYLim, p.VelXYLim),
		VCmd:    clamp(p.XYP*-in.INS.Y, -p.VelXYLim, p.VelXYLim),
		WCmd:    fms.WCmd,
		PsiRate: fms.PsiRateCmd,
	}
}

func stateOf(mode msg.PilotMode) msg.VehicleState {
	switch mode {
	case msg.PilotModeManual:
		return msg.VehicleStateManual
	case msg.PilotModeAcro:
		return msg.VehicleStateAcro
	case msg.PilotModeStabilize:
		return msg.VehicleStateStabilize
	case msg.PilotModeAltitude:
		return msg.VehicleStateAltitude
	case msg.PilotModePosition:
		return msg.VehicleStatePosition
	case msg.PilotModeMission:
		return msg.VehicleStateMission
	case msg.PilotModeOffboard:
		return msg.VehicleStateOffboard
	default:
		return msg.VehicleStateNone
	}
}

// deadzone maps [-1, 1] to [-1, 1] with a flat band of width dz around 0.
func deadzone(v, dz float32) float32 {
	v = clamp(v, -1, 1)
	if dz >= 1 {
		return 0
	}
	switch {
	case v > dz:
		return (v - dz) / (1 - dz)
	case v < -dz:
		return (v + dz) / (1 - dz)
	default:
		return 0
	}
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
