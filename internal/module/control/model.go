package control

import (
	"time"

	"flightbus/internal/module"
	"flightbus/internal/msg"
)

const (
	pwmMin   = 1000
	pwmMax   = 2000
	pwmRange = pwmMax - pwmMin
)

// quad X: roll, pitch, yaw sign per motor
var mixer = [4][3]float32{
	{-1, 1, 1},
	{1, -1, 1},
	{1, 1, -1},
	{-1, -1, -1},
}

// BaseModel is a minimal stand-in for the generated controller: a P
// attitude loop feeding a PI rate loop, mixed for a quad X frame.
type BaseModel struct {
	period   float32
	integral [3]float32
}

// NewBaseModel creates the stand-in model.
func NewBaseModel() *BaseModel {
	return &BaseModel{}
}

// Info implements Model.
func (m *BaseModel) Info() module.ModelInfo {
	return module.ModelInfo{
		Period:      2 * time.Millisecond,
		Description: "base controller: attitude P, rate PI, quad X mixer",
	}
}

// Init implements Model.
func (m *BaseModel) Init() {
	m.period = float32(m.Info().Period.Seconds())
	m.integral = [3]float32{}
}

// Step implements Model.
func (m *BaseModel) Step(in *Input, p *Params, out *msg.ControlOut) {
	if in.FMS.Status != msg.VehicleStatusArm {
		m.integral = [3]float32{}
		for i := range out.ActuatorCmd {
			out.ActuatorCmd[i] = pwmMin
		}
		return
	}

	phiCmd := clamp(in.FMS.PhiCmd, -p.RollPitchCmdLim, p.RollPitchCmdLim)
	thetaCmd := clamp(in.FMS.ThetaCmd, -p.RollPitchCmdLim, p.RollPitchCmdLim)

	rateCmd := [3]float32{
		clamp(p.RollP*(phiCmd-in.INS.Phi), -p.PQCmdLim, p.PQCmdLim),
		clamp(p.PitchP*(thetaCmd-in.INS.Theta), -p.PQCmdLim, p.PQCmdLim),
		clamp(in.FMS.PsiRateCmd, -p.RCmdLim, p.RCmdLim),
	}
	rate := [3]float32{in.INS.P, in.INS.Q, in.INS.R}
	kp := [3]float32{p.RollRateP, p.PitchRateP, p.YawRateP}
	ki := [3]float32{p.RollRateI, p.PitchRateI, p.YawRateI}

	var torque [3]float32
	for i := range torque {
		e := rateCmd[i] - rate[i]
		m.integral[i] = clamp(m.integral[i]+ki[i]*e*m.period, p.RateIMin, p.RateIMax)
		torque[i] = kp[i]*e + m.integral[i]
	}

	throttle := clamp((float32(in.FMS.ThrottleCmd)-pwmMin)/pwmRange, 0, 1)
	for i := range out.ActuatorCmd {
		if i >= len(mixer) {
			out.ActuatorCmd[i] = pwmMin
			continue
		}
		u := throttle
		for axis := range torque {
			u += mixer[i][axis] * torque[axis]
		}
		out.ActuatorCmd[i] = uint16(pwmMin + clamp(u, 0, 1)*pwmRange)
	}
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
