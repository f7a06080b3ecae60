package plant

import (
	"math"
	"time"

	"flightbus/internal/module"
	"flightbus/internal/msg"
)

const (
	gravity  = 9.80665
	pwmMin   = 1000
	pwmRange = 1000

	seaLevelPa = 101325
	homeLat    = 473977418 // 1e-7 deg
	homeLon    = 85455938
)

// sensor update periods in model milliseconds
const (
	imuEvery  = 1
	magEvery  = 20
	baroEvery = 20
	gpsEvery  = 100
)

// BaseModel is a minimal stand-in for the generated multicopter plant: a
// rigid body driven by four motors, sampled by IMU, mag, baro and GPS at
// their own rates.
type BaseModel struct {
	dt     float32
	timeMs uint32

	att  [3]float32 // roll, pitch, yaw
	rate [3]float32
	vel  [3]float32 // NED
	pos  [3]float32 // NED
	acc  [3]float32
}

// NewBaseModel creates the stand-in model.
func NewBaseModel() *BaseModel {
	return &BaseModel{}
}

// Info implements Model.
func (m *BaseModel) Info() module.ModelInfo {
	return module.ModelInfo{
		Period:      time.Millisecond,
		Description: "base plant: rigid body quad X with sampled sensors",
	}
}

// Init implements Model.
func (m *BaseModel) Init() {
	*m = BaseModel{dt: float32(m.Info().Period.Seconds())}
}

// Step implements Model.
func (m *BaseModel) Step(in *msg.ControlOut, out *Output) {
	var u [4]float32
	var thrust float32
	for i := range u {
		u[i] = min(max((float32(in.ActuatorCmd[i])-pwmMin)/pwmRange, 0), 1)
		thrust += u[i]
	}

	torque := [3]float32{
		(u[1] + u[2]) - (u[0] + u[3]),
		(u[0] + u[2]) - (u[1] + u[3]),
		(u[0] + u[1]) - (u[2] + u[3]),
	}

	for i := range m.rate {
		m.rate[i] += (8*torque[i] - 2*m.rate[i]) * m.dt
		m.att[i] += m.rate[i] * m.dt
	}
	m.att[2] = wrapPi(m.att[2])

	// four motors at full throttle lift twice the weight
	accZ := -thrust/2*gravity*cos32(m.att[0])*cos32(m.att[1]) + gravity
	m.acc = [3]float32{
		-thrust / 2 * gravity * sin32(m.att[1]),
		thrust / 2 * gravity * sin32(m.att[0]),
		accZ,
	}
	for i := range m.vel {
		m.vel[i] += (m.acc[i] - 0.3*m.vel[i]) * m.dt
		m.pos[i] += m.vel[i] * m.dt
	}
	// on the ground
	if m.pos[2] >= 0 {
		m.pos[2], m.vel[2] = 0, min(m.vel[2], 0)
		m.acc[2] = min(m.acc[2], 0)
	}

	m.timeMs += uint32(m.Info().Period.Milliseconds())

	out.States = msg.PlantStates{
		Timestamp: m.timeMs,
		Phi:       m.att[0],
		Theta:     m.att[1],
		Psi:       m.att[2],
		P:         m.rate[0],
		Q:         m.rate[1],
		R:         m.rate[2],
		VelN:      m.vel[0],
		VelE:      m.vel[1],
		VelD:      m.vel[2],
		X:         m.pos[0],
		Y:         m.pos[1],
		H:         -m.pos[2],
	}

	if m.timeMs%imuEvery == 0 {
		out.IMU = msg.IMU{
			TimestampMs: m.timeMs,
			GyrRadS:     m.rate,
			AccMS2:      [3]float32{m.acc[0], m.acc[1], m.acc[2] - gravity},
		}
	}
	if m.timeMs%magEvery == 0 {
		out.Mag = msg.Mag{
			TimestampMs: m.timeMs,
			MagGauss:    [3]float32{0.21 * cos32(m.att[2]), -0.21 * sin32(m.att[2]), 0.43},
		}
	}
	if m.timeMs%baroEvery == 0 {
		out.Baro = msg.Baro{
			TimestampMs:    m.timeMs,
			TemperatureDeg: 25,
			PressurePa:     seaLevelPa - 12*out.States.H,
		}
	}
	if m.timeMs%gpsEvery == 0 {
		out.GPS = msg.GPS{
			TimestampMs: m.timeMs,
			FixType:     3,
			NumSV:       12,
			Lat:         homeLat + int32(m.pos[0]*90),
			Lon:         homeLon + int32(m.pos[1]*130),
			Height:      int32(out.States.H * 1000),
			HAcc:        0.8,
			VAcc:        1.2,
			VelN:        m.vel[0],
			VelE:        m.vel[1],
			VelD:        m.vel[2],
			SAcc:        0.2,
		}
	}
}

func sin32(v float32) float32 {
	return float32(math.Sin(float64(v)))
}

func cos32(v float32) float32 {
	return float32(math.Cos(float64(v)))
}

func wrapPi(v float32) float32 {
	return float32(math.Remainder(float64(v), 2*math.Pi))
}
