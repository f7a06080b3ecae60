package ins

import (
	"math"
	"time"

	"flightbus/internal/module"
	"flightbus/internal/msg"
)

// INSOut.Flag bits
const (
	FlagAttitudeValid uint32 = 1 << iota
	FlagHeadingValid
	FlagHeightValid
	FlagPositionValid
)

const (
	seaLevelPa = 101325
	paPerMeter = 12
	// complementary filter weight of the integrated gyro
	alpha = 0.98
)

// BaseModel is a minimal stand-in estimator: a complementary attitude
// filter, baro height and GPS position relative to the first fix.
type BaseModel struct {
	dt float32

	att    [3]float32
	home   msg.GPS
	homeOK bool
	flags  uint32
}

// NewBaseModel creates the stand-in model.
func NewBaseModel() *BaseModel {
	return &BaseModel{}
}

// Info implements Model.
func (m *BaseModel) Info() module.ModelInfo {
	return module.ModelInfo{
		Period:      2 * time.Millisecond,
		Description: "base ins: complementary attitude, baro height, gps position",
	}
}

// Init implements Model.
func (m *BaseModel) Init() {
	*m = BaseModel{dt: float32(m.Info().Period.Seconds())}
}

// Step implements Model.
func (m *BaseModel) Step(in *Input, out *msg.INSOut) {
	if in.IMUUpdated {
		g := in.IMU.GyrRadS
		for i := range m.att {
			m.att[i] += g[i] * m.dt
		}

		a := in.IMU.AccMS2
		if norm := math.Sqrt(float64(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])); norm > 1 {
			accPhi := float32(math.Atan2(float64(-a[1]), float64(-a[2])))
			accTheta := float32(math.Asin(float64(a[0]) / norm))
			m.att[0] = alpha*m.att[0] + (1-alpha)*accPhi
			m.att[1] = alpha*m.att[1] + (1-alpha)*accTheta
		}

		out.P, out.Q, out.R = g[0], g[1], g[2]
		m.flags |= FlagAttitudeValid
	}

	if in.MagUpdated {
		heading := float32(math.Atan2(float64(-in.Mag.MagGauss[1]), float64(in.Mag.MagGauss[0])))
		m.att[2] = alpha*m.att[2] + (1-alpha)*heading
		m.flags |= FlagHeadingValid
	}

	if in.BaroUpdated {
		out.H = (seaLevelPa - in.Baro.PressurePa) / paPerMeter
		m.flags |= FlagHeightValid
	}

	if in.GPSUpdated && in.GPS.FixType >= 3 {
		if !m.homeOK {
			m.home = in.GPS
			m.homeOK = true
		}
		out.X = float32(in.GPS.Lat-m.home.Lat) / 90
		out.Y = float32(in.GPS.Lon-m.home.Lon) / 130
		out.VelN, out.VelE, out.VelD = in.GPS.VelN, in.GPS.VelE, in.GPS.VelD
		m.flags |= FlagPositionValid
	}

	out.Phi, out.Theta, out.Psi = m.att[0], m.att[1], m.att[2]
	out.Quat = quat(m.att)
	out.Flag = m.flags
}

func quat(att [3]float32) [4]float32 {
	cr, sr := math.Cos(float64(att[0])/2), math.Sin(float64(att[0])/2)
	cp, sp := math.Cos(float64(att[1])/2), math.Sin(float64(att[1])/2)
	cy, sy := math.Cos(float64(att[2])/2), math.Sin(float64(att[2])/2)

	return [4]float32{
		float32(cr*cp*cy + sr*sp*sy),
		float32(sr*cp*cy - cr*sp*sy),
		float32(cr*sp*cy + sr*cp*sy),
		float32(cr*cp*sy - sr*sp*cy),
	}
}
