// Package msg defines the records exchanged over the bus. Every record is a
// fixed-size value made only of numbers and arrays, so it can be copied
// whole and encoded with encoding/binary.
package msg

import "time"

// Topic names.
const (
	TopicPilotCmd      = "pilot_cmd"
	TopicGCSCmd        = "gcs_cmd"
	TopicAutoCmd       = "auto_cmd"
	TopicINSOutput     = "ins_output"
	TopicFMSOutput     = "fms_output"
	TopicControlOutput = "control_output"
	TopicSensorIMU     = "sensor_imu0"
	TopicSensorMag     = "sensor_mag0"
	TopicSensorBaro    = "sensor_baro"
	TopicSensorGPS     = "sensor_gps"
)

// NumActuators is the width of every actuator command array.
const NumActuators = 16

// Millis returns the milliseconds elapsed since boot as a wrapping 32-bit
// timestamp, the unit every record carries.
func Millis(boot, now time.Time) uint32 {
	return uint32(now.Sub(boot).Milliseconds())
}

// PilotMode is the flight mode requested from the RC transmitter.
type PilotMode uint32

const (
	PilotModeNone PilotMode = iota
	PilotModeManual
	PilotModeAcro
	PilotModeStabilize
	PilotModeAltitude
	PilotModePosition
	PilotModeMission
	PilotModeOffboard
)

// Pilot command bits.
const (
	CmdForceDisarm uint32 = 1 << iota
	CmdArm
	CmdDisarm
)

// PilotCmd is the decoded RC input.
type PilotCmd struct {
	Timestamp     uint32
	StickYaw      float32
	StickThrottle float32
	StickRoll     float32
	StickPitch    float32
	Mode          PilotMode
	Cmd1          uint32
	Cmd2          uint32
}

// GCSCmd is a command from the ground station.
type GCSCmd struct {
	Timestamp uint32
	Mode      PilotMode
	Cmd1      uint32
	Cmd2      uint32
}

// AutoCmd is a position or velocity setpoint from an autonomous source.
type AutoCmd struct {
	Timestamp uint32
	Frame     uint32
	Mask      uint32
	XCmd      float32
	YCmd      float32
	ZCmd      float32
	UCmd      float32
	VCmd      float32
	WCmd      float32
	PsiRate   float32
}

// INSOut is the navigation estimate.
type INSOut struct {
	Timestamp uint32
	Phi       float32
	Theta     float32
	Psi       float32
	P         float32
	Q         float32
	R         float32
	Quat      [4]float32
	X         float32
	Y         float32
	H         float32
	VelN      float32
	VelE      float32
	VelD      float32
	Flag      uint32
	Status    uint32
}

// VehicleStatus is the arming state reported by the flight manager.
type VehicleStatus uint8

const (
	VehicleStatusNone VehicleStatus = iota
	VehicleStatusDisarm
	VehicleStatusStandby
	VehicleStatusArm
)

func (s VehicleStatus) String() string {
	switch s {
	case VehicleStatusDisarm:
		return "disarm"
	case VehicleStatusStandby:
		return "standby"
	case VehicleStatusArm:
		return "arm"
	default:
		return "none"
	}
}

// VehicleState is the active flight mode.
type VehicleState uint8

const (
	VehicleStateNone VehicleState = iota
	VehicleStateDisarm
	VehicleStateStandby
	VehicleStateManual
	VehicleStateAcro
	VehicleStateStabilize
	VehicleStateAltitude
	VehicleStatePosition
	VehicleStateMission
	VehicleStateOffboard
)

// FMSOut is the flight manager output consumed by the controller.
type FMSOut struct {
	Timestamp   uint32
	PCmd        float32
	QCmd        float32
	RCmd        float32
	PhiCmd      float32
	ThetaCmd    float32
	PsiRateCmd  float32
	UCmd        float32
	VCmd        float32
	WCmd        float32
	ThrottleCmd uint32
	ActuatorCmd [NumActuators]uint16
	Status      VehicleStatus
	State       VehicleState
	CtrlMode    uint8
	Mode        uint8
	ResetFlags  uint32
}

// ControlOut carries the actuator commands.
type ControlOut struct {
	Timestamp   uint32
	ActuatorCmd [NumActuators]uint16
}

// IMU is one inertial sample in the body frame.
type IMU struct {
	TimestampMs uint32
	GyrRadS     [3]float32
	AccMS2      [3]float32
}

// Mag is one magnetometer sample in the body frame.
type Mag struct {
	TimestampMs uint32
	MagGauss    [3]float32
}

// Baro is one barometer sample.
type Baro struct {
	TimestampMs    uint32
	TemperatureDeg float32
	PressurePa     float32
}

// GPS is one receiver fix. Lat and Lon are 1e-7 degrees, Height is mm.
type GPS struct {
	TimestampMs uint32
	FixType     uint8
	NumSV       uint8
	Lon         int32
	Lat         int32
	Height      int32
	HAcc        float32
	VAcc        float32
	VelN        float32
	VelE        float32
	VelD        float32
	SAcc        float32
}

// PlantStates is the simulated vehicle state.
type PlantStates struct {
	Timestamp uint32
	Phi       float32
	Theta     float32
	Psi       float32
	P         float32
	Q         float32
	R         float32
	VelN      float32
	VelE      float32
	VelD      float32
	X         float32
	Y         float32
	H         float32
}
