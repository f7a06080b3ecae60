package led

import (
	"sync"

	"go.uber.org/zap"
)

// Color is an RGB LED colour.
type Color uint8

const (
	Off Color = iota
	Red
	Green
	Blue
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return "off"
	}
}

// Device drives the status LED and the optional RGB LED. Implementations
// must be safe for concurrent use: colour changes arrive from the
// publisher of fms_output.
type Device interface {
	Toggle() error
	SetColor(c Color) error
	SetBrightness(level int) error
}

// LogDevice is a Device that keeps its state in memory and logs every
// change at debug level.
type LogDevice struct {
	logger *zap.Logger

	mu         sync.Mutex
	on         bool
	toggles    int
	color      Color
	brightness int
}

// NewLogDevice creates a device with the LED on and the RGB LED blue.
func NewLogDevice(logger *zap.Logger) *LogDevice {
	return &LogDevice{
		logger: logger.Named("led-device"),
		on:     true,
		color:  Blue,
	}
}

// Toggle implements Device.
func (d *LogDevice) Toggle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.on = !d.on
	d.toggles++
	d.logger.Debug("led toggled", zap.Bool("on", d.on))
	return nil
}

// SetColor implements Device.
func (d *LogDevice) SetColor(c Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.color != c {
		d.logger.Debug("rgb colour", zap.Stringer("color", c))
	}
	d.color = c
	return nil
}

// SetBrightness implements Device.
func (d *LogDevice) SetBrightness(level int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.brightness = level
	return nil
}

// On reports whether the status LED is lit.
func (d *LogDevice) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

// Toggles returns how many times the status LED toggled.
func (d *LogDevice) Toggles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toggles
}

// Color returns the RGB colour.
func (d *LogDevice) Color() Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.color
}

// Brightness returns the RGB brightness.
func (d *LogDevice) Brightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness
}
