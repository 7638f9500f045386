// Package device defines the small traits the worker layer programs
// against for physical hardware, and the dummy implementations used for
// development and tests. Real GPIO/USB backends are out of scope (spec
// §1 calls out "actual device drivers" as an external dependency,
// exposed here only as the interface a real backend would satisfy).
package device

import (
	"context"
	"errors"
	"time"
)

// ErrVanished indicates the underlying device disappeared while in use
// (USB unplugged, serial port gone), the trigger for the worker's
// disconnect-and-retry failure policy.
var ErrVanished = errors.New("device vanished")

// Shutter is the trait a named shutter's GPIO backend satisfies: an
// on/off pair of pulsed outputs, exactly as the original's gpiozero
// DigitalOutputDevice pair behaves (see PiccoloHardware.py).
type Shutter interface {
	// Open pulses the open line, leaving the shutter mechanically open.
	Open(ctx context.Context) error
	// Close pulses the close line, leaving the shutter mechanically
	// closed.
	Close(ctx context.Context) error
}

// SwitchingPulseDuration is the minimum pulse width a real relay needs
// to latch, per the original's SWITCHING_PULSE_DURATION.
const SwitchingPulseDuration = 5 * time.Millisecond

// DummyShutter simulates a shutter with no physical backend;
// cmd/piccolo-server gives one to every configured channel.
type DummyShutter struct{}

// Open implements Shutter.
func (DummyShutter) Open(ctx context.Context) error {
	return sleep(ctx, SwitchingPulseDuration)
}

// Close implements Shutter.
func (DummyShutter) Close(ctx context.Context) error {
	return sleep(ctx, SwitchingPulseDuration)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spectrometer is the trait a spectrometer worker drives. Methods map
// 1:1 onto python-seabreeze calls made from PiccoloSpectrometerWorker so
// the worker state machine translates without surprises.
type Spectrometer interface {
	// Open establishes the connection (python-seabreeze Spectrometer()).
	Open(ctx context.Context) error
	// Close releases the connection.
	Close(ctx context.Context) error
	// IsOpen reports whether the underlying handle still looks alive,
	// used by check_ok to detect a vanished device without attempting
	// an I/O operation.
	IsOpen() bool

	// SerialNumber is the device's reported serial number.
	SerialNumber() string
	// MinIntegrationTimeMicros is the hardware-reported minimum
	// integration time.
	MinIntegrationTimeMicros() int64
	// MaxIntensity is the saturation level for this device's ADC.
	MaxIntensity() float64
	// Wavelengths returns the per-pixel wavelength calibration table.
	Wavelengths() []float64
	// DarkPixelIndices returns the indices of electrically-dark pixels.
	DarkPixelIndices() []int
	// NonlinearityCoefficients returns the nonlinearity correction
	// polynomial coefficients, highest order first.
	NonlinearityCoefficients() []float64

	// SetIntegrationTimeMicros configures the next acquisition's
	// exposure time.
	SetIntegrationTimeMicros(ctx context.Context, micros int64) error
	// Intensities performs a single blocking read and returns one
	// spectrum's worth of pixel values.
	Intensities(ctx context.Context) ([]float64, error)

	// HasTEC reports whether this unit has a thermoelectric cooler.
	HasTEC() bool
	// EnableTEC turns the cooler on or off.
	EnableTEC(ctx context.Context, enabled bool) error
	// SetTECSetpoint sets the target temperature in Celsius.
	SetTECSetpoint(ctx context.Context, celsius float64) error
	// CurrentTemperature reads the cooler's current temperature.
	CurrentTemperature(ctx context.Context) (float64, error)
}
