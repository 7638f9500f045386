package device

import (
	"context"
	"math"
	"math/rand"
)

// DummySpectrometer simulates a spectrometer with a synthetic Gaussian
// emission peak riding on noise, scaled by integration time, matching
// the intent of the original's dummy_spectra fallback used when no
// physical device is attached.
type DummySpectrometer struct {
	serial   string
	npixels  int
	rng      *rand.Rand
	open     bool
	intMicros int64
	tecOn    bool
	tecSet   float64
}

// NewDummySpectrometer returns a simulated device identified by serial,
// producing npixels-wide spectra.
func NewDummySpectrometer(serial string, npixels int, seed int64) *DummySpectrometer {
	if npixels <= 0 {
		npixels = 2048
	}
	return &DummySpectrometer{
		serial:    serial,
		npixels:   npixels,
		rng:       rand.New(rand.NewSource(seed)),
		intMicros: 10000,
		tecSet:    20,
	}
}

// Open implements Spectrometer.
func (d *DummySpectrometer) Open(ctx context.Context) error {
	d.open = true
	return nil
}

// Close implements Spectrometer.
func (d *DummySpectrometer) Close(ctx context.Context) error {
	d.open = false
	return nil
}

// IsOpen implements Spectrometer.
func (d *DummySpectrometer) IsOpen() bool { return d.open }

// SerialNumber implements Spectrometer.
func (d *DummySpectrometer) SerialNumber() string { return d.serial }

// MinIntegrationTimeMicros implements Spectrometer.
func (d *DummySpectrometer) MinIntegrationTimeMicros() int64 { return 1000 }

// MaxIntensity implements Spectrometer. 200,000 matches the saturation
// level Worker.Meta reports for a dummy-backed worker, so autointegration
// against this device can actually drive a channel's peak up to it.
func (d *DummySpectrometer) MaxIntensity() float64 { return 200000 }

// Wavelengths implements Spectrometer.
func (d *DummySpectrometer) Wavelengths() []float64 {
	w := make([]float64, d.npixels)
	for i := range w {
		w[i] = 340 + float64(i)*(1050-340)/float64(d.npixels)
	}
	return w
}

// DarkPixelIndices implements Spectrometer.
func (d *DummySpectrometer) DarkPixelIndices() []int {
	return []int{0, 1, 2, 3}
}

// NonlinearityCoefficients implements Spectrometer.
func (d *DummySpectrometer) NonlinearityCoefficients() []float64 {
	return []float64{1, 0, 0, 0}
}

// SetIntegrationTimeMicros implements Spectrometer.
func (d *DummySpectrometer) SetIntegrationTimeMicros(ctx context.Context, micros int64) error {
	d.intMicros = micros
	return nil
}

// Intensities implements Spectrometer. It synthesizes a spectrum whose
// peak height grows linearly with integration time at 0.0005 counts per
// microsecond, saturating at MaxIntensity, so autointegration has
// something real to converge against.
func (d *DummySpectrometer) Intensities(ctx context.Context) ([]float64, error) {
	pixels := make([]float64, d.npixels)
	peak := 0.0005 * float64(d.intMicros)
	peakCenter := float64(d.npixels) / 2
	peakWidth := float64(d.npixels) / 12
	for i := range pixels {
		x := float64(i)
		gauss := math.Exp(-math.Pow(x-peakCenter, 2) / (2 * peakWidth * peakWidth))
		noise := d.rng.Float64() * 50
		v := gauss*peak + noise
		if v > d.MaxIntensity() {
			v = d.MaxIntensity()
		}
		pixels[i] = v
	}
	return pixels, nil
}

// HasTEC implements Spectrometer.
func (d *DummySpectrometer) HasTEC() bool { return true }

// EnableTEC implements Spectrometer.
func (d *DummySpectrometer) EnableTEC(ctx context.Context, enabled bool) error {
	d.tecOn = enabled
	return nil
}

// SetTECSetpoint implements Spectrometer.
func (d *DummySpectrometer) SetTECSetpoint(ctx context.Context, celsius float64) error {
	d.tecSet = celsius
	return nil
}

// CurrentTemperature implements Spectrometer.
func (d *DummySpectrometer) CurrentTemperature(ctx context.Context) (float64, error) {
	if d.tecOn {
		return d.tecSet + d.rng.Float64()*0.2 - 0.1, nil
	}
	return d.tecSet + 15, nil
}
