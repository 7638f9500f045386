// Package piccolospec holds the data model shared across the acquisition
// engine: spectra, spectra lists, runs, and the spectrometer/scheduler
// status enumerations. It has no dependency on device I/O, persistence,
// or transport so every other package can import it freely.
package piccolospec

import "fmt"

// Metadata keys used in Spectrum.Metadata, matching the original
// PiccoloSpectrum field names exactly (clients on the wire depend on
// these strings).
const (
	MetaSerialNumber                       = "SerialNumber"
	MetaWavelengthCalibrationCoefficients  = "WavelengthCalibrationCoefficients"
	MetaWavelengthCalibrationCoefficientsPiccolo = "WavelengthCalibrationCoefficientsPiccolo"
	MetaDarkPixels                         = "DarkPixels"
	MetaNonlinearityCorrectionCoefficients = "NonlinearityCorrectionCoefficients"
	MetaSaturationLevel                    = "SaturationLevel"
	MetaIntegrationTime                    = "IntegrationTime"
	MetaIntegrationTimeUnits                = "IntegrationTimeUnits"
	MetaTemperature                        = "Temperature"
	MetaTemperatureUnits                   = "TemperatureUnits"

	IntegrationTimeUnitsMilliseconds = "milliseconds"
	TemperatureUnitsCelsius          = "degrees Celsius"
)

// Spectrum is a single acquired trace plus the metadata needed to
// interpret and calibrate it downstream.
type Spectrum struct {
	Pixels    []float64
	Metadata  map[string]any
	Direction string // channel name, e.g. "upwelling"
	Dark      bool
}

// NewSpectrum returns a Spectrum with an initialized metadata map.
func NewSpectrum() *Spectrum {
	return &Spectrum{Metadata: make(map[string]any)}
}

// SetDark marks the spectrum as a dark frame (shutters closed).
func (s *Spectrum) SetDark() { s.Dark = true }

// SetLight marks the spectrum as a light frame.
func (s *Spectrum) SetLight() { s.Dark = false }

// SetDirection records which shutter-gated channel produced the
// spectrum.
func (s *Spectrum) SetDirection(channel string) { s.Direction = channel }

// Merge copies every key from meta into the spectrum's metadata map,
// mirroring the original's spectrum.update(self.meta).
func (s *Spectrum) Merge(meta map[string]any) {
	for k, v := range meta {
		s.Metadata[k] = v
	}
}

// SaturationLevel returns the configured saturation level, or 0 if
// unset/unparseable.
func (s *Spectrum) SaturationLevel() float64 {
	return asFloat(s.Metadata[MetaSaturationLevel])
}

// IsSaturated reports whether any pixel reached the saturation level.
func (s *Spectrum) IsSaturated() bool {
	sat := s.SaturationLevel()
	if sat <= 0 {
		return false
	}
	for _, p := range s.Pixels {
		if p >= sat {
			return true
		}
	}
	return false
}

// PeakIntensity returns the maximum pixel value, or 0 for an empty
// spectrum.
func (s *Spectrum) PeakIntensity() float64 {
	var peak float64
	for _, p := range s.Pixels {
		if p > peak {
			peak = p
		}
	}
	return peak
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// SpectraList is an ordered collection of spectra captured for the same
// (run, batch, sequence) triple. All members of a list must share that
// tag; the output filename is derived purely from the tag.
type SpectraList struct {
	Run      string
	Batch    int
	Sequence int
	Spectra  []*Spectrum
}

// NewSpectraList returns an empty, correctly tagged list.
func NewSpectraList(run string, batch, sequence int) *SpectraList {
	return &SpectraList{Run: run, Batch: batch, Sequence: sequence}
}

// Append adds s to the list. s is assumed to already carry the list's
// tag; SpectraList itself is the single source of truth for the tag.
func (l *SpectraList) Append(s *Spectrum) {
	l.Spectra = append(l.Spectra, s)
}

// OutName returns the on-disk filename for this list, independent of
// any run directory prefix: "b{batch:04}_s{sequence:05}.pico".
func (l *SpectraList) OutName() string {
	return fmt.Sprintf("b%04d_s%05d.pico", l.Batch, l.Sequence)
}
