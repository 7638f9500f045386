package spectrometer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

func (w *Worker) acquireSpectrum(ctx context.Context, channel string, dark bool, taskID uuid.UUID) error {
	w.log.Info("acquisition", "task", taskID, "channel", channel, "integration_time", w.CurrentIntegrationTime(channel))

	spectrum := piccolospec.NewSpectrum()
	if dark {
		spectrum.SetDark()
	} else {
		spectrum.SetLight()
	}
	spectrum.SetDirection(channel)

	if w.isDummy() {
		w.mu.RLock()
		spec := w.spec
		w.mu.RUnlock()
		if spec == nil {
			w.SpectrumResult.Publish(SpectrumResult{TaskID: taskID, Spectrum: nil})
			return nil
		}
		pixels, err := w.readPixels(ctx, spec, w.CurrentIntegrationTime(channel))
		if err != nil {
			return err
		}
		spectrum.Pixels = pixels
	} else {
		w.mu.RLock()
		spec := w.spec
		w.mu.RUnlock()
		pixels, err := w.readPixels(ctx, spec, w.CurrentIntegrationTime(channel))
		if err != nil {
			return err
		}
		spectrum.Pixels = pixels
		temp, err := w.currentTemperature(ctx)
		if err == nil {
			spectrum.Metadata[piccolospec.MetaTemperature] = temp
		}
	}

	spectrum.Merge(w.Meta())
	spectrum.Metadata[piccolospec.MetaIntegrationTime] = w.CurrentIntegrationTime(channel)
	if coeffs, ok := w.calibration[channel]; ok {
		spectrum.Metadata[piccolospec.MetaWavelengthCalibrationCoefficientsPiccolo] = coeffs
	}

	w.SpectrumResult.Publish(SpectrumResult{TaskID: taskID, Spectrum: spectrum})
	return nil
}

// readPixels performs one timed read at integrationTime milliseconds,
// discarding the first intensities() call the way the original does: a
// fresh frame has to be flushed through the sensor's pipeline once
// before the second read is trustworthy.
func (w *Worker) readPixels(ctx context.Context, spec device.Spectrometer, integrationTime int64) ([]float64, error) {
	min, max := w.MinIntegrationTime(), w.MaxIntegrationTime()
	integrationTime = clampInt64(integrationTime, min, max)

	if err := spec.SetIntegrationTimeMicros(ctx, integrationTime*1000); err != nil {
		return nil, err
	}
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if _, err := spec.Intensities(ctx); err != nil {
		return nil, err
	}
	pixels, err := spec.Intensities(ctx)
	if err != nil {
		return nil, err
	}
	if err := spec.SetIntegrationTimeMicros(ctx, min*1000); err != nil {
		return nil, err
	}
	return pixels, nil
}
