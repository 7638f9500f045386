package spectrometer

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

// autointegrate searches for the integration time that drives channel's
// peak intensity to target percent of the saturation level, within
// targetTolerance percentage points, retrying the whole candidate sweep
// up to numAttempts times. Grounded on
// original_source/PiccoloSpectrometer.py's _autointegrate.
func (w *Worker) autointegrate(ctx context.Context, channel string, target float64, targetTolerance float64, numAttempts int) error {
	w.log.Info("start autointegration", "channel", channel, "target_percent", target, "current", w.CurrentIntegrationTime(channel))

	targetIntensity := target / 100. * w.saturationLevel()
	if targetIntensity <= 0 {
		return fmt.Errorf("saturation level unavailable for autointegration")
	}

	success := false
	for attempt := 0; attempt < numAttempts && !success; attempt++ {
		w.log.Info("autointegration attempt", "attempt", attempt+1, "of", numAttempts)
		if w.metrics != nil {
			w.metrics.RecordAutointegrationRound(channel)
		}

		var times, maxPixels []float64
		testTimes := candidateTimes(w.MinIntegrationTime(), w.MaxIntegrationTime(), 20)
		testTimes = append([]float64{float64(w.CurrentIntegrationTime(channel))}, testTimes...)

		for i, candidate := range testTimes {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			maxPixel, err := w.getMax(ctx, int64(candidate))
			if err != nil {
				return err
			}
			if maxPixel > 0.9*w.saturationLevel() {
				if i == 0 {
					continue
				}
				break
			}

			times = append(times, candidate)
			maxPixels = append(maxPixels, maxPixel)

			autoTime, fittedMax, percentage, ok := w.fitAutointegration(ctx, times, maxPixels, targetIntensity)
			if !ok {
				continue
			}

			if math.Abs(percentage) < targetTolerance || math.Abs(autoTime-float64(w.MaxIntegrationTime())) < 1e-6 {
				w.setAuto(channel, piccolospec.AutoSucceeded)
				if err := w.setCurrentIntegrationTime(channel, int64(autoTime), false); err != nil {
					return err
				}
				success = true
				break
			}

			if fittedMax < 0.9*w.saturationLevel() {
				times = append(times, autoTime)
				maxPixels = append(maxPixels, fittedMax)
			}
		}
	}

	if !success {
		return fmt.Errorf("failed to autointegrate channel %s", channel)
	}
	w.log.Info("finished autointegration", "channel", channel, "current", w.CurrentIntegrationTime(channel))
	return nil
}

// candidateTimes mirrors numpy.logspace(log10(min), log10(max), n):
// n values log-spaced between min and max inclusive.
func candidateTimes(min, max int64, n int) []float64 {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	lo, hi := math.Log10(float64(min)), math.Log10(float64(max))
	out := make([]float64, n)
	if n == 1 {
		out[0] = float64(min)
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10, lo+step*float64(i))
	}
	return out
}

func (w *Worker) getMax(ctx context.Context, integrationTime int64) (float64, error) {
	w.mu.RLock()
	spec := w.spec
	w.mu.RUnlock()
	pixels, err := w.readPixels(ctx, spec, integrationTime)
	if err != nil {
		return 0, err
	}
	max := peakProminence(pixels)
	w.log.Debug("max intensity", "integration_time", integrationTime, "max", max)
	return max, nil
}

func (w *Worker) fitAutointegration(ctx context.Context, times, intensities []float64, targetIntensity float64) (autoTime, maxPixel, percentage float64, ok bool) {
	if len(times) < 2 {
		return 0, 0, 0, false
	}

	alpha, beta := stat.LinearRegression(times, intensities, nil, false)
	w.log.Debug("fitted autointegration line", "slope", beta, "intercept", alpha)

	autoTime = (targetIntensity - alpha) / beta
	autoTime = math.Max(autoTime, float64(w.MinIntegrationTime()))
	autoTime = math.Min(autoTime, float64(w.MaxIntegrationTime()))

	max, err := w.getMax(ctx, int64(autoTime))
	if err != nil {
		return 0, 0, 0, false
	}
	percentage = math.Abs(max-targetIntensity) / targetIntensity * 100.
	w.log.Info("test integration time", "time", autoTime, "max", max, "percentage", percentage)
	return autoTime, max, percentage, true
}

// peakProminence finds the most prominent local peak in pixels, falling
// back to the raw maximum when no peak at least 5 samples wide is
// found. Stands in for scipy.signal.find_peaks(pixels, width=5); gonum
// has no peak-finder, so this is a direct, deliberately small port of
// the algorithm's shape (local maxima bounded by a wide-enough plateau,
// prominence measured against the higher of its two flanking valleys).
func peakProminence(pixels []float64) float64 {
	n := len(pixels)
	if n == 0 {
		return 0
	}
	const minWidth = 5

	var best float64
	found := false
	for i := minWidth; i < n-minWidth; i++ {
		if !isLocalMax(pixels, i, minWidth) {
			continue
		}
		prom := prominenceAt(pixels, i)
		if !found || prom > best {
			best = prom
			found = true
		}
	}
	if found {
		return best
	}
	return maxOf(pixels)
}

func isLocalMax(pixels []float64, i, width int) bool {
	v := pixels[i]
	for j := i - width; j <= i+width; j++ {
		if j == i {
			continue
		}
		if pixels[j] > v {
			return false
		}
	}
	return true
}

// prominenceAt approximates topographic prominence: the peak height
// above the higher of the lowest points reached while walking outward
// to either side before encountering a taller point.
func prominenceAt(pixels []float64, i int) float64 {
	peak := pixels[i]

	leftMin := peak
	for j := i - 1; j >= 0 && pixels[j] <= peak; j-- {
		if pixels[j] < leftMin {
			leftMin = pixels[j]
		}
	}
	rightMin := peak
	for j := i + 1; j < len(pixels) && pixels[j] <= peak; j++ {
		if pixels[j] < rightMin {
			rightMin = pixels[j]
		}
	}
	base := math.Max(leftMin, rightMin)
	return peak - base
}

func maxOf(pixels []float64) float64 {
	m := pixels[0]
	for _, p := range pixels[1:] {
		if p > m {
			m = p
		}
	}
	return m
}
