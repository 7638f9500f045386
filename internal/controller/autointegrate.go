package controller

import (
	"context"
	"time"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
)

// autointegrateAll sweeps every configured shutter in turn: close every
// shutter, then for each one open it, autointegrate every spectrometer
// against it, wait for the sweep to settle, and close it again.
// Grounded on original_source/Piccolo.py's
// PiccoloControlWorker.autointegrate.
func (c *Controller) autointegrateAll(ctx context.Context, target float64) {
	c.log.Debug("autointegrate", "target", target)

	for _, name := range c.shutters.Channels() {
		if sh, ok := c.shutters.Get(name); ok {
			if err := sh.Close(ctx); err != nil {
				c.log.Warn("closing shutter before autointegration", "shutter", name, "error", err)
			}
		}
	}

	for _, name := range c.shutters.Channels() {
		c.updateStatus("autointegrate " + name)
		if sh, ok := c.shutters.Get(name); ok {
			if err := sh.Open(ctx); err != nil {
				c.log.Warn("opening shutter for autointegration", "shutter", name, "error", err)
			}
		}

		for _, specName := range c.sortedSpectrometerNames() {
			w := c.spectrometers[specName]
			res := w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdAutointegration, Channel: name, FloatArg: target})
			if res.Err != nil {
				c.log.Warn("autointegration request failed", "spectrometer", specName, "error", res.Err)
			}
		}

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		}

		for _, specName := range c.sortedSpectrometerNames() {
			w := c.spectrometers[specName]
			for w.Status() == piccolospec.StatusAutointegrating {
				select {
				case <-time.After(100 * time.Millisecond):
				case <-ctx.Done():
					return
				}
			}
		}

		if sh, ok := c.shutters.Get(name); ok {
			if err := sh.Close(ctx); err != nil {
				c.log.Warn("closing shutter after autointegration", "shutter", name, "error", err)
			}
		}
	}
}
