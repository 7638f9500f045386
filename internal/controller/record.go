package controller

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
)

const spectrumWaitTimeout = 5 * time.Second

func (c *Controller) sortedSpectrometerNames() []string {
	names := make([]string, 0, len(c.spectrometers))
	for name := range c.spectrometers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// record opens the requested channel's shutter (closing every other
// configured channel first), triggers an acquisition on every
// spectrometer (one that does not serve this channel rejects the
// request, which is logged and skipped), waits for each result, and
// closes the shutter again. Grounded on
// original_source/Piccolo.py's PiccoloControlWorker.record.
func (c *Controller) record(ctx context.Context, channel string, dark bool) ([]*piccolospec.Spectrum, error) {
	status := channel + " "
	if dark {
		status += "dark"
	} else {
		status += "light"
	}
	c.updateStatus(status)

	for _, name := range c.shutters.Channels() {
		sh, _ := c.shutters.Get(name)
		var err error
		if !dark && name == channel {
			err = sh.Open(ctx)
		} else {
			err = sh.Close(ctx)
		}
		if err != nil {
			c.log.Warn("shutter operation failed", "shutter", name, "error", err)
		}
	}

	type pendingResult struct {
		worker   string
		taskID   uuid.UUID
		resultCh chan spectrometer.SpectrumResult
		unsub    func()
	}
	var pending []pendingResult

	for _, name := range c.sortedSpectrometerNames() {
		w := c.spectrometers[name]
		taskID := newTaskID()
		resultCh := make(chan spectrometer.SpectrumResult, 1)
		unsub := w.SpectrumResult.Subscribe(func(r spectrometer.SpectrumResult) {
			if r.TaskID == taskID {
				select {
				case resultCh <- r:
				default:
				}
			}
		})

		res := w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdStartAcquisition, Channel: channel, Dark: dark, TaskID: taskID})
		if res.Err != nil {
			c.log.Warn("start acquisition failed", "spectrometer", name, "error", res.Err)
			unsub()
			continue
		}
		pending = append(pending, pendingResult{worker: name, taskID: taskID, resultCh: resultCh, unsub: unsub})
	}

	var spectra []*piccolospec.Spectrum
	for _, p := range pending {
		select {
		case r := <-p.resultCh:
			if r.Spectrum != nil {
				spectra = append(spectra, r.Spectrum)
			}
		case <-time.After(spectrumWaitTimeout):
			c.log.Warn("timed out waiting for spectrum", "spectrometer", p.worker)
		case <-ctx.Done():
			p.unsub()
			return spectra, ctx.Err()
		}
		p.unsub()
	}

	if sh, ok := c.shutters.Get(channel); ok {
		if err := sh.Close(ctx); err != nil {
			c.log.Warn("closing shutter after record", "shutter", channel, "error", err)
		}
	}

	return spectra, nil
}

// recordDark records a dark frame (all shutters closed) across every
// configured channel and enqueues the resulting SpectraList. batch
// of -1 means "allocate the run's next batch".
func (c *Controller) recordDark(ctx context.Context, runName string, batch, sequence int) error {
	run, err := c.runs.GetOrCreateRun(runName)
	if err != nil {
		return err
	}
	if batch < 0 {
		batch = run.NextBatch()
	}
	c.log.Info("record dark sequence", "sequence", sequence, "batch", batch, "run", run.Name)

	list := piccolospec.NewSpectraList(runName, batch, sequence)
	for _, name := range c.shutters.Channels() {
		spectra, err := c.record(ctx, name, true)
		if err != nil {
			return err
		}
		for _, s := range spectra {
			list.Append(s)
		}
	}
	c.out.Enqueue(list)
	return nil
}

// recordSequence is the record_sequence algorithm: an optional leading
// autointegration/dark pair, nsequence light sequences each optionally
// preceded by a fresh autointegration/dark at the configured interval,
// a delay between sequences, and a trailing dark when more than one
// sequence was recorded. Grounded on
// original_source/Piccolo.py's PiccoloControlWorker.record_sequence.
func (c *Controller) recordSequence(ctx context.Context, args RecordArgs) error {
	run, err := c.runs.GetOrCreateRun(args.Run)
	if err != nil {
		return err
	}
	batch := run.NextBatch()
	c.log.Info("start recording batch", "batch", batch, "run", run.Name, "sequences", args.NSequence)

	c.updateSequence(-1)

	if args.Auto == 0 {
		c.autointegrateAll(ctx, args.Target)
		if err := c.pollControl(ctx); err != nil {
			return err
		}
	}

	if args.Auto < 1 {
		if err := c.recordDark(ctx, args.Run, batch, 0); err != nil {
			return err
		}
	}

	for sequence := 0; sequence < args.NSequence; sequence++ {
		if args.Auto > 0 && sequence%args.Auto == 0 {
			c.autointegrateAll(ctx, args.Target)
			if err := c.pollControl(ctx); err != nil {
				return err
			}
			if err := c.recordDark(ctx, args.Run, batch, sequence); err != nil {
				return err
			}
			if err := c.pollControl(ctx); err != nil {
				return err
			}
		}

		if err := c.pollControl(ctx); err != nil {
			return err
		}
		c.log.Info("recording sequence", "sequence", sequence, "run", run.Name, "batch", batch)
		c.updateSequence(sequence)

		list := piccolospec.NewSpectraList(args.Run, batch, sequence)
		for _, name := range c.shutters.Channels() {
			spectra, err := c.record(ctx, name, false)
			if err != nil {
				return err
			}
			for _, s := range spectra {
				list.Append(s)
			}
		}
		c.out.Enqueue(list)

		if err := c.pollControl(ctx); err != nil {
			return err
		}
		c.updateStatus("waiting")
		select {
		case <-time.After(args.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if args.NSequence > 1 {
		if err := c.recordDark(ctx, args.Run, batch, args.NSequence-1); err != nil {
			return err
		}
	}
	return nil
}
