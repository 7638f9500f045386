// Package writer implements the output consumer: a long-running loop
// draining a queue of SpectraLists and persisting each to disk,
// grounded on original_source/Piccolo.py's PiccoloOutput thread. The
// on-disk encoding of a .pico file is unspecified by the contract this
// module consumes (writer-defined), so a straightforward JSON document
// is used.
package writer

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

// sentinel is pushed onto the queue to request a clean shutdown,
// standing in for the original's `None` poison pill.
type sentinel struct{}

// writeMetrics is the narrow metrics surface a Writer reports to,
// mirroring the interface-not-import-dependency shape used by
// internal/controller's stateGauges so this package never needs to
// import internal/metrics.
type writeMetrics interface {
	RecordWrite(ok bool)
}

// Writer drains a channel of SpectraLists, one goroutine, forever,
// until it receives Stop. A write failure is logged and the loop
// continues, matching the spec's "never drops the consumer loop"
// requirement.
type Writer struct {
	dataDir string
	queue   chan any
	done    chan struct{}
	log     *slog.Logger
	metrics writeMetrics
}

// New returns a Writer rooted at dataDir with the given queue depth.
func New(dataDir string, queueDepth int, log *slog.Logger) *Writer {
	return &Writer{
		dataDir: dataDir,
		queue:   make(chan any, queueDepth),
		done:    make(chan struct{}),
		log:     log,
	}
}

// SetMetrics attaches a metrics sink recording every write's outcome.
// Optional; a Writer with no sink attached behaves identically.
func (w *Writer) SetMetrics(m writeMetrics) {
	w.metrics = m
}

// Enqueue submits a SpectraList for writing. It may block if the queue
// is full, applying natural backpressure to producers.
func (w *Writer) Enqueue(l *piccolospec.SpectraList) {
	w.queue <- l
}

// Stop requests the writer loop to exit after draining anything already
// queued ahead of the sentinel.
func (w *Writer) Stop() {
	w.queue <- sentinel{}
}

// Run processes the queue until Stop is called. It is meant to be
// launched in its own goroutine.
func (w *Writer) Run() {
	defer close(w.done)
	for item := range w.queue {
		if _, stop := item.(sentinel); stop {
			w.log.Info("stopped output writer")
			return
		}
		list, ok := item.(*piccolospec.SpectraList)
		if !ok {
			continue
		}
		err := w.write(list)
		if err != nil {
			w.log.Error("writing spectra", "file", list.OutName(), "error", err)
		}
		if w.metrics != nil {
			w.metrics.RecordWrite(err == nil)
		}
	}
}

// Done returns a channel closed once Run has exited.
func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) write(list *piccolospec.SpectraList) error {
	w.log.Info("writing spectra", "file", list.OutName())
	path := filepath.Join(w.dataDir, list.Run, list.OutName())
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return enc.Encode(list)
}
