// Package overlay implements the per-connection transport: a TLS accept
// loop plus a single-writer task per connection that owns the write half
// of the socket and drains a bounded channel of OAP frames.
package overlay

import (
	"errors"
	"io"
	"sync"

	"github.com/overlaymesh/ronet/internal/oap"
	"github.com/overlaymesh/ronet/internal/obs"
)

// ErrWriterClosed is returned by Send/TrySend once the writer has shut
// down, whether by Close or by an I/O error on the underlying conn.
var ErrWriterClosed = errors.New("overlay: writer closed")

// Writer owns the write half of one connection. Exactly one goroutine
// (spawned by NewWriter) ever calls Write on the underlying io.Writer,
// enforcing the single-writer-per-connection invariant.
type Writer struct {
	ch      chan oap.Frame
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	peerTag string
	metrics *obs.Metrics
}

// NewWriter spawns the writer goroutine over wr with a channel bound of
// depth frames. peerTag labels the metrics series (e.g. remote address).
// Closing the returned Writer or the underlying connection erroring both
// terminate the goroutine.
func NewWriter(wr io.Writer, depth int, peerTag string, m *obs.Metrics) *Writer {
	if depth <= 0 {
		depth = 1
	}
	w := &Writer{
		ch:      make(chan oap.Frame, depth),
		done:    make(chan struct{}),
		peerTag: peerTag,
		metrics: m,
	}
	go w.run(wr)
	return w
}

func (w *Writer) run(wr io.Writer) {
	defer close(w.done)
	for frame := range w.ch {
		buf, err := oap.Marshal(frame)
		if err != nil {
			return
		}
		if _, err := wr.Write(buf); err != nil {
			return
		}
		w.reportDepth()
	}
}

func (w *Writer) reportDepth() {
	if w.metrics == nil {
		return
	}
	w.metrics.WriterDepth.WithLabelValues(w.peerTag).Set(float64(len(w.ch)))
}

// TrySend enqueues frame without blocking. If the channel is full, the
// frame is dropped and the drop counter is incremented. Returns
// ErrWriterClosed if the writer has already shut down.
func (w *Writer) TrySend(frame oap.Frame) error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}
	select {
	case w.ch <- frame:
		w.reportDepth()
		return nil
	default:
	}
	if w.metrics != nil {
		w.metrics.WriterDropped.WithLabelValues(w.peerTag).Inc()
	}
	return nil
}

// Send enqueues frame, blocking until there is room, the writer closes,
// or ctxDone fires. Pass a nil ctxDone to block unconditionally.
func (w *Writer) Send(frame oap.Frame, ctxDone <-chan struct{}) error {
	select {
	case w.ch <- frame:
		w.reportDepth()
		return nil
	case <-w.done:
		return ErrWriterClosed
	case <-ctxDone:
		return ErrWriterClosed
	}
}

// Close terminates the writer: no further frames are accepted, and
// frames already buffered are still written before the goroutine exits.
// Safe to call more than once.
func (w *Writer) Close() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}

// Wait blocks until the writer goroutine has exited, either because
// Close was called and the channel drained or because of a write error.
func (w *Writer) Wait() { <-w.done }
