package overlay

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/overlaymesh/ronet/internal/oap"
	"github.com/overlaymesh/ronet/internal/obs"
)

func TestWriterTrySendDropsOnFullChannel(t *testing.T) {
	pr, pw := net.Pipe()
	defer pr.Close()
	defer pw.Close()

	m := obs.NewMetrics()
	w := NewWriter(pw, 1, "test-peer", m)
	defer w.Close()

	frame := oap.NewRequest(1, [16]byte{}, 1)

	// No reader on the pipe yet, so the writer goroutine blocks trying
	// to flush the first frame onto pw; the second frame fills the
	// channel and the third is dropped.
	if err := w.TrySend(frame); err != nil {
		t.Fatalf("first TrySend: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := w.TrySend(frame); err != nil {
		t.Fatalf("second TrySend: %v", err)
	}
	if err := w.TrySend(frame); err != nil {
		t.Fatalf("third TrySend: %v", err)
	}

	if got := testutil.ToFloat64(m.WriterDropped.WithLabelValues("test-peer")); got < 1 {
		t.Fatalf("expected at least one dropped frame counted, got %v", got)
	}
}

func TestWriterCloseStopsGoroutine(t *testing.T) {
	var buf bytes.Buffer
	safe := &syncWriter{w: &buf}
	w := NewWriter(safe, 4, "peer", nil)

	frame := oap.NewRequest(1, [16]byte{}, 1)
	if err := w.TrySend(frame); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	w.Close()
	w.Wait()

	if err := w.TrySend(frame); err == nil {
		t.Fatalf("expected TrySend after Close to report closed (or be silently dropped), channel is closed")
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func TestListenerRoundTripsFrames(t *testing.T) {
	m := obs.NewMetrics()
	ln, err := Listen(Config{ListenAddr: "127.0.0.1:0", WriterDepth: 8}, m, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	received := make(chan oap.Frame, 1)
	handle := func(_ context.Context, _ string, out *Writer, frame oap.Frame) error {
		received <- frame
		return out.TrySend(oap.NewResponse(frame.Header.AppProtoID, frame.Header.TenantID, frame.Header.CorrID, 0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx, handle)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := oap.NewRequest(7, [16]byte{1}, 42)
	buf, err := oap.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-received:
		if got.Header.AppProtoID != 7 || got.Header.CorrID != 42 {
			t.Fatalf("unexpected frame: %+v", got.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for handler to see frame")
	}

	dec := oap.NewDecoder(false)
	respBuf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(respBuf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	dec.Feed(respBuf[:n])
	resp, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode response: ok=%v err=%v", ok, err)
	}
	if resp.Header.CorrID != 42 {
		t.Fatalf("unexpected response corr id: %d", resp.Header.CorrID)
	}
}
