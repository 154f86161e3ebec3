// Package oap implements the OAP/1 wire protocol: a length-prefixed,
// bounded, capability-carrying frame codec with optional streaming
// compression. The Decoder is a streaming state machine: Feed bytes and
// call Next to pull complete frames out as they become available.
package oap

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Encoder serializes Frames onto an io.Writer, normalizing Len/CapLen
// from the frame's actual section sizes (the caller's values are
// overwritten).
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes f to the underlying writer as a single frame.
func (e *Encoder) Encode(f Frame) error {
	buf, err := Marshal(f)
	if err != nil {
		return err
	}
	_, err = e.w.Write(buf)
	return err
}

// Marshal renders f to its wire bytes without writing anywhere, useful
// for tests and for the overlay transport's per-connection writer which
// owns its own buffered write path.
func Marshal(f Frame) ([]byte, error) {
	if len(f.Cap) > 0xFFFF {
		return nil, ErrCapOutOfBounds
	}
	totalLen := HeaderSize + len(f.Cap) + len(f.Payload)
	if totalLen > int(MaxFrameBytes) {
		return nil, ErrFrameTooLarge(uint32(totalLen), MaxFrameBytes)
	}
	hdr := f.Header
	hdr.CapLen = uint16(len(f.Cap))
	hdr.Len = uint32(totalLen)
	if hdr.CapLen > 0 {
		hdr.Flags |= FlagSTART
	}
	out := make([]byte, totalLen)
	hdr.PutTo(out[:HeaderSize])
	n := HeaderSize
	n += copy(out[n:], f.Cap)
	copy(out[n:], f.Payload)
	return out, nil
}

// Decoder accumulates bytes from a stream and yields complete frames.
// It is not safe for concurrent use; each connection owns one Decoder.
type Decoder struct {
	buf            bytes.Buffer
	allowZstd      bool
	maxDecompressed int
}

// NewDecoder constructs a Decoder. allowZstd enables inflate support for
// the COMP flag;
// when false, COMP frames fail with ErrZstdFeatureNotEnabled.
func NewDecoder(allowZstd bool) *Decoder {
	return &Decoder{allowZstd: allowZstd, maxDecompressed: int(MaxFrameBytes) * MaxDecompressExpansion}
}

// Feed appends bytes received from the transport to the internal buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Next attempts to parse one complete frame from the buffered bytes. It
// returns (frame, true, nil) on success, (Frame{}, false, nil) if more
// bytes are needed, or (Frame{}, false, err) on a protocol error. A
// protocol error is fatal to the connection — the caller must not call
// Next again on this Decoder.
func (d *Decoder) Next() (Frame, bool, error) {
	raw := d.buf.Bytes()
	if len(raw) < HeaderSize {
		return Frame{}, false, nil
	}
	hdr, err := ReadHeader(raw[:HeaderSize])
	if err != nil {
		return Frame{}, false, err
	}
	if len(raw) < int(hdr.Len) {
		return Frame{}, false, nil
	}

	frameBytes := raw[:hdr.Len]
	rest := frameBytes[HeaderSize:]

	var capSection []byte
	if hdr.CapLen > 0 {
		if !hdr.Flags.has(FlagSTART) {
			return Frame{}, false, ErrCapOnNonStart
		}
		if len(rest) < int(hdr.CapLen) {
			return Frame{}, false, ErrCapOutOfBounds
		}
		capSection = append([]byte(nil), rest[:hdr.CapLen]...)
		rest = rest[hdr.CapLen:]
	}

	var payload []byte
	if len(rest) > 0 {
		payload = append([]byte(nil), rest...)
	}

	if hdr.Flags.has(FlagCOMP) {
		if !d.allowZstd {
			return Frame{}, false, ErrZstdFeatureNotEnabled
		}
		inflated, err := d.inflate(payload)
		if err != nil {
			return Frame{}, false, err
		}
		payload = inflated
	}

	// Consume exactly this frame; leave any trailing bytes buffered.
	remaining := append([]byte(nil), raw[hdr.Len:]...)
	d.buf.Reset()
	d.buf.Write(remaining)

	return Frame{Header: hdr, Cap: capSection, Payload: payload}, true, nil
}

func (d *Decoder) inflate(body []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &DecodeError{Code: "Io", Err: err}
	}
	defer zr.Close()

	out := make([]byte, 0, len(body)*2)
	chunk := make([]byte, 16*1024)
	for {
		n, err := zr.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
			if len(out) > d.maxDecompressed {
				return nil, ErrDecompressBoundExceeded
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecodeError{Code: "Io", Err: err}
		}
	}
	return out, nil
}

// Deflate compresses payload with zstd for frames that set the COMP flag
// on encode; callers decide whether compression is worthwhile.
func Deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
