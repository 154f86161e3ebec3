package oap

import "testing"

func TestMarshalRoundTrip(t *testing.T) {
	f := NewRequest(7, [16]byte{1}, 42).WithPayload([]byte("hello"))
	raw, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec := NewDecoder(false)
	dec.Feed(raw)
	got, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != "hello" {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
	if got.Header.Len != uint32(HeaderSize+len("hello")) {
		t.Fatalf("unexpected normalized len %d", got.Header.Len)
	}
	if got.Header.AppProtoID != 7 || got.Header.CorrID != 42 {
		t.Fatalf("header fields not preserved: %+v", got.Header)
	}
}

func TestDecoderNeedsMoreBytes(t *testing.T) {
	f := NewRequest(1, [16]byte{}, 1).WithPayload([]byte("x"))
	raw, _ := Marshal(f)
	dec := NewDecoder(false)
	dec.Feed(raw[:HeaderSize-1])
	_, ok, err := dec.Next()
	if ok || err != nil {
		t.Fatalf("expected need-more-bytes, got ok=%v err=%v", ok, err)
	}
	dec.Feed(raw[HeaderSize-1:])
	_, ok, err = dec.Next()
	if !ok || err != nil {
		t.Fatalf("expected complete frame, got ok=%v err=%v", ok, err)
	}
}

func TestDecoderConsumesMultipleFrames(t *testing.T) {
	f1, _ := Marshal(NewRequest(1, [16]byte{}, 1).WithPayload([]byte("a")))
	f2, _ := Marshal(NewRequest(1, [16]byte{}, 2).WithPayload([]byte("bb")))
	dec := NewDecoder(false)
	dec.Feed(append(append([]byte{}, f1...), f2...))

	got1, ok, err := dec.Next()
	if !ok || err != nil {
		t.Fatalf("first frame: ok=%v err=%v", ok, err)
	}
	if string(got1.Payload) != "a" {
		t.Fatalf("first payload mismatch: %q", got1.Payload)
	}
	got2, ok, err := dec.Next()
	if !ok || err != nil {
		t.Fatalf("second frame: ok=%v err=%v", ok, err)
	}
	if string(got2.Payload) != "bb" {
		t.Fatalf("second payload mismatch: %q", got2.Payload)
	}
}

func TestFrameTooLargeRejectedByMarshalAndDecode(t *testing.T) {
	big := make([]byte, MaxFrameBytes) // + header exceeds cap
	f := NewRequest(1, [16]byte{}, 1).WithPayload(big)
	if _, err := Marshal(f); err == nil {
		t.Fatalf("expected Marshal to reject an oversized frame")
	}

	// Craft a header claiming an oversized length directly.
	var hdr Header
	hdr.Ver = Version
	hdr.Len = MaxFrameBytes + 1
	buf := make([]byte, HeaderSize)
	hdr.PutTo(buf)
	if _, err := ReadHeader(buf); err == nil {
		t.Fatalf("expected ReadHeader to reject oversized len")
	}
}

func TestBadVersionRejected(t *testing.T) {
	f := NewRequest(1, [16]byte{}, 1).WithPayload([]byte("x"))
	raw, _ := Marshal(f)
	raw[4] = 0
	raw[5] = 9 // ver = 9
	dec := NewDecoder(false)
	dec.Feed(raw)
	_, _, err := dec.Next()
	if err == nil {
		t.Fatalf("expected BadVersion error")
	}
}

func TestCapWithoutStartRejected(t *testing.T) {
	var hdr Header
	hdr.Ver = Version
	hdr.CapLen = 4 // no START flag set
	hdr.Len = uint32(HeaderSize) + 4
	buf := make([]byte, hdr.Len)
	hdr.PutTo(buf[:HeaderSize])
	dec := NewDecoder(false)
	dec.Feed(buf)
	_, _, err := dec.Next()
	if err == nil {
		t.Fatalf("expected CapOnNonStart error")
	}
}

func TestCompWithoutZstdFeature(t *testing.T) {
	f := NewRequest(1, [16]byte{}, 1)
	f.Header.Flags |= FlagCOMP
	f.Payload = []byte("ignored")
	raw, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec := NewDecoder(false)
	dec.Feed(raw)
	_, _, err = dec.Next()
	if err == nil {
		t.Fatalf("expected ZstdFeatureNotEnabled error")
	}
}

func TestCompRoundTripWithZstd(t *testing.T) {
	payload := []byte("this is a payload that compresses reasonably well well well well")
	compressed, err := Deflate(payload)
	if err != nil {
		t.Fatalf("Deflate: %v", err)
	}
	f := NewRequest(1, [16]byte{}, 1)
	f.Header.Flags |= FlagCOMP
	f.Payload = compressed
	raw, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec := NewDecoder(true)
	dec.Feed(raw)
	got, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != string(payload) {
		t.Fatalf("payload mismatch after inflate: %q", got.Payload)
	}
}

func TestWithStartCapRequiresStartFlag(t *testing.T) {
	f := NewRequest(1, [16]byte{}, 1).WithStartCap([]byte("token")).WithPayload([]byte("body"))
	raw, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dec := NewDecoder(false)
	dec.Feed(raw)
	got, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if string(got.Cap) != "token" || string(got.Payload) != "body" {
		t.Fatalf("cap/payload split wrong: cap=%q payload=%q", got.Cap, got.Payload)
	}
	if !got.Header.Flags.has(FlagSTART) {
		t.Fatalf("expected START flag set")
	}
}
