package oap

import "testing"

func TestHelloRoundTrip(t *testing.T) {
	payload, err := EncodeHello(Hello{UA: "ronet-client/1.0"})
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	got, err := DecodeHello(payload)
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if got.UA != "ronet-client/1.0" {
		t.Fatalf("unexpected UA %q", got.UA)
	}
}

func TestDefaultHelloReplyAdvertisesBounds(t *testing.T) {
	reply := DefaultHelloReply("1.0.0", 64)
	if reply.MaxFrame != MaxFrameBytes {
		t.Fatalf("expected max_frame to equal MaxFrameBytes")
	}
	if len(reply.OapVersions) != 1 || reply.OapVersions[0] != int(Version) {
		t.Fatalf("unexpected oap_versions %+v", reply.OapVersions)
	}
	payload, err := EncodeHelloReply(reply)
	if err != nil {
		t.Fatalf("EncodeHelloReply: %v", err)
	}
	got, err := DecodeHelloReply(payload)
	if err != nil {
		t.Fatalf("DecodeHelloReply: %v", err)
	}
	if got.ServerVersion != "1.0.0" {
		t.Fatalf("round trip lost server_version")
	}
}
