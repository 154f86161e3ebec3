package naming

import "testing"

func TestAddressRoundTripContent(t *testing.T) {
	cid := "b3:" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"[:64]
	addr, err := ParseAddress(cid)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.String() != cid {
		t.Fatalf("round trip mismatch: got %q want %q", addr.String(), cid)
	}
	if !addr.IsContent() {
		t.Fatalf("expected content address")
	}
}

func TestAddressRoundTripName(t *testing.T) {
	in := "Example.COM@1.2.3"
	addr, err := ParseAddress(in)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	name, ver, ok := addr.Name()
	if !ok {
		t.Fatalf("expected name address")
	}
	if name != "example.com" {
		t.Fatalf("expected lowercased name, got %q", name)
	}
	if ver == nil || ver.String() != "1.2.3" {
		t.Fatalf("unexpected version %+v", ver)
	}
	if addr.String() != "example.com@1.2.3" {
		t.Fatalf("unexpected rendering %q", addr.String())
	}
}

func TestAddressNameWithoutVersion(t *testing.T) {
	addr, err := ParseAddress("foo.bar")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.String() != "foo.bar" {
		t.Fatalf("unexpected rendering %q", addr.String())
	}
}

func TestParseAddressRejectsBadSemver(t *testing.T) {
	if _, err := ParseAddress("foo.bar@not-a-version"); err == nil {
		t.Fatalf("expected error for malformed semver")
	}
}

func TestParseAddressRejectsBadContentID(t *testing.T) {
	if _, err := NewContentAddress("b3:deadbeef"); err == nil {
		t.Fatalf("expected error for short content id")
	}
}
