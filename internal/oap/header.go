package oap

import (
	"encoding/binary"
	"io"
)

// Version is the only OAP protocol version this codec speaks.
const Version uint16 = 1

// MaxFrameBytes is the strict frame cap, inclusive of header, cap, and payload.
const MaxFrameBytes uint32 = 1 << 20 // 1 MiB

// MaxDecompressExpansion bounds inflate output relative to MaxFrameBytes.
const MaxDecompressExpansion = 8

// HeaderSize is the fixed wire size of a Header in bytes: len(4) + ver(2) +
// flags(2) + code(2) + app_proto_id(2) + tenant_id(16) + cap_len(2) + corr_id(8).
const HeaderSize = 4 + 2 + 2 + 2 + 2 + 16 + 2 + 8 // 38

// Header is the fixed 38-byte OAP/1 frame header.
type Header struct {
	Len        uint32
	Ver        uint16
	Flags      Flags
	Code       uint16
	AppProtoID uint16
	TenantID   [16]byte // u128, big-endian
	CapLen     uint16
	CorrID     uint64
}

// Validate checks version, size, and cap/START consistency.
func (h Header) Validate() error {
	if h.Ver != Version {
		return ErrBadVersion
	}
	if h.Len == 0 || h.Len > MaxFrameBytes {
		return ErrFrameTooLarge(h.Len, MaxFrameBytes)
	}
	if h.CapLen > 0 && !h.Flags.has(FlagSTART) {
		return ErrCapOnNonStart
	}
	return nil
}

// PutTo writes the header's wire representation to dst, which must have
// at least HeaderSize bytes of capacity from offset 0.
func (h Header) PutTo(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], h.Len)
	binary.BigEndian.PutUint16(dst[4:6], h.Ver)
	binary.BigEndian.PutUint16(dst[6:8], uint16(h.Flags))
	binary.BigEndian.PutUint16(dst[8:10], h.Code)
	binary.BigEndian.PutUint16(dst[10:12], h.AppProtoID)
	copy(dst[12:28], h.TenantID[:])
	binary.BigEndian.PutUint16(dst[28:30], h.CapLen)
	binary.BigEndian.PutUint64(dst[30:38], h.CorrID)
}

// ReadHeader parses and validates a Header from exactly HeaderSize bytes.
func ReadHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	var h Header
	h.Len = binary.BigEndian.Uint32(src[0:4])
	h.Ver = binary.BigEndian.Uint16(src[4:6])
	flagBits := binary.BigEndian.Uint16(src[6:8])
	if flagBits&^uint16(allFlags) != 0 {
		return Header{}, ErrBadFlags
	}
	h.Flags = Flags(flagBits)
	h.Code = binary.BigEndian.Uint16(src[8:10])
	h.AppProtoID = binary.BigEndian.Uint16(src[10:12])
	copy(h.TenantID[:], src[12:28])
	h.CapLen = binary.BigEndian.Uint16(src[28:30])
	h.CorrID = binary.BigEndian.Uint64(src[30:38])
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// readFull reads exactly len(buf) bytes or returns an error. Nothing in
// the package calls it; the Decoder takes its bytes through Feed.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
