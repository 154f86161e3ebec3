package oap

// Flags is the OAP/1 header flags bitset.
type Flags uint16

const (
	FlagREQ Flags = 1 << iota
	FlagRESP
	FlagSTART
	FlagEND
	FlagEVENT
	FlagACKReq
	FlagCOMP
	FlagAppE2E
)

// allFlags is the set of bits a valid header may carry; anything else is BadFlags.
const allFlags = FlagREQ | FlagRESP | FlagSTART | FlagEND | FlagEVENT | FlagACKReq | FlagCOMP | FlagAppE2E

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// WantsAck reports whether the sender requested an acknowledgement frame.
func (f Flags) WantsAck() bool { return f.has(FlagACKReq) }

// IsTerminal reports whether this frame marks the end of a stream.
func (f Flags) IsTerminal() bool { return f.has(FlagEND) }

// IsFireAndForget reports an EVENT frame sent without ACK_REQ.
func (f Flags) IsFireAndForget() bool { return f.has(FlagEVENT) && !f.has(FlagACKReq) }
