package oap

import "encoding/json"

// ControlAppProtoID is reserved for control frames (HELLO and friends).
const ControlAppProtoID uint16 = 0

// Hello is the client's opening control request.
type Hello struct {
	UA string `json:"ua,omitempty"`
}

// HelloReply is the server's handshake response advertising capabilities.
type HelloReply struct {
	ServerVersion string   `json:"server_version"`
	MaxFrame      uint32   `json:"max_frame"`
	MaxInflight   uint32   `json:"max_inflight"`
	SupportedFlags []string `json:"supported_flags"`
	OapVersions   []int    `json:"oap_versions"`
	Transports    []string `json:"transports"`
}

// DefaultHelloReply builds the advertisement for this build of ronet.
func DefaultHelloReply(serverVersion string, maxInflight uint32) HelloReply {
	return HelloReply{
		ServerVersion:  serverVersion,
		MaxFrame:       MaxFrameBytes,
		MaxInflight:    maxInflight,
		SupportedFlags: []string{"REQ", "RESP", "START", "END", "EVENT", "ACK_REQ", "COMP", "APP_E2E"},
		OapVersions:    []int{int(Version)},
		Transports:     []string{"tcp", "tor"},
	}
}

// EncodeHello marshals a Hello request into a control-frame payload.
func EncodeHello(h Hello) ([]byte, error) { return json.Marshal(h) }

// DecodeHello parses a control-frame payload into a Hello request.
func DecodeHello(payload []byte) (Hello, error) {
	var h Hello
	err := json.Unmarshal(payload, &h)
	return h, err
}

// EncodeHelloReply marshals a HelloReply into a control-frame payload.
func EncodeHelloReply(r HelloReply) ([]byte, error) { return json.Marshal(r) }

// DecodeHelloReply parses a control-frame payload into a HelloReply.
func DecodeHelloReply(payload []byte) (HelloReply, error) {
	var r HelloReply
	err := json.Unmarshal(payload, &r)
	return r, err
}
