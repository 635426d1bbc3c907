package packet

import "github.com/wireloop/mqtt/encoding"

// ConnAckCode is the CONNACK return code (MQTT 3.1.1 §3.2.2.3).
type ConnAckCode byte

const (
	ConnAccepted               ConnAckCode = 0
	ConnRefusedProtocolVersion ConnAckCode = 1
	ConnRefusedIdentifier      ConnAckCode = 2
	ConnRefusedServerUnavail   ConnAckCode = 3
	ConnRefusedBadCredentials  ConnAckCode = 4
	ConnRefusedNotAuthorized   ConnAckCode = 5
)

func (c ConnAckCode) String() string {
	switch c {
	case ConnAccepted:
		return "accepted"
	case ConnRefusedProtocolVersion:
		return "refused: unacceptable protocol version"
	case ConnRefusedIdentifier:
		return "refused: identifier rejected"
	case ConnRefusedServerUnavail:
		return "refused: server unavailable"
	case ConnRefusedBadCredentials:
		return "refused: bad username or password"
	case ConnRefusedNotAuthorized:
		return "refused: not authorized"
	default:
		return "refused: unknown reason"
	}
}

// ConnAck is the server's reply to a Connect (MQTT 3.1.1 §3.2).
type ConnAck struct{ frame }

func (ConnAck) Type() Type { return CONNACK }

// SessionPresent reports whether the server found a matching session
// already present. Always false when the client asked for clean session.
func (c ConnAck) SessionPresent() bool {
	return c.VariableHeader()[0]&0x01 != 0
}

// Code returns the connect return code.
func (c ConnAck) Code() ConnAckCode {
	return ConnAckCode(c.VariableHeader()[1])
}

// NewConnAck builds a ConnAck. sessionPresent must be false whenever code
// is anything but ConnAccepted (MQTT 3.1.1 §3.2.2.2): a refused connection
// never carries forward session state.
func NewConnAck(sessionPresent bool, code ConnAckCode) *ConnAck {
	if code != ConnAccepted {
		sessionPresent = false
	}
	var ackFlags byte
	if sessionPresent {
		ackFlags = 0x01
	}
	body := []byte{ackFlags, byte(code)}
	raw, headerLen := assemble(CONNACK, 0, body)
	return &ConnAck{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}
}

func parseConnAck(raw []byte, headerLen int) (Packet, error) {
	if len(raw) != headerLen+2 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 2, Actual: len(raw)}
	}
	ackFlags := raw[headerLen]
	if ackFlags&0xFE != 0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNACK acknowledge flags reserved bits must be 0"}
	}
	code := raw[headerLen+1]
	if code > byte(ConnRefusedNotAuthorized) {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNACK return code out of range"}
	}
	if ackFlags&0x01 != 0 && code != byte(ConnAccepted) {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNACK session present set on a refused connection"}
	}
	return &ConnAck{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}, nil
}
