package packet

import "github.com/wireloop/mqtt/encoding"

// PingReq is the 2-byte keepalive request a client sends to the server
// (MQTT 3.1.1 §3.13).
type PingReq struct{ frame }

// PingResp is the server's reply to a PingReq (MQTT 3.1.1 §3.14).
type PingResp struct{ frame }

// Disconnect announces a clean client disconnection (MQTT 3.1.1 §3.14 [sic; §3.14 is Disconnect]).
type Disconnect struct{ frame }

func (PingReq) Type() Type    { return PINGREQ }
func (PingResp) Type() Type   { return PINGRESP }
func (Disconnect) Type() Type { return DISCONNECT }

// NewPingReq builds a PingReq packet. Infallible: PingReq carries no fields.
func NewPingReq() *PingReq {
	raw, headerLen := assemble(PINGREQ, 0, nil)
	return &PingReq{frame{raw: raw, headerLen: headerLen}}
}

// NewPingResp builds a PingResp packet.
func NewPingResp() *PingResp {
	raw, headerLen := assemble(PINGRESP, 0, nil)
	return &PingResp{frame{raw: raw, headerLen: headerLen}}
}

// NewDisconnect builds a Disconnect packet.
func NewDisconnect() *Disconnect {
	raw, headerLen := assemble(DISCONNECT, 0, nil)
	return &Disconnect{frame{raw: raw, headerLen: headerLen}}
}

// parseZero parses any of the three zero-length packet types: the fixed
// header carries everything, so there is nothing left to verify beyond
// remaining length == 0.
func parseZero(raw []byte, headerLen int, typ Type) (Packet, error) {
	if len(raw) != headerLen {
		return nil, encoding.ErrTooManyBytes
	}
	f := frame{raw: raw, headerLen: headerLen}
	switch typ {
	case PINGREQ:
		return &PingReq{f}, nil
	case PINGRESP:
		return &PingResp{f}, nil
	case DISCONNECT:
		return &Disconnect{f}, nil
	default:
		return nil, encoding.InvalidPacketTypeError(byte(typ) << 4)
	}
}
