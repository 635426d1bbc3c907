package packet

import "github.com/wireloop/mqtt/encoding"

// PubAck acknowledges a QoS 1 Publish (MQTT 3.1.1 §3.4).
type PubAck struct{ frame }

// PubRec is the first acknowledgement of a QoS 2 Publish (MQTT 3.1.1 §3.5).
type PubRec struct{ frame }

// PubRel acknowledges a PubRec, completing the QoS 2 handshake's second
// step (MQTT 3.1.1 §3.6).
type PubRel struct{ frame }

// PubComp completes the QoS 2 handshake (MQTT 3.1.1 §3.7).
type PubComp struct{ frame }

// UnsubAck acknowledges an Unsubscribe (MQTT 3.1.1 §3.11).
type UnsubAck struct{ frame }

func (PubAck) Type() Type   { return PUBACK }
func (PubRec) Type() Type   { return PUBREC }
func (PubRel) Type() Type   { return PUBREL }
func (PubComp) Type() Type  { return PUBCOMP }
func (UnsubAck) Type() Type { return UNSUBACK }

// PacketID returns the packet identifier these 4 packet types consist of,
// beyond their fixed header.
func (p PubAck) PacketID() uint16   { return ack4ID(p.frame) }
func (p PubRec) PacketID() uint16   { return ack4ID(p.frame) }
func (p PubRel) PacketID() uint16   { return ack4ID(p.frame) }
func (p PubComp) PacketID() uint16  { return ack4ID(p.frame) }
func (p UnsubAck) PacketID() uint16 { return ack4ID(p.frame) }

func ack4ID(f frame) uint16 {
	id, _ := encoding.DecodeUint16(f.VariableHeader())
	return id
}

func ack4Flags(typ Type) byte {
	if typ == PUBREL {
		return 0b0010
	}
	return 0
}

func buildAck4(typ Type, packetID uint16) *frame {
	body := encoding.EncodeUint16(packetID)
	raw, headerLen := assemble(typ, ack4Flags(typ), body)
	return &frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}
}

// NewPubAck builds a PubAck for packetID. Infallible.
func NewPubAck(packetID uint16) *PubAck { return &PubAck{*buildAck4(PUBACK, packetID)} }

// NewPubRec builds a PubRec for packetID. Infallible.
func NewPubRec(packetID uint16) *PubRec { return &PubRec{*buildAck4(PUBREC, packetID)} }

// NewPubRel builds a PubRel for packetID. Infallible.
func NewPubRel(packetID uint16) *PubRel { return &PubRel{*buildAck4(PUBREL, packetID)} }

// NewPubComp builds a PubComp for packetID. Infallible.
func NewPubComp(packetID uint16) *PubComp { return &PubComp{*buildAck4(PUBCOMP, packetID)} }

// NewUnsubAck builds an UnsubAck for packetID. Infallible.
func NewUnsubAck(packetID uint16) *UnsubAck { return &UnsubAck{*buildAck4(UNSUBACK, packetID)} }

// parseAck4 parses any of the five 4-byte ack packet types: type byte,
// remaining length == 2, and a packet identifier.
func parseAck4(raw []byte, headerLen int, typ Type) (Packet, error) {
	if len(raw) != headerLen+2 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 2, Actual: len(raw)}
	}
	f := frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}
	switch typ {
	case PUBACK:
		return &PubAck{f}, nil
	case PUBREC:
		return &PubRec{f}, nil
	case PUBREL:
		return &PubRel{f}, nil
	case PUBCOMP:
		return &PubComp{f}, nil
	case UNSUBACK:
		return &UnsubAck{f}, nil
	default:
		return nil, encoding.InvalidPacketTypeError(byte(typ) << 4)
	}
}
