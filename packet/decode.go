package packet

import "github.com/wireloop/mqtt/encoding"

// fixedFlags is the required low-nibble value for packet types whose flags
// are not packet-specific (MQTT 3.1.1 §2.2.2).
var fixedFlags = map[Type]byte{
	CONNECT:     0b0000,
	CONNACK:     0b0000,
	PUBACK:      0b0000,
	PUBREC:      0b0000,
	PUBREL:      0b0010,
	PUBCOMP:     0b0000,
	SUBSCRIBE:   0b0010,
	SUBACK:      0b0000,
	UNSUBSCRIBE: 0b0010,
	UNSUBACK:    0b0000,
	PINGREQ:     0b0000,
	PINGRESP:    0b0000,
	DISCONNECT:  0b0000,
}

// parseFixedHeader reads the type/flags byte and the remaining-length
// variable byte integer from the front of data. It returns the decoded
// type, the raw low-nibble flags, the remaining length, and the number of
// bytes the fixed header occupies (1 + size of the remaining-length field).
func parseFixedHeader(data []byte) (typ Type, flags byte, remaining uint32, headerLen int, err error) {
	if len(data) < 1 {
		return 0, 0, 0, 0, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: 2, Actual: len(data)}
	}

	first := data[0]
	t := Type(first >> 4)
	if t == 0 || t > DISCONNECT {
		return 0, 0, 0, 0, encoding.InvalidPacketTypeError(first)
	}
	flags = first & 0x0F

	remaining, n, err := encoding.DecodeVariableByteInteger(data[1:])
	if err != nil {
		return 0, 0, 0, 0, err
	}

	return t, flags, remaining, 1 + n, nil
}

// verifyFlags checks the fixed header's flag nibble against what typ
// requires. PUBLISH carries its own per-field validation in publish.go.
func verifyFlags(typ Type, flags byte) error {
	if typ == PUBLISH {
		return nil
	}
	want, ok := fixedFlags[typ]
	if !ok {
		return encoding.ErrHeaderContainsInvalidFlags
	}
	if flags != want {
		return encoding.ErrHeaderContainsInvalidFlags
	}
	return nil
}

// Decode parses exactly one complete MQTT packet from data. data must hold
// precisely the wire bytes of a single packet, as guaranteed by the
// binding's reassembler (§4.4); any trailing byte is a TooManyBytes error,
// any missing byte is a NotEnoughBytes error.
func Decode(data []byte) (Packet, error) {
	typ, flags, remaining, headerLen, err := parseFixedHeader(data)
	if err != nil {
		return nil, err
	}

	total := headerLen + int(remaining)
	if len(data) < total {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: total, Actual: len(data)}
	}
	if len(data) > total {
		return nil, encoding.ErrTooManyBytes
	}

	if err := verifyFlags(typ, flags); err != nil {
		return nil, err
	}

	raw := data[:total]

	switch typ {
	case CONNECT:
		return parseConnect(raw, headerLen)
	case CONNACK:
		return parseConnAck(raw, headerLen)
	case PUBLISH:
		return parsePublish(raw, flags, headerLen)
	case PUBACK:
		return parseAck4(raw, headerLen, PUBACK)
	case PUBREC:
		return parseAck4(raw, headerLen, PUBREC)
	case PUBREL:
		return parseAck4(raw, headerLen, PUBREL)
	case PUBCOMP:
		return parseAck4(raw, headerLen, PUBCOMP)
	case SUBSCRIBE:
		return parseSubscribe(raw, headerLen)
	case SUBACK:
		return parseSubAck(raw, headerLen)
	case UNSUBSCRIBE:
		return parseUnsubscribe(raw, headerLen)
	case UNSUBACK:
		return parseAck4(raw, headerLen, UNSUBACK)
	case PINGREQ:
		return parseZero(raw, headerLen, PINGREQ)
	case PINGRESP:
		return parseZero(raw, headerLen, PINGRESP)
	case DISCONNECT:
		return parseZero(raw, headerLen, DISCONNECT)
	default:
		return nil, encoding.InvalidPacketTypeError(byte(typ) << 4)
	}
}
