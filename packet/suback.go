package packet

import "github.com/wireloop/mqtt/encoding"

// SubAckFailure is the granted-QoS byte a server sends back for a topic
// filter it refuses (MQTT 3.1.1 §3.9.3).
const SubAckFailure QoS = 0x80

// SubAck acknowledges a Subscribe, one return code per requested topic
// filter, in the same order (MQTT 3.1.1 §3.9).
type SubAck struct{ frame }

func (SubAck) Type() Type { return SUBACK }

// PacketID returns the packet identifier, matching the Subscribe it acks.
func (s SubAck) PacketID() uint16 {
	id, _ := encoding.DecodeUint16(s.VariableHeader())
	return id
}

// ReturnCodes returns one granted-QoS byte per requested topic filter;
// SubAckFailure (0x80) marks a refused filter.
func (s SubAck) ReturnCodes() []QoS {
	payload := s.Payload()
	out := make([]QoS, len(payload))
	for i, b := range payload {
		out[i] = QoS(b)
	}
	return out
}

// NewSubAck builds a SubAck for packetID with codes, one per filter of the
// Subscribe being acknowledged, in order. codes must hold at least one
// entry.
func NewSubAck(packetID uint16, codes []QoS) *SubAck {
	body := encoding.EncodeUint16(packetID)
	for _, c := range codes {
		body = append(body, byte(c))
	}
	raw, headerLen := assemble(SUBACK, 0, body)
	return &SubAck{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}
}

func parseSubAck(raw []byte, headerLen int) (Packet, error) {
	if len(raw) < headerLen+2 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 2, Actual: len(raw)}
	}
	payload := raw[headerLen+2:]
	if len(payload) == 0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBACK must carry at least one return code"}
	}
	for _, b := range payload {
		if b != byte(SubAckFailure) && b > byte(QoS2) {
			return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBACK return code out of range"}
		}
	}
	return &SubAck{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}, nil
}
