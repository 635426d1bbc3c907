package packet

import "github.com/wireloop/mqtt/encoding"

// SubscribeTopic pairs a topic filter with the QoS a client is asking the
// server to grant it.
type SubscribeTopic struct {
	Filter string
	QoS    QoS
}

// Subscribe asks the server to forward matching Publish traffic (MQTT
// 3.1.1 §3.8). Always carries at least one topic filter.
type Subscribe struct{ frame }

func (Subscribe) Type() Type { return SUBSCRIBE }

// PacketID returns the packet identifier.
func (s Subscribe) PacketID() uint16 {
	id, _ := encoding.DecodeUint16(s.VariableHeader())
	return id
}

// Topics returns the requested topic filter/QoS pairs, in wire order.
func (s Subscribe) Topics() []SubscribeTopic {
	var out []SubscribeTopic
	p := s.Payload()
	for len(p) > 0 {
		filter, n, err := encoding.DecodeString(p)
		if err != nil {
			return out
		}
		p = p[n:]
		out = append(out, SubscribeTopic{Filter: filter, QoS: QoS(p[0] & 0x03)})
		p = p[1:]
	}
	return out
}

// NewSubscribe builds a Subscribe packet requesting topics. topics must
// hold at least one entry (MQTT 3.1.1 §3.8.3.1).
func NewSubscribe(packetID uint16, topics []SubscribeTopic) *Subscribe {
	body := encoding.EncodeUint16(packetID)
	for _, t := range topics {
		body = append(body, encoding.EncodeString(t.Filter)...)
		body = append(body, byte(t.QoS)&0x03)
	}
	raw, headerLen := assemble(SUBSCRIBE, 0b0010, body)
	return &Subscribe{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}
}

func parseSubscribe(raw []byte, headerLen int) (Packet, error) {
	if len(raw) < headerLen+2 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 2, Actual: len(raw)}
	}
	p := raw[headerLen+2:]
	if len(p) == 0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBSCRIBE must request at least one topic filter"}
	}
	for len(p) > 0 {
		filter, n, err := encoding.DecodeString(p)
		if err != nil {
			return nil, err
		}
		if filter == "" {
			return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBSCRIBE topic filter must not be empty"}
		}
		p = p[n:]
		if len(p) < 1 {
			return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: 1, Actual: 0}
		}
		if p[0]&0xFC != 0 {
			return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBSCRIBE requested QoS reserved bits must be 0"}
		}
		if p[0]&0x03 == 3 {
			return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "SUBSCRIBE requested QoS out of range"}
		}
		p = p[1:]
	}
	return &Subscribe{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}, nil
}
