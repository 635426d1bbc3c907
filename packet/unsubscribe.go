package packet

import "github.com/wireloop/mqtt/encoding"

// Unsubscribe asks the server to stop forwarding traffic matching the
// given topic filters (MQTT 3.1.1 §3.10). Always carries at least one
// filter.
type Unsubscribe struct{ frame }

func (Unsubscribe) Type() Type { return UNSUBSCRIBE }

// PacketID returns the packet identifier.
func (u Unsubscribe) PacketID() uint16 {
	id, _ := encoding.DecodeUint16(u.VariableHeader())
	return id
}

// Topics returns the topic filters to unsubscribe from, in wire order.
func (u Unsubscribe) Topics() []string {
	var out []string
	p := u.Payload()
	for len(p) > 0 {
		filter, n, err := encoding.DecodeString(p)
		if err != nil {
			return out
		}
		out = append(out, filter)
		p = p[n:]
	}
	return out
}

// NewUnsubscribe builds an Unsubscribe packet. filters must hold at least
// one entry (MQTT 3.1.1 §3.10.3).
func NewUnsubscribe(packetID uint16, filters []string) *Unsubscribe {
	body := encoding.EncodeUint16(packetID)
	for _, f := range filters {
		body = append(body, encoding.EncodeString(f)...)
	}
	raw, headerLen := assemble(UNSUBSCRIBE, 0b0010, body)
	return &Unsubscribe{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}
}

func parseUnsubscribe(raw []byte, headerLen int) (Packet, error) {
	if len(raw) < headerLen+2 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 2, Actual: len(raw)}
	}
	p := raw[headerLen+2:]
	if len(p) == 0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "UNSUBSCRIBE must name at least one topic filter"}
	}
	for len(p) > 0 {
		filter, n, err := encoding.DecodeString(p)
		if err != nil {
			return nil, err
		}
		if filter == "" {
			return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "UNSUBSCRIBE topic filter must not be empty"}
		}
		p = p[n:]
	}
	return &Unsubscribe{frame{raw: raw, headerLen: headerLen, varHeaderLen: 2}}, nil
}
