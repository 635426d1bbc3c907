package packet

// Frame is a uniform read-only view over any packet's wire representation:
// fixed header, variable header, payload, total length, packet type. Every
// concrete packet type implements it; the views are computed from the
// underlying byte buffer, never stored twice.
type Frame interface {
	// Bytes returns the complete wire representation.
	Bytes() []byte

	// FixedHeader returns the 2..5 byte fixed header: the type/flags byte
	// followed by the variable-length "remaining length" field.
	FixedHeader() []byte

	// VariableHeader returns the packet-type-specific variable header that
	// follows the fixed header (may be empty, e.g. PINGREQ).
	VariableHeader() []byte

	// Payload returns the bytes following the variable header (may be
	// empty, e.g. a QoS 0 PUBLISH with no payload, or PINGREQ).
	Payload() []byte

	// Len returns the total wire length, fixed header included.
	Len() int

	// Type returns the packet's control type.
	Type() Type
}

// frame is embedded by every concrete packet type to implement Frame.
// headerLen and varHeaderLen are cached slice offsets computed once at
// build/parse time, not independent copies of the underlying bytes.
type frame struct {
	raw          []byte
	headerLen    int
	varHeaderLen int
}

func (f frame) Bytes() []byte { return f.raw }

func (f frame) Len() int { return len(f.raw) }

func (f frame) FixedHeader() []byte { return f.raw[:f.headerLen] }

func (f frame) VariableHeader() []byte {
	return f.raw[f.headerLen : f.headerLen+f.varHeaderLen]
}

func (f frame) Payload() []byte {
	return f.raw[f.headerLen+f.varHeaderLen:]
}

// Packet is implemented by every concrete control packet type. Recover the
// concrete type with a type switch on the value returned by Decode.
type Packet interface {
	Frame
}
