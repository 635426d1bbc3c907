package packet

import "github.com/wireloop/mqtt/encoding"

// buildFixedHeader assembles the 2..5 byte fixed header for a packet whose
// variable header + payload is bodyLen bytes long.
func buildFixedHeader(typ Type, flags byte, bodyLen int) []byte {
	header := []byte{byte(typ)<<4 | flags}
	return append(header, encoding.EncodeVariableByteInteger(uint32(bodyLen))...)
}

// assemble concatenates a fixed header with the variable header + payload
// body, returning the complete wire bytes plus the fixed header length.
func assemble(typ Type, flags byte, body []byte) (raw []byte, headerLen int) {
	header := buildFixedHeader(typ, flags, len(body))
	raw = make([]byte, 0, len(header)+len(body))
	raw = append(raw, header...)
	raw = append(raw, body...)
	return raw, len(header)
}
