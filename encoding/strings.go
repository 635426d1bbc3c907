package encoding

import "unicode/utf8"

// EncodeBytes returns b as a 2-byte-length-prefixed field, per MQTT 3.1.1 §1.5.3.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, 0, 2+len(b))
	out = append(out, EncodeUint16(uint16(len(b)))...)
	out = append(out, b...)
	return out
}

// EncodeString returns s as a length-prefixed UTF-8 field. Infallible: s is
// already a Go string and is therefore already valid UTF-8.
func EncodeString(s string) []byte {
	return EncodeBytes([]byte(s))
}

// DecodeBytes decodes a length-prefixed byte field from the front of data.
// Returns the decoded slice (aliasing data) and the number of bytes
// consumed including the 2-byte length prefix.
func DecodeBytes(data []byte) ([]byte, int, error) {
	length, err := DecodeUint16(data)
	if err != nil {
		return nil, 0, err
	}

	total := 2 + int(length)
	if len(data) < total {
		return nil, 0, errNotEnoughBytes(total, len(data))
	}

	return data[2:total], total, nil
}

// DecodeString decodes a length-prefixed UTF-8 field from the front of
// data. Fails with InvalidValue if the bytes are not valid UTF-8.
func DecodeString(data []byte) (string, int, error) {
	b, n, err := DecodeBytes(data)
	if err != nil {
		return "", 0, err
	}

	if !utf8.Valid(b) {
		return "", 0, errInvalidValue("field is not valid UTF-8")
	}

	return string(b), n, nil
}
