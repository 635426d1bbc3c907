package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVariableByteInteger(t *testing.T) {
	tests := []struct {
		name     string
		input    uint32
		expected []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"max_single_byte", 127, []byte{0x7F}},
		{"min_two_byte", 128, []byte{0x80, 0x01}},
		{"max_two_byte", 16383, []byte{0xFF, 0x7F}},
		{"min_three_byte", 16384, []byte{0x80, 0x80, 0x01}},
		{"max_three_byte", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"min_four_byte", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"max_four_byte", MaxVariableByteInteger, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeVariableByteInteger(tt.input))
		})
	}
}

func TestEncodeVariableByteIntegerPanicsOnOverflow(t *testing.T) {
	assert.Panics(t, func() {
		EncodeVariableByteInteger(MaxVariableByteInteger + 1)
	})
}

func TestDecodeVariableByteIntegerRoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxVariableByteInteger} {
		encoded := EncodeVariableByteInteger(n)
		decoded, consumed, err := DecodeVariableByteInteger(encoded)
		require.NoError(t, err)
		assert.Equal(t, n, decoded)
		assert.Equal(t, len(encoded), consumed)
	}
}

func TestDecodeVariableByteIntegerContinuationOnFourthByte(t *testing.T) {
	_, _, err := DecodeVariableByteInteger([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.Error(t, err)
	var de *DecodingError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidRemainingLength, de.Kind)
}

func TestDecodeVariableByteIntegerNotEnoughBytes(t *testing.T) {
	_, _, err := DecodeVariableByteInteger([]byte{0x80, 0x80})
	require.Error(t, err)
	var de *DecodingError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, NotEnoughBytes, de.Kind)
}

func TestSizeVariableByteInteger(t *testing.T) {
	assert.Equal(t, 1, SizeVariableByteInteger(0))
	assert.Equal(t, 1, SizeVariableByteInteger(127))
	assert.Equal(t, 2, SizeVariableByteInteger(128))
	assert.Equal(t, 2, SizeVariableByteInteger(16383))
	assert.Equal(t, 3, SizeVariableByteInteger(16384))
	assert.Equal(t, 4, SizeVariableByteInteger(MaxVariableByteInteger))
	assert.Equal(t, 0, SizeVariableByteInteger(MaxVariableByteInteger+1))
}
