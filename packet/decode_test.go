package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsInvalidPacketType(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00})
	require.Error(t, err)

	_, err = Decode([]byte{0xF0, 0x00})
	require.Error(t, err)
}

func TestDecodeRejectsShortInput(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	built := NewPingReq()
	raw := append(built.Bytes(), 0xFF)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	built := NewPubAck(1)
	raw := built.Bytes()
	_, err := Decode(raw[:len(raw)-1])
	require.Error(t, err)
}

func TestDecodeRejectsWrongFixedFlags(t *testing.T) {
	// PUBREL requires flags 0b0010; send it with 0b0000.
	raw := []byte{0x60, 2, 0x00, 0x01}
	_, err := Decode(raw)
	require.Error(t, err)
}

// Scenario 6: large Connect with a 255-byte will, encoded remaining length
// spans 2 bytes, and parse(encode(P)) == P field-for-field.
func TestLargeConnectRoundTrip(t *testing.T) {
	will := []byte(strings.Repeat("x", 255))
	built := NewConnectBuilder().
		ClientID("big-will-client").
		Will("sensors/big/status", will).
		Build()

	assert.Equal(t, 2, len(built.FixedHeader())-1)

	got, err := Decode(built.Bytes())
	require.NoError(t, err)
	c := got.(*Connect)

	topic, payload, qos, retain, ok := c.Will()
	require.True(t, ok)
	assert.Equal(t, "sensors/big/status", topic)
	assert.Equal(t, will, payload)
	assert.Equal(t, QoS0, qos)
	assert.False(t, retain)
	assert.Equal(t, built.Bytes(), NewConnectBuilder().
		ClientID("big-will-client").
		Will("sensors/big/status", will).
		Build().Bytes())
}
