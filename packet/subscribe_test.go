package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRoundTrip(t *testing.T) {
	topics := []SubscribeTopic{
		{Filter: "sensors/+/value", QoS: QoS1},
		{Filter: "sensors/#", QoS: QoS2},
	}
	built := NewSubscribe(5, topics)
	got, err := Decode(built.Bytes())
	require.NoError(t, err)
	s := got.(*Subscribe)
	assert.Equal(t, uint16(5), s.PacketID())
	assert.Equal(t, topics, s.Topics())
}

func TestSubscribeCarriesFixedFlags(t *testing.T) {
	built := NewSubscribe(1, []SubscribeTopic{{Filter: "a", QoS: QoS0}})
	assert.Equal(t, byte(0x82), built.FixedHeader()[0])
}

func TestParseSubscribeRejectsEmptyTopicList(t *testing.T) {
	raw := []byte{0x82, 2, 0x00, 0x01}
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestParseSubscribeRejectsReservedQoSBits(t *testing.T) {
	raw := []byte{0x82, 6, 0x00, 0x01, 0x00, 0x01, 'a', 0x04}
	_, err := Decode(raw)
	require.Error(t, err)
}
