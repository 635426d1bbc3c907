package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAck4RoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		build func(uint16) Packet
		typ   Type
	}{
		{"puback", func(id uint16) Packet { return NewPubAck(id) }, PUBACK},
		{"pubrec", func(id uint16) Packet { return NewPubRec(id) }, PUBREC},
		{"pubrel", func(id uint16) Packet { return NewPubRel(id) }, PUBREL},
		{"pubcomp", func(id uint16) Packet { return NewPubComp(id) }, PUBCOMP},
		{"unsuback", func(id uint16) Packet { return NewUnsubAck(id) }, UNSUBACK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			built := tc.build(7)
			got, err := Decode(built.Bytes())
			require.NoError(t, err)
			assert.Equal(t, tc.typ, got.Type())

			switch p := got.(type) {
			case *PubAck:
				assert.Equal(t, uint16(7), p.PacketID())
			case *PubRec:
				assert.Equal(t, uint16(7), p.PacketID())
			case *PubRel:
				assert.Equal(t, uint16(7), p.PacketID())
			case *PubComp:
				assert.Equal(t, uint16(7), p.PacketID())
			case *UnsubAck:
				assert.Equal(t, uint16(7), p.PacketID())
			}
		})
	}
}

func TestPubRelCarriesFixedFlags(t *testing.T) {
	built := NewPubRel(1)
	assert.Equal(t, byte(0x62), built.FixedHeader()[0])
}

func TestParseAck4RejectsTrailingBytes(t *testing.T) {
	raw := []byte{0x40, 3, 0x00, 0x01, 0xFF}
	_, err := Decode(raw)
	require.Error(t, err)
}
