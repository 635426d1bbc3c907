package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireloop/mqtt/packet"
)

func TestReassemblerSingleReadWhenPacketFitsFirstChunk(t *testing.T) {
	r := newReassembler()
	raw := packet.NewPingReq().Bytes()

	size := r.NextReadSize()
	require.Equal(t, 2, size)
	got, ok, err := r.Feed(raw[:size])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, raw, got)
	assert.Equal(t, startOfHeader, r.state)
}

func TestReassemblerTraversesStartRestStart(t *testing.T) {
	r := newReassembler()
	built := packet.NewPublishBuilder("zigbee2mqtt/light/state", []byte(`{"state":"on"}`)).Build()
	raw := built.Bytes()
	require.Greater(t, len(raw), 2)

	assert.Equal(t, startOfHeader, r.state)

	size := r.NextReadSize()
	_, ok, err := r.Feed(raw[:size])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, restOfPacket, r.state)

	offset := size
	var got []byte
	for offset < len(raw) {
		size = r.NextReadSize()
		chunk := raw[offset : offset+size]
		offset += size
		var complete bool
		got, complete, err = r.Feed(chunk)
		require.NoError(t, err)
		if complete {
			break
		}
	}

	require.Equal(t, raw, got)
	assert.Equal(t, startOfHeader, r.state)
}

func TestReassemblerMultiByteRemainingLengthForcesEndOfHeader(t *testing.T) {
	r := newReassembler()
	big := make([]byte, 200)
	built := packet.NewPublishBuilder("a/b", big).Build()
	raw := built.Bytes()
	require.Equal(t, 3, len(built.FixedHeader()))

	_, ok, err := r.Feed(raw[:2])
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, endOfHeader, r.state)

	offset := 2
	var got []byte
	for i := 0; i < 10 && offset < len(raw); i++ {
		size := r.NextReadSize()
		chunk := raw[offset : offset+size]
		offset += size
		var complete bool
		got, complete, err = r.Feed(chunk)
		require.NoError(t, err)
		if complete {
			break
		}
	}

	assert.Equal(t, raw, got)
}

func TestReassemblerSplitAcrossHeaderBoundary(t *testing.T) {
	r := newReassembler()
	built := packet.NewPublishBuilder("a/b/c", []byte("payload")).Build()
	raw := built.Bytes()

	// The first 2-byte read decodes a single-byte remaining length and
	// moves straight to RestOfPacket.
	first, ok, err := r.Feed(raw[:2])
	require.NoError(t, err)
	require.Nil(t, first)
	require.False(t, ok)

	offset := 2
	var got []byte
	for i := 0; i < 10 && offset < len(raw); i++ {
		size := r.NextReadSize()
		chunk := raw[offset : offset+size]
		offset += size
		var complete bool
		got, complete, err = r.Feed(chunk)
		require.NoError(t, err)
		if complete {
			break
		}
	}

	assert.Equal(t, raw, got)
}
