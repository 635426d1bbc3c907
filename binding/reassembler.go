// Package binding implements the sans-I/O MQTT protocol engine: a pure
// state machine driven by (state, bytes-in, now) -> (state, bytes-out,
// packet-out), with no socket dependency of its own.
package binding

import "github.com/wireloop/mqtt/encoding"

// reassemblerState names which phase of a single packet's framing the
// reassembler is waiting on.
type reassemblerState int

const (
	startOfHeader reassemblerState = iota
	endOfHeader
	restOfPacket
)

// reassembler turns an arbitrary sequence of byte chunks into a sequence
// of complete packet buffers, regardless of how the chunks are split
// across the wire. It never blocks: NextReadSize reports exactly how many
// bytes the caller should read next, and Feed reports whether that read
// completed a packet.
type reassembler struct {
	state reassemblerState

	partialHeader  []byte // valid in endOfHeader
	header         []byte // valid in restOfPacket
	bytesRemaining uint32 // valid in restOfPacket
}

func newReassembler() *reassembler {
	return &reassembler{state: startOfHeader}
}

// Framer is the reassembler's exported name: the same sans-I/O framing
// state machine a Binding embeds, available standalone so other
// collaborators (the broker) can turn a byte stream into whole packets
// without duplicating §4.4's reassembly algorithm.
type Framer = reassembler

// NewFramer creates a Framer in its initial StartOfHeader state.
func NewFramer() *Framer { return newReassembler() }

// NextReadSize reports how many bytes the driver should read from the
// socket and pass to Feed next.
func (r *reassembler) NextReadSize() int {
	switch r.state {
	case startOfHeader:
		return 2
	case endOfHeader:
		return 2
	case restOfPacket:
		return int(r.bytesRemaining)
	default:
		return 2
	}
}

// Feed consumes exactly NextReadSize() bytes of freshly read data. It
// returns the complete wire bytes of one packet once framing finishes;
// otherwise it returns ok == false and the caller should read again.
func (r *reassembler) Feed(chunk []byte) (raw []byte, ok bool, err error) {
	switch r.state {
	case startOfHeader:
		length, _, decErr := encoding.DecodeVariableByteInteger(chunk[1:])
		if decErr != nil {
			if isNotEnoughBytes(decErr) {
				r.state = endOfHeader
				r.partialHeader = chunk
				return nil, false, nil
			}
			return nil, false, decErr
		}

		headerLen := 1 + encoding.SizeVariableByteInteger(length)
		remaining := headerLen + int(length) - len(chunk)
		if remaining == 0 {
			r.state = startOfHeader
			return chunk, true, nil
		}

		r.state = restOfPacket
		r.header = chunk
		r.bytesRemaining = uint32(remaining)
		return nil, false, nil

	case endOfHeader:
		header := append(append([]byte{}, r.partialHeader...), chunk...)
		length, _, decErr := encoding.DecodeVariableByteInteger(header[1:])
		if decErr != nil {
			if isNotEnoughBytes(decErr) && len(header) < 1+encoding.MaxVariableByteIntegerBytes {
				// The remaining-length field spans more than 3 bytes;
				// stay in this state and read again (NextReadSize still
				// reports 2 bytes).
				r.partialHeader = header
				return nil, false, nil
			}
			return nil, false, decErr
		}

		headerLen := 1 + encoding.SizeVariableByteInteger(length)
		remaining := headerLen + int(length) - len(header)

		r.partialHeader = nil
		if remaining == 0 {
			r.state = startOfHeader
			return header, true, nil
		}

		r.state = restOfPacket
		r.header = header
		r.bytesRemaining = uint32(remaining)
		return nil, false, nil

	case restOfPacket:
		raw = append(append([]byte{}, r.header...), chunk...)
		r.header = nil
		r.bytesRemaining = 0
		r.state = startOfHeader
		return raw, true, nil

	default:
		return nil, false, nil
	}
}

func isNotEnoughBytes(err error) bool {
	decErr, ok := err.(*encoding.DecodingError)
	return ok && decErr.Kind == encoding.NotEnoughBytes
}
