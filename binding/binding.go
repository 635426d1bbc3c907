package binding

import (
	"errors"
	"log/slog"
	"time"

	"github.com/wireloop/mqtt/packet"
)

// ErrClientDisconnected is returned by PollTransmit once the binding has
// emitted a Disconnect packet. Emitting Disconnect is a one-way edge
// (spec §4.4): every subsequent PollTransmit call fails with this error
// instead of returning further bytes.
var ErrClientDisconnected = errors.New("binding: client disconnected")

// ConnectionStatus is the binding's connection lifecycle position.
type ConnectionStatus int

const (
	NotConnected ConnectionStatus = iota
	Connecting
	Connected
	Disconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case NotConnected:
		return "not-connected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Options configures the Connect a Binding emits on first PollTransmit,
// and the keepalive interval it enforces afterward.
type Options struct {
	ClientID  string
	Username  string
	Password  []byte
	KeepAlive uint16 // seconds; 0 disables PINGREQ entirely

	Will       string
	WillQoS    packet.QoS
	WillRetain bool
	HasWill    bool
}

// Statistics tracks packet/byte counts the driver can surface for
// diagnostics.
type Statistics struct {
	BytesRead   int
	BytesSent   int
	PacketsRead int
	PacketsSent int
}

// Binding is the sans-I/O MQTT protocol state machine. It owns the
// connection lifecycle, the outbound transmit queue, inbound
// reassembly, the keepalive clock, and automatic QoS 1/2 acknowledgement
// responses. It never touches a socket: a driver loop feeds it bytes
// and timer ticks, and drains the bytes it wants written.
type Binding struct {
	options Options
	status  ConnectionStatus

	reassembler *reassembler
	transmits   []packet.Packet

	stats  Statistics
	lastIO time.Time

	log *slog.Logger
}

// New creates a Binding that has not yet sent a Connect.
func New(options Options, log *slog.Logger) *Binding {
	if log == nil {
		log = slog.Default()
	}
	return &Binding{
		options:     options,
		status:      NotConnected,
		reassembler: newReassembler(),
		lastIO:      time.Now(),
		log:         log,
	}
}

// Status returns the current connection status.
func (b *Binding) Status() ConnectionStatus { return b.status }

// Statistics returns a snapshot of inbound/outbound packet counters.
func (b *Binding) Statistics() Statistics { return b.stats }

// Send enqueues packet for transmission. The driver loop drains the queue
// via PollTransmit.
func (b *Binding) Send(p packet.Packet) {
	b.transmits = append(b.transmits, p)
}

// NextReadSize reports how many bytes the driver should read from the
// socket next and hand to Feed.
func (b *Binding) NextReadSize() int {
	return b.reassembler.NextReadSize()
}

// PollTransmit returns the next chunk of outbound bytes to write, if any.
// The very first call, while NotConnected, synthesizes and returns the
// Connect packet built from Options; subsequent calls drain Send's queue
// in FIFO order. Once a Disconnect has been emitted, every later call
// returns ErrClientDisconnected instead of bytes (spec §4.4: emitting
// Disconnect is a one-way edge to the Disconnected state).
func (b *Binding) PollTransmit(now time.Time) ([]byte, bool, error) {
	if b.status == Disconnected {
		return nil, false, ErrClientDisconnected
	}

	if b.status == NotConnected {
		b.status = Connecting
		raw := b.buildConnect()
		b.lastIO = now
		b.stats.BytesSent += len(raw)
		b.stats.PacketsSent++
		b.log.Debug("binding: sending CONNECT", "client_id", b.options.ClientID)
		return raw, true, nil
	}

	if b.status == Connecting {
		return nil, false, nil
	}

	if len(b.transmits) == 0 {
		return nil, false, nil
	}

	p := b.transmits[0]
	b.transmits = b.transmits[1:]
	raw := p.Bytes()
	b.lastIO = now
	b.stats.BytesSent += len(raw)
	b.stats.PacketsSent++

	if p.Type() == packet.DISCONNECT {
		b.status = Disconnected
		b.log.Debug("binding: emitted DISCONNECT, no further transmits")
	}

	return raw, true, nil
}

// buildConnect assembles the Connect packet's wire bytes from Options.
// The typestate builder only exposes Username/Password/Will in the
// combinations a caller actually populated, so the four reachable shapes
// are handled explicitly in buildConnectFromOptions.
func (b *Binding) buildConnect() []byte {
	return buildConnectFromOptions(b.options)
}

func buildConnectFromOptions(o Options) []byte {
	base := packet.NewConnectBuilder()
	if o.ClientID != "" {
		base = base.ClientID(o.ClientID)
	}
	base = base.KeepAlive(o.KeepAlive)

	switch {
	case o.HasWill && o.Username != "":
		wb := base.Will(o.Will, nil).WillQoS(o.WillQoS).RetainWill(o.WillRetain)
		ab := wb.Username(o.Username)
		if o.Password != nil {
			ab = ab.Password(o.Password)
		}
		return ab.Build().Bytes()
	case o.HasWill:
		wb := base.Will(o.Will, nil).WillQoS(o.WillQoS).RetainWill(o.WillRetain)
		return wb.Build().Bytes()
	case o.Username != "":
		ab := base.Username(o.Username)
		if o.Password != nil {
			ab = ab.Password(o.Password)
		}
		return ab.Build().Bytes()
	default:
		return base.Build().Bytes()
	}
}

// Feed hands the driver's most recent read to the reassembler. It
// returns a decoded Packet once one is fully framed, updates connection
// status on CONNACK, and enqueues automatic QoS 1/2 acknowledgements for
// PUBLISH/PUBREC/PUBREL traffic (MQTT 3.1.1 §4.4).
func (b *Binding) Feed(chunk []byte, now time.Time) (packet.Packet, error) {
	raw, complete, err := b.reassembler.Feed(chunk)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, nil
	}

	p, err := packet.Decode(raw)
	if err != nil {
		b.log.Warn("binding: discarding malformed packet", "error", err)
		return nil, err
	}

	b.lastIO = now
	b.stats.BytesRead += len(raw)
	b.stats.PacketsRead++
	b.log.Debug("binding: received packet", "type", p.Type().String())

	if ack, ok := p.(*packet.ConnAck); ok && ack.Code() == packet.ConnAccepted {
		b.status = Connected
	}

	b.autoAck(p)

	return p, nil
}

// autoAck enqueues the acknowledgement packets the MQTT 3.1.1 QoS
// handshakes require in direct response to inbound traffic.
func (b *Binding) autoAck(p packet.Packet) {
	switch msg := p.(type) {
	case *packet.Publish:
		id, hasID := msg.PacketID()
		if !hasID {
			return
		}
		switch msg.QoS() {
		case packet.QoS1:
			b.Send(packet.NewPubAck(id))
		case packet.QoS2:
			b.Send(packet.NewPubRec(id))
		}
	case *packet.PubRec:
		b.Send(packet.NewPubRel(msg.PacketID()))
	case *packet.PubRel:
		b.Send(packet.NewPubComp(msg.PacketID()))
	}
}

// HandleTimeout enqueues a PingReq if keep_alive seconds have elapsed
// since the last I/O: the last packet PollTransmit emitted or the last
// packet Feed decoded. A no-op with KeepAlive == 0.
func (b *Binding) HandleTimeout(now time.Time) {
	if b.options.KeepAlive == 0 {
		return
	}
	if now.Sub(b.lastIO) >= time.Duration(b.options.KeepAlive)*time.Second {
		b.Send(packet.NewPingReq())
	}
}

// infiniteKeepAlive is reported by PollTimeout when keepalive is
// disabled, per the design note: far enough in the future that any
// scheduler treats it as "never", without requiring a dedicated
// no-timeout API.
const infiniteKeepAlive = 30 * 365 * 24 * time.Hour

// PollTimeout reports the instant HandleTimeout should next be called.
// With KeepAlive == 0 it returns an instant roughly 30 years out so a
// naive scheduler never busy-loops on a zero-duration wakeup.
func (b *Binding) PollTimeout() time.Time {
	if b.options.KeepAlive == 0 {
		return b.lastIO.Add(infiniteKeepAlive)
	}
	return b.lastIO.Add(time.Duration(b.options.KeepAlive) * time.Second)
}
