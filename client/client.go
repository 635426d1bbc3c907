// Package client implements the event-loop driver that sits between an
// application and a Binding: it owns the socket, multiplexes reads,
// keepalive timing, and outbound commands, and correlates outbound
// requests with their acknowledgements through a per-packet-identifier
// token table.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wireloop/mqtt/binding"
	"github.com/wireloop/mqtt/packet"
)

// Options configures the driver. KeepAlive of 0 disables PINGREQ.
type Options struct {
	ClientID  string
	Username  string
	Password  []byte
	KeepAlive uint16

	Will       string
	WillQoS    packet.QoS
	WillRetain bool
	HasWill    bool

	Logger *slog.Logger
}

func (o Options) bindingOptions() binding.Options {
	return binding.Options{
		ClientID:   o.ClientID,
		Username:   o.Username,
		Password:   o.Password,
		KeepAlive:  o.KeepAlive,
		Will:       o.Will,
		WillQoS:    o.WillQoS,
		WillRetain: o.WillRetain,
		HasWill:    o.HasWill,
	}
}

// readResult is what the dedicated reader goroutine posts back to Run's
// select loop; it never touches the Binding itself; Run does.
type readResult struct {
	chunk []byte
	err   error
}

// Client drives a single MQTT connection. Create one with New, then call
// Run in its own goroutine; use the returned Handle from any other
// goroutine to subscribe, publish, and receive inbound Publishes.
type Client struct {
	conn    net.Conn
	binding *binding.Binding
	log     *slog.Logger

	commands chan outbound

	publications chan *packet.Publish

	connAckReady chan struct{}
	connAckOnce  sync.Once
	connAck      *packet.ConnAck

	closed chan struct{}
	once   sync.Once
}

// outbound is one command sent from a Handle to Run: the packet to hand
// the binding, and, if the caller wants to be woken on the matching
// acknowledgement, the token identifier and reply channel to register
// for it. Registration happens in the same select case as binding.Send,
// so there is no window where an ack can arrive before its token exists.
type outbound struct {
	pkt   packet.Packet
	id    uint16
	reply chan packet.Packet
}

// New creates a Client bound to conn. conn is owned by the Client from
// this point; Run reads from and writes to it exclusively.
func New(conn net.Conn, options Options) *Client {
	log := options.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		conn:         conn,
		binding:      binding.New(options.bindingOptions(), log),
		log:          log,
		commands:     make(chan outbound, 64),
		publications: make(chan *packet.Publish, 64),
		connAckReady: make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// Handle returns the application-facing façade for this Client. Safe to
// call from any goroutine, any number of times.
func (c *Client) Handle() *Handle { return &Handle{client: c} }

// Run drives the connection until ctx is cancelled or the socket errors.
// It multiplexes three sources every iteration: the socket's readable
// side, the binding's keepalive timer, and the command channel fed by
// Handle. It never returns nil on a socket error; a cancelled context
// returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	defer c.shutdown()

	reads := make(chan readResult, 1)
	go c.readLoop(ctx, reads)

	tokens := make(map[uint16]chan packet.Packet)

	for {
		if err := c.drainTransmits(); err != nil {
			return err
		}

		timer := time.NewTimer(time.Until(c.binding.PollTimeout()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case res := <-reads:
			timer.Stop()
			if res.err != nil {
				return res.err
			}
			if err := c.handleChunk(res.chunk, tokens); err != nil {
				return err
			}

		case <-timer.C:
			c.binding.HandleTimeout(time.Now())

		case cmd := <-c.commands:
			timer.Stop()
			c.binding.Send(cmd.pkt)
			if cmd.reply != nil {
				tokens[cmd.id] = cmd.reply
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, out chan<- readResult) {
	// The reader keeps its own Framer, fed the same chunks as the Binding,
	// to know the size of each read.
	framer := binding.NewFramer()
	for {
		size := framer.NextReadSize()
		buf := make([]byte, size)

		n, err := io.ReadFull(c.conn, buf)
		if err != nil {
			select {
			case out <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
		_, _, _ = framer.Feed(buf[:n])

		select {
		case out <- readResult{chunk: buf[:n]}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) drainTransmits() error {
	for {
		raw, ok, err := c.binding.PollTransmit(time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := c.conn.Write(raw); err != nil {
			return fmt.Errorf("client: write failed: %w", err)
		}
	}
}

func (c *Client) handleChunk(chunk []byte, tokens map[uint16]chan packet.Packet) error {
	p, err := c.binding.Feed(chunk, time.Now())
	if err != nil {
		c.log.Warn("client: dropping malformed packet", "error", err)
		return nil
	}
	if p == nil {
		return nil
	}

	c.resolveToken(p, tokens)

	if pub, ok := p.(*packet.Publish); ok {
		select {
		case c.publications <- pub:
		default:
			c.log.Warn("client: publications channel full, dropping delivery", "topic", pub.TopicName())
		}
	}

	// spec §4.4/§9: a ConnAck with a non-zero return code is surfaced to
	// the caller of WaitConnected with its code preserved (resolveToken
	// already did that above), and the driver closes the transport.
	if ack, ok := p.(*packet.ConnAck); ok && ack.Code() != packet.ConnAccepted {
		return fmt.Errorf("client: connect refused: %s", ack.Code())
	}

	return nil
}

// resolveToken delivers p to whichever pending request matches its
// packet identifier, per the kind of packet it is. A ConnAck carries no
// packet identifier of its own; it is instead broadcast once to every
// WaitConnected caller via connAckReady.
func (c *Client) resolveToken(p packet.Packet, tokens map[uint16]chan packet.Packet) {
	var id uint16
	switch msg := p.(type) {
	case *packet.ConnAck:
		c.connAckOnce.Do(func() {
			c.connAck = msg
			close(c.connAckReady)
		})
		return
	case *packet.SubAck:
		id = msg.PacketID()
	case *packet.PubAck:
		id = msg.PacketID()
	case *packet.PubComp:
		id = msg.PacketID()
	case *packet.UnsubAck:
		id = msg.PacketID()
	default:
		return
	}

	if reply, ok := tokens[id]; ok {
		reply <- p
		delete(tokens, id)
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		close(c.publications)
		_ = c.conn.Close()
	})
}

// errClosed is returned by Handle methods once the driver loop has
// exited.
var errClosed = errors.New("client: connection closed")
