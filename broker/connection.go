package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireloop/mqtt/binding"
	"github.com/wireloop/mqtt/network"
	"github.com/wireloop/mqtt/packet"
	"github.com/wireloop/mqtt/retained"
	"github.com/wireloop/mqtt/topic"
)

// clientConn is one accepted connection's protocol state: framing,
// identity, and the write lock guarding concurrent sends from its own
// read loop and from other clients' fan-out goroutines.
type clientConn struct {
	broker *Broker
	conn   *network.Connection
	log    *slog.Logger

	framer   *binding.Framer
	clientID string

	writeMu  sync.Mutex
	nextID   atomic.Uint32
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

func newClientConn(b *Broker, conn *network.Connection) *clientConn {
	return &clientConn{
		broker: b,
		conn:   conn,
		log:    b.log,
		framer: binding.NewFramer(),
		closed: make(chan struct{}),
	}
}

// run drives the connection until it errors, the peer disconnects, or it
// is superseded by a later connection under the same client id. It
// always returns nil: connection-level errors are logged and swallowed
// so the listener's accept loop is never disturbed by one bad peer.
func (c *clientConn) run() error {
	defer c.shutdown()

	if err := c.awaitConnect(); err != nil {
		c.log.Warn("broker: connect failed", "remote", c.conn.RemoteAddr(), "error", err)
		return nil
	}

	for {
		p, err := c.readPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("broker: connection closed", "client_id", c.clientID, "error", err)
			}
			return nil
		}
		if p == nil {
			continue
		}
		if err := c.dispatch(p); err != nil {
			c.log.Warn("broker: dispatch failed", "client_id", c.clientID, "error", err)
			return nil
		}
	}
}

// awaitConnect reads exactly one packet and requires it to be a CONNECT;
// any other first packet, or a malformed one, fails the connection per
// MQTT 3.1.1 §3.1 (CONNECT must be the first packet on a new connection).
func (c *clientConn) awaitConnect() error {
	p, err := c.readPacket()
	if err != nil {
		return err
	}
	connect, ok := p.(*packet.Connect)
	if !ok {
		return errors.New("broker: first packet was not CONNECT")
	}

	c.clientID = connect.ClientID()
	if c.clientID == "" {
		c.clientID = c.conn.ID()
	}
	c.conn.SetClientID(c.clientID)
	c.conn.SetKeepAlive(connect.KeepAlive())
	c.broker.register(c.clientID, c)

	return c.write(packet.NewConnAck(false, packet.ConnAccepted).Bytes())
}

// readPacket pulls exactly one framed packet from the connection, reading
// NextReadSize() bytes at a time per the reassembly algorithm shared with
// the client-side Binding.
func (c *clientConn) readPacket() (packet.Packet, error) {
	for {
		size := c.framer.NextReadSize()
		buf := make([]byte, size)
		if _, err := io.ReadFull(c.conn, buf); err != nil {
			return nil, err
		}

		raw, complete, err := c.framer.Feed(buf)
		if err != nil {
			c.log.Warn("broker: discarding malformed packet", "client_id", c.clientID, "error", err)
			continue
		}
		if !complete {
			continue
		}

		p, err := packet.Decode(raw)
		if err != nil {
			c.log.Warn("broker: discarding malformed packet", "client_id", c.clientID, "error", err)
			continue
		}
		return p, nil
	}
}

func (c *clientConn) dispatch(p packet.Packet) error {
	switch msg := p.(type) {
	case *packet.Subscribe:
		return c.handleSubscribe(msg)
	case *packet.Unsubscribe:
		return c.handleUnsubscribe(msg)
	case *packet.Publish:
		return c.handlePublish(msg)
	case *packet.PubAck:
		return nil // terminal ack for our own QoS 1 fan-out; nothing to do
	case *packet.PubRec:
		return c.write(packet.NewPubRel(msg.PacketID()).Bytes())
	case *packet.PubComp:
		return nil // terminal ack for our own QoS 2 fan-out
	case *packet.PubRel:
		return c.write(packet.NewPubComp(msg.PacketID()).Bytes())
	case *packet.PingReq:
		return c.write(packet.NewPingResp().Bytes())
	case *packet.Disconnect:
		return io.EOF
	default:
		c.log.Warn("broker: unexpected packet from client", "client_id", c.clientID, "type", p.Type().String())
		return nil
	}
}

func (c *clientConn) handleSubscribe(msg *packet.Subscribe) error {
	topics := msg.Topics()
	codes := make([]packet.QoS, len(topics))

	for i, t := range topics {
		sub := &topic.Subscription{ClientID: c.clientID, Filter: t.Filter, QoS: byte(t.QoS)}
		if err := c.broker.router.Subscribe(sub); err != nil {
			codes[i] = packet.SubAckFailure
			continue
		}
		codes[i] = t.QoS
	}

	if err := c.write(packet.NewSubAck(msg.PacketID(), codes).Bytes()); err != nil {
		return err
	}

	for _, t := range topics {
		c.replayRetained(t.Filter, t.QoS)
	}
	return nil
}

// replayRetained sends every retained message matching filter to this
// client at min(stored QoS, granted QoS), per MQTT 3.1.1 §3.3.1.3.
func (c *clientConn) replayRetained(filter string, grantedQoS packet.QoS) {
	matches, err := retained.Matching(context.Background(), c.broker.cfg.Retained, filter, topic.NewTopicMatcher())
	if err != nil {
		c.log.Warn("broker: retained lookup failed", "client_id", c.clientID, "filter", filter, "error", err)
		return
	}
	for _, m := range matches {
		qos := minQoS(packet.QoS(m.QoS), grantedQoS)
		c.deliver(m.Topic, m.Payload, qos, true)
	}
}

func (c *clientConn) handleUnsubscribe(msg *packet.Unsubscribe) error {
	for _, filter := range msg.Topics() {
		c.broker.router.Unsubscribe(c.clientID, filter)
	}
	return c.write(packet.NewUnsubAck(msg.PacketID()).Bytes())
}

func (c *clientConn) handlePublish(msg *packet.Publish) error {
	topicName := msg.TopicName()
	payload := append([]byte(nil), msg.Message()...)

	if id, ok := msg.PacketID(); ok {
		switch msg.QoS() {
		case packet.QoS1:
			if err := c.write(packet.NewPubAck(id).Bytes()); err != nil {
				return err
			}
		case packet.QoS2:
			if err := c.write(packet.NewPubRec(id).Bytes()); err != nil {
				return err
			}
		}
	}

	if msg.Retain() {
		if len(payload) == 0 {
			_ = c.broker.cfg.Retained.Delete(context.Background(), topicName)
		} else {
			rm := retained.Message{Topic: topicName, Payload: payload, QoS: byte(msg.QoS()), StoredAt: time.Now()}
			if err := c.broker.cfg.Retained.Save(context.Background(), topicName, rm); err != nil {
				c.log.Warn("broker: retained save failed", "topic", topicName, "error", err)
			}
		}
	}

	// MQTT 3.1.1 has no NoLocal flag (that's a 5.0 subscription option): a
	// client subscribed to a filter matching its own PUBLISH receives its
	// own fan-out copy like any other subscriber.
	for _, sub := range c.broker.router.Match(topicName) {
		dest, ok := c.broker.lookup(sub.ClientID)
		if !ok {
			continue
		}
		qos := minQoS(msg.QoS(), packet.QoS(sub.QoS))
		dest.deliver(topicName, payload, qos, false)
	}

	return nil
}

// deliver sends topic/payload to this client as a fan-out PUBLISH at qos,
// generating a fresh packet identifier for QoS > 0. Safe to call from any
// goroutine: it only touches this clientConn's own write lock.
func (c *clientConn) deliver(topicName string, payload []byte, qos packet.QoS, retain bool) {
	builder := packet.NewPublishBuilder(topicName, payload).QoS(qos).Retain(retain)
	if qos != packet.QoS0 {
		builder = builder.PacketID(c.nextPacketID())
	}
	if err := c.write(builder.Build().Bytes()); err != nil {
		c.log.Warn("broker: fan-out delivery failed", "client_id", c.clientID, "topic", topicName, "error", err)
	}
}

func (c *clientConn) nextPacketID() uint16 {
	id := uint16(c.nextID.Add(1))
	if id == 0 {
		id = uint16(c.nextID.Add(1))
	}
	return id
}

func (c *clientConn) write(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(raw)
	return err
}

// closeDuplicate is called on the previous connection for a client id
// when a new one registers under the same id; it closes the socket
// without touching the router (the new connection owns that id now).
func (c *clientConn) closeDuplicate() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *clientConn) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
	if c.clientID != "" {
		c.broker.unregister(c.clientID, c)
	}
}

func minQoS(a, b packet.QoS) packet.QoS {
	if a < b {
		return a
	}
	return b
}
