package client

import (
	"context"
	"time"

	"github.com/wireloop/mqtt/packet"
)

// Handle is the application-facing façade for a running Client: send
// commands, await their acknowledgements, and drain inbound Publishes.
// Safe for concurrent use.
type Handle struct {
	client *Client
}

// WaitConnected blocks until the server's ConnAck arrives and returns it,
// accepted or refused, with its return code preserved — the driver
// surfaces the handshake outcome rather than swallowing a rejection.
// Safe to call from multiple goroutines; every caller observes the same
// ConnAck.
func (h *Handle) WaitConnected(ctx context.Context) (*packet.ConnAck, error) {
	select {
	case <-h.client.connAckReady:
		return h.client.connAck, nil
	case <-h.client.closed:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe sends a Subscribe for a single topic filter and blocks until
// the matching SubAck arrives or ctx is cancelled.
func (h *Handle) Subscribe(ctx context.Context, filter string, qos packet.QoS) (*packet.SubAck, error) {
	id := nextID()
	sub := packet.NewSubscribe(id, []packet.SubscribeTopic{{Filter: filter, QoS: qos}})

	reply := make(chan packet.Packet, 1)
	if err := h.send(ctx, outbound{pkt: sub, id: id, reply: reply}); err != nil {
		return nil, err
	}

	p, err := h.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	return p.(*packet.SubAck), nil
}

// Unsubscribe sends an Unsubscribe for the given filters and blocks until
// the matching UnsubAck arrives or ctx is cancelled.
func (h *Handle) Unsubscribe(ctx context.Context, filters []string) (*packet.UnsubAck, error) {
	id := nextID()
	unsub := packet.NewUnsubscribe(id, filters)

	reply := make(chan packet.Packet, 1)
	if err := h.send(ctx, outbound{pkt: unsub, id: id, reply: reply}); err != nil {
		return nil, err
	}

	p, err := h.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	return p.(*packet.UnsubAck), nil
}

// Publish sends a Publish at qos. At QoS 0 it returns as soon as the
// command is handed to the driver loop; at QoS 1/2 it blocks until the
// terminal acknowledgement (PubAck, or PubComp after the QoS 2
// handshake) arrives.
func (h *Handle) Publish(ctx context.Context, topic string, payload []byte, qos packet.QoS) error {
	builder := packet.NewPublishBuilder(topic, payload).QoS(qos)

	if qos == packet.QoS0 {
		built := builder.Build()
		return h.send(ctx, outbound{pkt: built})
	}

	id := nextID()
	built := builder.PacketID(id).Build()

	reply := make(chan packet.Packet, 1)
	if err := h.send(ctx, outbound{pkt: built, id: id, reply: reply}); err != nil {
		return err
	}

	_, err := h.await(ctx, reply)
	return err
}

// Publications returns the channel of inbound Publishes delivered by the
// driver loop. Closed when the connection shuts down.
func (h *Handle) Publications() <-chan *packet.Publish {
	return h.client.publications
}

// Disconnect sends a Disconnect and returns; it does not wait for the
// socket to close.
func (h *Handle) Disconnect(ctx context.Context) error {
	return h.send(ctx, outbound{pkt: packet.NewDisconnect()})
}

func (h *Handle) send(ctx context.Context, cmd outbound) error {
	select {
	case h.client.commands <- cmd:
		return nil
	case <-h.client.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) await(ctx context.Context, reply chan packet.Packet) (packet.Packet, error) {
	select {
	case p := <-reply:
		return p, nil
	case <-h.client.closed:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// nextID allocates a packet identifier for a new outbound request. See
// packet.nextPacketID's doc comment for why wall-clock low bits are
// adequate entropy here: identifiers only need to be unique among a
// connection's in-flight requests.
func nextID() uint16 {
	id := uint16(time.Now().UnixNano())
	if id == 0 {
		id = 1
	}
	return id
}
