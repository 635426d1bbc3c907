package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wireloop/mqtt/binding"
	"github.com/wireloop/mqtt/packet"
)

// serverPeer drives the non-Client side of a net.Pipe connection, acting as
// the MQTT server the Client under test is talking to. It reuses the same
// Framer the broker package does, rather than re-deriving reassembly.
type serverPeer struct {
	t      *testing.T
	conn   net.Conn
	framer *binding.Framer
}

func newServerPeer(t *testing.T, conn net.Conn) *serverPeer {
	return &serverPeer{t: t, conn: conn, framer: binding.NewFramer()}
}

func (p *serverPeer) send(raw []byte) {
	p.t.Helper()
	_, err := p.conn.Write(raw)
	require.NoError(p.t, err)
}

func (p *serverPeer) recv() packet.Packet {
	p.t.Helper()
	for {
		size := p.framer.NextReadSize()
		buf := make([]byte, size)
		_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err := io.ReadFull(p.conn, buf)
		require.NoError(p.t, err)

		raw, complete, err := p.framer.Feed(buf)
		require.NoError(p.t, err)
		if !complete {
			continue
		}
		pkt, err := packet.Decode(raw)
		require.NoError(p.t, err)
		return pkt
	}
}

// acceptConnect reads the CONNECT a freshly-started Client emits and
// replies with an accepting CONNACK, completing the handshake.
func (p *serverPeer) acceptConnect() *packet.Connect {
	p.t.Helper()
	got, ok := p.recv().(*packet.Connect)
	require.True(p.t, ok)
	p.send(packet.NewConnAck(false, packet.ConnAccepted).Bytes())
	return got
}

// newTestClient wires a Client to one end of a net.Pipe, runs it in the
// background, and hands back the other end as a serverPeer plus the
// application-facing Handle.
func newTestClient(t *testing.T, opts Options) (*Handle, *serverPeer, context.CancelFunc) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	cli := New(clientConn, opts)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = cli.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	peer := newServerPeer(t, serverConn)
	peer.acceptConnect()

	return cli.Handle(), peer, cancel
}

// Scenario 1 (spec.md §8): plain subscribe then publish.
func TestClientSubscribeThenPublish(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "sub"})

	subErrCh := make(chan error, 1)
	var ack *packet.SubAck
	go func() {
		var err error
		ack, err = h.Subscribe(context.Background(), "topic", packet.QoS0)
		subErrCh <- err
	}()

	got := peer.recv().(*packet.Subscribe)
	require.Len(t, got.Topics(), 1)
	require.Equal(t, "topic", got.Topics()[0].Filter)
	peer.send(packet.NewSubAck(got.PacketID(), []packet.QoS{packet.QoS0}).Bytes())
	require.NoError(t, <-subErrCh)
	require.Equal(t, []packet.QoS{packet.QoS0}, ack.ReturnCodes())

	// Server delivers a Publish; the driver must forward it on Publications().
	peer.send(packet.NewPublishBuilder("topic", []byte("hello")).Build().Bytes())

	select {
	case pub := <-h.Publications():
		require.Equal(t, "topic", pub.TopicName())
		require.Equal(t, []byte("hello"), pub.Message())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered publish")
	}
}

// WaitConnected resolves with the accepting ConnAck once the handshake
// completes.
func TestClientWaitConnectedAccepted(t *testing.T) {
	h, _, _ := newTestClient(t, Options{ClientID: "c"})

	ack, err := h.WaitConnected(context.Background())
	require.NoError(t, err)
	require.Equal(t, packet.ConnAccepted, ack.Code())
}

// spec.md §4.4/§9: a ConnAck with a non-zero return code must be surfaced
// to the caller with its code preserved, and the driver must close the
// connection rather than silently proceeding as if connected.
func TestClientWaitConnectedRefusedClosesConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	cli := New(clientConn, Options{ClientID: "refused"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runErr := make(chan error, 1)
	go func() { runErr <- cli.Run(ctx) }()

	peer := newServerPeer(t, serverConn)
	_, ok := peer.recv().(*packet.Connect)
	require.True(t, ok)
	peer.send(packet.NewConnAck(false, packet.ConnRefusedNotAuthorized).Bytes())

	h := cli.Handle()
	ack, err := h.WaitConnected(context.Background())
	require.NoError(t, err)
	require.Equal(t, packet.ConnRefusedNotAuthorized, ack.Code())

	select {
	case err := <-runErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for driver to close the connection after a refused CONNACK")
	}
}

// Scenario 2 (spec.md §8): a server-sent Publish arrives split across two
// separate socket writes with a gap between them; the driver still yields
// exactly one Publish with the concatenated payload.
func TestClientSplitFrameDelivery(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "sub"})

	raw := packet.NewPublishBuilder("topic", []byte("0123456789012345")).Build().Bytes()
	require.Greater(t, len(raw), 10)

	go func() {
		peer.send(raw[:10])
		time.Sleep(20 * time.Millisecond)
		peer.send(raw[10:])
	}()

	select {
	case pub := <-h.Publications():
		require.Equal(t, "topic", pub.TopicName())
		require.Equal(t, []byte("0123456789012345"), pub.Message())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for split-frame delivery")
	}
}

// Scenario 3 (spec.md §8): a QoS 1 delivery from the server is
// transparently PubAck'd by the driver before the application sees it.
func TestClientQoS1AutoAck(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "sub"})

	pub := packet.NewPublishBuilder("topic", []byte("hi")).QoS(packet.QoS1).PacketID(1337).Build()
	peer.send(pub.Bytes())

	ack := peer.recv().(*packet.PubAck)
	require.Equal(t, uint16(1337), ack.PacketID())

	select {
	case got := <-h.Publications():
		require.Equal(t, "topic", got.TopicName())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for QoS1 delivery")
	}
}

// Scenario 4 (spec.md §8): a client-initiated QoS 2 publish completes the
// full PUBLISH/PUBREC/PUBREL/PUBCOMP handshake before Publish returns.
func TestClientQoS2Handshake(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "pub"})

	pubErr := make(chan error, 1)
	go func() {
		pubErr <- h.Publish(context.Background(), "topic", []byte("payload"), packet.QoS2)
	}()

	got := peer.recv().(*packet.Publish)
	require.Equal(t, packet.QoS2, got.QoS())
	id, ok := got.PacketID()
	require.True(t, ok)

	peer.send(packet.NewPubRec(id).Bytes())

	rel := peer.recv().(*packet.PubRel)
	require.Equal(t, id, rel.PacketID())

	peer.send(packet.NewPubComp(id).Bytes())

	select {
	case err := <-pubErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for QoS2 publish to resolve")
	}
}

// Keep-alive = 0 disables PINGREQ entirely (spec.md §8 scenario 5, driven
// through the full Client rather than the Binding directly).
func TestClientKeepAliveZeroNeverPings(t *testing.T) {
	_, peer, _ := newTestClient(t, Options{ClientID: "idle", KeepAlive: 0})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = peer.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		buf := make([]byte, 2)
		_, err := io.ReadFull(peer.conn, buf)
		require.Error(t, err) // expect a timeout, not a PINGREQ
	}()
	<-done
}

// Unsubscribe round-trips an UnsubAck to the caller.
func TestClientUnsubscribe(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "sub"})

	unsubErr := make(chan error, 1)
	go func() {
		_, err := h.Unsubscribe(context.Background(), []string{"topic"})
		unsubErr <- err
	}()

	got := peer.recv().(*packet.Unsubscribe)
	require.Equal(t, []string{"topic"}, got.Topics())
	peer.send(packet.NewUnsubAck(got.PacketID()).Bytes())
	require.NoError(t, <-unsubErr)
}

// Disconnect is fire-and-forget: the call returns without waiting on any
// reply, and the server observes the DISCONNECT packet.
func TestClientDisconnect(t *testing.T) {
	h, peer, _ := newTestClient(t, Options{ClientID: "c"})

	require.NoError(t, h.Disconnect(context.Background()))

	got := peer.recv()
	require.Equal(t, packet.DISCONNECT, got.Type())
}
