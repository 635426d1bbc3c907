package network

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Connection wraps one accepted net.Conn with the identity and
// keep-alive bookkeeping the broker's accept loop needs: the client id a
// CONNECT carried, the Keep Alive interval it declared, and the instant
// of the last byte read from it, so Pool's sweep can find and evict
// clients that have gone silent past MQTT's grace window.
type Connection struct {
	conn net.Conn
	id   string

	mu        sync.RWMutex
	clientID  string
	keepAlive time.Duration

	lastActivity atomic.Int64 // UnixNano

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewConnection wraps conn, identified by id (the listener's
// accept-sequence id, used until a CONNECT supplies a client id via
// SetClientID).
func NewConnection(conn net.Conn, id string) *Connection {
	c := &Connection{
		conn:    conn,
		id:      id,
		closeCh: make(chan struct{}),
	}
	c.lastActivity.Store(time.Now().UnixNano())
	return c
}

// ID returns the listener-assigned connection id.
func (c *Connection) ID() string { return c.id }

// ClientID returns the MQTT client id this connection authenticated as,
// or "" before its CONNECT has been processed.
func (c *Connection) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// SetClientID records clientID once the broker has read this
// connection's CONNECT packet.
func (c *Connection) SetClientID(clientID string) {
	c.mu.Lock()
	c.clientID = clientID
	c.mu.Unlock()
}

// SetKeepAlive records the Keep Alive value (in seconds, as carried on
// the wire by CONNECT) this connection must be read from within 1.5x of,
// per MQTT 3.1.1 §3.1.2.10. A value of 0 disables keep-alive enforcement
// for this connection, matching the spec's reading of KeepAlive == 0 as
// "turns off the keep alive mechanism".
func (c *Connection) SetKeepAlive(seconds uint16) {
	c.mu.Lock()
	c.keepAlive = time.Duration(seconds) * time.Second
	c.mu.Unlock()
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr returns the underlying connection's local address.
func (c *Connection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Read implements io.Reader, tracking the activity timestamp keep-alive
// enforcement measures from.
func (c *Connection) Read(b []byte) (int, error) {
	select {
	case <-c.closeCh:
		return 0, ErrConnectionClosed
	default:
	}

	n, err := c.conn.Read(b)
	if n > 0 {
		c.lastActivity.Store(time.Now().UnixNano())
	}
	return n, err
}

// Write implements io.Writer.
func (c *Connection) Write(b []byte) (int, error) {
	select {
	case <-c.closeCh:
		return 0, ErrConnectionClosed
	default:
	}
	return c.conn.Write(b)
}

// Close closes the underlying socket. Safe to call more than once and
// from multiple goroutines concurrently.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// CloseChan is closed once Close has run, for callers that want to
// select on connection teardown without subscribing to read errors.
func (c *Connection) CloseChan() <-chan struct{} { return c.closeCh }

// IdleTimedOut reports whether this connection has gone silent longer
// than 1.5x its declared Keep Alive, measured against now (MQTT 3.1.1
// §3.1.2.10). Always false when Keep Alive is 0 (disabled).
func (c *Connection) IdleTimedOut(now time.Time) bool {
	c.mu.RLock()
	keepAlive := c.keepAlive
	c.mu.RUnlock()

	if keepAlive == 0 {
		return false
	}

	last := time.Unix(0, c.lastActivity.Load())
	limit := keepAlive + keepAlive/2
	return now.Sub(last) > limit
}

var _ io.ReadWriter = (*Connection)(nil)
