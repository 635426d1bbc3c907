package network

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// ListenerConfig tunes the accept loop. Address is required; MaxConnections
// of 0 means unbounded.
type ListenerConfig struct {
	Address        string
	MaxConnections int
}

// DefaultListenerConfig returns a ListenerConfig for address with a
// generous connection cap, enough headroom for the broker's own tests
// and typical single-process deployments.
func DefaultListenerConfig(address string) *ListenerConfig {
	return &ListenerConfig{
		Address:        address,
		MaxConnections: 10000,
	}
}

// ConnectionHandler is invoked once per accepted connection, in its own
// goroutine; Listener does not call it again until the connection's
// handler returns.
type ConnectionHandler func(*Connection) error

// Listener accepts TCP connections, registers each in a Pool, and hands
// it to a single registered ConnectionHandler. Its accept loop has no
// polling timeout: Close unblocks Accept directly by closing the
// underlying net.Listener.
type Listener struct {
	config   *ListenerConfig
	listener net.Listener
	pool     *Pool
	handler  ConnectionHandler

	connSeq  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64

	mu sync.Mutex
	wg sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewListener creates a Listener bound to config, registering accepted
// connections in pool (a fresh DefaultPoolConfig pool if pool is nil).
func NewListener(config *ListenerConfig, pool *Pool) (*Listener, error) {
	if config == nil || config.Address == "" {
		return nil, ErrInvalidAddress
	}

	if pool == nil {
		var err error
		pool, err = NewPool(DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
	}

	return &Listener{config: config, pool: pool}, nil
}

// Start binds the listen socket and runs the accept loop in the
// background.
func (l *Listener) Start() error {
	if l.closed.Load() {
		return ErrListenerClosed
	}

	netListener, err := net.Listen("tcp", l.config.Address)
	if err != nil {
		return fmt.Errorf("network: listen %s: %w", l.config.Address, err)
	}
	l.listener = netListener

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		netConn, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			continue
		}

		if l.config.MaxConnections > 0 && int(l.pool.Total()) >= l.config.MaxConnections {
			_ = netConn.Close()
			l.rejected.Add(1)
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(netConn)
	}
}

func (l *Listener) handleConnection(netConn net.Conn) {
	defer l.wg.Done()

	conn := NewConnection(netConn, l.generateConnectionID())

	if err := l.pool.Add(conn); err != nil {
		_ = conn.Close()
		l.rejected.Add(1)
		return
	}
	defer l.pool.Remove(conn.ID())

	l.accepted.Add(1)

	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()

	if handler == nil {
		return
	}
	_ = handler(conn)
}

func (l *Listener) generateConnectionID() string {
	seq := l.connSeq.Add(1)
	return fmt.Sprintf("conn-%d", seq)
}

// OnConnection registers handler as the Listener's sole ConnectionHandler,
// replacing any previously registered one.
func (l *Listener) OnConnection(handler ConnectionHandler) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// Close stops the accept loop and waits for every in-flight
// handleConnection goroutine to return. Safe to call more than once.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	l.closeOnce.Do(func() {
		if l.listener != nil {
			err = l.listener.Close()
		}
		l.wg.Wait()
		_ = l.pool.Close()
	})

	return err
}

// Addr reports the bound listen address; nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.listener != nil {
		return l.listener.Addr()
	}
	return nil
}

// Stats returns a snapshot of accept-loop counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Accepted: l.accepted.Load(),
		Rejected: l.rejected.Load(),
		Active:   l.pool.Total(),
	}
}

// ListenerStats is a point-in-time snapshot returned by Listener.Stats.
type ListenerStats struct {
	Accepted uint64
	Rejected uint64
	Active   uint64
}
