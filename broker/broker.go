// Package broker is a minimal, single-process MQTT 3.1.1 broker built on
// top of the same wire codec and topic matcher the client driver uses. It
// is an external collaborator, not part of the sans-I/O core: its
// subscription, retained-message, and session semantics are deliberately
// simple (no persistence beyond whatever retained.Store it is configured
// with, no authentication, no clustering).
package broker

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/wireloop/mqtt/network"
	"github.com/wireloop/mqtt/pkg/logger"
	"github.com/wireloop/mqtt/retained"
	"github.com/wireloop/mqtt/topic"
)

// Config configures a Broker. The zero value is not usable; use
// DefaultConfig and override the fields that matter.
type Config struct {
	// ListenAddr is the "host:port" the broker accepts TCP connections on.
	ListenAddr string

	// Retained stores PUBLISHes sent with RETAIN=1, replayed to a client
	// that subscribes to a matching filter later. Defaults to an
	// in-memory store; inject retained.NewPebbleStore or
	// retained.NewRedisStore for a durable or shared backend.
	Retained retained.Store

	// Listener tunes accept-loop behavior (address, max connections).
	// Defaults to network.DefaultListenerConfig.
	Listener *network.ListenerConfig

	// Pool tunes the connection registry's keep-alive sweep cadence.
	// Defaults to network.DefaultPoolConfig.
	Pool *network.PoolConfig

	Logger *slog.Logger
}

// DefaultConfig returns a Config listening on addr with an in-memory
// retained store and the listener's usual defaults.
func DefaultConfig(addr string) Config {
	return Config{
		ListenAddr: addr,
		Retained:   retained.NewMemoryStore(),
		Listener:   network.DefaultListenerConfig(addr),
		Pool:       network.DefaultPoolConfig(),
		Logger:     logger.New(slog.LevelInfo, nil),
	}
}

// Broker accepts MQTT connections, tracks subscriptions in a topic trie,
// and fans out PUBLISH traffic to matching subscribers. One goroutine
// runs per accepted connection (grounded on network.Listener's
// accept-loop pattern); the topic router, the retained store and the
// client registry are the state shared across connection goroutines. The
// router and store synchronize themselves internally; the registry is
// guarded by mu.
type Broker struct {
	cfg      Config
	log      *slog.Logger
	listener *network.Listener
	router   *topic.Router

	mu      sync.RWMutex
	clients map[string]*clientConn
}

// New creates a Broker from cfg. It does not start accepting connections
// until Serve is called.
func New(cfg Config) (*Broker, error) {
	if cfg.Retained == nil {
		cfg.Retained = retained.NewMemoryStore()
	}
	if cfg.Listener == nil {
		cfg.Listener = network.DefaultListenerConfig(cfg.ListenAddr)
	}
	if cfg.Pool == nil {
		cfg.Pool = network.DefaultPoolConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	pool, err := network.NewPool(cfg.Pool)
	if err != nil {
		return nil, err
	}
	listener, err := network.NewListener(cfg.Listener, pool)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		cfg:      cfg,
		log:      log,
		listener: listener,
		router:   topic.NewRouter(),
		clients:  make(map[string]*clientConn),
	}
	listener.OnConnection(b.accept)
	return b, nil
}

// Serve starts the accept loop and blocks until ctx is cancelled.
func (b *Broker) Serve(ctx context.Context) error {
	if err := b.listener.Start(); err != nil {
		return err
	}
	b.log.Info("broker: listening", "addr", b.listener.Addr())
	<-ctx.Done()
	return b.listener.Close()
}

// Addr reports the address the broker is listening on; only meaningful
// after Serve has started the listener.
func (b *Broker) Addr() net.Addr { return b.listener.Addr() }

// accept is registered as the listener's ConnectionHandler: it runs the
// per-client protocol loop and only returns once the client disconnects.
func (b *Broker) accept(conn *network.Connection) error {
	c := newClientConn(b, conn)
	return c.run()
}

// register records a connected client under its client id, replacing and
// closing any prior connection that used the same id (MQTT 3.1.1 allows
// at most one live connection per client id).
func (b *Broker) register(clientID string, c *clientConn) {
	b.mu.Lock()
	prev, existed := b.clients[clientID]
	b.clients[clientID] = c
	b.mu.Unlock()

	if existed && prev != c {
		prev.closeDuplicate()
	}
}

// unregister removes clientID's entry if it still points at c (a client
// that was superseded by a later connection must not unregister the new
// one on its own, delayed shutdown).
func (b *Broker) unregister(clientID string, c *clientConn) {
	b.mu.Lock()
	cur, ok := b.clients[clientID]
	current := ok && cur == c
	if current {
		delete(b.clients, clientID)
	}
	b.mu.Unlock()

	if current {
		b.router.UnsubscribeAll(clientID)
	}
}

func (b *Broker) lookup(clientID string) (*clientConn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[clientID]
	return c, ok
}
