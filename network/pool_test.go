package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(t *testing.T, id string) *Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return NewConnection(server, id)
}

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()
	assert.Equal(t, 10000, config.MaxConnections)
	assert.Equal(t, 10*time.Second, config.CleanupInterval)
}

func TestNewPoolRejectsNonPositiveMaxConnections(t *testing.T) {
	_, err := NewPool(&PoolConfig{MaxConnections: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPoolAddGetRemove(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10})
	require.NoError(t, err)
	defer pool.Close()

	conn := testConn(t, "c1")
	require.NoError(t, pool.Add(conn))
	assert.EqualValues(t, 1, pool.Total())

	got, ok := pool.Get("c1")
	require.True(t, ok)
	assert.Same(t, conn, got)

	require.NoError(t, pool.Remove("c1"))
	assert.EqualValues(t, 0, pool.Total())

	_, ok = pool.Get("c1")
	assert.False(t, ok)
}

func TestPoolRemoveUnknownIDFails(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10})
	require.NoError(t, err)
	defer pool.Close()

	assert.ErrorIs(t, pool.Remove("missing"), ErrConnectionNotFound)
}

func TestPoolAddRejectsPastCapacity(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 1})
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Add(testConn(t, "c1")))
	assert.ErrorIs(t, pool.Add(testConn(t, "c2")), ErrConnectionPoolExhausted)
}

func TestPoolAddAfterCloseFails(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10})
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	assert.ErrorIs(t, pool.Add(testConn(t, "c1")), ErrPoolClosed)
}

func TestPoolSweepEvictsKeepAliveTimeouts(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10, CleanupInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer pool.Close()

	conn := testConn(t, "c1")
	conn.SetKeepAlive(1) // seconds; IdleTimedOut at 1.5s of silence
	require.NoError(t, pool.Add(conn))

	require.Eventually(t, func() bool {
		_, ok := pool.Get("c1")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPoolSweepLeavesLiveConnections(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10, CleanupInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer pool.Close()

	conn := testConn(t, "c1")
	conn.SetKeepAlive(30)
	require.NoError(t, pool.Add(conn))

	time.Sleep(100 * time.Millisecond)
	_, ok := pool.Get("c1")
	assert.True(t, ok)
}

func TestPoolCloseClosesTrackedConnections(t *testing.T) {
	pool, err := NewPool(&PoolConfig{MaxConnections: 10})
	require.NoError(t, err)

	conn := testConn(t, "c1")
	require.NoError(t, pool.Add(conn))
	require.NoError(t, pool.Close())

	select {
	case <-conn.CloseChan():
	default:
		t.Fatal("expected connection to be closed when pool closes")
	}
}
