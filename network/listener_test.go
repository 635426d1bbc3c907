package network

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultListenerConfig(t *testing.T) {
	config := DefaultListenerConfig("localhost:1883")
	assert.Equal(t, "localhost:1883", config.Address)
	assert.Equal(t, 10000, config.MaxConnections)
}

func TestNewListenerRejectsNilOrEmptyConfig(t *testing.T) {
	_, err := NewListener(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewListener(&ListenerConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestListenerStartAcceptsThenCloseUnblocksAcceptLoop(t *testing.T) {
	listener, err := NewListener(&ListenerConfig{Address: "127.0.0.1:0"}, nil)
	require.NoError(t, err)

	var accepted atomic.Bool
	listener.OnConnection(func(conn *Connection) error {
		accepted.Store(true)
		return nil
	})

	require.NoError(t, listener.Start())
	addr := listener.Addr()
	require.NotNil(t, addr)

	clientConn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer clientConn.Close()

	require.Eventually(t, accepted.Load, time.Second, 10*time.Millisecond)
	require.NoError(t, listener.Close())
}

func TestListenerStatsCountsAcceptedAndRejected(t *testing.T) {
	listener, err := NewListener(&ListenerConfig{Address: "127.0.0.1:0", MaxConnections: 1}, nil)
	require.NoError(t, err)

	held := make(chan struct{})
	listener.OnConnection(func(conn *Connection) error {
		<-held
		return nil
	})

	require.NoError(t, listener.Start())
	addr := listener.Addr()

	first, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool { return listener.Stats().Accepted == 1 }, time.Second, 10*time.Millisecond)

	second, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool { return listener.Stats().Rejected == 1 }, time.Second, 10*time.Millisecond)

	close(held)
	require.NoError(t, listener.Close())
}
