package stream

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrusio/wireserve/stream/streamtest"
)

// tcpPair returns two ends of an accepted TCP connection on loopback.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server, err = ln.Accept()
	}()

	client, dialErr := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, dialErr)
	<-done
	require.NoError(t, err)

	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestPlain(t *testing.T) {
	t.Run("handshake is a no-op", func(t *testing.T) {
		server, _ := tcpPair(t)
		s := NewPlain(server)

		assert.NoError(t, s.Handshake(context.Background()))
		assert.False(t, s.TLS())
		assert.Same(t, server, s.Conn())
		assert.Same(t, server, s.Raw())
	})

	t.Run("shutdown half-closes the send direction", func(t *testing.T) {
		server, client := tcpPair(t)
		s := NewPlain(server)

		require.NoError(t, s.Shutdown())

		// The peer observes EOF...
		client.SetReadDeadline(time.Now().Add(time.Second))
		_, err := client.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)

		// ...but can still send towards the server.
		_, err = client.Write([]byte("late data"))
		assert.NoError(t, err)

		buf := make([]byte, 16)
		server.SetReadDeadline(time.Now().Add(time.Second))
		n, err := server.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "late data", string(buf[:n]))
	})
}

func TestTLS(t *testing.T) {
	newServerConfig := func(t *testing.T) (*tls.Config, string) {
		certFile, keyFile := streamtest.GenerateCert(t)
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		require.NoError(t, err)
		return &tls.Config{Certificates: []tls.Certificate{cert}}, certFile
	}

	t.Run("handshake succeeds and carries data", func(t *testing.T) {
		serverCfg, certFile := newServerConfig(t)
		server, client := tcpPair(t)

		s := NewTLS(server, serverCfg)
		assert.True(t, s.TLS())

		clientErr := make(chan error, 1)
		var tlsClient *tls.Conn
		go func() {
			tlsClient = tls.Client(client, streamtest.ClientConfig(t, certFile))
			clientErr <- tlsClient.Handshake()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Handshake(ctx))
		require.NoError(t, <-clientErr)

		// All I/O flows through the TLS conn, not the raw socket.
		assert.NotSame(t, s.Raw(), s.Conn())

		go func() {
			tlsClient.Write([]byte("over tls"))
		}()

		buf := make([]byte, 16)
		s.Conn().SetReadDeadline(time.Now().Add(time.Second))
		n, err := s.Conn().Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "over tls", string(buf[:n]))
	})

	t.Run("handshake fails against a non-TLS peer", func(t *testing.T) {
		serverCfg, _ := newServerConfig(t)
		server, client := tcpPair(t)

		go client.Write([]byte("GET / HTTP/1.1\r\n\r\n"))

		s := NewTLS(server, serverCfg)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		assert.Error(t, s.Handshake(ctx))
	})

	t.Run("shutdown sends close_notify", func(t *testing.T) {
		serverCfg, certFile := newServerConfig(t)
		server, client := tcpPair(t)

		s := NewTLS(server, serverCfg)

		clientErr := make(chan error, 1)
		var tlsClient *tls.Conn
		go func() {
			tlsClient = tls.Client(client, streamtest.ClientConfig(t, certFile))
			clientErr <- tlsClient.Handshake()
		}()

		require.NoError(t, s.Handshake(context.Background()))
		require.NoError(t, <-clientErr)

		require.NoError(t, s.Shutdown())

		tlsClient.SetReadDeadline(time.Now().Add(time.Second))
		_, err := tlsClient.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestIsPeerClosed(t *testing.T) {
	t.Run("classifies peer-closed errors", func(t *testing.T) {
		assert.True(t, IsPeerClosed(io.EOF))
		assert.True(t, IsPeerClosed(net.ErrClosed))
		assert.True(t, IsPeerClosed(syscall.EPIPE))
		assert.True(t, IsPeerClosed(syscall.ECONNRESET))
	})

	t.Run("rejects other errors", func(t *testing.T) {
		assert.False(t, IsPeerClosed(nil))
		assert.False(t, IsPeerClosed(context.DeadlineExceeded))
	})
}
