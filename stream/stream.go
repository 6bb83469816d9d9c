// Package stream abstracts the byte stream a session talks through. A
// session picks one implementation at construction time, plain TCP or TLS,
// and every read and write after a successful Handshake goes through Conn;
// the raw socket is never touched again on the TLS path.
package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"
)

// Stream is one accepted connection's transport: an optional handshake
// before the first read, the conn carrying all subsequent I/O, and a
// best-effort shutdown of the send direction before close.
type Stream interface {
	// Handshake performs the transport handshake. It must be called once,
	// before any read or write, and honours the context deadline.
	//
	// Parameters:
	//   - ctx: Context bounding the handshake
	//
	// Returns:
	//   - An error if the handshake failed; the stream is then unusable
	Handshake(ctx context.Context) error

	// Conn returns the connection all reads and writes must use.
	//
	// Returns:
	//   - The raw conn for plain streams, the TLS conn after Handshake for
	//     TLS streams
	Conn() net.Conn

	// Raw returns the underlying socket regardless of TLS state. Only the
	// pre-handshake error path writes here.
	Raw() net.Conn

	// Shutdown closes the send direction: a TCP half-close for plain
	// streams, a close_notify alert for TLS streams.
	//
	// Returns:
	//   - An error if the shutdown failed and the peer had not already
	//     closed
	Shutdown() error

	// TLS reports whether this stream encrypts its traffic.
	TLS() bool
}

// plainStream carries traffic directly over the accepted socket.
type plainStream struct {
	conn net.Conn
}

// NewPlain wraps an accepted socket in a Stream without encryption.
//
// Parameters:
//   - conn: The accepted connection
//
// Returns:
//   - A Stream whose Handshake is a no-op
func NewPlain(conn net.Conn) Stream {
	return &plainStream{conn: conn}
}

func (s *plainStream) Handshake(ctx context.Context) error { return nil }

func (s *plainStream) Conn() net.Conn { return s.conn }

func (s *plainStream) Raw() net.Conn { return s.conn }

func (s *plainStream) Shutdown() error {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}

	return s.conn.Close()
}

func (s *plainStream) TLS() bool { return false }

// tlsStream carries traffic through a server-side TLS layer over the
// accepted socket.
type tlsStream struct {
	raw net.Conn
	tc  *tls.Conn
}

// NewTLS wraps an accepted socket in a server-side TLS Stream. The
// certificate must already be loaded into cfg; Handshake performs the TLS
// handshake in the server role.
//
// Parameters:
//   - conn: The accepted connection
//   - cfg: TLS configuration holding the certificate and key
//
// Returns:
//   - A Stream that encrypts after Handshake
func NewTLS(conn net.Conn, cfg *tls.Config) Stream {
	return &tlsStream{
		raw: conn,
		tc:  tls.Server(conn, cfg),
	}
}

func (s *tlsStream) Handshake(ctx context.Context) error {
	return s.tc.HandshakeContext(ctx)
}

func (s *tlsStream) Conn() net.Conn { return s.tc }

func (s *tlsStream) Raw() net.Conn { return s.raw }

func (s *tlsStream) Shutdown() error {
	return s.tc.CloseWrite()
}

func (s *tlsStream) TLS() bool { return true }

// IsPeerClosed reports whether err only says the peer already closed the
// connection. Such errors are tolerated during shutdown; anything else is a
// genuine transport failure.
//
// Parameters:
//   - err: The error to classify
//
// Returns:
//   - true for EOF, closed-connection, broken-pipe, and reset errors
func IsPeerClosed(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
