package wsserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cedrusio/wireserve/config"
	"github.com/cedrusio/wireserve/events"
	"github.com/cedrusio/wireserve/logger"
	"github.com/cedrusio/wireserve/metrics"
	"github.com/cedrusio/wireserve/session"
	"github.com/cedrusio/wireserve/stream"
	"github.com/cedrusio/wireserve/workerpool"
)

// Message is one inbound WebSocket message as delivered to subscribers.
type Message struct {
	// Type is the websocket message type, TextMessage or BinaryMessage.
	Type int
	// Data is the message payload.
	Data []byte
}

// Session is one accepted WebSocket connection. After the upgrade it reads
// messages in a loop; each data message is recorded and subscribers are
// notified, one notification per message, with no automatic reply. A
// subscriber that wants to answer calls Send.
type Session struct {
	id   uint32
	cfg  config.WebSocket
	strm stream.Stream
	log  logger.Logger
	pool *workerpool.Pool
	met  *metrics.Server

	subscribers events.Dispatcher[*Session]

	ws      *websocket.Conn
	writeMu sync.Mutex

	state atomic.Int32

	mu   sync.Mutex
	last *Message
	err  error

	onClosed func(*Session)
	done     chan struct{}
}

func newSession(
	id uint32,
	cfg config.WebSocket,
	strm stream.Stream,
	log logger.Logger,
	pool *workerpool.Pool,
	met *metrics.Server,
	onClosed func(*Session),
) *Session {
	s := &Session{
		id:       id,
		cfg:      cfg,
		strm:     strm,
		log:      log,
		pool:     pool,
		met:      met,
		onClosed: onClosed,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(session.Created))
	return s
}

// ID returns the session id, unique within its server.
func (s *Session) ID() uint32 {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() session.State {
	return session.State(s.state.Load())
}

// RemoteAddr returns the peer's address.
func (s *Session) RemoteAddr() net.Addr {
	return s.strm.Raw().RemoteAddr()
}

// TLS reports whether the session's traffic is encrypted.
func (s *Session) TLS() bool {
	return s.strm.TLS()
}

// Err returns the first error that forced the session towards Closing, or
// nil when the peer closed cleanly.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastMessage returns the most recently received message. It is set before
// subscribers are notified.
func (s *Session) LastMessage() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Subscribe registers a subscriber notified once per received data message.
//
// Parameters:
//   - sub: The subscriber to register
func (s *Session) Subscribe(sub events.Subscriber[*Session]) {
	s.subscribers.Subscribe(sub)
}

// Unsubscribe removes a previously registered subscriber.
//
// Parameters:
//   - sub: The subscriber to remove
func (s *Session) Unsubscribe(sub events.Subscriber[*Session]) {
	s.subscribers.Unsubscribe(sub)
}

// Send writes one message to the peer. It blocks until the message is
// written or the write deadline passes, and is safe to call from multiple
// goroutines.
//
// Parameters:
//   - messageType: websocket.TextMessage or websocket.BinaryMessage
//   - data: The payload to send
//
// Returns:
//   - An error if the write failed or the session is not yet upgraded
func (s *Session) Send(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ws == nil {
		return websocket.ErrCloseSent
	}

	if to := s.cfg.Limits.WriteTimeout.Duration; to > 0 {
		_ = s.ws.SetWriteDeadline(time.Now().Add(to))
	}

	if err := s.ws.WriteMessage(messageType, data); err != nil {
		return err
	}

	s.met.BytesWritten(len(data))
	return nil
}

// Done returns a channel closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close forces the session towards Closing by closing the underlying
// socket, which unblocks any read in flight. It does not wait; use Done.
func (s *Session) Close() {
	_ = s.strm.Raw().Close()
}

// run is the session goroutine: transport handshake, upgrade, then one
// dispatch per message until the peer leaves or an error occurs.
func (s *Session) run(upgrader *websocket.Upgrader) {
	defer s.close()

	if !s.handshake(upgrader) {
		return
	}

	for s.serveOne() {
	}
}

// handshake performs the TLS handshake when the endpoint is TLS, then the
// WebSocket upgrade. Any failure moves the session straight to Closing; the
// upgrader has already answered the peer on a rejected upgrade.
func (s *Session) handshake(upgrader *websocket.Upgrader) bool {
	s.setState(session.Handshaking)

	if s.strm.TLS() {
		ctx := context.Background()
		if to := s.cfg.Limits.HandshakeTimeout.Duration; to > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, to)
			defer cancel()
		}

		if err := s.strm.Handshake(ctx); err != nil {
			s.recordErr(err)
			s.log.Warn("tls handshake failed", logger.Field{Key: "error", Value: err.Error()})
			return false
		}
	}

	conn := s.strm.Conn()
	if to := s.cfg.Limits.HandshakeTimeout.Duration; to > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(to))
		defer conn.SetReadDeadline(time.Time{})
	}

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		s.recordErr(err)
		return false
	}

	ws, err := upgrader.Upgrade(newHijackWriter(conn, br), req, nil)
	if err != nil {
		s.recordErr(err)
		s.log.Warn("websocket upgrade failed", logger.Field{Key: "error", Value: err.Error()})
		return false
	}

	if max := s.cfg.Limits.MaxMessageBytes; max > 0 {
		ws.SetReadLimit(max)
	}

	s.writeMu.Lock()
	s.ws = ws
	s.writeMu.Unlock()

	return true
}

// serveOne reads one message and dispatches it. A close frame from the peer
// ends the session without a notification.
func (s *Session) serveOne() bool {
	s.setState(session.Reading)

	if to := s.cfg.Limits.ReadTimeout.Duration; to > 0 {
		_ = s.ws.SetReadDeadline(time.Now().Add(to))
	}

	messageType, data, err := s.ws.ReadMessage()
	if err != nil {
		if !isExpectedClose(err) {
			s.recordErr(err)
		}
		return false
	}

	s.met.MessageReceived()

	s.mu.Lock()
	s.last = &Message{Type: messageType, Data: data}
	s.mu.Unlock()

	if derr := s.pool.Do(s.dispatch); derr != nil {
		s.recordErr(derr)
		return false
	}

	return true
}

// dispatch runs on a pool worker: one notification round per message.
func (s *Session) dispatch() {
	s.setState(session.Dispatching)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	s.subscribers.Notify(s)
}

// close moves the session through Closing into Closed: answer with a close
// frame when possible, release the socket, and tell the server.
func (s *Session) close() {
	s.setState(session.Closing)

	s.writeMu.Lock()
	if s.ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	s.writeMu.Unlock()

	if err := s.strm.Shutdown(); err != nil && !stream.IsPeerClosed(err) {
		s.recordErr(err)
	}
	_ = s.strm.Raw().Close()

	s.setState(session.Closed)
	s.log.Debug("session closed")

	if s.onClosed != nil {
		s.onClosed(s)
	}
	close(s.done)
}

func (s *Session) setState(st session.State) {
	s.state.Store(int32(st))
}

func (s *Session) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// isExpectedClose reports whether the read error just says the peer went
// away in an orderly fashion.
func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || stream.IsPeerClosed(err)
}
