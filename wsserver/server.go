// Package wsserver implements a minimal embeddable WebSocket server. Every
// accepted connection is upgraded and becomes a Session; each received data
// message triggers one synchronous notification round and nothing is sent
// back unless a subscriber calls Send.
package wsserver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cedrusio/wireserve/config"
	"github.com/cedrusio/wireserve/events"
	"github.com/cedrusio/wireserve/idgen"
	"github.com/cedrusio/wireserve/logger"
	"github.com/cedrusio/wireserve/metrics"
	"github.com/cedrusio/wireserve/sessionmap"
	"github.com/cedrusio/wireserve/stream"
	"github.com/cedrusio/wireserve/workerpool"
)

// ErrServerRunning is returned by Run when the server was already started.
var ErrServerRunning = errors.New("wsserver: server already running")

// Option adjusts a Server at construction time.
type Option func(*Server)

// WithRegistry registers the server's metrics with reg. Without this option
// the server runs unregistered metrics.
//
// Parameters:
//   - reg: The prometheus registerer to register with
func WithRegistry(reg prometheus.Registerer) Option {
	return func(s *Server) {
		s.met = metrics.NewServer(reg, "websocket")
	}
}

// Server accepts connections on one endpoint, upgrades them to WebSocket,
// and runs a Session per connection. Create it with New, register
// subscribers, then call Run.
type Server struct {
	cfg      config.WebSocket
	tlsCfg   *tls.Config
	log      logger.Logger
	pool     *workerpool.Pool
	met      *metrics.Server
	upgrader *websocket.Upgrader

	ln       net.Listener
	ids      *idgen.Generator
	sessions *sessionmap.Map[uint32, *Session]

	subscribers events.Dispatcher[*Session]

	mu      sync.Mutex
	running bool
	stopped bool
	last    *Session
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

// New validates the configuration, loads the TLS keypair when TLS is
// enabled, and binds the listening socket.
//
// Parameters:
//   - cfg: The server configuration; it is copied and never mutated
//   - log: Logger for server and session events
//   - opts: Optional adjustments such as WithRegistry
//
// Returns:
//   - The bound server, ready for Run
//   - An error wrapping config.ErrInvalid on bad configuration, or the bind
//     error when the address is unusable
func New(cfg config.WebSocket, log logger.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		pool:     workerpool.New(cfg.Workers),
		ids:      idgen.New(0),
		sessions: sessionmap.New[uint32, *Session](),
		done:     make(chan struct{}),
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: cfg.Limits.HandshakeTimeout.Duration,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: load tls keypair: %v", config.ErrInvalid, err)
		}
		s.tlsCfg = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.Addr(), err)
	}
	s.ln = ln

	return s, nil
}

// Run starts the worker pool and the accept loop, then returns.
//
// Returns:
//   - ErrServerRunning when called a second time
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerRunning
	}
	s.running = true
	s.mu.Unlock()

	s.pool.Start()
	go s.acceptLoop()

	s.log.Info("server listening",
		logger.Field{Key: "addr", Value: s.ln.Addr().String()},
		logger.Field{Key: "tls", Value: s.tlsCfg != nil},
		logger.Field{Key: "workers", Value: s.cfg.Workers},
	)

	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			if !stopped && s.err == nil {
				s.err = err
			}
			s.mu.Unlock()

			if !stopped {
				s.log.Error("accept failed", logger.Field{Key: "error", Value: err.Error()})
				s.teardown()
			}
			return
		}

		s.accept(conn)
	}
}

// accept turns one connection into a running session. Server subscribers
// are notified before the session goroutine starts so they can subscribe to
// the session ahead of the upgrade.
func (s *Server) accept(conn net.Conn) {
	s.met.ConnectionAccepted()

	id := s.ids.Next()

	var strm stream.Stream
	if s.tlsCfg != nil {
		strm = stream.NewTLS(conn, s.tlsCfg)
	} else {
		strm = stream.NewPlain(conn)
	}

	sess := newSession(
		id,
		s.cfg,
		strm,
		s.log.With(logger.Field{Key: "session", Value: id}),
		s.pool,
		s.met,
		s.removeSession,
	)

	s.sessions.Store(id, sess)
	s.mu.Lock()
	s.last = sess
	s.mu.Unlock()

	s.log.Debug("connection accepted",
		logger.Field{Key: "session", Value: id},
		logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
	)

	s.subscribers.Notify(sess)

	go sess.run(s.upgrader)
}

func (s *Server) removeSession(sess *Session) {
	s.sessions.Delete(sess.ID())
	s.met.SessionClosed()
}

// Poll runs one queued dispatch task on the calling goroutine. This is the
// manual pump for servers configured with zero workers.
//
// Returns:
//   - true if a task ran, false if the queue was empty
func (s *Server) Poll() bool {
	return s.pool.RunOne()
}

// Subscribe registers a subscriber notified once per accepted connection,
// with the new session, before its upgrade starts.
//
// Parameters:
//   - sub: The subscriber to register
func (s *Server) Subscribe(sub events.Subscriber[*Session]) {
	s.subscribers.Subscribe(sub)
}

// Unsubscribe removes a previously registered subscriber.
//
// Parameters:
//   - sub: The subscriber to remove
func (s *Server) Unsubscribe(sub events.Subscriber[*Session]) {
	s.subscribers.Unsubscribe(sub)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// LastSession returns the most recently accepted session, or nil. The value
// races with new accepts by nature; subscribers wanting a reliable handle
// should use Subscribe instead.
func (s *Server) LastSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

// Err returns the error that stopped the accept loop, or nil.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done returns a channel closed once the server has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stop closes the listener, shuts every live session down, and drains the
// worker pool. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.teardown()
}

func (s *Server) teardown() {
	var live []*Session
	s.sessions.Range(func(_ uint32, sess *Session) bool {
		live = append(live, sess)
		return true
	})
	for _, sess := range live {
		sess.Close()
	}

	// Stopping the pool drains queued dispatch tasks, which unblocks any
	// session waiting inside Do before we wait for it below.
	s.pool.Stop()

	for _, sess := range live {
		<-sess.Done()
	}

	s.doneOnce.Do(func() { close(s.done) })
	s.log.Info("server stopped")
}
