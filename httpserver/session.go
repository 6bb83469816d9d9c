package httpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cedrusio/wireserve/cache"
	"github.com/cedrusio/wireserve/config"
	"github.com/cedrusio/wireserve/events"
	"github.com/cedrusio/wireserve/logger"
	"github.com/cedrusio/wireserve/metrics"
	"github.com/cedrusio/wireserve/session"
	"github.com/cedrusio/wireserve/stream"
	"github.com/cedrusio/wireserve/workerpool"
)

// Session is one accepted HTTP connection. It owns a goroutine that moves
// through the lifecycle states: handshake when the endpoint is TLS, then a
// read/dispatch/write cycle per request until the peer disconnects, an error
// occurs, or the response asks for close.
//
// The dispatch and write steps run as tasks on the server's worker pool, so
// the configured worker count bounds how many sessions execute application
// callbacks at once. All of one session's steps run on its own goroutine;
// subscriber callbacks for one session never overlap.
type Session struct {
	id    uint32
	cfg   config.HTTP
	mimes *config.MimeTable
	strm  stream.Stream
	log   logger.Logger
	pool  *workerpool.Pool
	files cache.Cache[[]byte]
	met   *metrics.Server

	subscribers events.Dispatcher[*Session]

	br  *bufio.Reader
	lim *io.LimitedReader

	state atomic.Int32

	mu   sync.Mutex
	req  *http.Request
	resp *Response
	err  error

	onClosed func(*Session)
	done     chan struct{}
}

func newSession(
	id uint32,
	cfg config.HTTP,
	mimes *config.MimeTable,
	strm stream.Stream,
	log logger.Logger,
	pool *workerpool.Pool,
	files cache.Cache[[]byte],
	met *metrics.Server,
	onClosed func(*Session),
) *Session {
	s := &Session{
		id:       id,
		cfg:      cfg,
		mimes:    mimes,
		strm:     strm,
		log:      log,
		pool:     pool,
		files:    files,
		met:      met,
		onClosed: onClosed,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(session.Created))

	maxHeader := cfg.Limits.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = 1 << 20
	}
	s.lim = &io.LimitedReader{R: strm.Conn(), N: maxHeader}
	s.br = bufio.NewReader(s.lim)

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
// nil when the session ended cleanly.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Request returns the most recently parsed request. It is set before
// subscribers are notified.
func (s *Session) Request() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req
}

// Response returns the response that will be written once the current
// notification round finishes.
func (s *Session) Response() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp
}

// SetResponse replaces the outgoing response. Intended for subscribers
// during dispatch; a nil response is ignored.
//
// Parameters:
//   - resp: The response to send instead of the canonical one
func (s *Session) SetResponse(resp *Response) {
	if resp == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resp = resp
}

// Subscribe registers a subscriber notified once per parsed request, after
// the canonical response is built and before it is written.
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

// Done returns a channel closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close forces the session towards Closing by closing the underlying
// socket, which unblocks any read in flight. It does not wait; use Done.
func (s *Session) Close() {
	_ = s.strm.Raw().Close()
}

// run is the session goroutine: handshake, then serve requests until a
// terminal condition, then shut down.
func (s *Session) run() {
	defer s.close()

	if !s.handshake() {
		return
	}

	for s.serveOne() {
	}
}

// handshake performs the TLS handshake on TLS endpoints. On failure the
// error response is written to the raw socket, since no encrypted channel
// exists.
func (s *Session) handshake() bool {
	if !s.strm.TLS() {
		return true
	}

	s.setState(session.Handshaking)

	ctx := context.Background()
	if to := s.cfg.Limits.HandshakeTimeout.Duration; to > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, to)
		defer cancel()
	}

	err := s.strm.Handshake(ctx)
	if err == nil {
		return true
	}

	s.recordErr(err)
	s.log.Warn("tls handshake failed", logger.Field{Key: "error", Value: err.Error()})

	resp := s.errorResponse(
		http.StatusInternalServerError,
		fmt.Sprintf("An error occurred during SSL handshake: '%v'", err),
		true,
	)
	if _, werr := s.strm.Raw().Write(resp.marshal(false)); werr == nil {
		s.met.ResponseWritten(resp.Status)
	}

	return false
}

// serveOne runs one read/dispatch/write cycle. It returns true when the
// connection should be kept open for another request.
func (s *Session) serveOne() bool {
	s.setState(session.Reading)

	req, err := s.readRequest()
	if err != nil {
		if stream.IsPeerClosed(err) {
			return false
		}
		if isTimeout(err) {
			s.recordErr(err)
			return false
		}

		// Malformed input still gets a response before the close.
		s.recordErr(err)
		resp := s.errorResponse(http.StatusBadRequest, fmt.Sprintf("An error occurred: '%v'", err), true)
		_ = s.pool.Do(func() {
			s.setState(session.Writing)
			_ = s.writeResponse(false, resp)
		})
		return false
	}

	keep := false
	if derr := s.pool.Do(func() {
		keep = s.handle(req)
	}); derr != nil {
		s.recordErr(derr)
		return false
	}

	s.drainBody(req)
	return keep
}

// readRequest blocks for the next request head, bounded by the read timeout
// and the header size limit.
func (s *Session) readRequest() (*http.Request, error) {
	conn := s.strm.Conn()
	if to := s.cfg.Limits.ReadTimeout.Duration; to > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(to))
		defer conn.SetReadDeadline(time.Time{})
	}

	max := s.cfg.Limits.MaxHeaderBytes
	if max <= 0 {
		max = 1 << 20
	}
	s.lim.N = max

	return http.ReadRequest(s.br)
}

// handle runs on a pool worker: build the canonical response, let
// subscribers inspect or replace it, write whatever ended up set. Returns
// true to keep the connection alive.
func (s *Session) handle(req *http.Request) bool {
	s.setState(session.Dispatching)

	resp := s.compose(req)

	s.mu.Lock()
	s.req = req
	s.resp = resp
	s.mu.Unlock()

	s.notify()

	s.setState(session.Writing)

	resp = s.Response()
	if err := s.writeResponse(req.Method == http.MethodHead, resp); err != nil {
		s.recordErr(err)
		return false
	}

	return !resp.Close
}

// notify runs the subscriber round. A panicking subscriber must not take the
// whole session down with no response set.
func (s *Session) notify() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
			s.SetResponse(s.errorResponse(http.StatusInternalServerError, "An unknown error occurred.", true))
		}
	}()

	s.subscribers.Notify(s)
}

// compose builds the canonical response for a request. Panics while
// composing are recovered into a generic 500 so a response is never left
// unset.
func (s *Session) compose(req *http.Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("request handling panicked", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
			resp = s.errorResponse(http.StatusInternalServerError, "An unknown error occurred.", req.Close)
		}
	}()

	return s.policy(req)
}

// policy is the static-file request policy.
func (s *Session) policy(req *http.Request) *Response {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return s.errorResponse(http.StatusBadRequest, "Unknown HTTP-method", req.Close)
	}

	target := req.RequestURI
	if target == "" || !strings.HasPrefix(target, "/") || strings.Contains(target, "..") {
		return s.errorResponse(http.StatusBadRequest, "Illegal request-target", req.Close)
	}

	path := filepath.Join(s.cfg.DocRoot, filepath.FromSlash(target))
	if strings.HasSuffix(target, "/") {
		path = filepath.Join(path, s.cfg.IndexFile)
	}

	fi, err := os.Stat(path)
	if err == nil && fi.IsDir() {
		path = filepath.Join(path, s.cfg.IndexFile)
		fi, err = os.Stat(path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return s.errorResponse(http.StatusNotFound, fmt.Sprintf("The resource '%s' was not found.", target), req.Close)
	}
	if err != nil {
		return s.errorResponse(http.StatusInternalServerError, fmt.Sprintf("An error occurred: '%v'", err), req.Close)
	}

	body, err := s.files.GetOrFetch(context.Background(), path, s.cfg.CacheTTL.Duration, func(ctx context.Context) ([]byte, error) {
		return os.ReadFile(path)
	})
	if err != nil {
		return s.errorResponse(http.StatusInternalServerError, fmt.Sprintf("An error occurred: '%v'", err), req.Close)
	}

	resp := NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", s.mimes.Lookup(path))
	resp.Header.Set("Server", s.cfg.ServerString)
	resp.Body = body
	resp.Close = req.Close
	return resp
}

// errorResponse builds an error response in the server's canonical shape.
func (s *Session) errorResponse(status int, body string, close bool) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/html")
	resp.Header.Set("Server", s.cfg.ServerString)
	resp.Body = []byte(body)
	resp.Close = close
	return resp
}

// writeResponse sends one response, bounded by the write timeout.
func (s *Session) writeResponse(head bool, resp *Response) error {
	conn := s.strm.Conn()
	if to := s.cfg.Limits.WriteTimeout.Duration; to > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(to))
		defer conn.SetWriteDeadline(time.Time{})
	}

	if _, err := conn.Write(resp.marshal(head)); err != nil {
		return err
	}

	s.met.ResponseWritten(resp.Status)
	if !head {
		s.met.BytesWritten(len(resp.Body))
	}

	return nil
}

// drainBody discards an unread request body so the next request head starts
// at the right offset.
func (s *Session) drainBody(req *http.Request) {
	if req.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, req.Body)
	_ = req.Body.Close()
}

// close moves the session through Closing into Closed: shut the send
// direction down, release the socket, and tell the server.
func (s *Session) close() {
	s.setState(session.Closing)

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

// recordErr keeps the first error; later errors are usually consequences of
// the first.
func (s *Session) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
