package wsclient_test

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrusio/wireserve/config"
	"github.com/cedrusio/wireserve/events"
	"github.com/cedrusio/wireserve/logger"
	"github.com/cedrusio/wireserve/wsclient"
	"github.com/cedrusio/wireserve/wsserver"
)

// startEchoServer runs a WebSocket server that answers every text message
// with the same payload.
func startEchoServer(t *testing.T) *wsserver.Server {
	t.Helper()

	cfg := config.DefaultWebSocket()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.Workers = 1
	cfg.Limits.ReadTimeout = config.Duration{Duration: 5 * time.Second}
	cfg.Limits.WriteTimeout = config.Duration{Duration: 2 * time.Second}
	cfg.Limits.HandshakeTimeout = config.Duration{Duration: 2 * time.Second}

	srv, err := wsserver.New(cfg, logger.Nop())
	require.NoError(t, err)
	srv.Subscribe(events.Func[*wsserver.Session](func(sess *wsserver.Session) {
		sess.Subscribe(events.Func[*wsserver.Session](func(sess *wsserver.Session) {
			msg := sess.LastMessage()
			_ = sess.Send(msg.Type, msg.Data)
		}))
	}))
	require.NoError(t, srv.Run())
	t.Cleanup(srv.Stop)
	return srv
}

// stateRecorder collects state transitions for assertions.
type stateRecorder struct {
	mu     sync.Mutex
	states []wsclient.State
}

func (r *stateRecorder) handler(event wsclient.StateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, event.State)
}

func (r *stateRecorder) snapshot() []wsclient.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wsclient.State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) saw(want wsclient.State) bool {
	for _, s := range r.snapshot() {
		if s == want {
			return true
		}
	}
	return false
}

func TestConnect(t *testing.T) {
	t.Run("connects and receives echoed messages in order", func(t *testing.T) {
		srv := startEchoServer(t)

		rec := &stateRecorder{}
		var mu sync.Mutex
		var received []string

		c := wsclient.New(wsclient.DefaultConfig("ws://" + srv.Addr().String() + "/"))
		c.OnState(rec.handler)
		c.OnMessage(func(event wsclient.MessageEvent) {
			mu.Lock()
			received = append(received, string(event.Data))
			mu.Unlock()
		})
		defer c.Close()

		require.NoError(t, c.Connect())
		assert.True(t, c.IsConnected())
		assert.Equal(t, []wsclient.State{wsclient.Connecting, wsclient.Connected}, rec.snapshot())

		require.NoError(t, c.SendText("one"))
		require.NoError(t, c.SendText("two"))
		require.NoError(t, c.Send(websocket.TextMessage, []byte("three")))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 3
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Equal(t, []string{"one", "two", "three"}, received)
		mu.Unlock()
	})

	t.Run("rejects a second connect while connected", func(t *testing.T) {
		srv := startEchoServer(t)

		c := wsclient.New(wsclient.DefaultConfig("ws://" + srv.Addr().String() + "/"))
		defer c.Close()

		require.NoError(t, c.Connect())
		assert.Error(t, c.Connect())
	})

	t.Run("dial failure reports the error and stays disconnected", func(t *testing.T) {
		var mu sync.Mutex
		var errs []error

		cfg := wsclient.DefaultConfig("ws://127.0.0.1:1/")
		cfg.HandshakeTimeout = time.Second
		c := wsclient.New(cfg)
		c.OnError(func(event wsclient.ErrorEvent) {
			mu.Lock()
			errs = append(errs, event.Err)
			mu.Unlock()
		})
		defer c.Close()

		require.Error(t, c.Connect())
		assert.Equal(t, wsclient.Disconnected, c.GetState())
		mu.Lock()
		assert.NotEmpty(t, errs)
		mu.Unlock()
	})
}

func TestSend(t *testing.T) {
	t.Run("rejects sends while disconnected", func(t *testing.T) {
		c := wsclient.New(wsclient.DefaultConfig("ws://127.0.0.1:1/"))
		defer c.Close()

		assert.Error(t, c.SendText("nope"))
	})
}

func TestClose(t *testing.T) {
	t.Run("moves to closed and is idempotent", func(t *testing.T) {
		srv := startEchoServer(t)

		c := wsclient.New(wsclient.DefaultConfig("ws://" + srv.Addr().String() + "/"))
		require.NoError(t, c.Connect())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())

		assert.Equal(t, wsclient.Closed, c.GetState())
		assert.Error(t, c.Connect())
	})
}

func TestReconnect(t *testing.T) {
	t.Run("reconnects after the server drops the session", func(t *testing.T) {
		srv := startEchoServer(t)

		cfg := wsclient.DefaultConfig("ws://" + srv.Addr().String() + "/")
		cfg.AutoReconnect = true
		cfg.ReconnectInterval = 50 * time.Millisecond

		rec := &stateRecorder{}
		c := wsclient.New(cfg)
		c.OnState(rec.handler)
		defer c.Close()

		require.NoError(t, c.Connect())
		require.Eventually(t, func() bool { return srv.LastSession() != nil }, 2*time.Second, 10*time.Millisecond)

		srv.LastSession().Close()

		require.Eventually(t, func() bool {
			return rec.saw(wsclient.Reconnecting) && c.IsConnected()
		}, 5*time.Second, 20*time.Millisecond)

		// The new connection works end to end.
		var mu sync.Mutex
		var got string
		c.OnMessage(func(event wsclient.MessageEvent) {
			mu.Lock()
			got = string(event.Data)
			mu.Unlock()
		})
		require.NoError(t, c.SendText("after"))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return got == "after"
		}, 2*time.Second, 10*time.Millisecond)
	})
}
