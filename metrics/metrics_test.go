package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("registers all collectors", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		s := NewServer(reg, "http")

		s.ConnectionAccepted()
		s.ResponseWritten(200)
		s.BytesWritten(128)

		families, err := reg.Gather()
		require.NoError(t, err)
		assert.Len(t, families, 5)
	})

	t.Run("works unregistered", func(t *testing.T) {
		s := NewServer(nil, "websocket")

		assert.NotPanics(t, func() {
			s.ConnectionAccepted()
			s.MessageReceived()
			s.SessionClosed()
		})
	})

	t.Run("nil receiver is safe", func(t *testing.T) {
		var s *Server

		assert.NotPanics(t, func() {
			s.ConnectionAccepted()
			s.ResponseWritten(500)
			s.MessageReceived()
			s.BytesWritten(1)
			s.SessionClosed()
		})
	})
}

func TestCounters(t *testing.T) {
	t.Run("tracks accepted and active sessions", func(t *testing.T) {
		s := NewServer(prometheus.NewRegistry(), "http")

		s.ConnectionAccepted()
		s.ConnectionAccepted()
		s.SessionClosed()

		assert.Equal(t, float64(2), testutil.ToFloat64(s.connectionsAccepted))
		assert.Equal(t, float64(1), testutil.ToFloat64(s.sessionsActive))
	})

	t.Run("labels responses by status", func(t *testing.T) {
		s := NewServer(prometheus.NewRegistry(), "http")

		s.ResponseWritten(200)
		s.ResponseWritten(200)
		s.ResponseWritten(404)

		assert.Equal(t, float64(2), testutil.ToFloat64(s.responses.WithLabelValues("200")))
		assert.Equal(t, float64(1), testutil.ToFloat64(s.responses.WithLabelValues("404")))
	})

	t.Run("ignores non-positive byte counts", func(t *testing.T) {
		s := NewServer(prometheus.NewRegistry(), "http")

		s.BytesWritten(-5)
		s.BytesWritten(0)
		s.BytesWritten(10)

		assert.Equal(t, float64(10), testutil.ToFloat64(s.bytesWritten))
	})
}
