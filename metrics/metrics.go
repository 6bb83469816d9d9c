// Package metrics exposes prometheus instrumentation for listeners and
// sessions. Construction takes a Registerer so embedders decide where the
// metrics land; passing nil keeps the metrics alive but unregistered, which
// is handy in tests.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Server bundles the per-listener metrics. One instance is shared by a
// listener and all of its sessions.
type Server struct {
	connectionsAccepted prometheus.Counter
	sessionsActive      prometheus.Gauge
	responses           *prometheus.CounterVec
	messagesReceived    prometheus.Counter
	bytesWritten        prometheus.Counter
}

// NewServer creates the metric set for one listener.
//
// Parameters:
//   - reg: Where to register the collectors; nil skips registration
//   - protocol: Label value distinguishing listeners, e.g. "http" or "websocket"
//
// Returns:
//   - The metric set
func NewServer(reg prometheus.Registerer, protocol string) *Server {
	labels := prometheus.Labels{"protocol": protocol}

	s := &Server{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wireserve_connections_accepted_total",
			Help:        "Connections accepted by the listener.",
			ConstLabels: labels,
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wireserve_sessions_active",
			Help:        "Sessions currently open.",
			ConstLabels: labels,
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "wireserve_responses_total",
			Help:        "Responses written, by status code.",
			ConstLabels: labels,
		}, []string{"status"}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wireserve_messages_received_total",
			Help:        "WebSocket messages received.",
			ConstLabels: labels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wireserve_bytes_written_total",
			Help:        "Payload bytes written to peers.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			s.connectionsAccepted,
			s.sessionsActive,
			s.responses,
			s.messagesReceived,
			s.bytesWritten,
		)
	}

	return s
}

// ConnectionAccepted counts one accepted connection and one more active
// session.
func (s *Server) ConnectionAccepted() {
	if s == nil {
		return
	}

	s.connectionsAccepted.Inc()
	s.sessionsActive.Inc()
}

// SessionClosed counts one session leaving the active set.
func (s *Server) SessionClosed() {
	if s == nil {
		return
	}

	s.sessionsActive.Dec()
}

// ResponseWritten counts one response with the given status code.
//
// Parameters:
//   - status: The HTTP status code written
func (s *Server) ResponseWritten(status int) {
	if s == nil {
		return
	}

	s.responses.WithLabelValues(strconv.Itoa(status)).Inc()
}

// MessageReceived counts one inbound WebSocket message.
func (s *Server) MessageReceived() {
	if s == nil {
		return
	}

	s.messagesReceived.Inc()
}

// BytesWritten counts payload bytes sent to a peer.
//
// Parameters:
//   - n: Number of bytes written
func (s *Server) BytesWritten(n int) {
	if s == nil || n <= 0 {
		return
	}

	s.bytesWritten.Add(float64(n))
}
