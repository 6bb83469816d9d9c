package wsserver

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// hijackWriter is a minimal http.ResponseWriter over a raw accepted
// connection, just enough for the websocket upgrader: it exposes the conn
// through Hijack for the 101 path and serialises error responses itself for
// the rejection path.
type hijackWriter struct {
	conn        net.Conn
	br          *bufio.Reader
	header      http.Header
	wroteHeader bool
}

func newHijackWriter(conn net.Conn, br *bufio.Reader) *hijackWriter {
	return &hijackWriter{
		conn:   conn,
		br:     br,
		header: make(http.Header),
	}
}

func (w *hijackWriter) Header() http.Header {
	return w.header
}

func (w *hijackWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	text := http.StatusText(status)
	if text == "" {
		text = "Status"
	}

	fmt.Fprintf(w.conn, "HTTP/1.1 %d %s\r\n", status, text)
	w.header.Set("Connection", "close")
	_ = w.header.Write(w.conn)
	fmt.Fprintf(w.conn, "\r\n")
}

func (w *hijackWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	return w.conn.Write(b)
}

// Hijack hands the connection to the upgrader, which writes the 101
// response directly.
func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, bufio.NewReadWriter(w.br, bufio.NewWriter(w.conn)), nil
}
