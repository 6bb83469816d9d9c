package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
)

// Response is the outgoing HTTP response a session is about to write.
// Subscribers notified during dispatch receive the session before the write
// happens and may replace the response with SetResponse; whatever is set when
// the notification round finishes is what goes on the wire.
//
// Content-Length and Connection are filled in at write time from Body and
// Close, so subscribers only need to set Status, Header, and Body.
type Response struct {
	// Status is the HTTP status code of the response line.
	Status int
	// Header holds the response headers. Content-Length and Connection are
	// overwritten at write time.
	Header http.Header
	// Body is the response payload. For HEAD requests it is measured but not
	// written.
	Body []byte
	// Close requests that the connection be closed after this response. It
	// is initialised from the request's keep-alive preference.
	Close bool
}

// NewResponse creates an empty response with the given status code.
//
// Parameters:
//   - status: The HTTP status code
//
// Returns:
//   - A response with an initialised, empty header map
func NewResponse(status int) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
	}
}

// marshal serialises the response into wire form. When head is true the body
// is omitted while Content-Length still reflects its size.
func (r *Response) marshal(head bool) []byte {
	text := http.StatusText(r.Status)
	if text == "" {
		text = "Status"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.Status, text)

	h := r.Header
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	if r.Close {
		h.Set("Connection", "close")
	} else {
		h.Set("Connection", "keep-alive")
	}

	_ = h.Write(&buf)
	buf.WriteString("\r\n")

	if !head {
		buf.Write(r.Body)
	}

	return buf.Bytes()
}
