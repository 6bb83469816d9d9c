// Package config holds the immutable configuration consumed by listeners
// and sessions: bind endpoint, TLS material, worker count, I/O bounds, the
// HTTP serving surface, and the extension to mimetype table. Configuration
// is resolved once, at startup; per-connection code only ever reads it.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalid marks configuration errors. Constructors wrap it so callers can
// match with errors.Is; a configuration error is fatal to the component
// being constructed.
var ErrInvalid = errors.New("invalid configuration")

// Duration wraps time.Duration so values can be written as strings such as
// "30s" in TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	d.Duration = parsed
	return nil
}

// TLS describes the optional TLS layer of an endpoint. When Enabled is true
// both file paths must point to readable PEM files; the keypair is loaded
// once at listener construction.
type TLS struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// Limits bounds a session's I/O so slow or adversarial peers cannot occupy
// resources forever. Zero disables the respective bound.
type Limits struct {
	// ReadTimeout is the max duration to wait for one inbound request or
	// frame, including keep-alive idle time.
	ReadTimeout Duration `toml:"read_timeout"`
	// WriteTimeout is the max duration for writing one response or frame.
	WriteTimeout Duration `toml:"write_timeout"`
	// HandshakeTimeout bounds the TLS and WebSocket upgrade handshakes.
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	// MaxHeaderBytes caps the size of an inbound HTTP request head.
	MaxHeaderBytes int64 `toml:"max_header_bytes"`
	// MaxMessageBytes caps the size of an inbound WebSocket message.
	MaxMessageBytes int64 `toml:"max_message_bytes"`
}

// Endpoint is the shared listener configuration for both protocol flavors.
type Endpoint struct {
	// Address is the bind address, e.g. "0.0.0.0" or "127.0.0.1".
	Address string `toml:"address"`
	// Port is the bind port; 0 lets the kernel pick one.
	Port int `toml:"port"`
	// Workers is the size of the dispatch worker pool. 0 means manual pump
	// mode: the embedding application must drive Poll itself.
	Workers int `toml:"workers"`
	TLS     TLS    `toml:"tls"`
	Limits  Limits `toml:"limits"`
}

// HTTP is the full configuration of an HTTP listener.
type HTTP struct {
	Endpoint
	// DocRoot is the directory served to clients.
	DocRoot string `toml:"doc_root"`
	// IndexFile is appended to directory targets.
	IndexFile string `toml:"index_file"`
	// ServerString is sent in the Server header of every response.
	ServerString string `toml:"server_string"`
	// MimeTypes are extension to content-type entries merged over the
	// built-in defaults at load time; user entries win.
	MimeTypes map[string]string `toml:"mime_types"`
	// CacheTTL is how long served file bytes stay in the file cache.
	CacheTTL Duration `toml:"cache_ttl"`
}

// WebSocket is the full configuration of a WebSocket listener.
type WebSocket struct {
	Endpoint
}

// Addr returns the endpoint in "host:port" form for net.Listen.
//
// Returns:
//   - The joined bind address and port
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Validate checks the endpoint for configuration errors.
//
// Returns:
//   - An error wrapping ErrInvalid if the address, port, worker count, or
//     TLS file paths are unusable
func (e Endpoint) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("%w: empty bind address", ErrInvalid)
	}

	if net.ParseIP(e.Address) == nil {
		return fmt.Errorf("%w: bind address %q is not an IP address", ErrInvalid, e.Address)
	}

	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, e.Port)
	}

	if e.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", ErrInvalid, e.Workers)
	}

	if e.TLS.Enabled {
		if e.TLS.CertFile == "" || e.TLS.KeyFile == "" {
			return fmt.Errorf("%w: tls enabled without cert/key file", ErrInvalid)
		}
	}

	return nil
}

// DefaultEndpoint returns an endpoint bound to all interfaces with one
// worker and the default I/O bounds.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		Address: "0.0.0.0",
		Port:    80,
		Workers: 1,
		Limits: Limits{
			ReadTimeout:      Duration{60 * time.Second},
			WriteTimeout:     Duration{30 * time.Second},
			HandshakeTimeout: Duration{10 * time.Second},
			MaxHeaderBytes:   1 << 20,
			MaxMessageBytes:  16 << 20,
		},
	}
}

// DefaultHTTP returns an HTTP configuration serving the current directory
// with the built-in defaults.
func DefaultHTTP() HTTP {
	return HTTP{
		Endpoint:     DefaultEndpoint(),
		DocRoot:      ".",
		IndexFile:    "index.html",
		ServerString: "wireserve/0",
		CacheTTL:     Duration{5 * time.Second},
	}
}

// DefaultWebSocket returns a WebSocket configuration with the built-in
// defaults.
func DefaultWebSocket() WebSocket {
	return WebSocket{Endpoint: DefaultEndpoint()}
}

// File is the top-level shape of a wireserve TOML configuration file. A
// section left out of the file leaves the corresponding server disabled.
type File struct {
	HTTP      *HTTP      `toml:"http"`
	WebSocket *WebSocket `toml:"websocket"`
	Log       Log        `toml:"log"`
}

// Log configures the process-wide logger.
type Log struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `toml:"level"`
	// Dir enables daily-rotated file logging when non-empty.
	Dir string `toml:"dir"`
}

// Load reads a TOML configuration file, overlaying it on the defaults.
// Sections that are present are validated; absent sections stay nil.
//
// Parameters:
//   - path: Filepath of the TOML file
//
// Returns:
//   - The decoded configuration, or an error wrapping ErrInvalid on decode
//     or validation failure
func Load(path string) (File, error) {
	raw := struct {
		HTTP      *HTTP      `toml:"http"`
		WebSocket *WebSocket `toml:"websocket"`
		Log       Log        `toml:"log"`
	}{
		HTTP:      &HTTP{},
		WebSocket: &WebSocket{},
	}
	*raw.HTTP = DefaultHTTP()
	*raw.WebSocket = DefaultWebSocket()

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return File{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	var out File
	out.Log = raw.Log

	if meta.IsDefined("http") {
		if err := raw.HTTP.Validate(); err != nil {
			return File{}, fmt.Errorf("http section: %w", err)
		}
		out.HTTP = raw.HTTP
	}

	if meta.IsDefined("websocket") {
		if err := raw.WebSocket.Validate(); err != nil {
			return File{}, fmt.Errorf("websocket section: %w", err)
		}
		out.WebSocket = raw.WebSocket
	}

	return out, nil
}
