package config

import (
	"path/filepath"
	"strings"
)

// DefaultContentType is served for extensions missing from the table.
const DefaultContentType = "application/text"

// MimeTable maps file extensions (with leading dot, lower case) to content
// types. It is built once at startup from the defaults plus user overrides
// and is immutable afterwards, so sessions can share it without locking.
type MimeTable struct {
	types map[string]string
}

// defaultMimeTypes is the built-in extension table.
var defaultMimeTypes = map[string]string{
	".htm":   "text/html",
	".html":  "text/html",
	".php":   "text/html",
	".txt":   "text/plain",
	".css":   "text/css",
	".map":   "text/map",
	".js":    "application/javascript",
	".json":  "application/json",
	".xml":   "application/xml",
	".swf":   "application/x-shockwave-flash",
	".flv":   "video/x-flv",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpe":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".bmp":   "image/bmp",
	".ico":   "image/vnd.microsoft.icon",
	".svg":   "image/svg+xml",
	".svgz":  "image/svg+xml",
	".woff":  "text/plain",
	".woff2": "text/plain",
	".ttf":   "text/plain",
	".m3u8":  "application/x-mpegURL",
	".m3u":   "audio/x-mpegurl",
	".wav":   "audio/x-wav",
	".mp3":   "audio/mpeg",
	".m4a":   "audio/mpeg",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".ts":    "video/MP2T",
	".gif":   "image/gif",
	".tiff":  "image/tiff",
	".tif":   "image/tiff",
}

// NewMimeTable builds an immutable mimetype table from the built-in
// defaults merged with the given entries; user entries override defaults.
//
// Parameters:
//   - overrides: Additional extension to content-type entries, may be nil
//
// Returns:
//   - The merged table
func NewMimeTable(overrides map[string]string) *MimeTable {
	types := make(map[string]string, len(defaultMimeTypes)+len(overrides))
	for ext, ct := range defaultMimeTypes {
		types[ext] = ct
	}

	for ext, ct := range overrides {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		types[strings.ToLower(ext)] = ct
	}

	return &MimeTable{types: types}
}

// Lookup returns the content type for a file path's extension.
//
// Parameters:
//   - path: The file path whose extension decides the content type
//
// Returns:
//   - The mapped content type, or DefaultContentType for unknown extensions
func (t *MimeTable) Lookup(path string) string {
	if ct, ok := t.types[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}

	return DefaultContentType
}

// Len returns the number of entries in the table.
func (t *MimeTable) Len() int {
	return len(t.types)
}
