// Package blob provides a small binary container used to seed and consume
// message bodies: file load/save, Base64 conversion, and string views.
package blob

import (
	"encoding/base64"
	"fmt"
	"os"
)

// Blob is an immutable-by-convention byte payload. Helpers construct blobs
// from files, strings, and Base64 text; methods convert back.
type Blob []byte

// FromString returns a Blob holding the bytes of s.
//
// Parameters:
//   - s: The string to copy into the blob
//
// Returns:
//   - A Blob with the string's bytes
func FromString(s string) Blob {
	return Blob(s)
}

// FromFile loads a file's raw bytes from disk.
//
// Parameters:
//   - path: Filepath to load data from
//
// Returns:
//   - The file's bytes, or an error that wraps the filesystem failure
//     (matchable with errors.Is against fs.ErrNotExist and friends)
func FromFile(path string) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", path, err)
	}

	return Blob(data), nil
}

// FromBase64 decodes standard-encoding Base64 text into a Blob.
//
// Parameters:
//   - encoded: The Base64 text to decode
//
// Returns:
//   - The decoded bytes, or an error if the input is not valid Base64
func FromBase64(encoded string) (Blob, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	return Blob(data), nil
}

// ToFile writes the blob to disk, creating the file if needed and
// overwriting it otherwise.
//
// Parameters:
//   - path: Filepath to write to
//
// Returns:
//   - An error if the write fails
func (b Blob) ToFile(path string) error {
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("save file %s: %w", path, err)
	}

	return nil
}

// ToBase64 returns the blob encoded as standard Base64 text.
//
// Returns:
//   - The Base64 representation of the blob
func (b Blob) ToBase64() string {
	return base64.StdEncoding.EncodeToString(b)
}

// String returns the blob interpreted as a string.
func (b Blob) String() string {
	return string(b)
}

// Bytes returns the underlying byte slice.
func (b Blob) Bytes() []byte {
	return b
}

// Len returns the payload size in bytes.
func (b Blob) Len() int {
	return len(b)
}
