package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// DailyWriter is an io.Writer appending to {service}_{date}.log inside a
// directory, switching files when the date changes. Rotation happens lazily
// on the first write of a new day. Safe for concurrent use.
type DailyWriter struct {
	service string
	dir     string

	mu       sync.Mutex
	file     *os.File
	currDate string
	closed   bool
}

// NewDailyWriter creates the log directory if needed and opens the current
// day's file.
//
// Parameters:
//   - service: Service name used in file names
//   - dir: Directory for log files
//
// Returns:
//   - The writer, or an error if the directory or file cannot be opened
func NewDailyWriter(service, dir string) (*DailyWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	w := &DailyWriter{service: service, dir: dir}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openCurrent(); err != nil {
		return nil, err
	}

	return w, nil
}

// Write implements io.Writer, rotating first when the date has changed.
//
// Returns:
//   - The number of bytes written, or an error if the writer is closed or
//     the file cannot be written
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("daily writer is closed")
	}

	if time.Now().Format(dateLayout) != w.currDate {
		if err := w.openCurrent(); err != nil {
			return 0, err
		}
	}

	return w.file.Write(p)
}

// Close closes the current file; later writes fail. Safe to call more than
// once.
//
// Returns:
//   - An error if closing the file fails
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}

	return nil
}

// CurrentFile returns the path of the file currently written to, or "".
func (w *DailyWriter) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}

	return w.fileName(w.currDate)
}

// openCurrent switches to today's file; caller must hold w.mu.
func (w *DailyWriter) openCurrent() error {
	date := time.Now().Format(dateLayout)

	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	f, err := os.OpenFile(w.fileName(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	w.file = f
	w.currDate = date
	return nil
}

func (w *DailyWriter) fileName(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
}
