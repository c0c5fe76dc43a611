package eventlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PersistenceError reports that the event log could not be written. The live
// loop stops on it.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("event log %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer appends events to a CSV file. Each Append is flushed and synced
// before returning. It is safe for concurrent use.
type Writer struct {
	path string

	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// Open opens path for appending, creating it if needed. The header row is
// written only when the file is empty.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Path: path, Err: err}
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &PersistenceError{Path: path, Err: err}
	}

	w := &Writer{path: path, file: f, csv: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

func (w *Writer) write(row []string) error {
	if w.file == nil {
		return &PersistenceError{Path: w.path, Err: os.ErrClosed}
	}
	if err := w.csv.Write(row); err != nil {
		return &PersistenceError{Path: w.path, Err: err}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return &PersistenceError{Path: w.path, Err: err}
	}
	if err := w.file.Sync(); err != nil {
		return &PersistenceError{Path: w.path, Err: err}
	}
	return nil
}

// Append writes e as one row.
func (w *Writer) Append(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(e.Row())
}

// Close closes the file. Further appends fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
