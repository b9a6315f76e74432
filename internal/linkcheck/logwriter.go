package linkcheck

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const timestampLayout = "2006-01-02 15:04:05"

// LogWriter appends one line per result to the broken and working logs.
// Forbidden links go to the broken log.
type LogWriter struct {
	mu      sync.Mutex
	broken  io.Writer
	working io.Writer
	closers []io.Closer
}

// NewLogWriter writes to the given writers. Close does not close them.
func NewLogWriter(broken, working io.Writer) *LogWriter {
	return &LogWriter{broken: broken, working: working}
}

// CreateLogWriter truncates (or creates) both log files inside dir.
func CreateLogWriter(dir, brokenName, workingName string) (*LogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create link log directory %s: %w", dir, err)
	}
	broken, err := os.Create(filepath.Join(dir, brokenName))
	if err != nil {
		return nil, fmt.Errorf("failed to create broken link log: %w", err)
	}
	working, err := os.Create(filepath.Join(dir, workingName))
	if err != nil {
		broken.Close()
		return nil, fmt.Errorf("failed to create working link log: %w", err)
	}
	w := NewLogWriter(broken, working)
	w.closers = []io.Closer{broken, working}
	return w, nil
}

// FormatLine renders r in the link log format.
func FormatLine(r Result) string {
	ts := r.CheckedAt.Format(timestampLayout)
	switch r.Class {
	case Working, Forbidden:
		return fmt.Sprintf("%s | %s → Status %d | Page: %s", ts, r.URL, r.StatusCode, r.SourcePage)
	default:
		where := r.Context
		if where == "" {
			where = "unknown"
		}
		return fmt.Sprintf("%s | %s → Status %d | Found in: %s | Page: %s", ts, r.URL, r.StatusCode, where, r.SourcePage)
	}
}

// Record writes r to the matching log.
func (w *LogWriter) Record(r Result) error {
	dst := w.working
	if r.Class.IsIssue() {
		dst = w.broken
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(dst, FormatLine(r)); err != nil {
		return fmt.Errorf("failed to write link log: %w", err)
	}
	return nil
}

// Close closes files opened by CreateLogWriter.
func (w *LogWriter) Close() error {
	var errs []error
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
