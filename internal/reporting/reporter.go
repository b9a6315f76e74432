// File: internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
)

// PageVisit records one crawled route.
type PageVisit struct {
	Route string `json:"route"`
	URL   string `json:"url"`
	Links int    `json:"links"`
}

// Report is everything a finished run produced.
type Report struct {
	RunID       string             `json:"run_id"`
	Environment string             `json:"environment"`
	BaseURL     string             `json:"base_url"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Pages       []PageVisit        `json:"pages"`
	Results     []linkcheck.Result `json:"results"`
	Summary     linkcheck.Summary  `json:"summary"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Reporter renders a report to an output.
type Reporter interface {
	// Write renders the report. It is called once per reporter.
	Write(report *Report) error
	// Close flushes and closes the underlying output.
	Close() error
}

// FileName returns the default file name for a format.
func FileName(format string) (string, error) {
	switch format {
	case "json":
		return "report.json", nil
	case "junit":
		return "junit.xml", nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// New creates a reporter for format writing to the file at outputPath.
func New(format, outputPath string) (Reporter, error) {
	if _, err := FileName(format); err != nil {
		return nil, err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}

	switch format {
	case "junit":
		return NewJUnitReporter(f), nil
	default:
		return NewJSONReporter(f), nil
	}
}

// newReporter is swapped in tests.
var newReporter = New

// WriteAll writes report in every format into dir and returns the paths
// written. A file whose write or close failed is removed and left out.
func WriteAll(dir string, formats []string, report *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	var (
		paths []string
		errs  []error
	)
	for _, format := range formats {
		name, err := FileName(format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		path := filepath.Join(dir, name)
		r, err := newReporter(format, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		writeErr := r.Write(report)
		if writeErr != nil {
			errs = append(errs, fmt.Errorf("%s report: %w", format, writeErr))
		}
		closeErr := r.Close()
		if closeErr != nil {
			errs = append(errs, fmt.Errorf("closing %s report: %w", format, closeErr))
		}
		if writeErr != nil || closeErr != nil {
			_ = os.Remove(path)
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}
