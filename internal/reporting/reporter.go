// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
)

// Supported report formats.
const (
	FormatJUnit = "junit"
	FormatJSON  = "json"
)

// Reporter collects flow runs and serializes them to an output.
type Reporter interface {
	// Write adds a single run to the report.
	Write(run *Run) error
	// Close flushes the report and closes any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case FormatJUnit, FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatJSON {
		return NewJSONReporter(writer, toolVersion), nil
	}
	return NewJUnitReporter(writer, toolVersion), nil
}

// closeAll closes w after a flush and returns the first error.
func closeAll(w io.Closer, flushErr error) error {
	closeErr := w.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report output: %w", closeErr)
	}
	return nil
}
