// File: internal/reporting/json.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonDocument struct {
	Tool      string    `json:"tool"`
	Version   string    `json:"version"`
	Generated time.Time `json:"generated"`
	Runs      []*Run    `json:"runs"`
}

// JSONReporter writes all runs as one indented JSON document on Close.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	doc    jsonDocument
	closed bool
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		doc:    jsonDocument{Tool: "kickstart", Version: toolVersion, Runs: []*Run{}},
	}
}

func (r *JSONReporter) Write(run *Run) error {
	if run == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("json reporter is closed")
	}
	r.doc.Runs = append(r.doc.Runs, run)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.doc.Generated = time.Now().UTC()

	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err == nil {
		data = append(data, '\n')
		_, err = r.writer.Write(data)
	}
	if err != nil {
		err = fmt.Errorf("failed to write json report: %w", err)
	}
	return closeAll(r.writer, err)
}
