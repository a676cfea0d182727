// File: internal/reporting/junit.go
package reporting

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/beevik/etree"
)

// JUnitReporter renders every run as a <testsuite> and every step as a
// <testcase>, which CI servers pick up without extra plugins.
type JUnitReporter struct {
	mu          sync.Mutex
	writer      io.WriteCloser
	toolVersion string
	runs        []*Run
	closed      bool
}

// NewJUnitReporter takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser, toolVersion string) *JUnitReporter {
	return &JUnitReporter{writer: writer, toolVersion: toolVersion}
}

// Write queues run for the document rendered on Close.
func (r *JUnitReporter) Write(run *Run) error {
	if run == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("junit reporter is closed")
	}
	r.runs = append(r.runs, run)
	return nil
}

// Close renders the document and closes the writer. Later calls are no-ops.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	doc := r.document()
	doc.Indent(2)
	_, err := doc.WriteTo(r.writer)
	if err != nil {
		err = fmt.Errorf("failed to write junit report: %w", err)
	}
	return closeAll(r.writer, err)
}

func (r *JUnitReporter) document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "kickstart")

	var tests, failures int
	var total float64
	for _, run := range r.runs {
		suite := root.CreateElement("testsuite")
		n, f := r.suite(suite, run)
		tests += n
		failures += f
		total += run.Duration.Seconds()
	}
	root.CreateAttr("tests", fmt.Sprint(tests))
	root.CreateAttr("failures", fmt.Sprint(failures))
	root.CreateAttr("time", seconds(total))
	return doc
}

func (r *JUnitReporter) suite(suite *etree.Element, run *Run) (tests, failures int) {
	suite.CreateAttr("name", run.Flow)
	suite.CreateAttr("timestamp", run.Started.Format("2006-01-02T15:04:05"))
	suite.CreateAttr("time", seconds(run.Duration.Seconds()))

	props := suite.CreateElement("properties")
	property(props, "run_id", run.RunID)
	property(props, "version", r.toolVersion)
	keys := make([]string, 0, len(run.Properties))
	for k := range run.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		property(props, k, run.Properties[k])
	}

	stepFailed := false
	for _, step := range run.Steps {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "kickstart."+run.Flow)
		tc.CreateAttr("name", step.Name)
		tc.CreateAttr("time", seconds(step.Duration.Seconds()))
		if step.Polls > 0 {
			tc.CreateElement("system-out").SetText(fmt.Sprintf("polls: %d", step.Polls))
		}
		tests++
		if step.Failure != nil {
			failure(tc, step.Failure)
			failures++
			stepFailed = true
		}
	}

	// A run that failed before or after its steps still shows up as red.
	if run.Failure != nil && !stepFailed {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "kickstart."+run.Flow)
		tc.CreateAttr("name", run.Flow)
		tc.CreateAttr("time", "0.000")
		failure(tc, run.Failure)
		tests++
		failures++
	}

	suite.CreateAttr("tests", fmt.Sprint(tests))
	suite.CreateAttr("failures", fmt.Sprint(failures))
	return tests, failures
}

func property(props *etree.Element, name, value string) {
	if value == "" {
		return
	}
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

func failure(tc *etree.Element, f *Failure) {
	el := tc.CreateElement("failure")
	el.CreateAttr("type", f.Kind)
	el.CreateAttr("message", f.Message)
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
