// File: internal/reporting/run.go
package reporting

import (
	"strconv"
	"time"

	"github.com/xkilldash9x/kickstart-cli/internal/checkout"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/install"
)

// Failure describes why a step or a run stopped.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func failureOf(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: faults.KindOf(err).String(), Message: err.Error()}
}

// Step is one executed install stage, checkout level or cart addition.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
	Polls    int           `json:"polls,omitempty"`
	Failure  *Failure      `json:"failure,omitempty"`
}

// Run is the flow-independent outcome that reporters serialize.
type Run struct {
	Flow       string            `json:"flow"`
	RunID      string            `json:"run_id"`
	Started    time.Time         `json:"started"`
	Duration   time.Duration     `json:"duration_ns"`
	Steps      []Step            `json:"steps"`
	Properties map[string]string `json:"properties,omitempty"`
	Failure    *Failure          `json:"failure,omitempty"`
}

// NewRun starts an empty run for flow.
func NewRun(flow, runID string) *Run {
	return &Run{Flow: flow, RunID: runID, Started: time.Now().UTC(), Properties: map[string]string{}}
}

// AddStep appends a step. A non-nil err marks the step as failed.
func (r *Run) AddStep(name string, d time.Duration, polls int, err error) {
	r.Steps = append(r.Steps, Step{Name: name, Duration: d, Polls: polls, Failure: failureOf(err)})
}

// Finish records the total duration and the error the flow returned.
func (r *Run) Finish(d time.Duration, err error) {
	r.Duration = d
	r.Failure = failureOf(err)
}

// Failed reports whether the flow returned an error.
func (r *Run) Failed() bool { return r.Failure != nil }

// FromInstall converts the result of install.Driver.Install.
func FromInstall(report *install.Report, err error) *Run {
	run := NewRun(install.Flow, "")
	if report == nil {
		run.Finish(0, err)
		return run
	}
	run.RunID = report.RunID
	run.Started = run.Started.Add(-report.Duration)
	if report.DetectedTask != "" {
		run.Properties["detected_task"] = report.DetectedTask
	}
	for _, s := range report.Stages {
		run.AddStep(s.Name, s.Duration, s.Polls, s.Err)
	}
	run.Finish(report.Duration, err)
	return run
}

// FromCheckout converts the result of checkout.Driver.Checkout.
func FromCheckout(report *checkout.Report, err error) *Run {
	run := NewRun(checkout.Flow, "")
	if report == nil {
		run.Finish(0, err)
		return run
	}
	run.RunID = report.RunID
	run.Started = run.Started.Add(-report.Duration)
	run.Properties["target_level"] = strconv.Itoa(int(report.Target))
	if report.CompletionURL != "" {
		run.Properties["completion_url"] = report.CompletionURL
	}
	for _, l := range report.Levels {
		run.AddStep(l.Name, l.Duration, 0, l.Err)
	}
	run.Finish(report.Duration, err)
	return run
}
