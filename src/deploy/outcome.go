package deploy

import (
	"time"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/status"
)

// Outcome is the result of one component's pipeline.
type Outcome struct {
	ID      component.ID
	Name    string // display label
	Kind    component.Kind
	Success bool
	// Cached is set when the component was already up to date and nothing
	// was built or copied.
	Cached bool
	// Message is the short reason shown to the user.
	Message string
	// Phase is where the pipeline stopped.
	Phase    status.Phase
	Err      error
	Paths    []string // deployed paths, absolute
	Duration time.Duration
}

// Batch is the result of one Run.
type Batch struct {
	RunID    string
	Outcomes []Outcome // in the order components were given
	Duration time.Duration
}

// Succeeded counts successful outcomes, cached ones included.
func (b Batch) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Cached counts outcomes that short-circuited as up to date.
func (b Batch) Cached() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Success && o.Cached {
			n++
		}
	}
	return n
}

// Failed counts failed outcomes.
func (b Batch) Failed() int {
	return len(b.Outcomes) - b.Succeeded()
}

// Failures returns the failed outcomes in order.
func (b Batch) Failures() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}
