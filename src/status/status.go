// Package status renders per-component pipeline progress.
//
// A Reporter is a presentation sink: the deploy pipeline pushes events into
// it and never reads anything back, so a slow or broken terminal cannot
// change what gets deployed.
package status

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Phase is a pipeline state shown next to a component.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseResolving Phase = "resolving"
	PhaseBuilding  Phase = "building"
	PhaseLocating  Phase = "locating artifact"
	PhaseEvicting  Phase = "evicting previous"
	PhaseDeploying Phase = "deploying"
	PhaseSucceeded Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Reporter receives lifecycle events keyed by component label. Every method
// must be safe for concurrent use.
type Reporter interface {
	Start(name string, phase Phase, msg string)
	Update(name string, phase Phase, msg string)
	Succeed(name, msg string)
	Fail(name string, phase Phase, msg string)
	// Log forwards one line of build output for the component.
	Log(name, line string)
	// Close flushes any pending output. No events may follow.
	Close()
}

// New picks the live table when w is an interactive terminal and live is
// requested, and the line reporter otherwise.
func New(w io.Writer, live bool) Reporter {
	if live && IsTerminal(w) && os.Getenv("TERM") != "dumb" {
		return NewLive(w)
	}
	return NewLine(w)
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Discard is a Reporter that drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Start(string, Phase, string)  {}
func (discard) Update(string, Phase, string) {}
func (discard) Succeed(string, string)       {}
func (discard) Fail(string, Phase, string)   {}
func (discard) Log(string, string)           {}
func (discard) Close()                       {}
