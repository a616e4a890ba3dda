package status

import (
	"fmt"
	"io"
	"sync"
)

// LineReporter writes one line per event. Used for pipes, CI logs and
// anything that is not a terminal.
type LineReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLine creates a LineReporter writing to w.
func NewLine(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

// Start prints the first phase of a component.
func (r *LineReporter) Start(name string, phase Phase, msg string) {
	r.write(name, string(phase), msg)
}

// Update prints a phase change or a new message.
func (r *LineReporter) Update(name string, phase Phase, msg string) {
	r.write(name, string(phase), msg)
}

// Succeed prints the final success line.
func (r *LineReporter) Succeed(name, msg string) {
	r.write(name, string(PhaseSucceeded), msg)
}

// Fail prints the failure line with the phase that failed.
func (r *LineReporter) Fail(name string, phase Phase, msg string) {
	r.write(name, fmt.Sprintf("%s (%s)", PhaseFailed, phase), msg)
}

// Log prints one build output line prefixed with the component name.
func (r *LineReporter) Log(name, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "[%s] %s\n", name, line)
}

// Close is a no-op; every line is already written.
func (r *LineReporter) Close() {}

func (r *LineReporter) write(name, phase, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg == "" {
		fmt.Fprintf(r.w, "%s: %s\n", name, phase)
		return
	}
	fmt.Fprintf(r.w, "%s: %s: %s\n", name, phase, msg)
}
