package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 100 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var styles = struct {
	Name    lipgloss.Style
	Running lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}{
	Name:    lipgloss.NewStyle().Bold(true),
	Running: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

type rowState int

const (
	rowRunning rowState = iota
	rowSucceeded
	rowFailed
)

type row struct {
	name    string
	phase   Phase
	msg     string
	state   rowState
	started time.Time
	ended   time.Time
}

// LiveReporter redraws a table of components in place, one row each, on a
// timer so spinners animate while builds run.
type LiveReporter struct {
	mu      sync.Mutex
	w       io.Writer
	rows    []*row
	index   map[string]*row
	drawn   int // lines drawn by the last render
	frame   int
	closed  bool
	stop    chan struct{}
	done    chan struct{}
	nowFunc func() time.Time
}

// NewLive creates a LiveReporter and starts its refresh loop.
func NewLive(w io.Writer) *LiveReporter {
	r := &LiveReporter{
		w:       w,
		index:   make(map[string]*row),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		nowFunc: time.Now,
	}
	go r.loop()
	return r
}

func (r *LiveReporter) loop() {
	defer close(r.done)
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.frame = (r.frame + 1) % len(spinnerFrames)
			r.renderLocked()
			r.mu.Unlock()
		}
	}
}

// Start adds a row for name.
func (r *LiveReporter) Start(name string, phase Phase, msg string) {
	r.set(name, phase, msg, rowRunning)
}

// Update changes the phase and message of a row.
func (r *LiveReporter) Update(name string, phase Phase, msg string) {
	r.set(name, phase, msg, rowRunning)
}

// Succeed marks a row done.
func (r *LiveReporter) Succeed(name, msg string) {
	r.set(name, PhaseSucceeded, msg, rowSucceeded)
}

// Fail marks a row failed in phase.
func (r *LiveReporter) Fail(name string, phase Phase, msg string) {
	r.set(name, phase, msg, rowFailed)
}

// Log prints a line above the table and redraws it underneath.
func (r *LiveReporter) Log(name, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.clearLocked()
	fmt.Fprintf(r.w, "%s %s\n", styles.Muted.Render("["+name+"]"), line)
	r.renderLocked()
}

// Write prints p above the table so a logger can share the terminal with
// it. After Close it writes straight through.
func (r *LiveReporter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.w.Write(p)
	}
	r.clearLocked()
	n, err := r.w.Write(p)
	r.renderLocked()
	return n, err
}

// Close stops the refresh loop after a final render. The table stays on
// screen.
func (r *LiveReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	<-r.done

	r.mu.Lock()
	r.renderLocked()
	r.mu.Unlock()
}

func (r *LiveReporter) set(name string, phase Phase, msg string, state rowState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	rw, ok := r.index[name]
	if !ok {
		rw = &row{name: name, started: r.nowFunc()}
		r.index[name] = rw
		r.rows = append(r.rows, rw)
	}
	if rw.state != rowRunning {
		// Terminal states are final.
		return
	}
	rw.phase = phase
	rw.msg = msg
	rw.state = state
	if state != rowRunning {
		rw.ended = r.nowFunc()
	}
	r.renderLocked()
}

// clearLocked moves the cursor to the first table line and erases to the
// end of the screen.
func (r *LiveReporter) clearLocked() {
	if r.drawn > 0 {
		fmt.Fprintf(r.w, "\033[%dA\r\033[J", r.drawn)
	}
	r.drawn = 0
}

func (r *LiveReporter) renderLocked() {
	r.clearLocked()
	width := 0
	for _, rw := range r.rows {
		if len(rw.name) > width {
			width = len(rw.name)
		}
	}
	var b strings.Builder
	for _, rw := range r.rows {
		b.WriteString(r.line(rw, width))
		b.WriteByte('\n')
	}
	io.WriteString(r.w, b.String())
	r.drawn = len(r.rows)
}

func (r *LiveReporter) line(rw *row, width int) string {
	var icon, phase string
	end := r.nowFunc()
	switch rw.state {
	case rowSucceeded:
		icon = styles.Success.Render("✓")
		phase = styles.Success.Render(string(rw.phase))
		end = rw.ended
	case rowFailed:
		icon = styles.Error.Render("✗")
		phase = styles.Error.Render("failed during " + string(rw.phase))
		end = rw.ended
	default:
		icon = styles.Running.Render(spinnerFrames[r.frame])
		phase = styles.Running.Render(string(rw.phase))
	}
	elapsed := end.Sub(rw.started).Round(100 * time.Millisecond)

	name := styles.Name.Render(rw.name + strings.Repeat(" ", width-len(rw.name)))
	out := fmt.Sprintf("%s %s  %s %s", icon, name, phase, styles.Muted.Render(elapsed.String()))
	if rw.msg != "" {
		out += "  " + styles.Muted.Render(rw.msg)
	}
	return out
}
