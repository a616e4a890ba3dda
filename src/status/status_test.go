package status

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLine(&buf)
	r.Start("pl:a", PhaseResolving, "")
	r.Update("pl:a", PhaseBuilding, "gradle build")
	r.Log("pl:a", "BUILD SUCCESSFUL")
	r.Succeed("pl:a", "plugins/a.jar")
	r.Fail("pl:b", PhaseResolving, "source unavailable")
	r.Close()

	assert.Equal(t, strings.Join([]string{
		"pl:a: resolving",
		"pl:a: building: gradle build",
		"[pl:a] BUILD SUCCESSFUL",
		"pl:a: done: plugins/a.jar",
		"pl:b: failed (resolving): source unavailable",
		"",
	}, "\n"), buf.String())
}

func TestLineReporter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	r := NewLine(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Update("x", PhaseBuilding, "step")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, strings.Count(buf.String(), "\n"))
}

func TestNew_NonTerminalFallsBackToLines(t *testing.T) {
	var buf bytes.Buffer
	_, ok := New(&buf, true).(*LineReporter)
	assert.True(t, ok)
	assert.False(t, IsTerminal(&buf))
}

func TestLiveReporter_RendersRows(t *testing.T) {
	var buf bytes.Buffer
	r := NewLive(&buf)
	r.Start("world", PhaseResolving, "")
	r.Start("pl:worldedit", PhaseBuilding, "")
	r.Succeed("world", "")
	r.Fail("pl:worldedit", PhaseBuilding, "build failed")
	// Terminal states stick.
	r.Update("pl:worldedit", PhaseDeploying, "")
	r.Close()

	out := buf.String()
	assert.Contains(t, out, "world")
	assert.Contains(t, out, "failed during building")
	assert.Contains(t, out, "build failed")
	assert.NotContains(t, out[strings.LastIndex(out, "\033[J"):], string(PhaseDeploying))
}

func TestLiveReporter_IgnoresEventsAfterClose(t *testing.T) {
	var buf bytes.Buffer
	r := NewLive(&buf)
	r.Close()
	n := buf.Len()
	r.Start("late", PhaseResolving, "")
	r.Log("late", "line")
	r.Close()
	assert.Equal(t, n, buf.Len())
}

func TestDiscard(t *testing.T) {
	Discard.Start("a", PhaseQueued, "")
	Discard.Fail("a", PhaseBuilding, "x")
	Discard.Close()
}

func TestLiveReporter_WriteSharesTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := NewLive(&buf)
	r.Start("pl:a", PhaseResolving, "")
	n, err := r.Write([]byte("level=WARN msg=slow\n"))
	assert.NoError(t, err)
	assert.Equal(t, 20, n)
	r.Close()

	out := buf.String()
	assert.Contains(t, out, "level=WARN msg=slow\n")
	assert.Greater(t, strings.LastIndex(out, "pl:a"), strings.Index(out, "level=WARN"))

	_, _ = r.Write([]byte("after close\n"))
	assert.True(t, strings.HasSuffix(buf.String(), "after close\n"))
}
