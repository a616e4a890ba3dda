package output

import (
	"io"
	"strings"

	"github.com/sofmeright/crtb/src/deploy"
)

// outcomeStatus maps an outcome to a StatusIcon status.
func outcomeStatus(o deploy.Outcome) string {
	switch {
	case !o.Success:
		return StatusFailed
	case o.Cached:
		return StatusCached
	default:
		return StatusSuccess
	}
}

// DeploySummary renders one row per component followed by failure details
// and the batch totals.
func DeploySummary(w io.Writer, batch deploy.Batch, color bool) {
	sec := NewSection(w, "Deploy", batch.Duration, color)

	width := 12
	for _, o := range batch.Outcomes {
		if len(o.Name) > width {
			width = len(o.Name)
		}
	}

	for _, o := range batch.Outcomes {
		detail := o.Message
		if !o.Success && o.Phase != "" {
			detail += Dimmed(" ("+string(o.Phase)+")", color)
		}
		sec.Row("%-*s %s  %-24s %s", width, o.Name, StatusIcon(outcomeStatus(o), color),
			detail, Dimmed(formatElapsed(o.Duration), color))
	}

	if failures := batch.Failures(); len(failures) > 0 {
		sec.Separator()
		for _, o := range failures {
			sec.Row("%s: %s", o.Name, o.Message)
			if o.Err == nil {
				continue
			}
			for _, line := range strings.Split(strings.TrimSpace(o.Err.Error()), "\n") {
				sec.Row("  %s", Dimmed(line, color))
			}
		}
	}

	sec.Separator()
	sec.Row("%s", BatchSummaryLine(len(batch.Outcomes), batch.Succeeded(), batch.Cached(), batch.Failed(), color))
	sec.Close()
}
