// Package output renders human and CI-facing reports of a deploy batch.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

// BatchSummaryLine returns a one-line batch summary, optionally colored.
func BatchSummaryLine(total, succeeded, cached, failed int, color bool) string {
	parts := []string{}
	if deployed := succeeded - cached; deployed > 0 {
		parts = append(parts, colorize(fmt.Sprintf("%d deployed", deployed), colorGreen, color))
	}
	if cached > 0 {
		parts = append(parts, fmt.Sprintf("%d up to date", cached))
	}
	if failed > 0 {
		parts = append(parts, colorize(fmt.Sprintf("%d failed", failed), colorRed, color))
	}

	summary := "nothing to do"
	if len(parts) > 0 {
		summary = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s components: %s", colorize(fmt.Sprint(total), colorBold, color), summary)
}

func colorize(text, code string, color bool) string {
	if !color {
		return text
	}
	return code + text + colorReset
}
