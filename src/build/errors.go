package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBuildFailed is matched by every error a build returns.
var ErrBuildFailed = errors.New("build failed")

// BuildError describes a failed build invocation.
type BuildError struct {
	Component string
	Engine    string
	// Output is the captured stderr, or the last lines of the streamed log.
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%s build of %s failed", e.Engine, e.Component)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBuildFailed}
	}
	return []error{ErrBuildFailed, e.Err}
}
