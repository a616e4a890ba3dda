package config

import (
	"fmt"
	"strings"

	"github.com/sofmeright/crtb/src/component"
)

// BuildConfig defines how a component is built.
//
// This is a discriminated union keyed by Type: only fields relevant to the
// type may be set.
type BuildConfig struct {
	// Type is the build engine: none, gradle, custom.
	Type string `yaml:"type" toml:"type"`

	// ── type: gradle ──

	// Task is the Gradle task to run. Default: build.
	Task string `yaml:"task,omitempty" toml:"task,omitempty"`

	// ── type: custom ──

	// Command runs through sh -c inside the runner container.
	Command string `yaml:"command,omitempty" toml:"command,omitempty"`

	// Workdir is relative to the component directory unless absolute.
	Workdir string `yaml:"workdir,omitempty" toml:"workdir,omitempty"`

	// ── type: gradle, custom ──

	// Output is the build output directory, relative to the working directory
	// unless absolute.
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`
}

func (b BuildConfig) toBuild() (component.Build, error) {
	switch strings.ToLower(b.Type) {
	case "", "none":
		if b.Task != "" || b.Command != "" || b.Workdir != "" || b.Output != "" {
			return nil, fmt.Errorf("type none takes no options")
		}
		return component.NoBuild{}, nil
	case "gradle":
		if b.Command != "" || b.Workdir != "" {
			return nil, fmt.Errorf("type gradle does not accept command or workdir")
		}
		return component.GradleBuild{Task: b.Task, Output: b.Output}, nil
	case "custom":
		if b.Command == "" {
			return nil, fmt.Errorf("type custom requires command")
		}
		if b.Task != "" {
			return nil, fmt.Errorf("type custom does not accept task")
		}
		return component.CustomBuild{Command: b.Command, Workdir: b.Workdir, Output: b.Output}, nil
	default:
		return nil, fmt.Errorf("unknown build type %q (supported: none, gradle, custom)", b.Type)
	}
}
