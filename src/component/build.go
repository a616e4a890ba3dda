package component

// Build describes how raw content becomes build output. Exactly one of
// NoBuild, GradleBuild or CustomBuild.
type Build interface {
	// Type is the build engine name.
	Type() string
}

// NoBuild deploys the resolved content as-is.
type NoBuild struct{}

// GradleBuild runs a Gradle task. Task defaults to "build".
type GradleBuild struct {
	Task   string
	Output string
}

// CustomBuild runs an arbitrary shell command inside the runner container.
type CustomBuild struct {
	Command string
	Workdir string
	Output  string
}

func (NoBuild) Type() string     { return "none" }
func (GradleBuild) Type() string { return "gradle" }
func (CustomBuild) Type() string { return "custom" }
