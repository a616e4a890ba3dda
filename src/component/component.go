package component

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ID is the stable identity of a component inside the deployment manifest:
// "world" for the world, "<shorthand>:<name>" otherwise.
type ID string

// Component is one deployable unit. The pipeline only reads it.
type Component struct {
	Kind     Kind
	Name     string
	Source   Source // nil when the component has no declared source
	Build    Build  // nil is equivalent to NoBuild
	Artifact Artifact
}

// ID returns the manifest identity of the component.
func (c Component) ID() ID {
	if c.Kind == World {
		return ID("world")
	}
	return ID(c.Kind.Shorthand() + ":" + c.Name)
}

// Label is the name shown in status output and log prefixes.
func (c Component) Label() string {
	return string(c.ID())
}

// StagingDir is where non-world components materialize their raw content,
// relative to the project root: components/<kind>s/<name>.
func (c Component) StagingDir(projectRoot string) string {
	if c.Kind == World {
		return ""
	}
	return filepath.Join(projectRoot, "components", c.Kind.Plural(), c.Name)
}

// BuildSpec returns the build descriptor, defaulting to NoBuild.
func (c Component) BuildSpec() Build {
	if c.Build == nil {
		return NoBuild{}
	}
	return c.Build
}

// ArtifactType returns the declared artifact type or the kind default.
func (c Component) ArtifactType() ArtifactType {
	if c.Artifact.Type != "" {
		return c.Artifact.Type
	}
	return c.Kind.DefaultArtifactType()
}

// ParseID splits "pl:worldedit" style ids. The bare word "world" is the world.
func ParseID(s string) (Kind, string, error) {
	if s == "world" {
		return World, "", nil
	}
	prefix, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("invalid component id %q (expected <kind>:<name> or world)", s)
	}
	kind, err := ParseKind(prefix)
	if err != nil {
		return 0, "", err
	}
	if kind == World {
		return 0, "", fmt.Errorf("invalid component id %q: the world has no name", s)
	}
	return kind, name, nil
}
