package config

import (
	"fmt"
	"strings"

	"github.com/sofmeright/crtb/src/component"
)

// ComponentConfig is one entry of the components list.
type ComponentConfig struct {
	Kind     string         `yaml:"kind" toml:"kind"`
	Name     string         `yaml:"name" toml:"name"`
	Source   *SourceConfig  `yaml:"source,omitempty" toml:"source,omitempty"`
	Build    *BuildConfig   `yaml:"build,omitempty" toml:"build,omitempty"`
	Artifact ArtifactConfig `yaml:"artifact,omitempty" toml:"artifact,omitempty"`
}

// ArtifactConfig selects the deployable from build output.
type ArtifactConfig struct {
	Type    string `yaml:"type,omitempty" toml:"type,omitempty"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
	Pattern string `yaml:"pattern,omitempty" toml:"pattern,omitempty"`
	Unzip   bool   `yaml:"unzip,omitempty" toml:"unzip,omitempty"`
}

// ToComponent converts the raw descriptor into a component. It fails when
// the kind is unknown or a union has more than one variant set.
func (cc ComponentConfig) ToComponent() (component.Component, error) {
	kind, err := component.ParseKind(strings.ToLower(cc.Kind))
	if err != nil {
		return component.Component{}, err
	}

	c := component.Component{
		Kind: kind,
		Name: cc.Name,
		Artifact: component.Artifact{
			Type:    component.ArtifactType(strings.ToLower(cc.Artifact.Type)),
			Path:    cc.Artifact.Path,
			Pattern: cc.Artifact.Pattern,
			Unzip:   cc.Artifact.Unzip,
		},
	}
	if kind == component.World {
		c.Name = ""
	}
	if !c.Artifact.Type.Valid() {
		return component.Component{}, fmt.Errorf("artifact: unknown type %q (supported: raw, dir, file, jar, zip)", cc.Artifact.Type)
	}

	if cc.Source != nil {
		src, err := cc.Source.toSource()
		if err != nil {
			return component.Component{}, fmt.Errorf("source: %w", err)
		}
		c.Source = src
	}

	if cc.Build != nil {
		b, err := cc.Build.toBuild()
		if err != nil {
			return component.Component{}, fmt.Errorf("build: %w", err)
		}
		c.Build = b
	}

	return c, nil
}

// Label identifies the entry in error messages before it is converted.
func (cc ComponentConfig) Label() string {
	if strings.EqualFold(cc.Kind, "world") {
		return "world"
	}
	if cc.Name == "" {
		return cc.Kind
	}
	return cc.Kind + ":" + cc.Name
}
