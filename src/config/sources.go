package config

import (
	"fmt"
	"strings"

	"github.com/sofmeright/crtb/src/component"
)

// SourceConfig defines where a component's raw content comes from.
//
// This is a discriminated union keyed by Type: only fields relevant to the
// type may be set.
type SourceConfig struct {
	Type string `yaml:"type" toml:"type"` // local, http, git

	// ── type: local ──
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`

	// ── type: http, git ──
	URL string `yaml:"url,omitempty" toml:"url,omitempty"`

	// ── type: git ──
	Branch string `yaml:"branch,omitempty" toml:"branch,omitempty"`
	Commit string `yaml:"commit,omitempty" toml:"commit,omitempty"`
}

func (s SourceConfig) toSource() (component.Source, error) {
	switch strings.ToLower(s.Type) {
	case "local":
		if s.Path == "" {
			return nil, fmt.Errorf("type local requires path")
		}
		if s.URL != "" || s.Branch != "" || s.Commit != "" {
			return nil, fmt.Errorf("type local only accepts path")
		}
		return component.LocalSource{Path: s.Path}, nil
	case "http", "https":
		if s.URL == "" {
			return nil, fmt.Errorf("type http requires url")
		}
		if s.Path != "" || s.Branch != "" || s.Commit != "" {
			return nil, fmt.Errorf("type http only accepts url")
		}
		return component.HTTPSource{URL: s.URL}, nil
	case "git":
		if s.URL == "" {
			return nil, fmt.Errorf("type git requires url")
		}
		if s.Path != "" {
			return nil, fmt.Errorf("type git does not accept path")
		}
		return component.GitSource{URL: s.URL, Branch: s.Branch, Commit: s.Commit}, nil
	case "":
		return nil, fmt.Errorf("type is required (local, http, git)")
	default:
		return nil, fmt.Errorf("unknown source type %q (supported: local, http, git)", s.Type)
	}
}
