package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sofmeright/crtb/src/component"
)

// Validate checks structural invariants of a loaded Config.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	// ── Version ───────────────────────────────────────────────────────────

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("version: must be 1, got %d", cfg.Version))
	}

	// ── Server ────────────────────────────────────────────────────────────

	if cfg.Server.Root == "" {
		errs = append(errs, "server.root: is required")
	}
	if _, derr := cfg.Deploy(cfg.Server.Flavor); derr != nil {
		errs = append(errs, fmt.Sprintf("server.flavor: %v", derr))
	}
	for name, dc := range cfg.Flavors {
		switch dc.WorldContainer {
		case "", WorldContainerRoot, WorldContainerWorlds:
		default:
			errs = append(errs, fmt.Sprintf("flavors.%s.world_container: must be root or worlds, got %q", name, dc.WorldContainer))
		}
	}

	// ── Components ────────────────────────────────────────────────────────

	seen := make(map[component.ID]bool)
	needsRunner := false
	for i, cc := range cfg.Components {
		cpath := fmt.Sprintf("components[%d] (%s)", i, cc.Label())

		c, cerr := cc.ToComponent()
		if cerr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", cpath, cerr))
			continue
		}

		if c.Kind == component.World {
			if cc.Name != "" {
				warnings = append(warnings, fmt.Sprintf("%s: the world is unnamed, name %q is ignored", cpath, cc.Name))
			}
		} else if c.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: name is required", cpath))
			continue
		} else if strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
			errs = append(errs, fmt.Sprintf("%s: name %q must not contain path separators", cpath, c.Name))
			continue
		}

		if seen[c.ID()] {
			if c.Kind == component.World {
				errs = append(errs, fmt.Sprintf("%s: only one world may be declared", cpath))
			} else {
				errs = append(errs, fmt.Sprintf("%s: duplicate %s name %q", cpath, c.Kind, c.Name))
			}
			continue
		}
		seen[c.ID()] = true

		if c.Artifact.Pattern != "" {
			if _, rerr := regexp.Compile(c.Artifact.Pattern); rerr != nil {
				warnings = append(warnings, fmt.Sprintf("%s: artifact.pattern is not a valid regular expression and will be ignored: %v", cpath, rerr))
			}
		}

		switch c.BuildSpec().(type) {
		case component.CustomBuild:
			needsRunner = true
		case component.GradleBuild:
			if cfg.Runner.Image == "" {
				warnings = append(warnings, fmt.Sprintf("%s: no runner.image set, gradle builds need a local toolchain", cpath))
			}
		}
	}

	if needsRunner && cfg.Runner.Image == "" {
		errs = append(errs, "runner.image: is required when a component uses a custom build")
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

// ComponentList converts every configured component. It assumes Validate
// has passed.
func (c *Config) ComponentList() ([]component.Component, error) {
	out := make([]component.Component, 0, len(c.Components))
	for i, cc := range c.Components {
		comp, err := cc.ToComponent()
		if err != nil {
			return nil, fmt.Errorf("components[%d] (%s): %w", i, cc.Label(), err)
		}
		out = append(out, comp)
	}
	return out, nil
}
