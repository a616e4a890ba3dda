// Package component defines the deployable units of a crtb project: a world,
// datapacks, plugins, resource packs and mods, together with where their
// content comes from, how it is built, and which build output is deployed.
package component

import "fmt"

// Kind is the closed set of component kinds.
type Kind int

const (
	World Kind = iota
	Datapack
	Plugin
	Resourcepack
	Mod
)

// Kinds lists every kind in display order.
var Kinds = []Kind{World, Datapack, Plugin, Resourcepack, Mod}

// String returns the config spelling of the kind.
func (k Kind) String() string {
	switch k {
	case World:
		return "world"
	case Datapack:
		return "datapack"
	case Plugin:
		return "plugin"
	case Resourcepack:
		return "resourcepack"
	case Mod:
		return "mod"
	}
	panic(fmt.Sprintf("component: unknown kind %d", int(k)))
}

// Shorthand is the prefix used in component ids (pl:worldedit).
func (k Kind) Shorthand() string {
	switch k {
	case World:
		return "world"
	case Datapack:
		return "dp"
	case Plugin:
		return "pl"
	case Resourcepack:
		return "rp"
	case Mod:
		return "mod"
	}
	panic(fmt.Sprintf("component: unknown kind %d", int(k)))
}

// Plural is the directory name used for staging (components/plugins/...).
func (k Kind) Plural() string {
	return k.String() + "s"
}

// DefaultArtifactType is the artifact type used when a component does not
// declare one.
func (k Kind) DefaultArtifactType() ArtifactType {
	switch k {
	case Plugin, Mod:
		return ArtifactJar
	case World, Datapack, Resourcepack:
		return ArtifactDir
	}
	panic(fmt.Sprintf("component: unknown kind %d", int(k)))
}

// ParseKind accepts the singular, plural or shorthand spelling of a kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == k.String() || s == k.Plural() || s == k.Shorthand() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown component kind %q (supported: world, datapack, plugin, resourcepack, mod)", s)
}
