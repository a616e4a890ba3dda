package deploy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/config"
	"github.com/sofmeright/crtb/src/fsutil"
)

// DefaultLevelName is the world folder used when server.properties does
// not name one.
const DefaultLevelName = "world"

// ServerProperties is the server's own configuration file.
const ServerProperties = "server.properties"

// LevelName reads level-name from the server's server.properties. A server
// without the file uses DefaultLevelName.
func LevelName(serverRoot string) (string, error) {
	file := filepath.Join(serverRoot, ServerProperties)
	if !fsutil.Exists(file) {
		return DefaultLevelName, nil
	}
	loader := &properties.Loader{Encoding: properties.UTF8}
	p, err := loader.LoadFile(file)
	if err != nil {
		return DefaultLevelName, err
	}
	name := strings.TrimSpace(p.GetString("level-name", DefaultLevelName))
	if name == "" {
		return DefaultLevelName, nil
	}
	return name, nil
}

// Layout maps component kinds to directories of one server tree.
type Layout struct {
	Root  string
	Rules config.DeployConfig
	// LevelName is the active world folder name.
	LevelName string
}

// WorldDir is the active world folder.
func (l Layout) WorldDir() string {
	level := l.LevelName
	if level == "" {
		level = DefaultLevelName
	}
	if l.Rules.WorldContainer == config.WorldContainerWorlds {
		return filepath.Join(l.Root, "worlds", level)
	}
	return filepath.Join(l.Root, level)
}

// Dir is the directory artifacts of kind k are deployed into. For the world
// it is the world folder itself.
func (l Layout) Dir(k component.Kind) string {
	switch k {
	case component.World:
		return l.WorldDir()
	case component.Datapack:
		return filepath.Join(l.WorldDir(), "datapacks")
	case component.Resourcepack:
		return filepath.Join(l.Root, "resourcepacks")
	case component.Plugin:
		return filepath.Join(l.Root, "plugins")
	case component.Mod:
		return filepath.Join(l.Root, "mods")
	default:
		panic(fmt.Sprintf("deploy: unhandled kind %d", int(k)))
	}
}

// IsKindDir reports whether p is the world folder or one of the directories
// components are deployed into.
func (l Layout) IsKindDir(p string) bool {
	for _, k := range component.Kinds {
		if fsutil.SamePath(p, l.Dir(k)) {
			return true
		}
	}
	return false
}

// Supports reports whether the flavor accepts components of kind k.
func (l Layout) Supports(k component.Kind) bool {
	switch k {
	case component.World, component.Resourcepack:
		return true
	case component.Datapack:
		return l.Rules.SupportsDatapacks
	case component.Plugin:
		return l.Rules.SupportsPlugins
	case component.Mod:
		return l.Rules.SupportsMods
	default:
		panic(fmt.Sprintf("deploy: unhandled kind %d", int(k)))
	}
}
