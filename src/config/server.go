package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// World containers.
const (
	WorldContainerRoot   = "root"   // worlds live directly in the server root
	WorldContainerWorlds = "worlds" // worlds live in <root>/worlds
)

// datapackMinVersion is the first Minecraft release that loads datapacks.
var datapackMinVersion = semver.MustParse("1.13.0")

// ServerConfig describes the server tree components are deployed into.
type ServerConfig struct {
	Root    string `yaml:"root" toml:"root"`       // server directory (default: server)
	Flavor  string `yaml:"flavor" toml:"flavor"`   // vanilla, paper, fabric, ...
	Version string `yaml:"version" toml:"version"` // Minecraft version, optional
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Root:   "server",
		Flavor: "vanilla",
	}
}

// DeployConfig holds the per-flavor deployment rules.
type DeployConfig struct {
	WorldContainer  string `yaml:"world_container" toml:"world_container"`
	SupportsPlugins bool   `yaml:"supports_plugins" toml:"supports_plugins"`
	SupportsMods    bool   `yaml:"supports_mods" toml:"supports_mods"`

	// SupportsDatapacks is derived from the server version, not configured.
	SupportsDatapacks bool `yaml:"-" toml:"-"`
}

// builtinFlavors are the deploy rules for known server flavors.
var builtinFlavors = map[string]DeployConfig{
	"vanilla":  {WorldContainer: WorldContainerRoot},
	"paper":    {WorldContainer: WorldContainerRoot, SupportsPlugins: true},
	"spigot":   {WorldContainer: WorldContainerRoot, SupportsPlugins: true},
	"bukkit":   {WorldContainer: WorldContainerRoot, SupportsPlugins: true},
	"purpur":   {WorldContainer: WorldContainerRoot, SupportsPlugins: true},
	"folia":    {WorldContainer: WorldContainerRoot, SupportsPlugins: true},
	"fabric":   {WorldContainer: WorldContainerRoot, SupportsMods: true},
	"quilt":    {WorldContainer: WorldContainerRoot, SupportsMods: true},
	"forge":    {WorldContainer: WorldContainerRoot, SupportsMods: true},
	"neoforge": {WorldContainer: WorldContainerRoot, SupportsMods: true},
}

// FlavorNames returns the sorted names of every known flavor, built-in or
// configured.
func (c *Config) FlavorNames() []string {
	seen := map[string]bool{}
	for name := range builtinFlavors {
		seen[name] = true
	}
	for name := range c.Flavors {
		seen[strings.ToLower(name)] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deploy returns the deployment rules for a flavor. Configured flavors take
// precedence over built-ins.
func (c *Config) Deploy(flavor string) (DeployConfig, error) {
	flavor = strings.ToLower(flavor)
	dc, ok := c.Flavors[flavor]
	if !ok {
		dc, ok = builtinFlavors[flavor]
	}
	if !ok {
		return DeployConfig{}, fmt.Errorf("unknown server flavor %q (known: %s)", flavor, strings.Join(c.FlavorNames(), ", "))
	}
	if dc.WorldContainer == "" {
		dc.WorldContainer = WorldContainerRoot
	}
	dc.SupportsDatapacks = supportsDatapacks(c.Server.Version)
	return dc, nil
}

// supportsDatapacks reports whether a Minecraft version loads datapacks.
// Unparseable versions (snapshots like 24w14a) are assumed to.
func supportsDatapacks(version string) bool {
	if version == "" {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	return !v.LessThan(datapackMinVersion)
}
