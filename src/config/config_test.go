package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/crtb/src/component"
)

// isolateUserConfig points the XDG config lookup at an empty directory.
func isolateUserConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(dir, "none"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const projectYAML = `version: 1
server:
  root: srv
  flavor: paper
  version: "1.21.1"
runner:
  image: ghcr.io/example/runner:21
timeouts:
  resolve: 5m
components:
  - kind: world
    source: { type: git, url: https://example.com/world.git, branch: main }
  - kind: plugin
    name: worldedit
    source: { type: http, url: https://example.com/worldedit.jar }
  - kind: plugin
    name: myplugin
    source: { type: git, url: https://example.com/myplugin.git }
    build: { type: gradle, task: shadowJar, output: build/libs }
    artifact: { type: jar, pattern: '-all\.jar$' }
  - kind: dp
    name: terralith
    source: { type: local, path: packs/terralith }
    build: { type: custom, command: make, workdir: src, output: dist }
    artifact: { unzip: true }
`

func TestLoad_YAML(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "crtb.yml", projectYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "srv"), cfg.ServerRoot())
	assert.Equal(t, filepath.Join(dir, ".crtb", "cache"), cfg.CacheRoot())
	assert.Equal(t, "docker", cfg.Runner.Engine)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.ResolveDeadline())
	assert.Equal(t, 60*time.Second, cfg.Timeouts.ResolveNoticeAfter())
	assert.Equal(t, 120*time.Second, cfg.Timeouts.HTTPTimeout())

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	comps, err := cfg.ComponentList()
	require.NoError(t, err)
	require.Len(t, comps, 4)
	assert.Equal(t, component.ID("world"), comps[0].ID())
	assert.Equal(t, component.GitSource{URL: "https://example.com/world.git", Branch: "main"}, comps[0].Source)
	assert.Equal(t, component.HTTPSource{URL: "https://example.com/worldedit.jar"}, comps[1].Source)
	assert.Equal(t, component.GradleBuild{Task: "shadowJar", Output: "build/libs"}, comps[2].Build)
	assert.Equal(t, `-all\.jar$`, comps[2].Artifact.Pattern)
	assert.Equal(t, component.Datapack, comps[3].Kind)
	assert.Equal(t, component.CustomBuild{Command: "make", Workdir: "src", Output: "dist"}, comps[3].Build)
	assert.True(t, comps[3].Artifact.Unzip)
}

func TestLoad_TOML(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "crtb.toml", `
version = 1
cache_dir = "/var/cache/crtb"

[server]
flavor = "fabric"

[[components]]
kind = "mod"
name = "sodium"
[components.source]
type = "http"
url = "https://example.com/sodium.jar"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fabric", cfg.Server.Flavor)
	assert.Equal(t, "server", cfg.Server.Root)
	assert.Equal(t, "/var/cache/crtb", cfg.CacheRoot())
	require.Len(t, cfg.Components, 1)

	_, err = Validate(cfg)
	require.NoError(t, err)
}

func TestLoad_UserDefaultsApplyFirst(t *testing.T) {
	home := isolateUserConfig(t)
	writeConfig(t, home, "crtb/config.yml", `
runner:
  image: ghcr.io/example/user-runner
  engine: podman
components:
  - kind: plugin
    name: from-user-file
`)
	dir := t.TempDir()
	path := writeConfig(t, dir, "crtb.yml", "version: 1\nrunner:\n  image: ghcr.io/example/project-runner\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/example/project-runner", cfg.Runner.Image)
	assert.Equal(t, "podman", cfg.Runner.Engine)
	assert.Empty(t, cfg.Components, "components are project scoped")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateUserConfig(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	isolateUserConfig(t)
	path := writeConfig(t, t.TempDir(), "crtb.yml", "server: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing")
}

func validConfig() *Config {
	cfg := defaults()
	cfg.Root = "/project"
	return cfg
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad version", func(c *Config) { c.Version = 2 }, "version: must be 1"},
		{"unknown flavor", func(c *Config) { c.Server.Flavor = "bedrock" }, "unknown server flavor"},
		{"bad world container", func(c *Config) {
			c.Flavors = map[string]DeployConfig{"custom": {WorldContainer: "elsewhere"}}
		}, "world_container"},
		{"unknown kind", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "shader", Name: "x"}}
		}, "unknown component kind"},
		{"missing name", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin"}}
		}, "name is required"},
		{"path in name", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin", Name: "../x"}}
		}, "path separators"},
		{"duplicate", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin", Name: "a"}, {Kind: "pl", Name: "a"}}
		}, "duplicate plugin name"},
		{"two worlds", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "world"}, {Kind: "world"}}
		}, "only one world"},
		{"mixed source", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin", Name: "a", Source: &SourceConfig{Type: "local", Path: "x", URL: "http://y"}}}
		}, "type local only accepts path"},
		{"custom without image", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin", Name: "a", Build: &BuildConfig{Type: "custom", Command: "make"}}}
		}, "runner.image: is required"},
		{"bad artifact type", func(c *Config) {
			c.Components = []ComponentConfig{{Kind: "plugin", Name: "a", Artifact: ArtifactConfig{Type: "tarball"}}}
		}, "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := validConfig()
	cfg.Components = []ComponentConfig{
		{Kind: "world", Name: "ignored"},
		{Kind: "plugin", Name: "a", Artifact: ArtifactConfig{Pattern: "(["}},
		{Kind: "mod", Name: "b", Build: &BuildConfig{Type: "gradle"}},
	}
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	assert.Len(t, warnings, 3)
}

func TestDeploy_Flavors(t *testing.T) {
	cfg := validConfig()

	dc, err := cfg.Deploy("Paper")
	require.NoError(t, err)
	assert.True(t, dc.SupportsPlugins)
	assert.False(t, dc.SupportsMods)
	assert.True(t, dc.SupportsDatapacks)
	assert.Equal(t, WorldContainerRoot, dc.WorldContainer)

	dc, err = cfg.Deploy("neoforge")
	require.NoError(t, err)
	assert.True(t, dc.SupportsMods)

	cfg.Flavors = map[string]DeployConfig{"paper": {WorldContainer: WorldContainerWorlds}}
	dc, err = cfg.Deploy("paper")
	require.NoError(t, err)
	assert.Equal(t, WorldContainerWorlds, dc.WorldContainer)
	assert.False(t, dc.SupportsPlugins)
	assert.Contains(t, cfg.FlavorNames(), "vanilla")
}

func TestDeploy_DatapackVersionGate(t *testing.T) {
	cfg := validConfig()
	for version, want := range map[string]bool{
		"":       true,
		"1.12.2": false,
		"1.13":   true,
		"1.20.4": true,
		"24w14a": true,
		"1.8":    false,
	} {
		cfg.Server.Version = version
		dc, err := cfg.Deploy("vanilla")
		require.NoError(t, err)
		assert.Equal(t, want, dc.SupportsDatapacks, "version %q", version)
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseDuration("0", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("-5s", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}
