package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// defaultConfigFiles are tried in order when no path is given.
var defaultConfigFiles = []string{"crtb.yml", "crtb.yaml", "crtb.toml"}

// userConfigFile is looked up under $XDG_CONFIG_HOME (and the XDG config
// dirs) and applied before the project file.
const userConfigFile = "crtb/config.yml"

// Config is the top-level crtb project configuration.
type Config struct {
	Version    int                     `yaml:"version" toml:"version"`
	Server     ServerConfig            `yaml:"server" toml:"server"`
	Runner     RunnerConfig            `yaml:"runner" toml:"runner"`
	CacheDir   string                  `yaml:"cache_dir" toml:"cache_dir"`
	Timeouts   TimeoutsConfig          `yaml:"timeouts" toml:"timeouts"`
	Flavors    map[string]DeployConfig `yaml:"flavors" toml:"flavors"`
	Components []ComponentConfig       `yaml:"components" toml:"components"`

	// Root is the project directory: the directory holding the config file,
	// or the working directory when no file exists.
	Root string `yaml:"-" toml:"-"`
	// Path is the project file that was loaded, empty when defaults are used.
	Path string `yaml:"-" toml:"-"`
}

// RunnerConfig selects the container used for gradle fallbacks and custom
// build commands.
type RunnerConfig struct {
	Image  string `yaml:"image" toml:"image"`   // container image reference
	Engine string `yaml:"engine" toml:"engine"` // container CLI (default: docker)
}

// TimeoutsConfig holds Go duration strings ("60s", "10m").
type TimeoutsConfig struct {
	// ResolveNotice is when a slow source resolution starts reporting that it
	// is still running. Status text only.
	ResolveNotice string `yaml:"resolve_notice" toml:"resolve_notice"`
	// Resolve cancels source resolution outright. "0" disables the deadline.
	Resolve string `yaml:"resolve" toml:"resolve"`
	// HTTP bounds a single download request.
	HTTP string `yaml:"http" toml:"http"`
}

// DefaultRunnerConfig returns the runner defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Engine: "docker"}
}

// DefaultTimeoutsConfig returns the timeout defaults.
func DefaultTimeoutsConfig() TimeoutsConfig {
	return TimeoutsConfig{
		ResolveNotice: "60s",
		Resolve:       "10m",
		HTTP:          "120s",
	}
}

// ResolveNoticeAfter parses ResolveNotice, falling back to 60s.
func (t TimeoutsConfig) ResolveNoticeAfter() time.Duration {
	return parseDuration(t.ResolveNotice, 60*time.Second)
}

// ResolveDeadline parses Resolve, falling back to 10m. Zero means none.
func (t TimeoutsConfig) ResolveDeadline() time.Duration {
	return parseDuration(t.Resolve, 10*time.Minute)
}

// HTTPTimeout parses HTTP, falling back to 120s.
func (t TimeoutsConfig) HTTPTimeout() time.Duration {
	return parseDuration(t.HTTP, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Load reads configuration from a YAML or TOML file.
// If path is empty, it tries the default files in the working directory.
// Returns sensible defaults if no file exists.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if userPath, err := xdg.SearchConfigFile(userConfigFile); err == nil {
		if err := decodeFile(userPath, cfg); err != nil {
			return nil, fmt.Errorf("user config %s: %w", userPath, err)
		}
		// Components and version are project-scoped.
		cfg.Components = nil
		cfg.Version = 1
	}

	explicit := path != ""
	if !explicit {
		path = findDefault()
	}

	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		cfg.Root = wd
		return cfg, nil
	}

	if err := decodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)
	return cfg, nil
}

// decodeFile unmarshals path onto cfg, picking the format by extension.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

func findDefault() string {
	for _, name := range defaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func defaults() *Config {
	return &Config{
		Version:  1,
		Server:   DefaultServerConfig(),
		Runner:   DefaultRunnerConfig(),
		Timeouts: DefaultTimeoutsConfig(),
	}
}

// ServerRoot returns the absolute server directory.
func (c *Config) ServerRoot() string {
	return c.abs(c.Server.Root)
}

// CacheRoot returns the absolute cache directory (default: .crtb/cache).
func (c *Config) CacheRoot() string {
	if c.CacheDir == "" {
		return filepath.Join(c.Root, ".crtb", "cache")
	}
	return c.abs(c.CacheDir)
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}
