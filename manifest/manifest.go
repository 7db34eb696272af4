// Package manifest handles tale.toml configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/chazu/tale/pkg/bytecode"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "tale.toml"

// Defaults applied to fields left out of tale.toml.
const (
	DefaultMaxSteps      = 1_000_000
	DefaultCacheCapacity = 256
)

// Config represents a tale.toml file.
type Config struct {
	Project  Project        `toml:"project"`
	Engine   EngineConfig   `toml:"engine"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	Bindings map[string]any `toml:"bindings"`

	// Dir is the directory containing tale.toml (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// EngineConfig configures compilation and execution.
type EngineConfig struct {
	// Typecheck runs the static checker before a script is accepted.
	Typecheck *bool `toml:"typecheck"`
	// MaxSteps bounds the instructions one instance may execute over its
	// lifetime; 0 means the default, negative means unlimited.
	MaxSteps int `toml:"max-steps"`
}

// CacheConfig configures the compile cache.
type CacheConfig struct {
	Capacity int    `toml:"capacity"`
	Store    string `toml:"store"` // sqlite path; empty disables persistence
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no tale.toml exists.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load parses tale.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the given configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()
	if _, err := c.InitialBindings(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a tale.toml file, then loads
// it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Engine.Typecheck == nil {
		on := true
		c.Engine.Typecheck = &on
	}
	if c.Engine.MaxSteps == 0 {
		c.Engine.MaxSteps = DefaultMaxSteps
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
}

// TypecheckEnabled reports whether the static checker gates compilation.
func (c *Config) TypecheckEnabled() bool {
	return c.Engine.Typecheck == nil || *c.Engine.Typecheck
}

// StorePath returns the absolute sqlite path, or "" when persistence is off.
func (c *Config) StorePath() string {
	return c.resolve(c.Cache.Store)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (c *Config) LogPath() string {
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// InitialBindings converts the [bindings] table into script values. Only
// scalars are allowed.
func (c *Config) InitialBindings() (map[string]bytecode.Value, error) {
	names := make([]string, 0, len(c.Bindings))
	for name := range c.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]bytecode.Value, len(names))
	for _, name := range names {
		switch v := c.Bindings[name].(type) {
		case int64, float64, string, bool:
			out[name] = bytecode.ValueOf(v)
		default:
			return nil, fmt.Errorf("binding %q: unsupported value type %T", name, v)
		}
	}
	return out, nil
}
