// Package config loads pydefect settings from a TOML or YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultFiles are looked up in the working directory, in order, when no
// config file is named explicitly.
var DefaultFiles = []string{".pydefect.toml", ".pydefect.yaml", ".pydefect.yml"}

// Config holds the settings read from a config file. Zero values mean the
// defaults; Parallel is a pointer so an explicit false can be told apart.
type Config struct {
	Format        string   `toml:"format" yaml:"format"`
	Cache         string   `toml:"cache" yaml:"cache"`
	RulesDir      string   `toml:"rules_dir" yaml:"rules_dir"`
	Parallel      *bool    `toml:"parallel" yaml:"parallel"`
	KeepGoing     bool     `toml:"keep_going" yaml:"keep_going"`
	LexicalScopes bool     `toml:"lexical_scopes" yaml:"lexical_scopes"`
	NoColor       bool     `toml:"no_color" yaml:"no_color"`
	Exclude       []string `toml:"exclude" yaml:"exclude"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path as TOML, or as YAML for .yaml and .yml files, then applies
// defaults and validates the result. Relative cache and rules paths are
// resolved against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
		}
	}

	applyDefaults(&cfg)
	resolvePaths(&cfg, filepath.Dir(path))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Find returns the first of DefaultFiles present in dir, or "".
func Find(dir string) string {
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ParallelEnabled reports whether files are analyzed concurrently. Unset
// means yes.
func (c *Config) ParallelEnabled() bool {
	if c.Parallel == nil {
		return true
	}
	return *c.Parallel
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "text"
	}
}

func resolvePaths(cfg *Config, base string) {
	if cfg.Cache != "" && !filepath.IsAbs(cfg.Cache) {
		cfg.Cache = filepath.Join(base, cfg.Cache)
	}
	if cfg.RulesDir != "" && !filepath.IsAbs(cfg.RulesDir) {
		cfg.RulesDir = filepath.Join(base, cfg.RulesDir)
	}
}

func validate(cfg *Config) error {
	switch cfg.Format {
	case "text", "json", "sarif":
	default:
		return fmt.Errorf("invalid format %q: must be text, json or sarif", cfg.Format)
	}
	for _, pattern := range cfg.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}
