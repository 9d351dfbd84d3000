// Package config loads the optional YAML file that supplies defaults for
// command-line flags.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds flag defaults. Zero values mean "use the built-in default".
type Config struct {
	Metric   string   `yaml:"metric,omitempty"`
	Sort     string   `yaml:"sort,omitempty"`
	Asc      bool     `yaml:"asc,omitempty"`
	Reversed bool     `yaml:"reversed,omitempty"`
	Mean     bool     `yaml:"mean,omitempty"`
	Samples  bool     `yaml:"samples,omitempty"`
	Fqn      bool     `yaml:"fqn,omitempty"`
	Depth    int      `yaml:"depth,omitempty"`
	MinPct   *float64 `yaml:"min_pct,omitempty"`
	Top      int      `yaml:"top,omitempty"`
	Derive   []string `yaml:"derive,omitempty"`
}

// Default returns the values written by "pp-query init".
func Default() Config {
	minPct := 1.0
	return Config{
		Sort:   "incl",
		Depth:  4,
		MinPct: &minPct,
		Top:    10,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/pp-query/config.yaml or its platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config directory")
	}
	return filepath.Join(dir, "pp-query", "config.yaml"), nil
}

// Load reads path. A missing file yields an empty Config and no error
// unless mustExist is set.
func Load(path string, mustExist bool) (Config, error) {
	var cfg Config
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Write stores cfg at path, creating parent directories. An existing file
// is only replaced when force is set.
func Write(path string, cfg Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("%s already exists (use --force to overwrite)", path)
	}
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return errors.Wrap(os.WriteFile(path, buf, 0o644), "write config")
}
