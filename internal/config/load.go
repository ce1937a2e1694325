package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	// Explicit path takes priority over the standard locations
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, errors.Wrapf(err, "loading config from %s", configPath)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	l := c.Loader
	if l.MinFrameRate <= 0 || l.MaxFrameRate <= 0 {
		return errors.Errorf("loader: frame rates must be positive (min %v, max %v)", l.MinFrameRate, l.MaxFrameRate)
	}
	if l.MinFrameRate > l.MaxFrameRate {
		return errors.Errorf("loader: min_frame_rate %v exceeds max_frame_rate %v", l.MinFrameRate, l.MaxFrameRate)
	}
	if l.Tolerance <= 0 {
		return errors.Errorf("loader: tolerance must be positive, got %v", l.Tolerance)
	}
	if c.Batch.Workers < 1 {
		return errors.Errorf("batch: workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./shapec.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MidgardShape")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MidgardShape")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "midgard-shape")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "midgard-shape")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrap(yaml.Unmarshal(data, cfg), "parsing yaml")
}
