package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a loaded config fails validation.
var ErrInvalid = errors.New("invalid config")

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	// Explicit path takes priority
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the renderer cannot recover from.
func (c *Config) Validate() error {
	lm := c.Lightmap
	if lm.BlockWidth <= 0 || lm.BlockHeight <= 0 {
		return fmt.Errorf("%w: lightmap block must be positive, got %dx%d", ErrInvalid, lm.BlockWidth, lm.BlockHeight)
	}
	if lm.ShelfHeight <= 0 || lm.BlockHeight%lm.ShelfHeight != 0 {
		return fmt.Errorf("%w: shelf height %d must divide block height %d", ErrInvalid, lm.ShelfHeight, lm.BlockHeight)
	}
	if lm.MaxPages <= 0 {
		return fmt.Errorf("%w: lightmap max_pages must be positive", ErrInvalid)
	}
	if c.Tasks.MaxTasks <= 0 {
		return fmt.Errorf("%w: tasks.max_tasks must be positive", ErrInvalid)
	}
	if c.Tasks.WorldContexts <= 0 || c.Tasks.EntityContexts <= 0 {
		return fmt.Errorf("%w: world_contexts and entity_contexts must be positive", ErrInvalid)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./rtquake.yaml",
		filepath.Join(ConfigDir(), "rtquake.yaml"),
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
		return filepath.Join(home, "Library", "Application Support", "RTQuake")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "RTQuake")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "rtquake")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "rtquake")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
