package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".greenloop"
	// ConfigFile is the default config file name.
	ConfigFile = "vectorbridge.json"
	// EnvPrefix prefixes every override variable, e.g. GREENLOOP_VECTOR_ADDR.
	EnvPrefix = "GREENLOOP_VECTOR"
)

// ConfigPath returns the config file to read. An explicit
// GREENLOOP_VECTOR_CONFIG wins; otherwise the first existing of
// ~/.greenloop/vectorbridge.{json,yaml,yml}, defaulting to the .json name.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("GREENLOOP_VECTOR_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ConfigDir)
	for _, name := range []string{ConfigFile, "vectorbridge.yaml", "vectorbridge.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, ConfigFile), nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// Load builds the effective configuration: defaults, then the config file if
// present, then environment overrides. The result is validated.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := applyEnvFiles(); err != nil {
		return nil, err
	}

	path, err := ConfigPath()
	if err == nil {
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return nil
}
