// Package config resolves the bridge's store settings from defaults, an
// optional config file, env files, and GREENLOOP_VECTOR_* variables.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend    = "qdrant"
	DefaultAddr       = "localhost:50051"
	DefaultCollection = "greenloop_user_context"
	// DefaultDimension matches the Gemini text embedding size.
	DefaultDimension = 768
	DefaultLogLevel  = "warn"
)

// Config is the complete bridge configuration.
type Config struct {
	Backend    string   `json:"backend" yaml:"backend" envconfig:"BACKEND"`
	Addr       string   `json:"addr" yaml:"addr" envconfig:"ADDR"`
	Collection string   `json:"collection" yaml:"collection" envconfig:"COLLECTION"`
	Dimension  int      `json:"dimension" yaml:"dimension" envconfig:"DIMENSION"`
	Timeout    Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
	LogLevel   string   `json:"logLevel" yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// DefaultConfig returns the built-in store settings.
func DefaultConfig() *Config {
	return &Config{
		Backend:    DefaultBackend,
		Addr:       DefaultAddr,
		Collection: DefaultCollection,
		Dimension:  DefaultDimension,
		LogLevel:   DefaultLogLevel,
	}
}

// Validate rejects settings the bridge cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend) == "" {
		return fmt.Errorf("config: backend is empty")
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("config: collection is empty")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("config: dimension must be positive, got %d", c.Dimension)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// Duration is a time.Duration written as "5s" in files and env vars.
// Zero means no timeout.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	v, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	return d.Decode(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}
