package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// EnvFileVar names an env file read before the default locations.
	EnvFileVar = "GREENLOOP_ENV_FILE"

	// envFilePrefix limits env files to the bridge's own variables, so a
	// shared dotfile cannot change unrelated process settings.
	envFilePrefix = "GREENLOOP_"
)

type envVar struct {
	key   string
	value string
}

// envFilePaths returns the explicit env file, if any, and the optional
// default locations in precedence order.
func envFilePaths() (explicit string, optional []string, err error) {
	if p := strings.TrimSpace(os.Getenv(EnvFileVar)); p != "" {
		if explicit, err = expandHome(p); err != nil {
			return "", nil, err
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		optional = []string{
			filepath.Join(home, ".config", "greenloop", "env"),
			filepath.Join(home, ConfigDir, "env"),
		}
	}
	return explicit, optional, nil
}

// applyEnvFiles exports GREENLOOP_* assignments found in env files. The
// process environment always wins, then earlier files over later ones. A
// missing explicit file is an error; missing default files are not.
func applyEnvFiles() error {
	explicit, optional, err := envFilePaths()
	if err != nil {
		return fmt.Errorf("config: env file: %w", err)
	}
	if explicit != "" {
		if err := applyEnvFile(explicit); err != nil {
			return err
		}
	}
	for _, p := range optional {
		if p == explicit {
			continue
		}
		if err := applyEnvFile(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func applyEnvFile(path string) error {
	vars, err := readEnvFile(path)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if _, set := os.LookupEnv(v.key); set {
			continue
		}
		if err := os.Setenv(v.key, v.value); err != nil {
			return fmt.Errorf("config: %s: set %s: %w", path, v.key, err)
		}
	}
	return nil
}

// readEnvFile parses KEY=VALUE lines, optionally prefixed with "export".
// Keys outside GREENLOOP_* are ignored. Lines that are not assignments are
// reported with their position.
func readEnvFile(path string) ([]envVar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %s: %w", path, err)
		}
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}

	var vars []envVar
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("config: %s:%d: expected KEY=VALUE", path, n+1)
		}
		if !strings.HasPrefix(key, envFilePrefix) {
			continue
		}
		value, err := unquoteEnvValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("config: %s:%d: %s: %w", path, n+1, key, err)
		}
		vars = append(vars, envVar{key: key, value: value})
	}
	return vars, nil
}

// unquoteEnvValue strips matching quotes. Double-quoted values follow Go
// escape rules; single-quoted values are literal.
func unquoteEnvValue(v string) (string, error) {
	if len(v) < 2 {
		return v, nil
	}
	switch {
	case v[0] == '"' && v[len(v)-1] == '"':
		return strconv.Unquote(v)
	case v[0] == '\'' && v[len(v)-1] == '\'':
		return v[1 : len(v)-1], nil
	}
	return v, nil
}
