package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envFileDefault = ".env"
	envFileVar     = "TRANSCRIBER_ENV_FILE"
	configFileVar  = "TRANSCRIBER_CONFIG"
)

// LoadEnvFiles loads variables from ./.env and from the file named by
// TRANSCRIBER_ENV_FILE. Variables already set in the environment win.
func LoadEnvFiles() error {
	if err := godotenv.Load(envFileDefault); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFileDefault, err)
	}

	if path := os.Getenv(envFileVar); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return nil
}

// ConfigFile returns the path of the YAML config file, if any. The flag value
// takes precedence over TRANSCRIBER_CONFIG.
func ConfigFile(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(configFileVar)
}

// LoadFile reads a flat YAML document into a map suitable for FromMap.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return m, nil
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok {
		*dst = v
	}
}

// Numbers can either be int or float64 depending on whether they've been
// previously marshaled or not.
func setInt(m map[string]any, key string, dst *int) {
	switch v := m[key].(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		*dst = int(v)
	}
}

func setFloat(m map[string]any, key string, dst *float64) {
	switch v := m[key].(type) {
	case int:
		*dst = float64(v)
	case float64:
		*dst = v
	}
}

func setBool(m map[string]any, key string, dst *bool) {
	if v, ok := m[key].(bool); ok {
		*dst = v
	}
}

func setDuration(m map[string]any, key string, dst *time.Duration) {
	switch v := m[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	case time.Duration:
		*dst = v
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	*dst = f
	return nil
}

func envBool(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	*dst = b
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	*dst = d
	return nil
}
