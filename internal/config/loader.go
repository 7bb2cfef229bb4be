// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with the precedence ENV > file > defaults.
type Loader struct {
	path string // optional YAML file
}

// NewLoader creates a loader; path may be empty.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load produces a validated configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg = mergeEnv(cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
