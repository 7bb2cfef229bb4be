// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Backend selects the remote entity backend implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendSQLite Backend = "sqlite"
)

// Config is the full daemon configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Backend    Backend `yaml:"backend"`
	RedisAddr  string  `yaml:"redis_addr"`
	RedisDB    int     `yaml:"redis_db"`
	SQLitePath string  `yaml:"sqlite_path"`

	FlagsFile string `yaml:"flags_file"`

	// AuthoritativeNormalized selects the read path of the dual-write
	// mirror during the array-state migration.
	AuthoritativeNormalized bool `yaml:"authoritative_normalized"`

	DebounceWindow     time.Duration `yaml:"debounce_window"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	RegistryMaxEntries int           `yaml:"registry_max_entries"`
	LockTimeout        time.Duration `yaml:"lock_timeout"`
	ReconcileDelay     time.Duration `yaml:"reconcile_delay"`

	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:                  ":8080",
		LogLevel:                "info",
		Backend:                 BackendMemory,
		RedisAddr:               "localhost:6379",
		SQLitePath:              "unpuzzle.db",
		AuthoritativeNormalized: true,
		DebounceWindow:          100 * time.Millisecond,
		StaleAfter:              5 * time.Second,
		RegistryMaxEntries:      50,
		LockTimeout:             5 * time.Second,
		ReconcileDelay:          2 * time.Second,
		RateLimitPerMinute:      120,
	}
}

// Validate checks the configuration for contradictions.
func Validate(cfg Config) error {
	switch cfg.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Backend == BackendRedis && cfg.RedisAddr == "" {
		return fmt.Errorf("redis backend requires redis_addr")
	}
	if cfg.Backend == BackendSQLite && cfg.SQLitePath == "" {
		return fmt.Errorf("sqlite backend requires sqlite_path")
	}
	if cfg.DebounceWindow < 0 || cfg.StaleAfter < 0 || cfg.LockTimeout < 0 || cfg.ReconcileDelay < 0 {
		return fmt.Errorf("timing windows must not be negative")
	}
	if cfg.DebounceWindow >= cfg.StaleAfter && cfg.StaleAfter > 0 {
		return fmt.Errorf("debounce_window (%s) must be shorter than stale_after (%s)", cfg.DebounceWindow, cfg.StaleAfter)
	}
	if cfg.RegistryMaxEntries <= 0 {
		return fmt.Errorf("registry_max_entries must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	return nil
}
