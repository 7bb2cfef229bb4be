// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
)

// ParseString reads a string from an environment variable or returns
// the default value.
func ParseString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns
// the default value. Falls back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		warnBadValue(key, v, "not an integer, using default")
	}
	return defaultValue
}

// ParseBool reads a boolean from an environment variable or returns
// the default value.
func ParseBool(key string, defaultValue bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		warnBadValue(key, v, "not a boolean, using default")
	}
	return defaultValue
}

// ParseDuration reads a time.Duration from an environment variable or
// returns the default value.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		warnBadValue(key, v, "not a duration, using default")
	}
	return defaultValue
}

// mergeEnv overlays UNPUZZLE_* environment variables onto cfg.
func mergeEnv(cfg Config) Config {
	cfg.Listen = ParseString("UNPUZZLE_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("UNPUZZLE_LOG_LEVEL", cfg.LogLevel)
	cfg.Backend = Backend(ParseString("UNPUZZLE_BACKEND", string(cfg.Backend)))
	cfg.RedisAddr = ParseString("UNPUZZLE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = ParseInt("UNPUZZLE_REDIS_DB", cfg.RedisDB)
	cfg.SQLitePath = ParseString("UNPUZZLE_SQLITE_PATH", cfg.SQLitePath)
	cfg.FlagsFile = ParseString("UNPUZZLE_FLAGS_FILE", cfg.FlagsFile)
	cfg.AuthoritativeNormalized = ParseBool("UNPUZZLE_AUTHORITATIVE_NORMALIZED", cfg.AuthoritativeNormalized)
	cfg.DebounceWindow = ParseDuration("UNPUZZLE_DEBOUNCE_WINDOW", cfg.DebounceWindow)
	cfg.StaleAfter = ParseDuration("UNPUZZLE_STALE_AFTER", cfg.StaleAfter)
	cfg.RegistryMaxEntries = ParseInt("UNPUZZLE_REGISTRY_MAX_ENTRIES", cfg.RegistryMaxEntries)
	cfg.LockTimeout = ParseDuration("UNPUZZLE_LOCK_TIMEOUT", cfg.LockTimeout)
	cfg.ReconcileDelay = ParseDuration("UNPUZZLE_RECONCILE_DELAY", cfg.ReconcileDelay)
	cfg.RateLimitPerMinute = ParseInt("UNPUZZLE_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	return cfg
}

// warnBadValue logs an unparseable environment value.
func warnBadValue(key, value, msg string) {
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Msg(msg)
}
