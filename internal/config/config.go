// Package config loads acebase's runtime settings, grounded on the
// teacher's cmd/bd config.go pattern of a scoped viper.New() instance
// reading a single YAML file with GetString/GetBool/GetInt accessors and a
// package of documented defaults (spec §4.1, §5).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Backend selects a storage.Backend implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendDolt   Backend = "dolt"
)

// Config holds every acebase database-level setting spec §4.1/§4.3/§4.5
// names: inline-value threshold, property pruning, lock timeout, index
// update ordering, backend selection/DSN, and debug mode.
type Config struct {
	// MaxInlineValueSize is the serialized-size threshold (bytes) under
	// which a child value is stored inline rather than as its own
	// dedicated record (spec §3, default 50).
	MaxInlineValueSize int

	// RemoveVoidProperties, when true, silently drops undefined properties
	// on write; when false, writing an undefined property fails with
	// ErrInvalidValue. Null properties are always treated as deletions.
	RemoveVoidProperties bool

	// LockTimeout bounds how long a granted lock may be held: a warning is
	// logged at each third of it, and when it elapses the lock is forcibly
	// released and flagged expired (spec §4.3). Queued requests are not
	// timed.
	LockTimeout time.Duration

	// WaitForIndexUpdates, when true, makes writeNode block until every
	// affected index has finished updating before returning (spec §4.8).
	WaitForIndexUpdates bool

	// Debug extends LockTimeout to a 15-minute debug-friendly window
	// (spec §4.3). It does not change logging.
	Debug bool

	// Backend selects which storage.Backend to open.
	Backend Backend

	// DSN is the backend-specific connection string (file path, dolt
	// server DSN, or ignored for memory).
	DSN string

	// NATSURL optionally engages the cluster eventbus bridge (spec §4.x
	// domain stack); empty disables it.
	NATSURL string
}

// Default returns the settings spec §4.1/§4.3 specify as defaults.
func Default() *Config {
	return &Config{
		MaxInlineValueSize:   50,
		RemoveVoidProperties: false,
		LockTimeout:          90 * time.Second,
		WaitForIndexUpdates:  true,
		Debug:                false,
		Backend:              BackendMemory,
	}
}

// Load reads settings from a YAML file at path, overlaying them onto
// Default(). A missing file is not an error; Default() is returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if v.IsSet("max_inline_value_size") {
		cfg.MaxInlineValueSize = v.GetInt("max_inline_value_size")
	}
	if v.IsSet("remove_void_properties") {
		cfg.RemoveVoidProperties = v.GetBool("remove_void_properties")
	}
	if v.IsSet("lock_timeout") {
		cfg.LockTimeout = v.GetDuration("lock_timeout")
	}
	if v.IsSet("wait_for_index_updates") {
		cfg.WaitForIndexUpdates = v.GetBool("wait_for_index_updates")
	}
	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
	if v.IsSet("backend") {
		cfg.Backend = Backend(v.GetString("backend"))
	}
	if v.IsSet("dsn") {
		cfg.DSN = v.GetString("dsn")
	}
	if v.IsSet("nats_url") {
		cfg.NATSURL = v.GetString("nats_url")
	}

	if cfg.Debug {
		cfg.LockTimeout = 15 * time.Minute
	}

	return cfg, nil
}
