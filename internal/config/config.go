// Package config loads and stores application settings in the XDG config dir.
// Only non-secret settings are kept here; secrets go to the OS credential
// store and connection records to the metadata database.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"pgdock/core/internal/xdg"
)

// Config holds non-sensitive application settings.
type Config struct {
	LogLevel string        `json:"log_level"`
	Session  SessionConfig `json:"session"`
}

// SessionConfig tunes the session core.
type SessionConfig struct {
	// PoolSize is the maximum number of live sessions per connection.
	PoolSize int `json:"pool_size"`
	// AcquireTimeoutSec bounds how long a caller waits for a free session.
	AcquireTimeoutSec int `json:"acquire_timeout_sec"`
	// RowBatchSize is the number of rows per streamed batch.
	RowBatchSize int `json:"row_batch_size"`
	// SchemaFreshnessSec is the schema cache freshness window.
	SchemaFreshnessSec int `json:"schema_freshness_sec"`
	// IdleRevalidateSec is how long a session may sit idle before it is
	// revalidated with a round trip on next acquire.
	IdleRevalidateSec int `json:"idle_revalidate_sec"`
	// Workers is the size of the bounded worker pool for database I/O.
	Workers int `json:"workers"`
	// HistoryLimit is how many query history records are kept per connection.
	HistoryLimit int `json:"history_limit"`
}

// Defaults returns the default configuration for a single-user desktop client.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Session: SessionConfig{
			PoolSize:           4,
			AcquireTimeoutSec:  30,
			RowBatchSize:       1000,
			SchemaFreshnessSec: int((5 * time.Minute).Seconds()),
			IdleRevalidateSec:  60,
			Workers:            8,
			HistoryLimit:       500,
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	c := Defaults()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c.normalized(), nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// normalized fills zero values with defaults so a hand-edited file cannot
// disable pooling or batching entirely.
func (c Config) normalized() Config {
	d := Defaults()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	s := &c.Session
	if s.PoolSize <= 0 {
		s.PoolSize = d.Session.PoolSize
	}
	if s.AcquireTimeoutSec <= 0 {
		s.AcquireTimeoutSec = d.Session.AcquireTimeoutSec
	}
	if s.RowBatchSize <= 0 {
		s.RowBatchSize = d.Session.RowBatchSize
	}
	if s.SchemaFreshnessSec <= 0 {
		s.SchemaFreshnessSec = d.Session.SchemaFreshnessSec
	}
	if s.IdleRevalidateSec <= 0 {
		s.IdleRevalidateSec = d.Session.IdleRevalidateSec
	}
	if s.Workers <= 0 {
		s.Workers = d.Session.Workers
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = d.Session.HistoryLimit
	}
	return c
}
