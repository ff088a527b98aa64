package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.barter/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	// UserID is the logged-in account's server id, written by the login
	// layer. Outgoing chat messages carry it as the sender.
	UserID string `toml:"user_id"`
	// Debug controls the threading-contract policy: violations panic when
	// true and are logged when false.
	Debug bool `toml:"debug"`
	// OutboxPollMillis is the outbox drain interval. Zero means the default.
	OutboxPollMillis int `toml:"outbox_poll_millis"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
