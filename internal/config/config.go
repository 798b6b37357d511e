package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Backend holds the hosted backend connection settings.
type Backend struct {
	URL         string `toml:"url"`
	AnonKey     string `toml:"anon_key"`
	AccessToken string `toml:"access_token"`
	UserID      string `toml:"user_id"`
}

// Outbox holds the offline-send tuning knobs.
type Outbox struct {
	// RetryLimit is the number of failed send attempts before an entry
	// is marked failed. Zero means the default (3).
	RetryLimit int `toml:"retry_limit"`
	// ReplayMinIntervalSec guards against flapping connectivity burning
	// through the retry budget. Zero means the default (5).
	ReplayMinIntervalSec int `toml:"replay_min_interval_sec"`
}

// Config represents the global ~/.chatwithyou/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	Backend        Backend `toml:"backend"`
	Outbox         Outbox  `toml:"outbox"`
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
