package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath is the environment variable overriding the config path.
const EnvConfigPath = "SKYQ_CONFIG"

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal — silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config with all default values. Supports the zero-config first run.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve picks the config path (flag > env > default) and loads it.
func Resolve(flagPath string) (*Config, error) {
	path := DefaultConfigPath()

	if env := os.Getenv(EnvConfigPath); env != "" {
		path = env
	}

	if flagPath != "" {
		path = flagPath
	}

	return LoadOrDefault(path)
}

// Validate checks field values and cross-field constraints.
func Validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}

	if cfg.Queue.BaseDir == "" {
		return errors.New("queue.base_dir must not be empty")
	}

	switch cfg.Secrets.Backend {
	case "file", "keyring":
	default:
		return fmt.Errorf("secrets.backend must be \"file\" or \"keyring\", got %q", cfg.Secrets.Backend)
	}

	if cfg.Secrets.Backend == "file" && cfg.Secrets.Path == "" {
		return errors.New("secrets.path must be set for the file backend")
	}

	for _, d := range []struct {
		key, value string
	}{
		{"queue.scan_interval", cfg.Queue.ScanInterval},
		{"queue.archive_age", cfg.Queue.ArchiveAge},
		{"job.poll_interval", cfg.Job.PollInterval},
		{"job.max_poll", cfg.Job.MaxPoll},
	} {
		if d.value == "" {
			continue
		}

		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.key, d.value)
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level)
	}

	return nil
}
