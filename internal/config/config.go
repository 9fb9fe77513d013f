// Package config implements TOML configuration loading and validation for
// skyq. Defaults cover a zero-config first run; the config file and the
// --config flag override them.
package config

import "time"

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Queue   QueueConfig   `toml:"queue"`
	Job     JobConfig     `toml:"job"`
	Secrets SecretsConfig `toml:"secrets"`
	History HistoryConfig `toml:"history"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig locates the SKY API and its OAuth endpoints.
type APIConfig struct {
	BaseURL  string `toml:"base_url"`
	AuthURL  string `toml:"auth_url"`
	TokenURL string `toml:"token_url"`
}

// QueueConfig controls the file queue: where it lives, how often the
// inbound directory is rescanned, and how old a completed artifact must be
// before the archive sweep picks it up.
type QueueConfig struct {
	BaseDir      string `toml:"base_dir"`
	ScanInterval string `toml:"scan_interval"`
	ArchiveAge   string `toml:"archive_age"`
}

// JobConfig controls status polling.
type JobConfig struct {
	PollInterval string `toml:"poll_interval"`
	MaxPoll      string `toml:"max_poll"`
}

// SecretsConfig selects the credential store backend.
// backend is "file" or "keyring"; path applies to the file backend.
type SecretsConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// HistoryConfig controls the sqlite job ledger.
type HistoryConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoggingConfig sets the baseline log level ("debug", "info", "warn",
// "error"); --verbose and --quiet override it.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// HistoryEnabled reports whether the job ledger is on (default true).
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// Duration accessors. Validate guarantees these parse, so errors here mean
// the Config skipped validation; the defaults are returned in that case.

func (c *Config) ScanInterval() time.Duration {
	return parseDuration(c.Queue.ScanInterval, defaultScanInterval)
}

func (c *Config) ArchiveAge() time.Duration {
	return parseDuration(c.Queue.ArchiveAge, defaultArchiveAge)
}

func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Job.PollInterval, defaultPollInterval)
}

func (c *Config) MaxPoll() time.Duration {
	return parseDuration(c.Job.MaxPoll, defaultMaxPoll)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}
