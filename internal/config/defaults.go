package config

import (
	"os"
	"path/filepath"
	"time"
)

// Production endpoints.
const (
	defaultBaseURL  = "https://api.sky.blackbaud.com"
	defaultAuthURL  = "https://app.blackbaud.com/oauth/authorize"
	defaultTokenURL = "https://oauth2.sky.blackbaud.com/token"
)

// Timing defaults, matching the query service's guidance: poll every 8
// seconds for at most 7 days, archive completed artifacts after 6 days.
const (
	defaultScanInterval = 5 * time.Second
	defaultPollInterval = 8 * time.Second
	defaultMaxPoll      = 7 * 24 * time.Hour
	defaultArchiveAge   = 6 * 24 * time.Hour
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  defaultBaseURL,
			AuthURL:  defaultAuthURL,
			TokenURL: defaultTokenURL,
		},
		Queue: QueueConfig{
			BaseDir:      filepath.Join(dataDir(), "queue"),
			ScanInterval: defaultScanInterval.String(),
			ArchiveAge:   defaultArchiveAge.String(),
		},
		Job: JobConfig{
			PollInterval: defaultPollInterval.String(),
			MaxPoll:      defaultMaxPoll.String(),
		},
		Secrets: SecretsConfig{
			Backend: "keyring",
			Path:    filepath.Join(dataDir(), "secrets.json"),
		},
		History: HistoryConfig{
			Path: filepath.Join(dataDir(), "history.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath is ~/.config/skyq/config.toml (respecting
// XDG_CONFIG_HOME).
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "skyq")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "skyq"
	}

	return filepath.Join(home, ".config", "skyq")
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "skyq")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "skyq"
	}

	return filepath.Join(home, ".local", "share", "skyq")
}
