package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"skyq/internal/config"
	"skyq/internal/secrets"
	"skyq/internal/sky"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the configuration loaded by PersistentPreRunE, available to all
// subcommands after the root pre-run phase completes.
var cfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "skyq",
		Short:   "SKY API query job runner",
		Long:    "Automates Blackbaud SKY query jobs: watches a request queue, submits and polls each job, and files the result artifacts.",
		Version: version,
		// Silence cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Resolve(flagConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg = loaded

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSubmitCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the loaded config and
// CLI flags. Config-file log level is the baseline; --verbose and --quiet
// override it because CLI flags always win. On a TTY the handler drops
// timestamps for compact interactive output.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		}
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openSecrets returns the credential store selected by config.
func openSecrets() secrets.Store {
	if cfg.Secrets.Backend == "file" {
		return secrets.NewFileStore(cfg.Secrets.Path)
	}

	return secrets.NewKeyring("")
}

// newTokenManager wires the token manager with the interactive browser
// grantor so a missing refresh token can always be repaired.
func newTokenManager(store secrets.Store, creds sky.Credentials, logger *slog.Logger) (*sky.TokenManager, error) {
	grantor := &sky.BrowserGrantor{
		AuthURL:     cfg.API.AuthURL,
		ClientID:    creds.ClientID,
		RedirectURL: creds.RedirectURL,
		OpenURL:     openBrowser,
		Logger:      logger,
	}

	return sky.NewTokenManager(creds, store, grantor, cfg.API.AuthURL, cfg.API.TokenURL, logger)
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
