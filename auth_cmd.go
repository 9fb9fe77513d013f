package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skyq/internal/secrets"
	"skyq/internal/sky"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Blackbaud and store tokens",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored authentication tokens",
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	store := openSecrets()

	creds, err := sky.LoadCredentials(store)
	if err != nil {
		return err
	}

	tokens, err := newTokenManager(store, creds, logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	if err := tokens.Authenticate(ctx); err != nil {
		return err
	}

	logger.Info("login successful")
	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	store := openSecrets()

	// Blank, not delete: the Store interface is get/set only, and an empty
	// value reads back as not-found.
	for _, key := range []string{secrets.KeyAccessToken, secrets.KeyRefreshToken} {
		if err := store.Set(key, ""); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	logger.Info("logout successful")
	statusf("Logged out.\n")

	return nil
}
