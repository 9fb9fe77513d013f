package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"skyq/internal/history"
	"skyq/internal/job"
	"skyq/internal/journal"
	"skyq/internal/queue"
	"skyq/internal/sky"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the request queue and process jobs",
		Long: "Runs the queue director: watches the inbound directory for job " +
			"descriptor files, drives each through submission, polling, and " +
			"download, and relocates descriptor + artifact by outcome.",
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
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

	client := sky.NewClient(cfg.API.BaseURL, nil, tokens, creds, logger)

	dirs := queue.Dirs{Base: cfg.Queue.BaseDir}
	if err := dirs.EnsureAll(); err != nil {
		return err
	}

	jrnl, err := journal.New(dirs.Logs(), logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	var hist queue.History

	if cfg.HistoryEnabled() {
		ledger, err := history.Open(ctx, cfg.History.Path, logger)
		if err != nil {
			return err
		}

		defer ledger.Close()

		hist = ledger
	}

	// A missing refresh token blocks here on the interactive login — the
	// queue serves nothing until authentication resolves.
	if err := tokens.EnsureSession(ctx); err != nil {
		return err
	}

	ctrl := job.NewController(client, jrnl, cfg.PollInterval(), cfg.MaxPoll(), logger)
	director := queue.NewDirector(dirs, ctrl, jrnl, hist, cfg.ScanInterval(), cfg.ArchiveAge(), logger)

	jrnl.Note("Starting query processor...\nMonitoring folder 'query_request'")
	statusf("Watching %s\n", dirs.Inbound())

	if err := director.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
